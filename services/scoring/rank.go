package scoring

import (
	"sort"
	"time"

	"smallbiznis-gamification/services/campaign"
	"smallbiznis-gamification/services/ledger"
)

// RankStandings orders creators by ledger total, highest first. Equal totals
// go to whoever reached the total first: the earliest entry after which the
// creator's running sum equals the final total, then that entry's id, then
// the creator id. A total that was held, lost and regained counts from the
// first time it was held. Creators listed in extra without any entry still
// get a place. entries must be ordered by (created_at, id).
func RankStandings(entries []*ledger.Entry, extra []int64) []Standing {
	type checkpoint struct {
		sum int64
		at  time.Time
		id  int64
	}

	byCreator := map[int64]*Standing{}
	history := map[int64][]checkpoint{}
	get := func(id int64) *Standing {
		st, ok := byCreator[id]
		if !ok {
			st = &Standing{CreatorID: id}
			byCreator[id] = st
		}
		return st
	}

	for _, e := range entries {
		st := get(e.CreatorID)
		if e.DeltaPoints == 0 {
			continue
		}
		st.Points += e.DeltaPoints
		history[e.CreatorID] = append(history[e.CreatorID], checkpoint{sum: st.Points, at: e.CreatedAt, id: e.ID})
	}
	for _, id := range extra {
		get(id)
	}

	out := make([]Standing, 0, len(byCreator))
	for id, st := range byCreator {
		for _, cp := range history[id] {
			if cp.sum == st.Points {
				st.ReachedAt = cp.at
				st.ReachedEntryID = cp.id
				break
			}
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return standingLess(out[i], out[j])
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func standingLess(a, b Standing) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	aReached, bReached := a.ReachedEntryID != 0, b.ReachedEntryID != 0
	if aReached != bReached {
		return aReached
	}
	if !a.ReachedAt.Equal(b.ReachedAt) {
		return a.ReachedAt.Before(b.ReachedAt)
	}
	if a.ReachedEntryID != b.ReachedEntryID {
		return a.ReachedEntryID < b.ReachedEntryID
	}
	return a.CreatorID < b.CreatorID
}

// ShouldAwardCompletion reports whether completing a deliverable currently in
// prev earns points. A deliverable is only paid once.
func ShouldAwardCompletion(prev campaign.DeliverableStatus) bool {
	return prev != campaign.DeliverableDelivered
}

// IsOnTime reports whether work finished at now meets the deadline. No
// deadline counts as on time.
func IsOnTime(now time.Time, deadline *time.Time) bool {
	if deadline == nil {
		return true
	}
	return !now.After(*deadline)
}
