package tier

import "sort"

// SortTiers returns a copy ordered by (min_points, sort_order, id).
func SortTiers(tiers []*Tier) []*Tier {
	out := make([]*Tier, 0, len(tiers))
	for _, t := range tiers {
		if t != nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MinPoints != b.MinPoints {
			return a.MinPoints < b.MinPoints
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	})
	return out
}

// TierFor returns the highest tier whose threshold is reached. Below every
// threshold the lowest tier applies. Nil only when there are no tiers.
func TierFor(points int64, ordered []*Tier) *Tier {
	if len(ordered) == 0 {
		return nil
	}
	current := ordered[0]
	for _, t := range ordered[1:] {
		if t.MinPoints > points {
			break
		}
		current = t
	}
	return current
}

// NextTier returns the first tier above current and how many points are
// still missing to reach it. At the top tier it returns nil, 0.
func NextTier(current *Tier, points int64, ordered []*Tier) (*Tier, int64) {
	var next *Tier
	for i, t := range ordered {
		if current == nil {
			if t.MinPoints > points {
				next = t
				break
			}
			continue
		}
		if t.ID == current.ID {
			if i+1 < len(ordered) {
				next = ordered[i+1]
			}
			break
		}
	}
	if next == nil {
		return nil, 0
	}

	needed := next.MinPoints - points
	if needed < 0 {
		needed = 0
	}
	return next, needed
}
