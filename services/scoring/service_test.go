package scoring

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/services/campaign"
	"smallbiznis-gamification/services/ledger"
	"smallbiznis-gamification/services/testutil"
	"smallbiznis-gamification/services/tier"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	companyID  = int64(1)
	campaignID = int64(10)
)

type fixture struct {
	db      *gorm.DB
	clock   *clock.Manual
	ledger  *ledger.Service
	tiers   *tier.Service
	scoring *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &ledger.Entry{}, &CampaignCreatorStats{}, &BrandCreatorMembership{}, &tier.Tier{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewManual(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	l := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Clock: clk})
	tr := tier.NewService(tier.ServiceParams{DB: db, Node: node})
	s := NewService(ServiceParams{DB: db, Node: node, Clock: clk, Ledger: l, Tiers: tr})
	return &fixture{db: db, clock: clk, ledger: l, tiers: tr, scoring: s}
}

// record mirrors the write path: append, stats and membership in one tx.
func (f *fixture) record(t *testing.T, creatorID int64, et ledger.EventType, refID, delta int64) *TierChange {
	t.Helper()
	ctx := context.Background()
	camp := campaignID
	var change *TierChange
	err := f.db.Transaction(func(tx *gorm.DB) error {
		e, err := f.ledger.AppendEntryTx(ctx, tx, ledger.AppendParams{
			CompanyID: companyID, CampaignID: &camp, CreatorID: creatorID,
			EventType: et, RefType: "test", RefID: refID, DeltaPoints: delta,
		})
		if err != nil || e == nil {
			return err
		}
		if _, err := f.scoring.ApplyEntryTx(ctx, tx, e, 1); err != nil {
			return err
		}
		change, err = f.scoring.UpdateBrandCreatorPointsTx(ctx, tx, companyID, creatorID, delta)
		return err
	})
	require.NoError(t, err)
	return change
}

func entry(id, creator, delta int64, at time.Time) *ledger.Entry {
	return &ledger.Entry{ID: id, CreatorID: creator, DeltaPoints: delta, CreatedAt: at}
}

func TestRankStandingsTieBreak(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []*ledger.Entry{
		entry(1, 200, 60, base),
		entry(2, 100, 100, base.Add(time.Minute)),
		entry(3, 200, 40, base.Add(2*time.Minute)),
		entry(4, 300, 20, base.Add(3*time.Minute)),
		entry(5, 300, 0, base.Add(4*time.Minute)),
	}

	got := RankStandings(entries, []int64{400})
	require.Len(t, got, 4)
	// 100 reached 100 at +1m, 200 only at +2m
	require.Equal(t, []int64{100, 200, 300, 400}, []int64{got[0].CreatorID, got[1].CreatorID, got[2].CreatorID, got[3].CreatorID})
	require.Equal(t, []int{1, 2, 3, 4}, []int{got[0].Rank, got[1].Rank, got[2].Rank, got[3].Rank})
	// the zero entry does not move the time creator 300 reached 20
	require.Equal(t, base.Add(3*time.Minute), got[2].ReachedAt)
}

func TestRankStandingsSameInstantUsesEntryID(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := RankStandings([]*ledger.Entry{entry(9, 1, 50, at), entry(8, 2, 50, at)}, nil)
	require.Equal(t, int64(2), got[0].CreatorID)
}

func TestRankStandingsFirstTimeTotalWasHeld(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []*ledger.Entry{
		entry(1, 1, 100, base.Add(1*time.Minute)),
		entry(2, 1, 50, base.Add(2*time.Minute)),
		entry(3, 2, 100, base.Add(3*time.Minute)),
		entry(4, 1, -50, base.Add(4*time.Minute)),
	}

	got := RankStandings(entries, nil)
	require.Len(t, got, 2)
	// creator 1 first held 100 at +1m, creator 2 only at +3m
	require.Equal(t, int64(1), got[0].CreatorID)
	require.Equal(t, int64(100), got[0].Points)
	require.Equal(t, base.Add(time.Minute), got[0].ReachedAt)
	require.Equal(t, int64(2), got[1].CreatorID)
	require.Equal(t, base.Add(3*time.Minute), got[1].ReachedAt)
}

func TestRankStandingsReachedAtMatchesRunningSum(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(7))
	deltas := []int64{-30, -10, 0, 10, 20, 30}

	for round := 0; round < 20; round++ {
		var entries []*ledger.Entry
		for i := int64(1); i <= 60; i++ {
			entries = append(entries, entry(i, int64(rng.Intn(5)+1), deltas[rng.Intn(len(deltas))], base.Add(time.Duration(i)*time.Second)))
		}

		for _, st := range RankStandings(entries, nil) {
			var sum int64
			var firstID int64
			for _, e := range entries {
				if e.CreatorID != st.CreatorID || e.DeltaPoints == 0 {
					continue
				}
				sum += e.DeltaPoints
				if firstID == 0 && sum == st.Points {
					firstID = e.ID
				}
			}
			require.Equal(t, sum, st.Points)
			require.Equal(t, firstID, st.ReachedEntryID)
			if firstID != 0 {
				require.Equal(t, base.Add(time.Duration(firstID)*time.Second), st.ReachedAt)
			}
		}
	}
}

func TestRankStandingsIsDeterministic(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var entries []*ledger.Entry
	for i := int64(1); i <= 40; i++ {
		entries = append(entries, entry(i, i%7+1, (i%3)*10, base.Add(time.Duration(i)*time.Second)))
	}
	extra := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}

	first := RankStandings(entries, extra)
	for i := 0; i < 5; i++ {
		shuffled := append([]int64(nil), extra...)
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.Equal(t, first, RankStandings(entries, shuffled))
	}
}

func TestCompletionGuardAndOnTime(t *testing.T) {
	require.True(t, ShouldAwardCompletion(campaign.DeliverablePending))
	require.True(t, ShouldAwardCompletion(campaign.DeliverableRevisionRequested))
	require.False(t, ShouldAwardCompletion(campaign.DeliverableDelivered))

	deadline := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, IsOnTime(deadline, &deadline))
	require.False(t, IsOnTime(deadline.Add(time.Millisecond), &deadline))
	require.True(t, IsOnTime(deadline, nil))
}

func TestOnTimeDeliveryScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, 1, ledger.EventDeliveryApproved, 501, 100)
	f.record(t, 1, ledger.EventOnTimeBonus, 501, 25)
	f.clock.Advance(time.Minute)
	f.record(t, 2, ledger.EventDeliveryApproved, 502, 100)

	standings, err := f.scoring.RecalculateCampaignRanks(ctx, companyID, campaignID)
	require.NoError(t, err)
	require.Equal(t, int64(1), standings[0].CreatorID)
	require.Equal(t, int64(125), standings[0].Points)

	stats, err := f.scoring.ListCampaignStats(ctx, companyID, campaignID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, int64(1), stats[0].CreatorID)
	require.Equal(t, int64(125), stats[0].Points)
	require.Equal(t, 1, stats[0].Rank)
	require.Equal(t, int64(1), stats[0].DeliverablesCompleted)
	require.Equal(t, int64(1), stats[0].DeliverablesOnTime)
	require.Equal(t, 2, stats[1].Rank)

	sum, err := f.ledger.SumPoints(ctx, ledger.Filter{CompanyID: companyID, CreatorID: 1, CampaignID: ptr(campaignID)})
	require.NoError(t, err)
	require.Equal(t, int64(125), sum)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, 1, ledger.EventSaleConfirmed, 1, 20)
	f.record(t, 2, ledger.EventSaleConfirmed, 2, 20)
	f.record(t, 3, ledger.EventSaleConfirmed, 3, 40)

	first, err := f.scoring.RecalculateCampaignRanks(ctx, companyID, campaignID)
	require.NoError(t, err)
	second, err := f.scoring.RecalculateCampaignRanks(ctx, companyID, campaignID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, []int64{3, 1, 2}, []int64{first[0].CreatorID, first[1].CreatorID, first[2].CreatorID})
}

func TestTierChangeAndSilverScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tiers.ReplaceTiers(ctx, companyID, []tier.Input{
		{TierName: "Bronze", MinPoints: 0},
		{TierName: "Silver", MinPoints: 500},
		{TierName: "Gold", MinPoints: 2000},
	})
	require.NoError(t, err)

	change := f.record(t, 7, ledger.EventAdminAdjustment, 1, 300)
	require.NotNil(t, change)
	require.Equal(t, "Bronze", change.ToTierName)
	require.Nil(t, change.FromTierID)

	require.Nil(t, f.record(t, 7, ledger.EventAdminAdjustment, 2, 100))

	change = f.record(t, 7, ledger.EventAdminAdjustment, 3, 1400)
	require.NotNil(t, change)
	require.Equal(t, "Silver", change.ToTierName)
	require.Equal(t, int64(1800), change.Points)

	m, err := f.scoring.GetMembership(ctx, companyID, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1800), m.PointsCache)
	require.Equal(t, MembershipActive, m.Status)

	tiers, err := f.tiers.ListTiers(ctx, companyID)
	require.NoError(t, err)
	current := tier.TierFor(m.PointsCache, tiers)
	next, needed := tier.NextTier(current, m.PointsCache, tiers)
	require.Equal(t, "Silver", current.TierName)
	require.Equal(t, "Gold", next.TierName)
	require.Equal(t, int64(200), needed)
}

func TestMembershipCacheMatchesLedgerReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	for i := int64(1); i <= 60; i++ {
		creator := int64(rng.Intn(4) + 1)
		delta := int64(rng.Intn(80) - 20)
		f.record(t, creator, ledger.EventAdminAdjustment, i, delta)
		// replayed keys must not move anything
		if i%5 == 0 {
			f.record(t, creator, ledger.EventAdminAdjustment, i-1, delta)
		}
	}

	mismatches, err := f.scoring.ReconcileBrand(ctx, companyID, false)
	require.NoError(t, err)
	require.Empty(t, mismatches)

	mismatches, err = f.scoring.ReconcileCampaign(ctx, companyID, campaignID, false)
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestLockMembershipKeepsPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, 1, ledger.EventAdminAdjustment, 1, 40)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := f.scoring.LockMembershipTx(ctx, tx, companyID, 1); err != nil {
			return err
		}
		return f.scoring.LockMembershipTx(ctx, tx, companyID, 2)
	})
	require.NoError(t, err)

	m, err := f.scoring.GetMembership(ctx, companyID, 1)
	require.NoError(t, err)
	require.Equal(t, int64(40), m.PointsCache)
	m, err = f.scoring.GetMembership(ctx, companyID, 2)
	require.NoError(t, err)
	require.Zero(t, m.PointsCache)

	mismatches, err := f.scoring.ReconcileBrand(ctx, companyID, false)
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestReconcileRepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, 1, ledger.EventSaleConfirmed, 1, 20)
	f.record(t, 2, ledger.EventSaleConfirmed, 2, 40)

	require.NoError(t, f.db.Model(&BrandCreatorMembership{}).Where("creator_id = ?", 1).Update("points_cache", 999).Error)
	require.NoError(t, f.db.Model(&CampaignCreatorStats{}).Where("creator_id = ?", 2).Update("points", 1).Error)

	mismatches, err := f.scoring.ReconcileBrand(ctx, companyID, true)
	require.NoError(t, err)
	require.Equal(t, []Mismatch{{Kind: MismatchMembership, CompanyID: companyID, CreatorID: 1, Cached: 999, Ledger: 20, Repaired: true}}, mismatches)

	mismatches, err = f.scoring.ReconcileCampaign(ctx, companyID, campaignID, true)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Equal(t, int64(2), mismatches[0].CreatorID)

	again, err := f.scoring.ReconcileBrand(ctx, companyID, false)
	require.NoError(t, err)
	require.Empty(t, again)
	again, err = f.scoring.ReconcileCampaign(ctx, companyID, campaignID, false)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestRefreshTiersAfterLadderChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, 1, ledger.EventAdminAdjustment, 1, 700)

	_, err := f.tiers.ReplaceTiers(ctx, companyID, []tier.Input{{TierName: "Bronze"}, {TierName: "Silver", MinPoints: 500}})
	require.NoError(t, err)

	changes, err := f.scoring.RefreshTiers(ctx, companyID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "Silver", changes[0].ToTierName)

	changes, err = f.scoring.RefreshTiers(ctx, companyID)
	require.NoError(t, err)
	require.Empty(t, changes)

	// an emptied ladder leaves no member pointing at a deleted tier
	_, err = f.tiers.ReplaceTiers(ctx, companyID, nil)
	require.NoError(t, err)
	changes, err = f.scoring.RefreshTiers(ctx, companyID)
	require.NoError(t, err)
	require.Empty(t, changes)

	m, err := f.scoring.GetMembership(ctx, companyID, 1)
	require.NoError(t, err)
	require.Nil(t, m.TierID)
}

func ptr(v int64) *int64 { return &v }
