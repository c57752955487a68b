package prize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/config"
	"smallbiznis-gamification/pkg/sequence"
	"smallbiznis-gamification/services/campaign"
	"smallbiznis-gamification/services/ledger"
	"smallbiznis-gamification/services/scoring"
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

const companyID = int64(5)

type fixture struct {
	db        *gorm.DB
	clock     *clock.Manual
	ledger    *ledger.Service
	campaigns *campaign.Service
	svc       *Service
	ref       int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t,
		&ledger.Entry{}, &campaign.Campaign{}, &campaign.Deliverable{},
		&scoring.CampaignCreatorStats{}, &scoring.BrandCreatorMembership{}, &tier.Tier{},
		&Prize{}, &Entitlement{}, &ExecutionAttempt{}, &AuditLog{},
	)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewManual(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	seq := &sequence.Static{}

	l := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Clock: clk})
	tr := tier.NewService(tier.ServiceParams{DB: db, Node: node})
	sc := scoring.NewService(scoring.ServiceParams{DB: db, Node: node, Clock: clk, Ledger: l, Tiers: tr})
	cs := campaign.NewService(campaign.ServiceParams{DB: db, Node: node, Seq: seq, Clock: clk})

	cfg := &config.Config{}
	cfg.Gamification.PayoutTimeout = 50 * time.Millisecond
	svc, err := NewService(ServiceParams{
		DB: db, Node: node, Clock: clk, Seq: seq, Config: cfg,
		Campaigns: cs, Scoring: sc, Executor: ManualExecutor{},
	})
	require.NoError(t, err)

	return &fixture{db: db, clock: clk, ledger: l, campaigns: cs, svc: svc}
}

func (f *fixture) campaign(t *testing.T) *campaign.Campaign {
	t.Helper()
	c, err := f.campaigns.CreateCampaign(context.Background(), campaign.CreateParams{
		CompanyID: companyID, Name: "Launch", Status: campaign.StatusActive,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) points(t *testing.T, campaignID, creatorID, delta int64) {
	t.Helper()
	f.ref++
	f.clock.Advance(time.Second)
	_, err := f.ledger.AppendEntry(context.Background(), ledger.AppendParams{
		CompanyID: companyID, CampaignID: &campaignID, CreatorID: creatorID,
		EventType: ledger.EventAdminAdjustment, RefType: "test", RefID: f.ref, DeltaPoints: delta,
	})
	require.NoError(t, err)
}

func rankPrize(pos int) PrizeInput {
	amount := int64(100000)
	return PrizeInput{Type: PrizeRankingPlace, RankPosition: &pos, RewardKind: RewardCash, CashAmount: &amount, Currency: "idr"}
}

func milestonePrize(points int64, expr string) PrizeInput {
	return PrizeInput{Type: PrizeMilestone, MilestonePoints: &points, RewardKind: RewardProduct, ProductSKU: "SKU-1", ConditionExpr: expr}
}

// granted closes a campaign with one rank prize per creator and returns the
// entitlements ordered by rank.
func (f *fixture) granted(t *testing.T, creators ...int64) []*Entitlement {
	t.Helper()
	ctx := context.Background()
	c := f.campaign(t)

	var inputs []PrizeInput
	for i, creator := range creators {
		f.points(t, c.ID, creator, int64(100*(len(creators)-i)))
		inputs = append(inputs, rankPrize(i+1))
	}
	_, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, inputs)
	require.NoError(t, err)

	res, err := f.svc.CloseCampaignRanking(ctx, companyID, c.ID)
	require.NoError(t, err)
	require.Len(t, res.Created, len(creators))
	return res.Created
}

func countEntitlements(t *testing.T, db *gorm.DB, campaignID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Entitlement{}).Where("campaign_id = ?", campaignID).Count(&n).Error)
	return n
}

func TestCloseRankingGrantsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t)

	f.points(t, c.ID, 1, 150)
	f.points(t, c.ID, 2, 120)
	f.points(t, c.ID, 3, 50)

	_, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{rankPrize(1), milestonePrize(100, "")})
	require.NoError(t, err)

	res, err := f.svc.CloseCampaignRanking(ctx, companyID, c.ID)
	require.NoError(t, err)
	require.False(t, res.AlreadyClosed)
	require.Len(t, res.Created, 3)

	byPrizeType := map[string][]int64{}
	for _, e := range res.Created {
		require.Equal(t, StatusPending, e.Status)
		require.NotEmpty(t, e.Code)
		typ := e.Metadata["prize_type"].(string)
		byPrizeType[typ] = append(byPrizeType[typ], e.CreatorID)
	}
	require.Equal(t, []int64{1}, byPrizeType[string(PrizeRankingPlace)])
	require.ElementsMatch(t, []int64{1, 2}, byPrizeType[string(PrizeMilestone)])

	again, err := f.svc.CloseCampaignRanking(ctx, companyID, c.ID)
	require.NoError(t, err)
	require.True(t, again.AlreadyClosed)
	require.Empty(t, again.Created)
	require.Equal(t, int64(3), countEntitlements(t, f.db, c.ID))

	closed, err := f.campaigns.GetCampaign(ctx, companyID, c.ID)
	require.NoError(t, err)
	require.True(t, closed.RankingClosed())
	require.Equal(t, campaign.StatusClosed, closed.Status)

	trail, err := f.svc.AuditTrail(ctx, companyID, res.Created[0].ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, ActionCreated, trail[0].Action)
	require.Equal(t, StatusPending, trail[0].ToStatus)
}

type fixedCode struct{ code string }

func (g fixedCode) NextEntitlementCode(ctx context.Context, companyID int64) (string, error) {
	return g.code, nil
}

func (g fixedCode) NextCampaignCode(ctx context.Context, companyID int64) (string, error) {
	return g.code, nil
}

func TestGrantOnlySkipsSameCreatorAndPrize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t)

	prizes, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{milestonePrize(100, "")})
	require.NoError(t, err)

	first, err := f.svc.grantTx(ctx, f.db, prizes[0], 1, 150, 0)
	require.NoError(t, err)
	require.NotNil(t, first)

	again, err := f.svc.grantTx(ctx, f.db, prizes[0], 1, 150, 0)
	require.NoError(t, err)
	require.Nil(t, again)

	// a different creator must not vanish behind an unrelated unique clash
	clashing := *f.svc
	clashing.seq = fixedCode{code: first.Code}
	other, err := clashing.grantTx(ctx, f.db, prizes[0], 2, 120, 0)
	require.Error(t, err)
	require.Nil(t, other)
	require.Equal(t, int64(1), countEntitlements(t, f.db, c.ID))
}

func TestConcurrentCloseCreatesOneEntitlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t)
	f.points(t, c.ID, 9, 40)

	_, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{rankPrize(1)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CloseCampaignRanking(ctx, companyID, c.ID)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), countEntitlements(t, f.db, c.ID))
}

func TestRankPrizeNeedsPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t)
	f.points(t, c.ID, 1, 10)
	f.points(t, c.ID, 1, -10)

	_, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{rankPrize(1)})
	require.NoError(t, err)

	res, err := f.svc.CloseCampaignRanking(ctx, companyID, c.ID)
	require.NoError(t, err)
	require.Empty(t, res.Created)
}

func TestConditionExpressionRestrictsWinners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t)

	f.points(t, c.ID, 1, 300)
	f.points(t, c.ID, 2, 300)
	require.NoError(t, f.db.Create(&scoring.CampaignCreatorStats{
		ID: 77, CompanyID: companyID, CampaignID: c.ID, CreatorID: 2, DeliverablesCompleted: 3,
	}).Error)

	_, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{
		milestonePrize(200, "deliverables_completed >= 2 && points >= 200"),
	})
	require.NoError(t, err)

	res, err := f.svc.CloseCampaignRanking(ctx, companyID, c.ID)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	require.Equal(t, int64(2), res.Created[0].CreatorID)
}

func TestCheckMilestonesAndPrizeLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t)

	_, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{milestonePrize(100, ""), milestonePrize(500, "")})
	require.NoError(t, err)

	created, err := f.svc.CheckMilestones(ctx, companyID, c.ID, 4, 99)
	require.NoError(t, err)
	require.Empty(t, created)

	created, err = f.svc.CheckMilestones(ctx, companyID, c.ID, 4, 120)
	require.NoError(t, err)
	require.Len(t, created, 1)

	created, err = f.svc.CheckMilestones(ctx, companyID, c.ID, 4, 130)
	require.NoError(t, err)
	require.Empty(t, created)

	_, err = f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{rankPrize(1)})
	require.ErrorIs(t, err, ErrPrizesLocked)
}

func TestReplacePrizesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t)

	zero := 0
	cases := map[string][]PrizeInput{
		"rank below one":     {{Type: PrizeRankingPlace, RankPosition: &zero, RewardKind: RewardCustom}},
		"duplicate position": {rankPrize(1), rankPrize(1)},
		"cash without value": {{Type: PrizeRankingPlace, RankPosition: &[]int{1}[0], RewardKind: RewardCash}},
		"milestone no value": {{Type: PrizeMilestone, RewardKind: RewardCoupon}},
		"unknown kind":       {{Type: PrizeMilestone, MilestonePoints: &[]int64{5}[0], RewardKind: "gift"}},
		"broken expression":  {milestonePrize(10, "points >")},
		"non bool condition": {milestonePrize(10, "points + 1")},
		"unknown variable":   {milestonePrize(10, "followers > 3")},
	}
	for name, inputs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, inputs)
			require.Error(t, err)
		})
	}

	prizes, err := f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{rankPrize(1), rankPrize(2)})
	require.NoError(t, err)
	require.Len(t, prizes, 2)

	prizes, err = f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{rankPrize(3)})
	require.NoError(t, err)
	listed, err := f.svc.ListPrizes(ctx, companyID, c.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, prizes[0].ID, listed[0].ID)

	_, err = f.svc.CloseCampaignRanking(ctx, companyID, c.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateOrReplaceCampaignPrizes(ctx, companyID, c.ID, []PrizeInput{rankPrize(1)})
	require.ErrorIs(t, err, ErrRankingClosed)
}

func TestApproveAndRejectTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ents := f.granted(t, 1, 2)

	approved, err := f.svc.ApproveRewardEntitlement(ctx, companyID, ents[0].ID, 900)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, int64(900), *approved.ApprovedByUserID)
	require.NotNil(t, approved.ApprovedAt)

	_, err = f.svc.ApproveRewardEntitlement(ctx, companyID, ents[0].ID, 900)
	require.ErrorIs(t, err, ErrInvalidTransition)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	require.Equal(t, StatusApproved, te.From)

	_, err = f.svc.RejectRewardEntitlement(ctx, companyID, ents[0].ID, 900, "late")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.RejectRewardEntitlement(ctx, companyID, ents[1].ID, 900, "  ")
	require.ErrorIs(t, err, ErrReasonRequired)

	rejected, err := f.svc.RejectRewardEntitlement(ctx, companyID, ents[1].ID, 900, "fake followers")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	_, err = f.svc.ExecuteApprovedReward(ctx, companyID, ents[1].ID, 900)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.ApproveRewardEntitlement(ctx, companyID+1, ents[1].ID, 900)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExecuteFromPendingIsRefused(t *testing.T) {
	f := newFixture(t)
	ents := f.granted(t, 1)

	_, err := f.svc.ExecuteApprovedReward(context.Background(), companyID, ents[0].ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var attempts int64
	require.NoError(t, f.db.Model(&ExecutionAttempt{}).Count(&attempts).Error)
	require.Zero(t, attempts)
}

func TestExecuteCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ents := f.granted(t, 1)

	var got PayoutRequest
	f.svc.executor = ExecutorFunc(func(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
		got = req
		return &PayoutResult{Outcome: OutcomeCompleted, ExternalRef: "po-1"}, nil
	})

	_, err := f.svc.ApproveRewardEntitlement(ctx, companyID, ents[0].ID, 10)
	require.NoError(t, err)
	done, err := f.svc.ExecuteApprovedReward(ctx, companyID, ents[0].ID, 11)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, "po-1", done.Metadata["external_ref"])
	require.Equal(t, 1, got.Attempt)
	require.NotEmpty(t, got.IdempotencyKey)
	require.Equal(t, RewardCash, got.Prize.RewardKind)

	stored, err := f.svc.GetEntitlement(ctx, companyID, ents[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, int64(11), *stored.ExecutedByUserID)

	var attempt ExecutionAttempt
	require.NoError(t, f.db.Where("entitlement_id = ?", ents[0].ID).Take(&attempt).Error)
	require.Equal(t, AttemptCompleted, attempt.Status)
	require.Equal(t, "po-1", attempt.ExternalRef)
	require.NotNil(t, attempt.FinishedAt)

	trail, err := f.svc.AuditTrail(ctx, companyID, ents[0].ID)
	require.NoError(t, err)
	actions := make([]Action, 0, len(trail))
	for _, row := range trail {
		actions = append(actions, row.Action)
	}
	require.Equal(t, []Action{ActionCreated, ActionApprove, ActionExecute, ActionComplete}, actions)

	_, err = f.svc.ExecuteApprovedReward(ctx, companyID, ents[0].ID, 11)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExecuteFailureThenRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ents := f.granted(t, 1)
	id := ents[0].ID

	calls := 0
	f.svc.executor = ExecutorFunc(func(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("bank unavailable")
		}
		return &PayoutResult{Outcome: OutcomeCompleted, ExternalRef: "po-2"}, nil
	})

	_, err := f.svc.ApproveRewardEntitlement(ctx, companyID, id, 10)
	require.NoError(t, err)

	failed, err := f.svc.ExecuteApprovedReward(ctx, companyID, id, 11)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	require.Equal(t, "bank unavailable", failed.Metadata["last_error"])

	_, err = f.svc.ApproveRewardEntitlement(ctx, companyID, id, 10)
	require.ErrorIs(t, err, ErrInvalidTransition)

	retried, err := f.svc.ExecuteApprovedReward(ctx, companyID, id, 11)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, retried.Status)

	var attempts []ExecutionAttempt
	require.NoError(t, f.db.Where("entitlement_id = ?", id).Order("attempt ASC").Find(&attempts).Error)
	require.Len(t, attempts, 2)
	require.Equal(t, AttemptFailed, attempts[0].Status)
	require.Equal(t, "bank unavailable", attempts[0].Error)
	require.Equal(t, AttemptCompleted, attempts[1].Status)
	require.NotEqual(t, attempts[0].IdempotencyKey, attempts[1].IdempotencyKey)
}

func TestExecuteTimeoutFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ents := f.granted(t, 1)

	f.svc.executor = ExecutorFunc(func(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := f.svc.ApproveRewardEntitlement(ctx, companyID, ents[0].ID, 10)
	require.NoError(t, err)

	out, err := f.svc.ExecuteApprovedReward(ctx, companyID, ents[0].ID, 11)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, out.Status)
	require.Contains(t, out.Metadata["last_error"], "deadline exceeded")
}

func TestAsyncPayoutCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ents := f.granted(t, 1, 2)

	for _, e := range ents {
		_, err := f.svc.ApproveRewardEntitlement(ctx, companyID, e.ID, 10)
		require.NoError(t, err)
		out, err := f.svc.ExecuteApprovedReward(ctx, companyID, e.ID, 11)
		require.NoError(t, err)
		require.Equal(t, StatusExecuting, out.Status)
	}

	_, err := f.svc.ApproveRewardEntitlement(ctx, companyID, ents[0].ID, 10)
	require.ErrorIs(t, err, ErrInvalidTransition)

	done, err := f.svc.CompleteRewardEntitlement(ctx, companyID, ents[0].ID, 12, "po-9")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)

	_, err = f.svc.FailRewardEntitlement(ctx, companyID, ents[0].ID, 12, "bounced")
	require.ErrorIs(t, err, ErrInvalidTransition)

	failed, err := f.svc.FailRewardEntitlement(ctx, companyID, ents[1].ID, 12, "bounced")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)

	var attempt ExecutionAttempt
	require.NoError(t, f.db.Where("entitlement_id = ?", ents[1].ID).Take(&attempt).Error)
	require.Equal(t, AttemptFailed, attempt.Status)
	require.Equal(t, "bounced", attempt.Error)
}

func TestBulkApprovePartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ents := f.granted(t, 1, 2, 3)

	_, err := f.svc.ApproveRewardEntitlement(ctx, companyID, ents[1].ID, 10)
	require.NoError(t, err)

	res := f.svc.BulkApproveRewards(ctx, companyID, []int64{ents[0].ID, ents[1].ID, 424242, ents[2].ID, ents[0].ID}, 10)
	require.Equal(t, []int64{ents[0].ID, ents[2].ID}, res.Succeeded)
	require.Equal(t, []string{formatID(ents[0].ID), formatID(ents[2].ID)}, res.SucceededIDs())
	require.Len(t, res.Failed, 2)
	require.ErrorIs(t, res.Failed[ents[1].ID], ErrInvalidTransition)
	require.ErrorIs(t, res.Failed[424242], ErrNotFound)
	require.Len(t, res.FailedMessages(), 2)
}

func TestConcurrentApprovalHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ents := f.granted(t, 1)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			_, err := f.svc.ApproveRewardEntitlement(ctx, companyID, ents[0].ID, actor)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			require.ErrorIs(t, err, ErrInvalidTransition)
		}(int64(i + 1))
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestListEntitlements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ents := f.granted(t, 1, 2, 3)

	_, err := f.svc.ApproveRewardEntitlement(ctx, companyID, ents[0].ID, 10)
	require.NoError(t, err)

	approved, _, err := f.svc.ListEntitlements(ctx, Filter{CompanyID: companyID, Status: StatusApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)

	f1 := Filter{CompanyID: companyID}
	f1.Limit = 2
	page, info, err := f.svc.ListEntitlements(ctx, f1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	f1.Cursor = info.NextCursor
	rest, info, err := f.svc.ListEntitlements(ctx, f1)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, info.HasMore)

	_, _, err = f.svc.ListEntitlements(ctx, Filter{CompanyID: companyID, Status: "bogus"})
	require.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	legal := [][2]Status{
		{StatusPending, StatusApproved},
		{StatusPending, StatusRejected},
		{StatusApproved, StatusExecuting},
		{StatusExecuting, StatusCompleted},
		{StatusExecuting, StatusFailed},
		{StatusFailed, StatusExecuting},
	}
	all := []Status{StatusPending, StatusApproved, StatusRejected, StatusExecuting, StatusCompleted, StatusFailed}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, l := range legal {
				if l[0] == from && l[1] == to {
					want = true
				}
			}
			require.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}
