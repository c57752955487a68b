package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"smallbiznis-gamification/services/ledger"
	"smallbiznis-gamification/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func ptr(v int64) *int64 { return &v }

type campaignSourceMock struct {
	fn func(ctx context.Context, companyID, campaignID int64) (*CampaignScoring, error)
}

func (m *campaignSourceMock) CampaignScoring(ctx context.Context, companyID, campaignID int64) (*CampaignScoring, error) {
	return m.fn(ctx, companyID, campaignID)
}

func TestMergeIsFieldByField(t *testing.T) {
	brand := &Layer{PointsPerDeliverable: ptr(80), PointsPerDeliverableType: map[string]int64{"reel": 120}}
	campaign := &Layer{PointsPerSale: ptr(35), PointsPerDeliverableType: map[string]int64{"story": 15}}

	got := Merge(DefaultScoringRules(), brand, campaign)

	require.Equal(t, int64(80), got.PointsPerDeliverable)
	require.Equal(t, int64(35), got.PointsPerSale)
	require.Equal(t, int64(10), got.PointsOnTimeBonus)
	require.Equal(t, map[string]int64{"reel": 120, "story": 15}, got.PointsPerDeliverableType)
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := DefaultScoringRules()
	base.PointsPerDeliverableType["post"] = 40
	_ = Merge(base, &Layer{PointsPerDeliverableType: map[string]int64{"post": 1}})
	require.Equal(t, int64(40), base.PointsPerDeliverableType["post"])
}

func TestParseLayerTolerance(t *testing.T) {
	require.Nil(t, ParseLayer(nil))
	require.Nil(t, ParseLayer([]byte(`{not json`)))

	l := ParseLayer([]byte(`{"pointsPerSale":-5,"pointsPerLike":3,"pointsPerDeliverableType":{"reel":-1,"post":7}}`))
	require.NotNil(t, l)
	require.Nil(t, l.PointsPerSale)
	require.Equal(t, int64(3), *l.PointsPerLike)
	require.Equal(t, map[string]int64{"post": 7}, l.PointsPerDeliverableType)
}

func TestParseCapsDropsInvalidEntries(t *testing.T) {
	c := ParseCaps([]byte(`{"sales":{"maxPoints":100,"period":"week"},"bogus":{"maxPoints":1,"period":"day"},"views":{"maxPoints":5,"period":"year"}}`))
	require.Equal(t, Caps{CategorySales: {MaxPoints: 100, Period: PeriodWeek}}, c)
	require.Nil(t, ParseCaps([]byte(`[]`)))
}

func TestResolveCascade(t *testing.T) {
	db := testutil.NewTestDB(t, &BrandScoringConfig{})
	ctx := context.Background()

	campaigns := &campaignSourceMock{fn: func(ctx context.Context, companyID, campaignID int64) (*CampaignScoring, error) {
		switch campaignID {
		case 1:
			return &CampaignScoring{Rules: []byte(`{"pointsPerSale":35}`), Caps: []byte(`{"sales":{"maxPoints":70,"period":"campaign"}}`), OverridesBrand: true}, nil
		case 2:
			return &CampaignScoring{Rules: []byte(`{"pointsPerSale":99}`), OverridesBrand: false}, nil
		default:
			return nil, errors.New("campaign store down")
		}
	}}
	svc := NewService(ServiceParams{DB: db, Cache: NewCache(time.Minute), Campaigns: campaigns})

	// nothing configured: system defaults
	require.Equal(t, DefaultScoringRules().PointsPerSale, svc.ResolveScoringRules(ctx, 7, 0).PointsPerSale)
	require.Empty(t, svc.ResolveCaps(ctx, 7, 0))

	_, err := svc.UpsertBrandConfig(ctx, 7, &Layer{PointsPerDeliverable: ptr(80)}, Caps{CategoryViews: {MaxPoints: 50, Period: PeriodDay}})
	require.NoError(t, err)

	brandOnly := svc.ResolveScoringRules(ctx, 7, 0)
	require.Equal(t, int64(80), brandOnly.PointsPerDeliverable)
	require.Equal(t, int64(20), brandOnly.PointsPerSale)

	overridden := svc.Resolve(ctx, 7, 1)
	require.Equal(t, int64(35), overridden.Rules.PointsPerSale)
	require.Equal(t, int64(80), overridden.Rules.PointsPerDeliverable)
	require.Equal(t, Caps{
		CategoryViews: {MaxPoints: 50, Period: PeriodDay},
		CategorySales: {MaxPoints: 70, Period: PeriodCampaign},
	}, overridden.Caps)

	notFlagged := svc.ResolveScoringRules(ctx, 7, 2)
	require.Equal(t, int64(20), notFlagged.PointsPerSale)

	failing := svc.ResolveScoringRules(ctx, 7, 3)
	require.Equal(t, int64(80), failing.PointsPerDeliverable)
}

func TestResolveFallsBackWhenStoreFails(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(ServiceParams{DB: db})

	// brand_scoring_configs was never migrated
	got := svc.ResolveScoringRules(context.Background(), 1, 0)
	require.Equal(t, DefaultScoringRules().PointsPerDeliverable, got.PointsPerDeliverable)
}

func TestFallbackIsNotCachedAfterOutage(t *testing.T) {
	db := testutil.NewTestDB(t, &BrandScoringConfig{})
	ctx := context.Background()

	down := true
	campaigns := &campaignSourceMock{fn: func(ctx context.Context, companyID, campaignID int64) (*CampaignScoring, error) {
		if down {
			return nil, errors.New("campaign store down")
		}
		return &CampaignScoring{Rules: []byte(`{"pointsPerSale":99}`), OverridesBrand: true}, nil
	}}
	svc := NewService(ServiceParams{DB: db, Cache: NewCache(time.Hour), Campaigns: campaigns})

	during := svc.Resolve(ctx, 4, 1)
	require.True(t, during.Degraded)
	require.Equal(t, int64(20), during.Rules.PointsPerSale)

	down = false
	after := svc.Resolve(ctx, 4, 1)
	require.False(t, after.Degraded)
	require.Equal(t, int64(99), after.Rules.PointsPerSale)

	// healthy results are still cached
	down = true
	require.Equal(t, int64(99), svc.ResolveScoringRules(ctx, 4, 1).PointsPerSale)
}

func TestCacheSkipsDegradedResults(t *testing.T) {
	c := NewCache(time.Minute)
	calls := 0
	load := func() *Resolved { calls++; return &Resolved{Rules: DefaultScoringRules(), Degraded: true} }

	c.Load(Key{2, 0}, load)
	c.Load(Key{2, 0}, load)
	require.Equal(t, 2, calls)
}

func TestUpsertBrandConfigInvalidatesCache(t *testing.T) {
	db := testutil.NewTestDB(t, &BrandScoringConfig{})
	ctx := context.Background()
	svc := NewService(ServiceParams{DB: db, Cache: NewCache(time.Hour)})

	require.Equal(t, int64(20), svc.ResolveScoringRules(ctx, 3, 0).PointsPerSale)

	_, err := svc.UpsertBrandConfig(ctx, 3, &Layer{PointsPerSale: ptr(25)}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(25), svc.ResolveScoringRules(ctx, 3, 0).PointsPerSale)

	_, err = svc.UpsertBrandConfig(ctx, 3, &Layer{PointsPerSale: ptr(30)}, nil)
	require.NoError(t, err)
	require.Equal(t, int64(30), svc.ResolveScoringRules(ctx, 3, 0).PointsPerSale)

	var count int64
	require.NoError(t, db.Model(&BrandScoringConfig{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestUpsertBrandConfigValidation(t *testing.T) {
	db := testutil.NewTestDB(t, &BrandScoringConfig{})
	svc := NewService(ServiceParams{DB: db})
	ctx := context.Background()

	_, err := svc.UpsertBrandConfig(ctx, 1, &Layer{PointsPerLike: ptr(-1)}, nil)
	require.Error(t, err)
	_, err = svc.UpsertBrandConfig(ctx, 1, nil, Caps{"bogus": {MaxPoints: 1, Period: PeriodDay}})
	require.Error(t, err)
	_, err = svc.UpsertBrandConfig(ctx, 1, nil, Caps{CategorySales: {MaxPoints: 1, Period: "fortnight"}})
	require.Error(t, err)
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	calls := 0
	load := func() *Resolved { calls++; return &Resolved{Rules: DefaultScoringRules()} }

	c.Load(Key{1, 0}, load)
	c.Load(Key{1, 0}, load)
	require.Equal(t, 1, calls)

	now = now.Add(2 * time.Minute)
	c.Load(Key{1, 0}, load)
	require.Equal(t, 2, calls)
}

func TestPrice(t *testing.T) {
	r := DefaultScoringRules()
	r.PointsPerDeliverableType = map[string]int64{"reel": 120}

	cases := []struct {
		name     string
		event    ledger.EventType
		quantity int64
		meta     map[string]any
		want     int64
	}{
		{"delivery default", ledger.EventDeliveryApproved, 0, nil, 50},
		{"delivery typed", ledger.EventDeliveryApproved, 1, map[string]any{"deliverable_type": "reel"}, 120},
		{"reel content", ledger.EventReelCreated, 2, nil, 240},
		{"post content falls back", ledger.EventPostCreated, 1, nil, 50},
		{"ontime", ledger.EventOnTimeBonus, 1, nil, 10},
		{"views floor", ledger.EventViewsMilestone, 12500, nil, 60},
		{"views below 1k", ledger.EventViewsMilestone, 999, nil, 0},
		{"likes", ledger.EventLikeMilestone, 40, nil, 40},
		{"comments", ledger.EventCommentMilestone, 4, nil, 8},
		{"sale", ledger.EventSaleConfirmed, 1, nil, 20},
		{"sale quantity", ledger.EventSaleConfirmed, 3, nil, 60},
		{"penalty", ledger.EventPenaltyLate, 15, nil, -15},
		{"penalty already negative", ledger.EventPenaltyLate, -15, nil, -15},
		{"adjustment", ledger.EventAdminAdjustment, -40, nil, -40},
		{"community", ledger.EventCommunityJoined, 25, nil, 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Price(r, tc.event, tc.quantity, tc.meta))
		})
	}
}

func TestCategoryOf(t *testing.T) {
	cat, ok := CategoryOf(ledger.EventSaleConfirmed)
	require.True(t, ok)
	require.Equal(t, CategorySales, cat)

	_, ok = CategoryOf(ledger.EventAdminAdjustment)
	require.False(t, ok)
	_, ok = CategoryOf(ledger.EventPenaltyLate)
	require.False(t, ok)

	require.ElementsMatch(t, []ledger.EventType{ledger.EventLikeMilestone, ledger.EventCommentMilestone}, EventTypesOf(CategoryEngagement))
}

func TestPeriodStart(t *testing.T) {
	// Thursday
	now := time.Date(2026, 10, 15, 17, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), PeriodStart(PeriodDay, now))
	require.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), PeriodStart(PeriodWeek, now))
	require.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), PeriodStart(PeriodMonth, now))
	require.True(t, PeriodStart(PeriodCampaign, now).IsZero())

	sunday := time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), PeriodStart(PeriodWeek, sunday))
}

func TestClamp(t *testing.T) {
	c := Cap{MaxPoints: 100, Period: PeriodWeek}
	require.Equal(t, int64(20), Clamp(20, c, 50))
	require.Equal(t, int64(10), Clamp(20, c, 90))
	require.Equal(t, int64(0), Clamp(20, c, 100))
	require.Equal(t, int64(0), Clamp(20, c, 140))
	require.Equal(t, int64(-5), Clamp(-5, c, 140))
}
