package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/db/pagination"
	"smallbiznis-gamification/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *clock.Manual, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Entry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewManual(t0)
	return NewService(ServiceParams{DB: db, Node: node, Clock: clk}), clk, db
}

func sale(refID, delta int64) AppendParams {
	campaign := int64(10)
	return AppendParams{
		CompanyID:   1,
		CampaignID:  &campaign,
		CreatorID:   100,
		EventType:   EventSaleConfirmed,
		RefType:     "order",
		RefID:       refID,
		DeltaPoints: delta,
		Metadata:    map[string]any{"order_total": 250000},
	}
}

func TestAppendEntryIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.AppendEntry(ctx, sale(77, 20))
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotEmpty(t, first.Checksum)

	again := sale(77, 999)
	second, err := svc.AppendEntry(ctx, again)
	require.NoError(t, err)
	require.Nil(t, second)

	total, err := svc.SumPoints(ctx, Filter{CompanyID: 1, CreatorID: 100})
	require.NoError(t, err)
	require.Equal(t, int64(20), total)

	entries, err := svc.EntriesForCreator(ctx, 1, 100, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, first.ID, entries[0].ID)
}

func TestAppendEntrySameRefDifferentEventType(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AppendEntry(ctx, sale(5, 20))
	require.NoError(t, err)

	p := sale(5, 10)
	p.EventType = EventOnTimeBonus
	e, err := svc.AppendEntry(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, e)
}

func TestAppendEntryConcurrentSameKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var inserted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := svc.AppendEntry(ctx, sale(42, 20))
			if err == nil && e != nil {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), inserted.Load())
	total, err := svc.SumPoints(ctx, Filter{CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, int64(20), total)
}

func TestAppendEntryValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []func(p *AppendParams){
		func(p *AppendParams) { p.CompanyID = 0 },
		func(p *AppendParams) { p.CreatorID = 0 },
		func(p *AppendParams) { p.EventType = "tweet_created" },
		func(p *AppendParams) { p.RefType = " " },
		func(p *AppendParams) { zero := int64(0); p.CampaignID = &zero },
	}
	for _, mutate := range cases {
		p := sale(1, 1)
		mutate(&p)
		_, err := svc.AppendEntry(ctx, p)
		require.ErrorIs(t, err, ErrInvalidEntry)
	}
}

func TestInsertIgnoreOnlySkipsIdempotencyConflicts(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	repo := NewRepository(db)

	e, err := svc.AppendEntry(ctx, sale(9, 20))
	require.NoError(t, err)

	// same business fact under a fresh id
	same := *e
	same.ID = e.ID + 1
	inserted, err := repo.InsertIgnore(ctx, &same)
	require.NoError(t, err)
	require.False(t, inserted)

	// another fact that happens to reuse an id
	clash := *e
	clash.RefID = 10
	clash.Checksum = clash.GenerateChecksum()
	inserted, err = repo.InsertIgnore(ctx, &clash)
	require.Error(t, err)
	require.False(t, inserted)

	total, err := svc.SumPoints(ctx, Filter{CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, int64(20), total)
}

func TestListEntriesPaginatesInOrder(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		_, err := svc.AppendEntry(ctx, sale(i, i))
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}

	var seen []int64
	cursor := ""
	for {
		page, info, err := svc.ListEntries(ctx, Filter{
			CompanyID:  1,
			Pagination: pagination.Pagination{Cursor: cursor, Limit: 2},
		})
		require.NoError(t, err)
		for _, e := range page {
			seen = append(seen, e.DeltaPoints)
		}
		if !info.HasMore {
			break
		}
		cursor = info.NextCursor
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5}, seen)

	_, _, err := svc.ListEntries(ctx, Filter{CompanyID: 1, Pagination: pagination.Pagination{Cursor: "%%%"}})
	require.Error(t, err)
}

func TestSumPointsWindow(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AppendEntry(ctx, sale(1, 30))
	require.NoError(t, err)
	clk.Advance(10 * 24 * time.Hour)
	_, err = svc.AppendEntry(ctx, sale(2, 12))
	require.NoError(t, err)

	recent, err := svc.SumPoints(ctx, Filter{CompanyID: 1, Since: clk.Now().Add(-7 * 24 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, int64(12), recent)

	totals, err := svc.TotalsByCreator(ctx, Filter{CompanyID: 1})
	require.NoError(t, err)
	require.Equal(t, []CreatorTotal{{CreatorID: 100, Total: 42}}, totals)
}

func TestVerifyEntriesDetectsTampering(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	a, err := svc.AppendEntry(ctx, sale(1, 20))
	require.NoError(t, err)
	_, err = svc.AppendEntry(ctx, sale(2, 20))
	require.NoError(t, err)

	require.NoError(t, db.Model(&Entry{}).Where("id = ?", a.ID).Update("delta_points", 2000).Error)

	entries, err := svc.EntriesForCampaign(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID}, VerifyEntries(entries))
}
