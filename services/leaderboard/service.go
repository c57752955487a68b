package leaderboard

import (
	"context"
	"fmt"
	"time"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/config"
	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/services/ledger"
	"smallbiznis-gamification/services/scoring"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
)

var tracer = otel.Tracer("smallbiznis-gamification/services/leaderboard")

var Module = fx.Module("leaderboard.service",
	fx.Provide(NewService),
)

type Range string

const (
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeAll   Range = "all"
)

// ParseRange maps a query value to a Range. Empty means all time.
func ParseRange(v string) (Range, error) {
	switch Range(v) {
	case "":
		return RangeAll, nil
	case RangeWeek, RangeMonth, RangeAll:
		return Range(v), nil
	}
	return "", errutil.BadRequest(fmt.Sprintf("unknown range %q", v), nil)
}

// Since returns the inclusive lower bound of the window ending at now.
func (r Range) Since(now time.Time) time.Time {
	switch r {
	case RangeWeek:
		return now.Add(-7 * 24 * time.Hour)
	case RangeMonth:
		return now.Add(-30 * 24 * time.Hour)
	}
	return time.Time{}
}

type Row struct {
	Rank        int   `json:"rank"`
	CreatorID   int64 `json:"creator_id,string"`
	TotalPoints int64 `json:"total_points"`
}

type CampaignRow struct {
	Row
	DeliverablesCompleted int64 `json:"deliverables_completed"`
	DeliverablesOnTime    int64 `json:"deliverables_on_time"`
	TotalViews            int64 `json:"total_views"`
	TotalSales            int64 `json:"total_sales"`
}

type Service struct {
	ledger  *ledger.Service
	scoring *scoring.Service
	clock   clock.Clock
	maxRows int
}

type ServiceParams struct {
	fx.In
	Config  *config.Config `optional:"true"`
	Ledger  *ledger.Service
	Scoring *scoring.Service
	Clock   clock.Clock
}

func NewService(p ServiceParams) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	s := &Service{ledger: p.Ledger, scoring: p.Scoring, clock: c}
	if p.Config != nil {
		s.maxRows = p.Config.Gamification.LeaderboardMax
	}
	return s
}

// GetBrandLeaderboard ranks creators by the points they earned inside the
// window, optionally restricted to one campaign. The window is evaluated at
// read time. limit truncates after ranking; limit <= 0 returns every row.
func (s *Service) GetBrandLeaderboard(ctx context.Context, companyID int64, r Range, campaignID *int64, limit int) ([]Row, error) {
	ctx, span := tracer.Start(ctx, "leaderboard.GetBrandLeaderboard")
	defer span.End()
	span.SetAttributes(attribute.Int64("company_id", companyID), attribute.String("range", string(r)))

	if companyID <= 0 {
		return nil, errutil.BadRequest("company_id is required", nil)
	}
	if _, err := ParseRange(string(r)); err != nil {
		return nil, err
	}

	entries, err := s.ledger.Entries(ctx, ledger.Filter{
		CompanyID:  companyID,
		CampaignID: campaignID,
		Since:      r.Since(s.clock.Now()),
	})
	if err != nil {
		return nil, err
	}

	standings := scoring.RankStandings(entries, nil)
	if s.maxRows > 0 && (limit <= 0 || limit > s.maxRows) {
		limit = s.maxRows
	}
	if limit > 0 && len(standings) > limit {
		standings = standings[:limit]
	}

	rows := make([]Row, 0, len(standings))
	for _, st := range standings {
		rows = append(rows, Row{Rank: st.Rank, CreatorID: st.CreatorID, TotalPoints: st.Points})
	}
	return rows, nil
}

// GetCampaignLeaderboard reads the persisted campaign ranking.
func (s *Service) GetCampaignLeaderboard(ctx context.Context, companyID, campaignID int64) ([]CampaignRow, error) {
	stats, err := s.scoring.ListCampaignStats(ctx, companyID, campaignID)
	if err != nil {
		return nil, err
	}

	rows := make([]CampaignRow, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, CampaignRow{
			Row:                   Row{Rank: st.Rank, CreatorID: st.CreatorID, TotalPoints: st.Points},
			DeliverablesCompleted: st.DeliverablesCompleted,
			DeliverablesOnTime:    st.DeliverablesOnTime,
			TotalViews:            st.TotalViews,
			TotalSales:            st.TotalSales,
		})
	}
	return rows, nil
}
