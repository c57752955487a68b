package scoring

import (
	"context"
	"errors"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/services/ledger"
	"smallbiznis-gamification/services/tier"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("smallbiznis-gamification/services/scoring")

var Module = fx.Module("scoring.service",
	fx.Provide(NewService),
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  clock.Clock
	ledger *ledger.Service
	tiers  *tier.Service
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  clock.Clock
	Ledger *ledger.Service
	Tiers  *tier.Service
}

func NewService(p ServiceParams) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{db: p.DB, node: p.Node, clock: c, ledger: p.Ledger, tiers: p.Tiers}
}

// counters returns the stats columns an entry increments besides points.
func counters(e *ledger.Entry, quantity int64) map[string]int64 {
	switch e.EventType {
	case ledger.EventDeliveryApproved:
		return map[string]int64{"deliverables_completed": 1}
	case ledger.EventOnTimeBonus:
		return map[string]int64{"deliverables_on_time": 1}
	case ledger.EventViewsMilestone:
		return map[string]int64{"total_views": max(quantity, 0)}
	case ledger.EventLikeMilestone, ledger.EventCommentMilestone:
		return map[string]int64{"total_engagement": max(quantity, 0)}
	case ledger.EventSaleConfirmed:
		return map[string]int64{"total_sales": max(quantity, 1)}
	case ledger.EventQualityBonus:
		return map[string]int64{"quality_score": e.DeltaPoints}
	}
	return nil
}

// ApplyEntryTx folds a campaign scoped entry into its stats row and returns
// the creator's new campaign points.
func (s *Service) ApplyEntryTx(ctx context.Context, tx *gorm.DB, e *ledger.Entry, quantity int64) (int64, error) {
	if e == nil || e.CampaignID == nil {
		return 0, nil
	}

	row := &CampaignCreatorStats{
		ID:         s.node.Generate().Int64(),
		CompanyID:  e.CompanyID,
		CampaignID: *e.CampaignID,
		CreatorID:  e.CreatorID,
		Points:     e.DeltaPoints,
	}
	set := clause.Set{
		{Column: clause.Column{Name: "points"}, Value: gorm.Expr("campaign_creator_stats.points + ?", e.DeltaPoints)},
		{Column: clause.Column{Name: "updated_at"}, Value: s.clock.Now()},
	}
	for col, n := range counters(e, quantity) {
		switch col {
		case "deliverables_completed":
			row.DeliverablesCompleted = n
		case "deliverables_on_time":
			row.DeliverablesOnTime = n
		case "total_views":
			row.TotalViews = n
		case "total_engagement":
			row.TotalEngagement = n
		case "total_sales":
			row.TotalSales = n
		case "quality_score":
			row.QualityScore = n
		}
		set = append(set, clause.Assignment{Column: clause.Column{Name: col}, Value: gorm.Expr("campaign_creator_stats."+col+" + ?", n)})
	}

	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "creator_id"}},
		DoUpdates: set,
	}).Create(row).Error
	if err != nil {
		return 0, err
	}

	var points int64
	err = tx.WithContext(ctx).Model(&CampaignCreatorStats{}).
		Where("campaign_id = ? AND creator_id = ?", *e.CampaignID, e.CreatorID).
		Select("points").Scan(&points).Error
	return points, err
}

// UpdateBrandCreatorPoints adds delta to the creator's brand points and
// reassigns the tier when the new total crosses a threshold.
func (s *Service) UpdateBrandCreatorPoints(ctx context.Context, companyID, creatorID, delta int64) (*TierChange, error) {
	var change *TierChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = s.UpdateBrandCreatorPointsTx(ctx, tx, companyID, creatorID, delta)
		return err
	})
	return change, err
}

func (s *Service) UpdateBrandCreatorPointsTx(ctx context.Context, tx *gorm.DB, companyID, creatorID, delta int64) (*TierChange, error) {
	now := s.clock.Now()
	row := &BrandCreatorMembership{
		ID:          s.node.Generate().Int64(),
		CompanyID:   companyID,
		CreatorID:   creatorID,
		Status:      MembershipActive,
		PointsCache: delta,
		JoinedAt:    now,
	}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "creator_id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "points_cache"}, Value: gorm.Expr("brand_creator_memberships.points_cache + ?", delta)},
			{Column: clause.Column{Name: "updated_at"}, Value: now},
		},
	}).Create(row).Error
	if err != nil {
		return nil, err
	}

	m, err := s.membershipTx(ctx, tx, companyID, creatorID)
	if err != nil {
		return nil, err
	}
	return s.assignTierTx(ctx, tx, m)
}

func (s *Service) assignTierTx(ctx context.Context, tx *gorm.DB, m *BrandCreatorMembership) (*TierChange, error) {
	tiers, err := s.tiers.ListTiersTx(ctx, tx, m.CompanyID)
	if err != nil {
		return nil, err
	}
	next := tier.TierFor(m.PointsCache, tiers)
	if next == nil {
		if m.TierID == nil {
			return nil, nil
		}
		// the ladder was emptied
		return nil, tx.WithContext(ctx).Model(&BrandCreatorMembership{}).
			Where("id = ?", m.ID).
			Update("tier_id", nil).Error
	}
	if m.TierID != nil && *m.TierID == next.ID {
		return nil, nil
	}

	err = tx.WithContext(ctx).Model(&BrandCreatorMembership{}).
		Where("id = ?", m.ID).
		Update("tier_id", next.ID).Error
	if err != nil {
		return nil, err
	}

	return &TierChange{
		CompanyID:  m.CompanyID,
		CreatorID:  m.CreatorID,
		FromTierID: m.TierID,
		ToTierID:   next.ID,
		ToTierName: next.TierName,
		Points:     m.PointsCache,
	}, nil
}

// LockMembershipTx takes the creator's membership row for update, creating
// an empty one first. Writers holding it see each other's ledger entries.
func (s *Service) LockMembershipTx(ctx context.Context, tx *gorm.DB, companyID, creatorID int64) error {
	row := &BrandCreatorMembership{
		ID:        s.node.Generate().Int64(),
		CompanyID: companyID,
		CreatorID: creatorID,
		Status:    MembershipActive,
		JoinedAt:  s.clock.Now(),
	}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "creator_id"}},
		DoNothing: true,
	}).Create(row).Error
	if err != nil {
		return err
	}

	var m BrandCreatorMembership
	return tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ? AND creator_id = ?", companyID, creatorID).Take(&m).Error
}

func (s *Service) membershipTx(ctx context.Context, tx *gorm.DB, companyID, creatorID int64) (*BrandCreatorMembership, error) {
	var m BrandCreatorMembership
	err := tx.WithContext(ctx).Where("company_id = ? AND creator_id = ?", companyID, creatorID).Take(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMembership returns nil when the creator never earned points with the brand.
func (s *Service) GetMembership(ctx context.Context, companyID, creatorID int64) (*BrandCreatorMembership, error) {
	m, err := s.membershipTx(ctx, s.db, companyID, creatorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return m, err
}

func (s *Service) ListCampaignStats(ctx context.Context, companyID, campaignID int64) ([]*CampaignCreatorStats, error) {
	var out []*CampaignCreatorStats
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND campaign_id = ?", companyID, campaignID).
		Order("rank_position = 0").Order("rank_position ASC").Order("creator_id ASC").
		Find(&out).Error
	return out, err
}

func (s *Service) ListCreatorStats(ctx context.Context, companyID, creatorID int64) ([]*CampaignCreatorStats, error) {
	var out []*CampaignCreatorStats
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND creator_id = ?", companyID, creatorID).
		Order("campaign_id ASC").
		Find(&out).Error
	return out, err
}

func (s *Service) GetCampaignStatsTx(ctx context.Context, tx *gorm.DB, campaignID, creatorID int64) (*CampaignCreatorStats, error) {
	var st CampaignCreatorStats
	err := tx.WithContext(ctx).Where("campaign_id = ? AND creator_id = ?", campaignID, creatorID).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// RecalculateCampaignRanks replays the campaign ledger and rewrites points
// and rank of every stats row.
func (s *Service) RecalculateCampaignRanks(ctx context.Context, companyID, campaignID int64) ([]Standing, error) {
	var standings []Standing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		standings, err = s.RecalculateCampaignRanksTx(ctx, tx, companyID, campaignID)
		return err
	})
	return standings, err
}

func (s *Service) RecalculateCampaignRanksTx(ctx context.Context, tx *gorm.DB, companyID, campaignID int64) ([]Standing, error) {
	ctx, span := tracer.Start(ctx, "scoring.RecalculateCampaignRanks")
	defer span.End()
	span.SetAttributes(attribute.Int64("company_id", companyID), attribute.Int64("campaign_id", campaignID))

	entries, err := s.ledger.EntriesTx(ctx, tx, ledger.Filter{CompanyID: companyID, CampaignID: &campaignID})
	if err != nil {
		return nil, err
	}

	var known []int64
	err = tx.WithContext(ctx).Model(&CampaignCreatorStats{}).
		Where("company_id = ? AND campaign_id = ?", companyID, campaignID).
		Pluck("creator_id", &known).Error
	if err != nil {
		return nil, err
	}

	standings := RankStandings(entries, known)
	if len(standings) == 0 {
		return standings, nil
	}

	now := s.clock.Now()
	rows := make([]*CampaignCreatorStats, 0, len(standings))
	for _, st := range standings {
		rows = append(rows, &CampaignCreatorStats{
			ID:         s.node.Generate().Int64(),
			CompanyID:  companyID,
			CampaignID: campaignID,
			CreatorID:  st.CreatorID,
			Points:     st.Points,
			Rank:       st.Rank,
			UpdatedAt:  now,
		})
	}

	err = tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "creator_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"points", "rank_position", "updated_at"}),
	}).CreateInBatches(rows, 100).Error
	if err != nil {
		logger.FromContext(ctx).Error("failed to write campaign ranks",
			zap.Int64("campaign_id", campaignID),
			zap.Error(err),
		)
		return nil, err
	}

	return standings, nil
}

// RefreshTiers re-evaluates the tier of every member, used after the tier
// ladder changes. It returns the changes made.
func (s *Service) RefreshTiers(ctx context.Context, companyID int64) ([]TierChange, error) {
	var changes []TierChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changes, err = s.RefreshTiersTx(ctx, tx, companyID)
		return err
	})
	return changes, err
}

func (s *Service) RefreshTiersTx(ctx context.Context, tx *gorm.DB, companyID int64) ([]TierChange, error) {
	var members []*BrandCreatorMembership
	if err := tx.WithContext(ctx).Where("company_id = ?", companyID).Find(&members).Error; err != nil {
		return nil, err
	}

	var changes []TierChange
	for _, m := range members {
		change, err := s.assignTierTx(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, nil
}
