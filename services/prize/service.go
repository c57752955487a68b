package prize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/config"
	"smallbiznis-gamification/pkg/db/option"
	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/pkg/repository"
	"smallbiznis-gamification/pkg/sequence"
	"smallbiznis-gamification/services/campaign"
	"smallbiznis-gamification/services/scoring"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("smallbiznis-gamification/services/prize")

const defaultPayoutTimeout = 10 * time.Second

// entitlementKey is the conflict target of grantTx: one entitlement per
// creator and prize.
var entitlementKey = []clause.Column{
	{Name: "campaign_id"},
	{Name: "creator_id"},
	{Name: "prize_id"},
}

var Module = fx.Module("prize.service",
	fx.Provide(
		provideExecutor,
		NewService,
	),
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     clock.Clock
	seq       sequence.Generator
	campaigns *campaign.Service
	scoring   *scoring.Service
	eval      *Evaluator
	executor  PayoutExecutor
	timeout   time.Duration

	prizes repository.Repository[Prize]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Clock     clock.Clock
	Seq       sequence.Generator
	Config    *config.Config `optional:"true"`
	Campaigns *campaign.Service
	Scoring   *scoring.Service
	Executor  PayoutExecutor
}

func NewService(p ServiceParams) (*Service, error) {
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}

	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	timeout := defaultPayoutTimeout
	if p.Config != nil && p.Config.Gamification.PayoutTimeout > 0 {
		timeout = p.Config.Gamification.PayoutTimeout
	}
	executor := p.Executor
	if executor == nil {
		executor = ManualExecutor{}
	}

	return &Service{
		db:        p.DB,
		node:      p.Node,
		clock:     c,
		seq:       p.Seq,
		campaigns: p.Campaigns,
		scoring:   p.Scoring,
		eval:      eval,
		executor:  executor,
		timeout:   timeout,
		prizes:    repository.ProvideStore[Prize](p.DB),
	}, nil
}

func (s *Service) ListPrizes(ctx context.Context, companyID, campaignID int64) ([]*Prize, error) {
	return s.prizes.Find(ctx, &Prize{CompanyID: companyID, CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "ASC"}),
	)
}

func (s *Service) validatePrize(i int, in PrizeInput) error {
	field := func(name string) string { return fmt.Sprintf("prizes[%d].%s", i, name) }

	switch in.Type {
	case PrizeRankingPlace:
		if in.RankPosition == nil || *in.RankPosition < 1 {
			return errutil.BadRequest(field("rank_position")+" must be at least 1", nil)
		}
	case PrizeMilestone:
		if in.MilestonePoints == nil || *in.MilestonePoints <= 0 {
			return errutil.BadRequest(field("milestone_points")+" must be positive", nil)
		}
	default:
		return errutil.BadRequest(fmt.Sprintf("%s: unknown prize type %q", field("type"), in.Type), nil)
	}

	if !in.RewardKind.Valid() {
		return errutil.BadRequest(fmt.Sprintf("%s: unknown reward kind %q", field("reward_kind"), in.RewardKind), nil)
	}
	if in.RewardKind == RewardCash && (in.CashAmount == nil || *in.CashAmount <= 0) {
		return errutil.BadRequest(field("cash_amount")+" must be positive for cash rewards", nil)
	}
	if in.RewardKind == RewardProduct && strings.TrimSpace(in.ProductSKU) == "" {
		return errutil.BadRequest(field("product_sku")+" is required for product rewards", nil)
	}
	if err := s.eval.Validate(strings.TrimSpace(in.ConditionExpr)); err != nil {
		return errutil.BadRequest(field("condition_expr")+" is invalid", err)
	}
	return nil
}

// CreateOrReplaceCampaignPrizes swaps the prize list of a campaign. It is
// refused once the ranking is closed or any entitlement references a prize.
func (s *Service) CreateOrReplaceCampaignPrizes(ctx context.Context, companyID, campaignID int64, inputs []PrizeInput) ([]*Prize, error) {
	c, err := s.campaigns.GetCampaign(ctx, companyID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.RankingClosed() {
		return nil, ErrRankingClosed
	}

	positions := map[int]bool{}
	prizes := make([]*Prize, 0, len(inputs))
	for i, in := range inputs {
		if err := s.validatePrize(i, in); err != nil {
			return nil, err
		}

		p := &Prize{
			ID:                 s.node.Generate().Int64(),
			CompanyID:          companyID,
			CampaignID:         campaignID,
			Type:               in.Type,
			RewardKind:         in.RewardKind,
			CashAmount:         in.CashAmount,
			Currency:           strings.ToUpper(strings.TrimSpace(in.Currency)),
			ProductSKU:         strings.TrimSpace(in.ProductSKU),
			ProductDescription: in.ProductDescription,
			ConditionExpr:      strings.TrimSpace(in.ConditionExpr),
		}
		if in.Type == PrizeRankingPlace {
			if positions[*in.RankPosition] {
				return nil, errutil.BadRequest(fmt.Sprintf("rank position %d is used twice", *in.RankPosition), nil)
			}
			positions[*in.RankPosition] = true
			p.RankPosition = in.RankPosition
		} else {
			p.MilestonePoints = in.MilestonePoints
		}
		prizes = append(prizes, p)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var granted int64
		if err := tx.Model(&Entitlement{}).Where("campaign_id = ?", campaignID).Count(&granted).Error; err != nil {
			return err
		}
		if granted > 0 {
			return ErrPrizesLocked
		}
		if err := tx.Where("company_id = ? AND campaign_id = ?", companyID, campaignID).Delete(&Prize{}).Error; err != nil {
			return err
		}
		return s.prizes.WithTrx(tx).BatchCreate(ctx, prizes)
	})
	if err != nil {
		return nil, err
	}
	return prizes, nil
}

// CloseCampaignRanking freezes the campaign ranking and grants its prizes.
// A second call finds the ranking closed and grants nothing.
func (s *Service) CloseCampaignRanking(ctx context.Context, companyID, campaignID int64) (*CloseResult, error) {
	ctx, span := tracer.Start(ctx, "prize.CloseCampaignRanking")
	defer span.End()
	span.SetAttributes(attribute.Int64("company_id", companyID), attribute.Int64("campaign_id", campaignID))

	if _, err := s.campaigns.GetCampaign(ctx, companyID, campaignID); err != nil {
		return nil, err
	}
	prizes, err := s.ListPrizes(ctx, companyID, campaignID)
	if err != nil {
		return nil, err
	}

	res := &CloseResult{CampaignID: campaignID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed, err := s.campaigns.CloseRankingTx(ctx, tx, companyID, campaignID)
		if err != nil {
			return err
		}
		if !closed {
			res.AlreadyClosed = true
			return nil
		}

		standings, err := s.scoring.RecalculateCampaignRanksTx(ctx, tx, companyID, campaignID)
		if err != nil {
			return err
		}

		for _, p := range prizes {
			for _, st := range winners(p, standings) {
				e, err := s.grantIfEligibleTx(ctx, tx, p, st.CreatorID, st.Points, st.Rank)
				if err != nil {
					return err
				}
				if e != nil {
					res.Created = append(res.Created, e)
				}
			}
		}
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to close campaign ranking",
			zap.Int64("company_id", companyID),
			zap.Int64("campaign_id", campaignID),
			zap.Error(err),
		)
		return nil, err
	}

	logger.FromContext(ctx).Info("campaign ranking closed",
		zap.Int64("campaign_id", campaignID),
		zap.Bool("already_closed", res.AlreadyClosed),
		zap.Int("entitlements", len(res.Created)),
	)
	return res, nil
}

// winners picks the standings a prize goes to. Rank prizes need a creator
// with points at that position.
func winners(p *Prize, standings []scoring.Standing) []scoring.Standing {
	var out []scoring.Standing
	for _, st := range standings {
		switch p.Type {
		case PrizeRankingPlace:
			if p.RankPosition != nil && st.Rank == *p.RankPosition && st.Points > 0 {
				out = append(out, st)
			}
		case PrizeMilestone:
			if p.MilestonePoints != nil && st.Points >= *p.MilestonePoints {
				out = append(out, st)
			}
		}
	}
	return out
}

// CheckMilestones grants every milestone prize of the campaign whose
// threshold points has reached.
func (s *Service) CheckMilestones(ctx context.Context, companyID, campaignID, creatorID, points int64) ([]*Entitlement, error) {
	var prizes []*Prize
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND campaign_id = ? AND type = ? AND milestone_points <= ?", companyID, campaignID, PrizeMilestone, points).
		Find(&prizes).Error
	if err != nil || len(prizes) == 0 {
		return nil, err
	}

	var created []*Entitlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats, err := s.scoring.GetCampaignStatsTx(ctx, tx, campaignID, creatorID)
		if err != nil {
			return err
		}
		rank := 0
		if stats != nil {
			rank = stats.Rank
		}
		for _, p := range prizes {
			e, err := s.grantIfEligibleTx(ctx, tx, p, creatorID, points, rank)
			if err != nil {
				return err
			}
			if e != nil {
				created = append(created, e)
			}
		}
		return nil
	})
	return created, err
}

func (s *Service) grantIfEligibleTx(ctx context.Context, tx *gorm.DB, p *Prize, creatorID, points int64, rank int) (*Entitlement, error) {
	if p.ConditionExpr != "" {
		stats, err := s.scoring.GetCampaignStatsTx(ctx, tx, p.CampaignID, creatorID)
		if err != nil {
			return nil, err
		}
		ok, err := s.eval.Eligible(p.ConditionExpr, ConditionVars(points, rank, stats))
		if err != nil {
			logger.FromContext(ctx).Warn("prize condition failed to evaluate",
				zap.Int64("prize_id", p.ID),
				zap.String("expr", p.ConditionExpr),
				zap.Error(err),
			)
			return nil, nil
		}
		if !ok {
			return nil, nil
		}
	}
	return s.grantTx(ctx, tx, p, creatorID, points, rank)
}

// grantTx inserts a pending entitlement unless the creator already holds
// this prize. It returns nil when nothing was inserted.
func (s *Service) grantTx(ctx context.Context, tx *gorm.DB, p *Prize, creatorID, points int64, rank int) (*Entitlement, error) {
	code, err := s.seq.NextEntitlementCode(ctx, p.CompanyID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	e := &Entitlement{
		ID:         s.node.Generate().Int64(),
		Code:       code,
		CompanyID:  p.CompanyID,
		CampaignID: p.CampaignID,
		CreatorID:  creatorID,
		PrizeID:    p.ID,
		Status:     StatusPending,
		Metadata: datatypes.JSONMap{
			"prize_type": string(p.Type),
			"points":     points,
			"rank":       rank,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	res := tx.WithContext(ctx).Clauses(clause.OnConflict{Columns: entitlementKey, DoNothing: true}).Create(e)
	if res.Error != nil {
		return nil, fmt.Errorf("insert entitlement %d: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	err = s.auditTx(ctx, tx, e, change{action: ActionCreated, at: now}, "", StatusPending)
	if err != nil {
		return nil, err
	}
	return e, nil
}
