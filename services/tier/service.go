package tier

import (
	"context"
	"fmt"
	"strings"

	"smallbiznis-gamification/pkg/db/option"
	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("tier.service",
	fx.Provide(NewService),
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	tiers repository.Repository[Tier]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		tiers: repository.ProvideStore[Tier](p.DB),
	}
}

// ListTiers returns the tiers of a company ordered for TierFor.
func (s *Service) ListTiers(ctx context.Context, companyID int64) ([]*Tier, error) {
	return s.ListTiersTx(ctx, nil, companyID)
}

func (s *Service) ListTiersTx(ctx context.Context, tx *gorm.DB, companyID int64) ([]*Tier, error) {
	list, err := s.tiers.WithTrx(tx).Find(ctx, &Tier{CompanyID: companyID},
		option.WithSortBy(option.QuerySortBy{SortBy: "min_points", OrderBy: "ASC", Allow: map[string]bool{"min_points": true}}),
	)
	if err != nil {
		return nil, err
	}
	return SortTiers(list), nil
}

// ReplaceTiers swaps the whole tier ladder of a company in one transaction.
func (s *Service) ReplaceTiers(ctx context.Context, companyID int64, inputs []Input) ([]*Tier, error) {
	var out []*Tier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.ReplaceTiersTx(ctx, tx, companyID, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceTiersTx is ReplaceTiers inside a transaction owned by the caller. A
// tier whose slug already exists keeps its id, so memberships pointing at it
// stay valid.
func (s *Service) ReplaceTiersTx(ctx context.Context, tx *gorm.DB, companyID int64, inputs []Input) ([]*Tier, error) {
	if companyID <= 0 {
		return nil, errutil.BadRequest("company_id is required", nil)
	}

	tiers := make([]*Tier, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.TierName)
		if name == "" {
			return nil, errutil.BadRequest(fmt.Sprintf("tiers[%d].tier_name is required", i), nil)
		}
		if in.MinPoints < 0 {
			return nil, errutil.BadRequest(fmt.Sprintf("tiers[%d].min_points must not be negative", i), nil)
		}
		sl := slug.Make(name)
		if seen[sl] {
			return nil, errutil.BadRequest(fmt.Sprintf("duplicate tier name %q", name), nil)
		}
		seen[sl] = true

		tiers = append(tiers, &Tier{
			CompanyID: companyID,
			TierName:  name,
			Slug:      sl,
			MinPoints: in.MinPoints,
			SortOrder: in.SortOrder,
			Color:     in.Color,
			Icon:      in.Icon,
			Benefits:  in.Benefits,
		})
	}

	existing, err := s.ListTiersTx(ctx, tx, companyID)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(existing))
	for _, t := range existing {
		ids[t.Slug] = t.ID
	}
	for _, t := range tiers {
		if id, ok := ids[t.Slug]; ok {
			t.ID = id
		} else {
			t.ID = s.node.Generate().Int64()
		}
	}

	if err := tx.WithContext(ctx).Where("company_id = ?", companyID).Delete(&Tier{}).Error; err != nil {
		logger.FromContext(ctx).Error("failed to replace tiers", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, err
	}
	if len(tiers) > 0 {
		if err := s.tiers.WithTrx(tx).BatchCreate(ctx, tiers); err != nil {
			logger.FromContext(ctx).Error("failed to replace tiers", zap.Int64("company_id", companyID), zap.Error(err))
			return nil, err
		}
	}

	return SortTiers(tiers), nil
}
