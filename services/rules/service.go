package rules

import (
	"context"
	"encoding/json"
	"errors"

	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("smallbiznis-gamification/services/rules")

// CampaignScoring is the campaign layer as stored on the campaign.
type CampaignScoring struct {
	Rules          []byte
	Caps           []byte
	OverridesBrand bool
}

type CampaignSource interface {
	CampaignScoring(ctx context.Context, companyID, campaignID int64) (*CampaignScoring, error)
}

type Service struct {
	db        *gorm.DB
	cache     *Cache
	campaigns CampaignSource
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Cache     *Cache
	Campaigns CampaignSource `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	cache := p.Cache
	if cache == nil {
		cache = NewCache(0)
	}
	return &Service{db: p.DB, cache: cache, campaigns: p.Campaigns}
}

func (s *Service) ResolveScoringRules(ctx context.Context, companyID, campaignID int64) ScoringRules {
	return s.Resolve(ctx, companyID, campaignID).Rules
}

func (s *Service) ResolveCaps(ctx context.Context, companyID, campaignID int64) Caps {
	return s.Resolve(ctx, companyID, campaignID).Caps
}

// Resolve runs the campaign > brand > system cascade. It never fails: a
// layer that cannot be read is logged and skipped.
func (s *Service) Resolve(ctx context.Context, companyID, campaignID int64) *Resolved {
	key := Key{CompanyID: companyID, CampaignID: campaignID}
	return s.cache.Load(key, func() *Resolved {
		return s.load(ctx, companyID, campaignID)
	})
}

func (s *Service) load(ctx context.Context, companyID, campaignID int64) *Resolved {
	ctx, span := tracer.Start(ctx, "rules.Resolve")
	defer span.End()
	log := logger.FromContext(ctx).With(zap.Int64("company_id", companyID), zap.Int64("campaign_id", campaignID))

	degraded := false
	var brandRules *Layer
	var brandCaps Caps
	if cfg, err := s.brandConfig(ctx, companyID); err != nil {
		degraded = true
		log.Warn("brand scoring config unavailable, using defaults", zap.Error(err))
	} else if cfg != nil {
		brandRules = ParseLayer(cfg.Rules)
		brandCaps = ParseCaps(cfg.Caps)
	}

	var campaignRules *Layer
	var campaignCaps Caps
	if campaignID > 0 && s.campaigns != nil {
		cs, err := s.campaigns.CampaignScoring(ctx, companyID, campaignID)
		switch {
		case err != nil:
			degraded = true
			log.Warn("campaign scoring unavailable, using brand layer", zap.Error(err))
		case cs != nil && cs.OverridesBrand:
			campaignRules = ParseLayer(cs.Rules)
			campaignCaps = ParseCaps(cs.Caps)
		}
	}

	return &Resolved{
		Rules:    Merge(DefaultScoringRules(), brandRules, campaignRules),
		Caps:     MergeCaps(brandCaps, campaignCaps),
		Degraded: degraded,
	}
}

func (s *Service) brandConfig(ctx context.Context, companyID int64) (*BrandScoringConfig, error) {
	var cfg BrandScoringConfig
	err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Take(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Service) GetBrandConfig(ctx context.Context, companyID int64) (*BrandScoringConfig, error) {
	return s.brandConfig(ctx, companyID)
}

// UpsertBrandConfig replaces the brand layer of a company.
func (s *Service) UpsertBrandConfig(ctx context.Context, companyID int64, layer *Layer, caps Caps) (*BrandScoringConfig, error) {
	if companyID <= 0 {
		return nil, errutil.BadRequest("company_id is required", nil)
	}
	if err := ValidateLayer(layer); err != nil {
		return nil, err
	}
	if err := ValidateCaps(caps); err != nil {
		return nil, err
	}

	rulesJSON, err := json.Marshal(layer)
	if err != nil {
		return nil, err
	}
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return nil, err
	}

	cfg := &BrandScoringConfig{
		CompanyID: companyID,
		Rules:     datatypes.JSON(rulesJSON),
		Caps:      datatypes.JSON(capsJSON),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rules", "caps", "updated_at"}),
	}).Create(cfg).Error
	if err != nil {
		logger.FromContext(ctx).Error("failed to upsert brand scoring config", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, err
	}

	s.cache.InvalidateCompany(companyID)
	return cfg, nil
}

// ValidateLayer rejects negative point values on writes. Reads tolerate them
// by dropping the field.
func ValidateLayer(l *Layer) error {
	if l == nil {
		return nil
	}
	for name, v := range map[string]*int64{
		"pointsPerDeliverable": l.PointsPerDeliverable,
		"pointsOnTimeBonus":    l.PointsOnTimeBonus,
		"pointsPer1kViews":     l.PointsPer1kViews,
		"pointsPerLike":        l.PointsPerLike,
		"pointsPerComment":     l.PointsPerComment,
		"pointsPerSale":        l.PointsPerSale,
	} {
		if v != nil && *v < 0 {
			return errutil.BadRequest(name+" must not be negative", nil)
		}
	}
	for k, v := range l.PointsPerDeliverableType {
		if k == "" || v < 0 {
			return errutil.BadRequest("pointsPerDeliverableType entries need a name and a non-negative value", nil)
		}
	}
	return nil
}

func ValidateCaps(c Caps) error {
	for cat, cp := range c {
		if !cat.Valid() {
			return errutil.BadRequest("unknown cap category "+string(cat), nil)
		}
		if !cp.Period.Valid() {
			return errutil.BadRequest("unknown cap period "+string(cp.Period), nil)
		}
		if cp.MaxPoints < 0 {
			return errutil.BadRequest("cap maxPoints must not be negative", nil)
		}
	}
	return nil
}

// Invalidate drops the cached resolution of one campaign.
func (s *Service) Invalidate(companyID, campaignID int64) {
	s.cache.Invalidate(Key{CompanyID: companyID, CampaignID: campaignID})
}
