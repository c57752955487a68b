package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/db/option"
	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/pkg/repository"
	"smallbiznis-gamification/pkg/sequence"
	"smallbiznis-gamification/services/rules"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound            = errutil.NotFound("campaign not found", nil)
	ErrDeliverableNotFound = errutil.NotFound("deliverable not found", nil)
	ErrClosed              = errutil.Conflict("campaign is closed", nil)
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	seq   sequence.Generator
	clock clock.Clock
	cache *rules.Cache

	campaigns    repository.Repository[Campaign]
	deliverables repository.Repository[Deliverable]
}

type ServiceParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Seq   sequence.Generator
	Clock clock.Clock
	Cache *rules.Cache `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:           p.DB,
		node:         p.Node,
		seq:          p.Seq,
		clock:        c,
		cache:        p.Cache,
		campaigns:    repository.ProvideStore[Campaign](p.DB),
		deliverables: repository.ProvideStore[Deliverable](p.DB),
	}
}

func (s *Service) CreateCampaign(ctx context.Context, p CreateParams) (*Campaign, error) {
	if p.CompanyID <= 0 {
		return nil, errutil.BadRequest("company_id is required", nil)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, errutil.BadRequest("name is required", nil)
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.Status == StatusClosed || !p.Status.Valid() {
		return nil, errutil.BadRequest("status must be draft or active", nil)
	}
	if err := validateScoring(p.Rules, p.Caps); err != nil {
		return nil, err
	}

	code, err := s.seq.NextCampaignCode(ctx, p.CompanyID)
	if err != nil {
		logger.FromContext(ctx).Warn("campaign code unavailable", zap.Error(err))
		code = ""
	}

	c := &Campaign{
		ID:             s.node.Generate().Int64(),
		CompanyID:      p.CompanyID,
		Code:           code,
		Name:           strings.TrimSpace(p.Name),
		Description:    p.Description,
		Status:         p.Status,
		StartAt:        p.StartAt,
		Deadline:       p.Deadline,
		Rules:          p.Rules,
		Caps:           p.Caps,
		OverridesBrand: p.OverridesBrand,
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		logger.FromContext(ctx).Error("failed to create campaign", zap.Error(err))
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCampaign(ctx context.Context, companyID, id int64) (*Campaign, error) {
	return s.GetCampaignTx(ctx, nil, companyID, id)
}

func (s *Service) GetCampaignTx(ctx context.Context, tx *gorm.DB, companyID, id int64) (*Campaign, error) {
	c, err := s.campaigns.WithTrx(tx).FindOne(ctx, &Campaign{ID: id, CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// ShareCampaignTx reads the campaign under a shared row lock. CloseRankingTx
// waits for every holder to commit, so a writer that saw the ranking open
// lands before the close.
func (s *Service) ShareCampaignTx(ctx context.Context, tx *gorm.DB, companyID, id int64) (*Campaign, error) {
	var c Campaign
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id = ? AND company_id = ?", id, companyID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) ListCampaigns(ctx context.Context, companyID int64, status Status) ([]*Campaign, error) {
	return s.campaigns.Find(ctx, &Campaign{CompanyID: companyID, Status: status},
		option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}),
	)
}

func (s *Service) UpdateCampaign(ctx context.Context, companyID, id int64, p UpdateParams) (*Campaign, error) {
	c, err := s.GetCampaign(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, errutil.BadRequest("name must not be empty", nil)
		}
		updates["name"] = name
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Status != nil && *p.Status != c.Status {
		// closing goes through the ranking close
		if !p.Status.Valid() || *p.Status == StatusClosed {
			return nil, errutil.BadRequest("status must be draft or active", nil)
		}
		if c.Status == StatusClosed {
			return nil, ErrClosed
		}
		updates["status"] = *p.Status
	}
	if p.StartAt != nil {
		updates["start_at"] = *p.StartAt
	}
	if p.Deadline != nil {
		updates["deadline"] = *p.Deadline
	}
	if len(updates) == 0 {
		return c, nil
	}

	if err := s.campaigns.Update(ctx, c.ID, updates); err != nil {
		logger.FromContext(ctx).Error("failed to update campaign", zap.Int64("campaign_id", id), zap.Error(err))
		return nil, err
	}
	return s.GetCampaign(ctx, companyID, id)
}

// UpdateScoring stores the campaign layer of the rule cascade.
func (s *Service) UpdateScoring(ctx context.Context, companyID, id int64, layer *rules.Layer, caps rules.Caps, overridesBrand bool) (*Campaign, error) {
	if err := rules.ValidateLayer(layer); err != nil {
		return nil, err
	}
	if err := rules.ValidateCaps(caps); err != nil {
		return nil, err
	}
	if _, err := s.GetCampaign(ctx, companyID, id); err != nil {
		return nil, err
	}

	var rulesJSON, capsJSON datatypes.JSON
	if layer != nil {
		b, err := json.Marshal(layer)
		if err != nil {
			return nil, err
		}
		rulesJSON = b
	}
	if caps != nil {
		b, err := json.Marshal(caps)
		if err != nil {
			return nil, err
		}
		capsJSON = b
	}

	err := s.campaigns.Update(ctx, id, map[string]any{
		"rules":           rulesJSON,
		"caps":            capsJSON,
		"overrides_brand": overridesBrand,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(rules.Key{CompanyID: companyID, CampaignID: id})
	}
	return s.GetCampaign(ctx, companyID, id)
}

// CampaignScoring feeds the campaign layer to the rule resolver.
func (s *Service) CampaignScoring(ctx context.Context, companyID, campaignID int64) (*rules.CampaignScoring, error) {
	c, err := s.GetCampaign(ctx, companyID, campaignID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rules.CampaignScoring{Rules: c.Rules, Caps: c.Caps, OverridesBrand: c.OverridesBrand}, nil
}

// CloseRankingTx marks the ranking closed. It reports false when another
// caller closed it first.
func (s *Service) CloseRankingTx(ctx context.Context, tx *gorm.DB, companyID, id int64) (bool, error) {
	now := s.clock.Now()
	res := tx.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND company_id = ? AND ranking_closed_at IS NULL", id, companyID).
		Updates(map[string]any{
			"ranking_closed_at": now,
			"status":            StatusClosed,
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) CreateDeliverable(ctx context.Context, p DeliverableParams) (*Deliverable, error) {
	if p.CreatorID <= 0 {
		return nil, errutil.BadRequest("creator_id is required", nil)
	}
	if strings.TrimSpace(p.Type) == "" {
		return nil, errutil.BadRequest("type is required", nil)
	}
	c, err := s.GetCampaign(ctx, p.CompanyID, p.CampaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusClosed {
		return nil, ErrClosed
	}

	d := &Deliverable{
		ID:         s.node.Generate().Int64(),
		CompanyID:  p.CompanyID,
		CampaignID: p.CampaignID,
		CreatorID:  p.CreatorID,
		Type:       strings.ToLower(strings.TrimSpace(p.Type)),
		Status:     DeliverablePending,
		DueAt:      p.DueAt,
	}
	if err := s.deliverables.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDeliverable(ctx context.Context, companyID, id int64) (*Deliverable, error) {
	return s.GetDeliverableTx(ctx, nil, companyID, id)
}

func (s *Service) GetDeliverableTx(ctx context.Context, tx *gorm.DB, companyID, id int64) (*Deliverable, error) {
	d, err := s.deliverables.WithTrx(tx).FindOne(ctx, &Deliverable{ID: id, CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDeliverableNotFound
	}
	return d, nil
}

func (s *Service) ListDeliverables(ctx context.Context, companyID, campaignID, creatorID int64) ([]*Deliverable, error) {
	return s.deliverables.Find(ctx, &Deliverable{CompanyID: companyID, CampaignID: campaignID, CreatorID: creatorID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "ASC"}),
	)
}

// SetDeliverableStatusTx moves a deliverable from one status to another. It
// reports false when the row was no longer in from.
func (s *Service) SetDeliverableStatusTx(ctx context.Context, tx *gorm.DB, d *Deliverable, to DeliverableStatus, completedAt *time.Time) (bool, error) {
	if !to.Valid() {
		return false, errutil.BadRequest("unknown deliverable status "+string(to), nil)
	}
	updates := map[string]any{"status": to, "updated_at": s.clock.Now()}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}
	res := tx.WithContext(ctx).Model(&Deliverable{}).
		Where("id = ? AND company_id = ? AND status = ?", d.ID, d.CompanyID, d.Status).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func validateScoring(rulesJSON, capsJSON datatypes.JSON) error {
	if len(rulesJSON) > 0 && rules.ParseLayer(rulesJSON) == nil {
		return errutil.BadRequest("rules is not a valid scoring document", nil)
	}
	if len(capsJSON) > 0 && rules.ParseCaps(capsJSON) == nil {
		return errutil.BadRequest("caps is not a valid caps document", nil)
	}
	return nil
}
