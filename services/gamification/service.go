package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/config"
	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/pkg/rediskey"
	"smallbiznis-gamification/pkg/task"
	"smallbiznis-gamification/pkg/taskname"
	"smallbiznis-gamification/services/campaign"
	"smallbiznis-gamification/services/ledger"
	"smallbiznis-gamification/services/prize"
	"smallbiznis-gamification/services/rules"
	"smallbiznis-gamification/services/scoring"
	"smallbiznis-gamification/services/tier"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("smallbiznis-gamification/services/gamification")

const refTypeDeliverable = "deliverable"

type Service struct {
	db        *gorm.DB
	clock     clock.Clock
	rules     *rules.Service
	ledger    *ledger.Service
	scoring   *scoring.Service
	tiers     *tier.Service
	campaigns *campaign.Service
	prizes    *prize.Service
	enqueuer  task.Enqueuer

	asyncRanks    bool
	ranksDebounce time.Duration
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Clock     clock.Clock
	Config    *config.Config `optional:"true"`
	Rules     *rules.Service
	Ledger    *ledger.Service
	Scoring   *scoring.Service
	Tiers     *tier.Service
	Campaigns *campaign.Service
	Prizes    *prize.Service
	Enqueuer  task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	s := &Service{
		db:        p.DB,
		clock:     c,
		rules:     p.Rules,
		ledger:    p.Ledger,
		scoring:   p.Scoring,
		tiers:     p.Tiers,
		campaigns: p.Campaigns,
		prizes:    p.Prizes,
		enqueuer:  p.Enqueuer,
	}
	if p.Config != nil {
		s.asyncRanks = p.Config.Gamification.AsyncRanks
		s.ranksDebounce = p.Config.Gamification.RanksDebounce
	}
	return s
}

type RecordParams struct {
	CompanyID  int64            `json:"-"`
	CreatorID  int64            `json:"creator_id,string"`
	CampaignID *int64           `json:"campaign_id,string,omitempty"`
	EventType  ledger.EventType `json:"event_type"`
	RefType    string           `json:"ref_type"`
	RefID      int64            `json:"ref_id,string"`
	Quantity   int64            `json:"quantity"`
	Metadata   map[string]any   `json:"metadata"`
}

type RecordResult struct {
	Entry          *ledger.Entry        `json:"entry"`
	Duplicate      bool                 `json:"duplicate"`
	Points         int64                `json:"points"`
	Capped         bool                 `json:"capped"`
	CampaignPoints int64                `json:"campaign_points,omitempty"`
	TierChange     *scoring.TierChange  `json:"tier_change,omitempty"`
	Entitlements   []*prize.Entitlement `json:"entitlements,omitempty"`
}

func (p RecordParams) validate() error {
	switch {
	case p.CompanyID <= 0:
		return errutil.BadRequest("company_id is required", nil)
	case p.CreatorID <= 0:
		return errutil.BadRequest("creator_id is required", nil)
	case !p.EventType.Valid():
		return errutil.BadRequest("unknown event_type "+string(p.EventType), nil)
	case p.RefType == "":
		return errutil.BadRequest("ref_type is required", nil)
	}
	return nil
}

// RecordEvent prices a business event, appends it to the ledger and folds it
// into the score caches in one transaction. Replaying the same
// (event_type, ref_type, ref_id) is a no-op reported as Duplicate.
func (s *Service) RecordEvent(ctx context.Context, p RecordParams) (*RecordResult, error) {
	ctx, span := tracer.Start(ctx, "gamification.RecordEvent")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("company_id", p.CompanyID),
		attribute.Int64("creator_id", p.CreatorID),
		attribute.String("event_type", string(p.EventType)),
	)

	if err := p.validate(); err != nil {
		return nil, err
	}

	var campaignID int64
	if p.CampaignID != nil {
		campaignID = *p.CampaignID
	}

	resolved := s.rules.Resolve(ctx, p.CompanyID, campaignID)
	delta := rules.Price(resolved.Rules, p.EventType, p.Quantity, p.Metadata)
	metadata := map[string]any{}
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	if p.Quantity != 0 {
		metadata["quantity"] = p.Quantity
	}

	res := &RecordResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.CampaignID != nil {
			c, err := s.campaigns.ShareCampaignTx(ctx, tx, p.CompanyID, campaignID)
			if err != nil {
				return err
			}
			if c.RankingClosed() && p.EventType != ledger.EventAdminAdjustment {
				return campaign.ErrClosed
			}
		}

		clamped, err := s.applyCap(ctx, tx, p, resolved.Caps, delta)
		if err != nil {
			return err
		}
		res.Points = clamped
		if clamped != delta {
			res.Capped = true
			metadata["capped_from"] = delta
		}

		entry, err := s.ledger.AppendEntryTx(ctx, tx, ledger.AppendParams{
			CompanyID:   p.CompanyID,
			CampaignID:  p.CampaignID,
			CreatorID:   p.CreatorID,
			EventType:   p.EventType,
			RefType:     p.RefType,
			RefID:       p.RefID,
			DeltaPoints: clamped,
			Metadata:    metadata,
		})
		if err != nil {
			return err
		}
		if entry == nil {
			res.Duplicate = true
			return nil
		}
		res.Entry = entry

		if res.CampaignPoints, err = s.scoring.ApplyEntryTx(ctx, tx, entry, p.Quantity); err != nil {
			return err
		}
		res.TierChange, err = s.scoring.UpdateBrandCreatorPointsTx(ctx, tx, p.CompanyID, p.CreatorID, clamped)
		return err
	})
	if errors.Is(err, campaign.ErrNotFound) || errors.Is(err, campaign.ErrClosed) {
		return nil, err
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to record event",
			zap.Int64("company_id", p.CompanyID),
			zap.String("event_type", string(p.EventType)),
			zap.Int64("ref_id", p.RefID),
			zap.Error(err),
		)
		return nil, err
	}

	if res.Duplicate {
		res.Points = 0
		res.Capped = false
		existing, err := s.ledger.FindByKey(ctx, p.CompanyID, p.EventType, p.RefType, p.RefID)
		if err != nil {
			return nil, err
		}
		res.Entry = existing
		return res, nil
	}

	if res.TierChange != nil {
		logger.FromContext(ctx).Info("creator tier changed",
			zap.Int64("company_id", p.CompanyID),
			zap.Int64("creator_id", p.CreatorID),
			zap.String("tier", res.TierChange.ToTierName),
			zap.Int64("points", res.TierChange.Points),
		)
	}

	if p.CampaignID != nil {
		s.scheduleRanks(ctx, p.CompanyID, campaignID)

		created, err := s.prizes.CheckMilestones(ctx, p.CompanyID, campaignID, p.CreatorID, res.CampaignPoints)
		if err != nil {
			logger.FromContext(ctx).Error("failed to check milestone prizes",
				zap.Int64("campaign_id", campaignID),
				zap.Int64("creator_id", p.CreatorID),
				zap.Error(err),
			)
		}
		res.Entitlements = created
	}
	return res, nil
}

// applyCap clamps delta against the cap of the event's category. The window
// is the campaign when the event is campaign scoped, the brand otherwise.
// The membership lock keeps concurrent events of one creator from reading
// the same usage.
func (s *Service) applyCap(ctx context.Context, tx *gorm.DB, p RecordParams, caps rules.Caps, delta int64) (int64, error) {
	if delta <= 0 {
		return delta, nil
	}
	cat, ok := rules.CategoryOf(p.EventType)
	if !ok {
		return delta, nil
	}
	c, ok := caps[cat]
	if !ok {
		return delta, nil
	}

	if err := s.scoring.LockMembershipTx(ctx, tx, p.CompanyID, p.CreatorID); err != nil {
		return 0, err
	}
	used, err := s.ledger.SumPointsTx(ctx, tx, ledger.Filter{
		CompanyID:  p.CompanyID,
		CreatorID:  p.CreatorID,
		CampaignID: p.CampaignID,
		EventTypes: rules.EventTypesOf(cat),
		Since:      rules.PeriodStart(c.Period, s.clock.Now()),
	})
	if err != nil {
		return 0, err
	}
	return rules.Clamp(delta, c, used), nil
}

type rankPayload struct {
	CompanyID  int64 `json:"company_id,string"`
	CampaignID int64 `json:"campaign_id,string"`
}

// scheduleRanks recomputes the campaign ranking inline, or queues one
// recalculation per campaign when async ranks are enabled.
func (s *Service) scheduleRanks(ctx context.Context, companyID, campaignID int64) {
	log := logger.FromContext(ctx).With(zap.Int64("campaign_id", campaignID))

	if s.asyncRanks && s.enqueuer != nil {
		payload, _ := json.Marshal(rankPayload{CompanyID: companyID, CampaignID: campaignID})
		_, err := s.enqueuer.Enqueue(ctx,
			asynq.NewTask(taskname.RecalculateRanks, payload),
			asynq.TaskID(rediskey.BuildRankTaskID(campaignID)),
			asynq.ProcessIn(s.ranksDebounce),
			asynq.MaxRetry(5),
		)
		if err == nil || errors.Is(err, asynq.ErrTaskIDConflict) {
			return
		}
		log.Warn("failed to enqueue rank recalculation, running inline", zap.Error(err))
	}

	if _, err := s.scoring.RecalculateCampaignRanks(ctx, companyID, campaignID); err != nil {
		log.Error("failed to recalculate campaign ranks", zap.Error(err))
	}
}

type CompleteResult struct {
	Deliverable      *campaign.Deliverable `json:"deliverable"`
	AlreadyCompleted bool                  `json:"already_completed"`
	OnTime           bool                  `json:"on_time"`
	Events           []*RecordResult       `json:"events,omitempty"`
}

// CompleteDeliverable awards completion points and, when the deadline was
// met, the on-time bonus. Points are keyed on the deliverable id so a
// deliverable is paid once even if it is completed again after a revision.
func (s *Service) CompleteDeliverable(ctx context.Context, companyID, deliverableID int64) (*CompleteResult, error) {
	d, err := s.campaigns.GetDeliverable(ctx, companyID, deliverableID)
	if err != nil {
		return nil, err
	}
	res := &CompleteResult{Deliverable: d}
	if !scoring.ShouldAwardCompletion(d.Status) {
		res.AlreadyCompleted = true
		return res, nil
	}

	c, err := s.campaigns.GetCampaign(ctx, companyID, d.CampaignID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	res.OnTime = scoring.IsOnTime(now, d.EffectiveDeadline(c))

	events := []ledger.EventType{ledger.EventDeliveryApproved}
	if res.OnTime {
		events = append(events, ledger.EventOnTimeBonus)
	}
	for _, et := range events {
		r, err := s.RecordEvent(ctx, RecordParams{
			CompanyID:  companyID,
			CreatorID:  d.CreatorID,
			CampaignID: &d.CampaignID,
			EventType:  et,
			RefType:    refTypeDeliverable,
			RefID:      d.ID,
			Quantity:   1,
			Metadata:   map[string]any{"deliverable_type": d.Type},
		})
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, r)
	}

	moved, err := s.campaigns.SetDeliverableStatusTx(ctx, s.db, d, campaign.DeliverableDelivered, &now)
	if err != nil {
		return nil, err
	}
	if !moved {
		res.AlreadyCompleted = true
	}
	d.Status = campaign.DeliverableDelivered
	d.CompletedAt = &now
	return res, nil
}

type Summary struct {
	CompanyID    int64                           `json:"company_id,string"`
	CreatorID    int64                           `json:"creator_id,string"`
	TotalPoints  int64                           `json:"total_points"`
	Status       scoring.MembershipStatus        `json:"status,omitempty"`
	Tier         *tier.Tier                      `json:"tier,omitempty"`
	NextTier     *tier.Tier                      `json:"next_tier,omitempty"`
	PointsNeeded int64                           `json:"points_needed"`
	Campaigns    []*scoring.CampaignCreatorStats `json:"campaigns"`
}

func (s *Service) GetCreatorPointsSummary(ctx context.Context, companyID, creatorID int64) (*Summary, error) {
	if companyID <= 0 || creatorID <= 0 {
		return nil, errutil.BadRequest("company_id and creator_id are required", nil)
	}

	out := &Summary{CompanyID: companyID, CreatorID: creatorID}
	m, err := s.scoring.GetMembership(ctx, companyID, creatorID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		out.TotalPoints = m.PointsCache
		out.Status = m.Status
	}

	tiers, err := s.tiers.ListTiers(ctx, companyID)
	if err != nil {
		return nil, err
	}
	out.Tier = tier.TierFor(out.TotalPoints, tiers)
	out.NextTier, out.PointsNeeded = tier.NextTier(out.Tier, out.TotalPoints, tiers)

	if out.Campaigns, err = s.scoring.ListCreatorStats(ctx, companyID, creatorID); err != nil {
		return nil, err
	}
	return out, nil
}

type TiersResult struct {
	Tiers   []*tier.Tier         `json:"data"`
	Changes []scoring.TierChange `json:"changes"`
}

// ReplaceTiers swaps the tier ladder and re-evaluates every member in the
// same transaction, so no membership is left on a removed tier.
func (s *Service) ReplaceTiers(ctx context.Context, companyID int64, inputs []tier.Input) (*TiersResult, error) {
	ctx, span := tracer.Start(ctx, "gamification.ReplaceTiers")
	defer span.End()

	out := &TiersResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if out.Tiers, err = s.tiers.ReplaceTiersTx(ctx, tx, companyID, inputs); err != nil {
			return err
		}
		out.Changes, err = s.scoring.RefreshTiersTx(ctx, tx, companyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out.Changes) > 0 {
		logger.FromContext(ctx).Info("tier ladder changed member tiers",
			zap.Int64("company_id", companyID),
			zap.Int("changes", len(out.Changes)),
		)
	}
	return out, nil
}

// ReconcileAll replays the ledger of every company and campaign.
func (s *Service) ReconcileAll(ctx context.Context, repair bool) ([]scoring.Mismatch, error) {
	companies, err := s.scoring.CompanyIDs(ctx)
	if err != nil {
		return nil, err
	}

	var all []scoring.Mismatch
	for _, companyID := range companies {
		mm, err := s.ReconcileCompany(ctx, companyID, repair)
		if err != nil {
			return all, err
		}
		all = append(all, mm...)
	}

	logger.FromContext(ctx).Info("reconciliation finished",
		zap.Int("companies", len(companies)),
		zap.Int("mismatches", len(all)),
		zap.Bool("repair", repair),
	)
	return all, nil
}

func (s *Service) ReconcileCompany(ctx context.Context, companyID int64, repair bool) ([]scoring.Mismatch, error) {
	all, err := s.scoring.ReconcileBrand(ctx, companyID, repair)
	if err != nil {
		return nil, err
	}

	campaignIDs, err := s.scoring.CampaignIDs(ctx, companyID)
	if err != nil {
		return all, err
	}
	for _, id := range campaignIDs {
		mm, err := s.scoring.ReconcileCampaign(ctx, companyID, id, repair)
		if err != nil {
			return all, err
		}
		all = append(all, mm...)
	}
	return all, nil
}
