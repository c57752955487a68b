package gamification

import (
	"context"
	"encoding/json"
	"fmt"

	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type reconcilePayload struct {
	CompanyID int64 `json:"company_id,string,omitempty"`
	Repair    bool  `json:"repair"`
}

// RegisterHandlers binds the background tasks to the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.RecalculateRanks, s.HandleRecalculateRanks)
	mux.HandleFunc(taskname.ReconcileBrand, s.HandleReconcileBrand)
	mux.HandleFunc(taskname.ReconcileAll, s.HandleReconcileAll)
}

func (s *Service) HandleRecalculateRanks(ctx context.Context, t *asynq.Task) error {
	var p rankPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	standings, err := s.scoring.RecalculateCampaignRanks(ctx, p.CompanyID, p.CampaignID)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("campaign ranks recalculated",
		zap.Int64("campaign_id", p.CampaignID),
		zap.Int("creators", len(standings)),
	)
	return nil
}

func (s *Service) HandleReconcileBrand(ctx context.Context, t *asynq.Task) error {
	var p reconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if p.CompanyID <= 0 {
		return fmt.Errorf("%w: company_id is required", asynq.SkipRetry)
	}
	_, err := s.ReconcileCompany(ctx, p.CompanyID, p.Repair)
	return err
}

func (s *Service) HandleReconcileAll(ctx context.Context, t *asynq.Task) error {
	var p reconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
	}
	_, err := s.ReconcileAll(ctx, p.Repair)
	return err
}

// EnqueueReconcile queues a reconciliation of one company, or of every
// company when companyID is zero.
func (s *Service) EnqueueReconcile(ctx context.Context, companyID int64, repair bool) error {
	if s.enqueuer == nil {
		return fmt.Errorf("task queue is not configured")
	}

	name := taskname.ReconcileAll
	if companyID > 0 {
		name = taskname.ReconcileBrand
	}
	payload, err := json.Marshal(reconcilePayload{CompanyID: companyID, Repair: repair})
	if err != nil {
		return err
	}
	_, err = s.enqueuer.Enqueue(ctx, asynq.NewTask(name, payload), asynq.Queue("low"), asynq.MaxRetry(3))
	return err
}
