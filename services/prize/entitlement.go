package prize

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"smallbiznis-gamification/pkg/db/pagination"
	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var payoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gamification_payouts_total",
	Help: "Payout attempts by outcome.",
}, []string{"outcome"})

type change struct {
	actorID  int64
	action   Action
	reason   string
	at       time.Time
	updates  map[string]any
	metadata map[string]any
}

func (s *Service) GetEntitlement(ctx context.Context, companyID, id int64) (*Entitlement, error) {
	return s.getEntitlementTx(ctx, s.db, companyID, id)
}

func (s *Service) getEntitlementTx(ctx context.Context, tx *gorm.DB, companyID, id int64) (*Entitlement, error) {
	var e Entitlement
	err := tx.WithContext(ctx).Where("id = ? AND company_id = ?", id, companyID).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Service) ListEntitlements(ctx context.Context, f Filter) ([]*Entitlement, *pagination.PageInfo, error) {
	if f.CompanyID <= 0 {
		return nil, nil, errutil.BadRequest("company_id is required", nil)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, nil, errutil.BadRequest("unknown status "+string(f.Status), nil)
	}
	f.Pagination = f.Pagination.Normalize()

	q := s.db.WithContext(ctx).Model(&Entitlement{}).Where("company_id = ?", f.CompanyID)
	if f.CampaignID > 0 {
		q = q.Where("campaign_id = ?", f.CampaignID)
	}
	if f.CreatorID > 0 {
		q = q.Where("creator_id = ?", f.CreatorID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Cursor != "" {
		cur, err := pagination.DecodeCursor(f.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", cur.CreatedAt, cur.CreatedAt, cur.ID)
	}

	var out []*Entitlement
	if err := q.Order("created_at ASC").Order("id ASC").Limit(f.Limit + 1).Find(&out).Error; err != nil {
		return nil, nil, err
	}
	page, info := pagination.BuildCursorPageInfo(out, f.Limit, func(e *Entitlement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, info, nil
}

func (s *Service) AuditTrail(ctx context.Context, companyID, entitlementID int64) ([]*AuditLog, error) {
	if _, err := s.GetEntitlement(ctx, companyID, entitlementID); err != nil {
		return nil, err
	}
	var out []*AuditLog
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND entitlement_id = ?", companyID, entitlementID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

func (s *Service) auditTx(ctx context.Context, tx *gorm.DB, e *Entitlement, ch change, from, to Status) error {
	row := &AuditLog{
		ID:            s.node.Generate().Int64(),
		CompanyID:     e.CompanyID,
		EntitlementID: e.ID,
		ActorID:       ch.actorID,
		Action:        ch.action,
		FromStatus:    from,
		ToStatus:      to,
		Reason:        ch.reason,
		Metadata:      datatypes.JSONMap(ch.metadata),
		CreatedAt:     ch.at,
	}
	return tx.WithContext(ctx).Create(row).Error
}

// transitionTx moves e to the next status with a conditional update and logs
// the move. A concurrent writer that got there first turns into a
// TransitionError carrying the status it left behind.
func (s *Service) transitionTx(ctx context.Context, tx *gorm.DB, e *Entitlement, to Status, ch change) error {
	from := e.Status
	if !CanTransition(from, to) {
		return &TransitionError{EntitlementID: e.ID, From: from, To: to}
	}
	if ch.at.IsZero() {
		ch.at = s.clock.Now()
	}

	updates := map[string]any{"status": to, "updated_at": ch.at}
	for k, v := range ch.updates {
		updates[k] = v
	}
	res := tx.WithContext(ctx).Model(&Entitlement{}).
		Where("id = ? AND company_id = ? AND status = ?", e.ID, e.CompanyID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.getEntitlementTx(ctx, tx, e.CompanyID, e.ID)
		if err != nil {
			return err
		}
		return &TransitionError{EntitlementID: e.ID, From: current.Status, To: to}
	}

	if err := s.auditTx(ctx, tx, e, ch, from, to); err != nil {
		return err
	}
	e.Status = to
	e.UpdatedAt = ch.at
	return nil
}

// withMetadata returns a copy of the entitlement metadata with kv merged in.
func withMetadata(e *Entitlement, kv map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range e.Metadata {
		out[k] = v
	}
	for k, v := range kv {
		out[k] = v
	}
	return out
}

func (s *Service) ApproveRewardEntitlement(ctx context.Context, companyID, id, approverID int64) (*Entitlement, error) {
	var out *Entitlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.getEntitlementTx(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		err = s.transitionTx(ctx, tx, e, StatusApproved, change{
			actorID: approverID,
			action:  ActionApprove,
			at:      now,
			updates: map[string]any{"approved_by_user_id": approverID, "approved_at": now},
		})
		if err != nil {
			return err
		}
		e.ApprovedByUserID = &approverID
		e.ApprovedAt = &now
		out = e
		return nil
	})
	return out, err
}

func (s *Service) RejectRewardEntitlement(ctx context.Context, companyID, id, approverID int64, reason string) (*Entitlement, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	var out *Entitlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.getEntitlementTx(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		err = s.transitionTx(ctx, tx, e, StatusRejected, change{
			actorID: approverID,
			action:  ActionReject,
			reason:  reason,
			updates: map[string]any{"rejection_reason": reason},
		})
		if err != nil {
			return err
		}
		e.RejectionReason = reason
		out = e
		return nil
	})
	return out, err
}

// ExecuteApprovedReward claims an approved or failed entitlement, runs the
// payout under the configured timeout and records the outcome. A payout
// error leaves the entitlement failed and is not returned as an error.
func (s *Service) ExecuteApprovedReward(ctx context.Context, companyID, id, executorID int64) (*Entitlement, error) {
	ctx, span := tracer.Start(ctx, "prize.ExecuteApprovedReward")
	defer span.End()
	span.SetAttributes(attribute.Int64("company_id", companyID), attribute.Int64("entitlement_id", id))

	var (
		e       *Entitlement
		attempt *ExecutionAttempt
		p       *Prize
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		e, err = s.getEntitlementTx(ctx, tx, companyID, id)
		if err != nil {
			return err
		}

		var n int64
		if err := tx.Model(&ExecutionAttempt{}).Where("entitlement_id = ?", e.ID).Count(&n).Error; err != nil {
			return err
		}
		now := s.clock.Now()
		attempt = &ExecutionAttempt{
			ID:             s.node.Generate().Int64(),
			EntitlementID:  e.ID,
			Attempt:        int(n) + 1,
			IdempotencyKey: uuid.NewString(),
			Status:         AttemptExecuting,
			ExecutorID:     executorID,
			StartedAt:      now,
		}

		err = s.transitionTx(ctx, tx, e, StatusExecuting, change{
			actorID:  executorID,
			action:   ActionExecute,
			at:       now,
			updates:  map[string]any{"executed_by_user_id": executorID},
			metadata: map[string]any{"attempt": attempt.Attempt, "idempotency_key": attempt.IdempotencyKey},
		})
		if err != nil {
			return err
		}
		e.ExecutedByUserID = &executorID

		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		p, err = s.prizes.WithTrx(tx).FindOne(ctx, &Prize{ID: e.PrizeID})
		return err
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, payErr := s.executor.Execute(callCtx, PayoutRequest{
		IdempotencyKey: attempt.IdempotencyKey,
		Attempt:        attempt.Attempt,
		Entitlement:    e,
		Prize:          p,
	})
	cancel()
	if payErr == nil && result == nil {
		payErr = errors.New("payout executor returned no result")
	}

	// the outcome is recorded even when the caller went away
	finishCtx := context.WithoutCancel(ctx)
	outcome := "failed"
	err = s.db.WithContext(finishCtx).Transaction(func(tx *gorm.DB) error {
		switch {
		case payErr != nil:
			return s.failTx(finishCtx, tx, e, attempt, executorID, payErr.Error())
		case result.Outcome == OutcomePending:
			outcome = "pending"
			return s.acceptTx(finishCtx, tx, e, attempt, executorID, result.ExternalRef)
		default:
			outcome = "completed"
			return s.completeTx(finishCtx, tx, e, attempt, executorID, result.ExternalRef)
		}
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to record payout outcome",
			zap.Int64("entitlement_id", e.ID),
			zap.Int("attempt", attempt.Attempt),
			zap.NamedError("payout_error", payErr),
			zap.Error(err),
		)
		return nil, err
	}

	payoutTotal.WithLabelValues(outcome).Inc()
	if payErr != nil {
		logger.FromContext(ctx).Warn("payout failed",
			zap.Int64("entitlement_id", e.ID),
			zap.Int("attempt", attempt.Attempt),
			zap.Error(payErr),
		)
	}
	return e, nil
}

func (s *Service) CompleteRewardEntitlement(ctx context.Context, companyID, id, executorID int64, externalRef string) (*Entitlement, error) {
	var out *Entitlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.getEntitlementTx(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		attempt, err := s.openAttemptTx(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if err := s.completeTx(ctx, tx, e, attempt, executorID, strings.TrimSpace(externalRef)); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Service) FailRewardEntitlement(ctx context.Context, companyID, id, executorID int64, reason string) (*Entitlement, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	var out *Entitlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.getEntitlementTx(ctx, tx, companyID, id)
		if err != nil {
			return err
		}
		attempt, err := s.openAttemptTx(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if err := s.failTx(ctx, tx, e, attempt, executorID, reason); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// BulkApproveRewards approves each id in its own transaction so one refusal
// does not block the rest.
func (s *Service) BulkApproveRewards(ctx context.Context, companyID int64, ids []int64, approverID int64) BulkResult {
	res := BulkResult{Succeeded: []int64{}, Failed: map[int64]error{}}

	seen := make([]int64, 0, len(ids))
	for _, id := range ids {
		if slices.Contains(seen, id) {
			continue
		}
		seen = append(seen, id)

		if _, err := s.ApproveRewardEntitlement(ctx, companyID, id, approverID); err != nil {
			res.Failed[id] = err
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}

func (s *Service) openAttemptTx(ctx context.Context, tx *gorm.DB, entitlementID int64) (*ExecutionAttempt, error) {
	var a ExecutionAttempt
	err := tx.WithContext(ctx).
		Where("entitlement_id = ? AND status = ?", entitlementID, AttemptExecuting).
		Order("attempt DESC").
		Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) finishAttemptTx(ctx context.Context, tx *gorm.DB, a *ExecutionAttempt, status AttemptStatus, externalRef, errMsg string, at time.Time) error {
	if a == nil {
		return nil
	}
	updates := map[string]any{"status": status, "finished_at": at}
	if externalRef != "" {
		updates["external_ref"] = externalRef
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	if err := tx.WithContext(ctx).Model(&ExecutionAttempt{}).Where("id = ?", a.ID).Updates(updates).Error; err != nil {
		return err
	}
	a.Status = status
	a.FinishedAt = &at
	if externalRef != "" {
		a.ExternalRef = externalRef
	}
	a.Error = errMsg
	return nil
}

func (s *Service) completeTx(ctx context.Context, tx *gorm.DB, e *Entitlement, a *ExecutionAttempt, actorID int64, externalRef string) error {
	now := s.clock.Now()
	meta := map[string]any{}
	if externalRef != "" {
		meta["external_ref"] = externalRef
	}
	md := withMetadata(e, meta)

	err := s.transitionTx(ctx, tx, e, StatusCompleted, change{
		actorID:  actorID,
		action:   ActionComplete,
		at:       now,
		updates:  map[string]any{"metadata": md},
		metadata: meta,
	})
	if err != nil {
		return err
	}
	e.Metadata = md
	return s.finishAttemptTx(ctx, tx, a, AttemptCompleted, externalRef, "", now)
}

func (s *Service) failTx(ctx context.Context, tx *gorm.DB, e *Entitlement, a *ExecutionAttempt, actorID int64, reason string) error {
	now := s.clock.Now()
	meta := map[string]any{"last_error": reason}
	if a != nil {
		meta["failed_attempt"] = a.Attempt
	}
	md := withMetadata(e, meta)

	err := s.transitionTx(ctx, tx, e, StatusFailed, change{
		actorID:  actorID,
		action:   ActionFail,
		reason:   reason,
		at:       now,
		updates:  map[string]any{"metadata": md},
		metadata: meta,
	})
	if err != nil {
		return err
	}
	e.Metadata = md
	return s.finishAttemptTx(ctx, tx, a, AttemptFailed, "", reason, now)
}

// acceptTx records an asynchronous acceptance. The entitlement stays
// executing until the payout service reports back.
func (s *Service) acceptTx(ctx context.Context, tx *gorm.DB, e *Entitlement, a *ExecutionAttempt, actorID int64, externalRef string) error {
	if externalRef != "" {
		err := tx.WithContext(ctx).Model(&ExecutionAttempt{}).Where("id = ?", a.ID).Update("external_ref", externalRef).Error
		if err != nil {
			return err
		}
		a.ExternalRef = externalRef
	}
	return s.auditTx(ctx, tx, e, change{
		actorID:  actorID,
		action:   ActionAccepted,
		at:       s.clock.Now(),
		metadata: map[string]any{"attempt": a.Attempt, "external_ref": externalRef},
	}, StatusExecuting, StatusExecuting)
}
