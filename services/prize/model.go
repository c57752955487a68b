package prize

import (
	"time"

	"smallbiznis-gamification/pkg/db/pagination"

	"gorm.io/datatypes"
)

type PrizeType string

const (
	PrizeRankingPlace PrizeType = "ranking_place"
	PrizeMilestone    PrizeType = "milestone"
)

type RewardKind string

const (
	RewardCash    RewardKind = "cash"
	RewardProduct RewardKind = "product"
	RewardCoupon  RewardKind = "coupon"
	RewardCustom  RewardKind = "custom"
)

func (k RewardKind) Valid() bool {
	switch k {
	case RewardCash, RewardProduct, RewardCoupon, RewardCustom:
		return true
	}
	return false
}

type Prize struct {
	ID                 int64      `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID          int64      `gorm:"column:company_id;not null;index" json:"company_id,string"`
	CampaignID         int64      `gorm:"column:campaign_id;not null;index" json:"campaign_id,string"`
	Type               PrizeType  `gorm:"column:type;type:varchar(20);not null" json:"type"`
	RankPosition       *int       `gorm:"column:rank_position" json:"rank_position,omitempty"`
	MilestonePoints    *int64     `gorm:"column:milestone_points" json:"milestone_points,omitempty"`
	RewardKind         RewardKind `gorm:"column:reward_kind;type:varchar(20);not null" json:"reward_kind"`
	CashAmount         *int64     `gorm:"column:cash_amount" json:"cash_amount,omitempty"`
	Currency           string     `gorm:"column:currency;type:varchar(3)" json:"currency,omitempty"`
	ProductSKU         string     `gorm:"column:product_sku;type:varchar(100)" json:"product_sku,omitempty"`
	ProductDescription string     `gorm:"column:product_description;type:text" json:"product_description,omitempty"`
	ConditionExpr      string     `gorm:"column:condition_expr;type:text" json:"condition_expr,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (Prize) TableName() string {
	return "campaign_prizes"
}

type PrizeInput struct {
	Type               PrizeType  `json:"type"`
	RankPosition       *int       `json:"rank_position"`
	MilestonePoints    *int64     `json:"milestone_points"`
	RewardKind         RewardKind `json:"reward_kind"`
	CashAmount         *int64     `json:"cash_amount"`
	Currency           string     `json:"currency"`
	ProductSKU         string     `json:"product_sku"`
	ProductDescription string     `json:"product_description"`
	ConditionExpr      string     `json:"condition_expr"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExecuting, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Entitlement is a creator's right to one prize of one campaign.
type Entitlement struct {
	ID               int64             `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	Code             string            `gorm:"column:code;type:varchar(32);uniqueIndex" json:"code"`
	CompanyID        int64             `gorm:"column:company_id;not null;index" json:"company_id,string"`
	CampaignID       int64             `gorm:"column:campaign_id;not null;uniqueIndex:ux_reward_entitlement,priority:1" json:"campaign_id,string"`
	CreatorID        int64             `gorm:"column:creator_id;not null;uniqueIndex:ux_reward_entitlement,priority:2" json:"creator_id,string"`
	PrizeID          int64             `gorm:"column:prize_id;not null;uniqueIndex:ux_reward_entitlement,priority:3" json:"prize_id,string"`
	Status           Status            `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	ApprovedByUserID *int64            `gorm:"column:approved_by_user_id" json:"approved_by_user_id,string,omitempty"`
	ApprovedAt       *time.Time        `gorm:"column:approved_at" json:"approved_at,omitempty"`
	RejectionReason  string            `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`
	ExecutedByUserID *int64            `gorm:"column:executed_by_user_id" json:"executed_by_user_id,string,omitempty"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

func (Entitlement) TableName() string {
	return "reward_entitlements"
}

type AttemptStatus string

const (
	AttemptExecuting AttemptStatus = "executing"
	AttemptCompleted AttemptStatus = "completed"
	AttemptFailed    AttemptStatus = "failed"
)

type ExecutionAttempt struct {
	ID             int64         `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	EntitlementID  int64         `gorm:"column:entitlement_id;not null;uniqueIndex:ux_reward_attempt,priority:1" json:"entitlement_id,string"`
	Attempt        int           `gorm:"column:attempt;not null;uniqueIndex:ux_reward_attempt,priority:2" json:"attempt"`
	IdempotencyKey string        `gorm:"column:idempotency_key;type:varchar(64);not null" json:"idempotency_key"`
	Status         AttemptStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	ExecutorID     int64         `gorm:"column:executor_id" json:"executor_id,string"`
	ExternalRef    string        `gorm:"column:external_ref;type:varchar(255)" json:"external_ref,omitempty"`
	Error          string        `gorm:"column:error;type:text" json:"error,omitempty"`
	StartedAt      time.Time     `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt     *time.Time    `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (ExecutionAttempt) TableName() string {
	return "reward_execution_attempts"
}

type Action string

const (
	ActionCreated  Action = "created"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionExecute  Action = "execute"
	ActionAccepted Action = "payout_accepted"
	ActionComplete Action = "complete"
	ActionFail     Action = "fail"
)

// AuditLog is written once per state change and never updated.
type AuditLog struct {
	ID            int64             `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID     int64             `gorm:"column:company_id;not null;index" json:"company_id,string"`
	EntitlementID int64             `gorm:"column:entitlement_id;not null;index" json:"entitlement_id,string"`
	ActorID       int64             `gorm:"column:actor_id" json:"actor_id,string"`
	Action        Action            `gorm:"column:action;type:varchar(32);not null" json:"action"`
	FromStatus    Status            `gorm:"column:from_status;type:varchar(20)" json:"from_status"`
	ToStatus      Status            `gorm:"column:to_status;type:varchar(20)" json:"to_status"`
	Reason        string            `gorm:"column:reason;type:text" json:"reason,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "reward_audit_logs"
}

type Filter struct {
	CompanyID  int64  `form:"-"`
	CampaignID int64  `form:"campaign_id"`
	CreatorID  int64  `form:"creator_id"`
	Status     Status `form:"status"`

	pagination.Pagination
}

type CloseResult struct {
	CampaignID    int64          `json:"campaign_id,string"`
	AlreadyClosed bool           `json:"already_closed"`
	Created       []*Entitlement `json:"created"`
}

type BulkResult struct {
	Succeeded []int64         `json:"-"`
	Failed    map[int64]error `json:"-"`
}

// SucceededIDs renders Succeeded as decimal strings, like every other id in
// the API.
func (r BulkResult) SucceededIDs() []string {
	out := make([]string, 0, len(r.Succeeded))
	for _, id := range r.Succeeded {
		out = append(out, formatID(id))
	}
	return out
}

// FailedMessages renders Failed with string keys for JSON responses.
func (r BulkResult) FailedMessages() map[string]string {
	out := make(map[string]string, len(r.Failed))
	for id, err := range r.Failed {
		out[formatID(id)] = err.Error()
	}
	return out
}
