package campaign

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusClosed:
		return true
	}
	return false
}

type Campaign struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID       int64          `gorm:"column:company_id;not null;index" json:"company_id,string"`
	Code            string         `gorm:"column:code;type:varchar(32)" json:"code"`
	Name            string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description     string         `gorm:"column:description;type:text" json:"description,omitempty"`
	Status          Status         `gorm:"column:status;type:varchar(20);not null;default:'draft'" json:"status"`
	StartAt         *time.Time     `gorm:"column:start_at" json:"start_at,omitempty"`
	Deadline        *time.Time     `gorm:"column:deadline" json:"deadline,omitempty"`
	Rules           datatypes.JSON `gorm:"column:rules" json:"rules,omitempty"`
	Caps            datatypes.JSON `gorm:"column:caps" json:"caps,omitempty"`
	OverridesBrand  bool           `gorm:"column:overrides_brand;not null;default:false" json:"overrides_brand"`
	RankingClosedAt *time.Time     `gorm:"column:ranking_closed_at" json:"ranking_closed_at,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// IsActive reports whether the campaign accepts work at now.
func (c *Campaign) IsActive(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	return true
}

func (c *Campaign) RankingClosed() bool {
	return c.RankingClosedAt != nil
}

type DeliverableStatus string

const (
	DeliverablePending           DeliverableStatus = "pending"
	DeliverableInProgress        DeliverableStatus = "in_progress"
	DeliverableDelivered         DeliverableStatus = "delivered"
	DeliverableRevisionRequested DeliverableStatus = "revision_requested"
)

func (s DeliverableStatus) Valid() bool {
	switch s {
	case DeliverablePending, DeliverableInProgress, DeliverableDelivered, DeliverableRevisionRequested:
		return true
	}
	return false
}

type Deliverable struct {
	ID          int64             `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID   int64             `gorm:"column:company_id;not null;index:idx_deliverables_scope,priority:1" json:"company_id,string"`
	CampaignID  int64             `gorm:"column:campaign_id;not null;index:idx_deliverables_scope,priority:2" json:"campaign_id,string"`
	CreatorID   int64             `gorm:"column:creator_id;not null;index:idx_deliverables_scope,priority:3" json:"creator_id,string"`
	Type        string            `gorm:"column:type;type:varchar(50);not null" json:"type"`
	Status      DeliverableStatus `gorm:"column:status;type:varchar(30);not null;default:'pending'" json:"status"`
	DueAt       *time.Time        `gorm:"column:due_at" json:"due_at,omitempty"`
	CompletedAt *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

func (Deliverable) TableName() string {
	return "deliverables"
}

// EffectiveDeadline is the deliverable's own due date, else the campaign's.
func (d *Deliverable) EffectiveDeadline(c *Campaign) *time.Time {
	if d.DueAt != nil {
		return d.DueAt
	}
	if c != nil {
		return c.Deadline
	}
	return nil
}

type CreateParams struct {
	CompanyID      int64          `json:"-"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Status         Status         `json:"status"`
	StartAt        *time.Time     `json:"start_at"`
	Deadline       *time.Time     `json:"deadline"`
	Rules          datatypes.JSON `json:"rules"`
	Caps           datatypes.JSON `json:"caps"`
	OverridesBrand bool           `json:"overrides_brand"`
}

type UpdateParams struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Status      *Status    `json:"status"`
	StartAt     *time.Time `json:"start_at"`
	Deadline    *time.Time `json:"deadline"`
}

type DeliverableParams struct {
	CompanyID  int64      `json:"-"`
	CampaignID int64      `json:"campaign_id,string"`
	CreatorID  int64      `json:"creator_id,string"`
	Type       string     `json:"type"`
	DueAt      *time.Time `json:"due_at"`
}
