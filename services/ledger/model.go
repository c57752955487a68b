package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventPostCreated      EventType = "post_created"
	EventReelCreated      EventType = "reel_created"
	EventStoryCreated     EventType = "story_created"
	EventViewsMilestone   EventType = "views_milestone"
	EventLikeMilestone    EventType = "like_milestone"
	EventCommentMilestone EventType = "comment_milestone"
	EventSaleConfirmed    EventType = "sale_confirmed"
	EventDeliveryApproved EventType = "delivery_approved"
	EventCourseCompleted  EventType = "course_completed"
	EventAdminAdjustment  EventType = "admin_adjustment"
	EventOnTimeBonus      EventType = "ontime_bonus"
	EventQualityBonus     EventType = "quality_bonus"
	EventPenaltyLate      EventType = "penalty_late"
	EventMilestoneReached EventType = "milestone_reached"
	EventCommunityJoined  EventType = "community_joined"
)

var eventTypes = map[EventType]struct{}{
	EventPostCreated:      {},
	EventReelCreated:      {},
	EventStoryCreated:     {},
	EventViewsMilestone:   {},
	EventLikeMilestone:    {},
	EventCommentMilestone: {},
	EventSaleConfirmed:    {},
	EventDeliveryApproved: {},
	EventCourseCompleted:  {},
	EventAdminAdjustment:  {},
	EventOnTimeBonus:      {},
	EventQualityBonus:     {},
	EventPenaltyLate:      {},
	EventMilestoneReached: {},
	EventCommunityJoined:  {},
}

func (e EventType) Valid() bool {
	_, ok := eventTypes[e]
	return ok
}

// Entry is one immutable row of the points ledger. The idempotency key is
// (company_id, event_type, ref_type, ref_id).
type Entry struct {
	ID          int64             `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID   int64             `gorm:"column:company_id;not null;uniqueIndex:ux_points_ledger_idempotency,priority:1;index:idx_points_ledger_creator,priority:1" json:"company_id,string"`
	CampaignID  *int64            `gorm:"column:campaign_id;index:idx_points_ledger_campaign" json:"campaign_id,string,omitempty"`
	CreatorID   int64             `gorm:"column:creator_id;not null;index:idx_points_ledger_creator,priority:2" json:"creator_id,string"`
	DeltaPoints int64             `gorm:"column:delta_points;not null" json:"delta_points"`
	EventType   EventType         `gorm:"column:event_type;type:varchar(64);not null;uniqueIndex:ux_points_ledger_idempotency,priority:2" json:"event_type"`
	RefType     string            `gorm:"column:ref_type;type:varchar(64);not null;uniqueIndex:ux_points_ledger_idempotency,priority:3" json:"ref_type"`
	RefID       int64             `gorm:"column:ref_id;not null;uniqueIndex:ux_points_ledger_idempotency,priority:4" json:"ref_id,string"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	Checksum    string            `gorm:"column:checksum;type:varchar(64)" json:"checksum"`
	CreatedAt   time.Time         `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (Entry) TableName() string {
	return "points_ledger_entries"
}

func (e *Entry) HashFields() map[string]string {
	campaign := ""
	if e.CampaignID != nil {
		campaign = fmt.Sprintf("%d", *e.CampaignID)
	}
	return map[string]string{
		"id":           fmt.Sprintf("%d", e.ID),
		"company_id":   fmt.Sprintf("%d", e.CompanyID),
		"campaign_id":  campaign,
		"creator_id":   fmt.Sprintf("%d", e.CreatorID),
		"delta_points": fmt.Sprintf("%d", e.DeltaPoints),
		"event_type":   string(e.EventType),
		"ref_type":     e.RefType,
		"ref_id":       fmt.Sprintf("%d", e.RefID),
		"created_at":   e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (e *Entry) GenerateChecksum() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

type AppendParams struct {
	CompanyID   int64
	CampaignID  *int64
	CreatorID   int64
	EventType   EventType
	RefType     string
	RefID       int64
	DeltaPoints int64
	Metadata    map[string]any
}

func (p AppendParams) validate() error {
	switch {
	case p.CompanyID <= 0:
		return fmt.Errorf("%w: company_id is required", ErrInvalidEntry)
	case p.CreatorID <= 0:
		return fmt.Errorf("%w: creator_id is required", ErrInvalidEntry)
	case !p.EventType.Valid():
		return fmt.Errorf("%w: unknown event_type %q", ErrInvalidEntry, p.EventType)
	case strings.TrimSpace(p.RefType) == "":
		return fmt.Errorf("%w: ref_type is required", ErrInvalidEntry)
	case p.CampaignID != nil && *p.CampaignID <= 0:
		return fmt.Errorf("%w: campaign_id must be positive", ErrInvalidEntry)
	}
	return nil
}

// CreatorTotal is the ledger sum of one creator.
type CreatorTotal struct {
	CreatorID int64 `gorm:"column:creator_id"`
	Total     int64 `gorm:"column:total"`
}
