package scoring

import "time"

type CampaignCreatorStats struct {
	ID                    int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID             int64     `gorm:"column:company_id;not null;index" json:"company_id,string"`
	CampaignID            int64     `gorm:"column:campaign_id;not null;uniqueIndex:ux_campaign_creator_stats,priority:1" json:"campaign_id,string"`
	CreatorID             int64     `gorm:"column:creator_id;not null;uniqueIndex:ux_campaign_creator_stats,priority:2" json:"creator_id,string"`
	Points                int64     `gorm:"column:points;not null;default:0" json:"points"`
	DeliverablesCompleted int64     `gorm:"column:deliverables_completed;not null;default:0" json:"deliverables_completed"`
	DeliverablesOnTime    int64     `gorm:"column:deliverables_on_time;not null;default:0" json:"deliverables_on_time"`
	TotalViews            int64     `gorm:"column:total_views;not null;default:0" json:"total_views"`
	TotalEngagement       int64     `gorm:"column:total_engagement;not null;default:0" json:"total_engagement"`
	TotalSales            int64     `gorm:"column:total_sales;not null;default:0" json:"total_sales"`
	QualityScore          int64     `gorm:"column:quality_score;not null;default:0" json:"quality_score"`
	Rank                  int       `gorm:"column:rank_position;not null;default:0" json:"rank"`
	CreatedAt             time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt             time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (CampaignCreatorStats) TableName() string {
	return "campaign_creator_stats"
}

type MembershipStatus string

const (
	MembershipInvited MembershipStatus = "invited"
	MembershipActive  MembershipStatus = "active"
	MembershipPaused  MembershipStatus = "paused"
	MembershipRemoved MembershipStatus = "removed"
)

type BrandCreatorMembership struct {
	ID          int64            `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID   int64            `gorm:"column:company_id;not null;uniqueIndex:ux_brand_creator_membership,priority:1" json:"company_id,string"`
	CreatorID   int64            `gorm:"column:creator_id;not null;uniqueIndex:ux_brand_creator_membership,priority:2" json:"creator_id,string"`
	Status      MembershipStatus `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	TierID      *int64           `gorm:"column:tier_id" json:"tier_id,string,omitempty"`
	PointsCache int64            `gorm:"column:points_cache;not null;default:0" json:"points_cache"`
	CouponCode  string           `gorm:"column:coupon_code;type:varchar(64)" json:"coupon_code,omitempty"`
	JoinedAt    time.Time        `gorm:"column:joined_at" json:"joined_at"`
	CreatedAt   time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (BrandCreatorMembership) TableName() string {
	return "brand_creator_memberships"
}

// Standing is one row of a computed ranking.
type Standing struct {
	CreatorID      int64     `json:"creator_id,string"`
	Points         int64     `json:"points"`
	Rank           int       `json:"rank"`
	ReachedAt      time.Time `json:"reached_at"`
	ReachedEntryID int64     `json:"-"`
}

// TierChange is returned when a points update moves a creator to another tier.
type TierChange struct {
	CompanyID  int64  `json:"company_id,string"`
	CreatorID  int64  `json:"creator_id,string"`
	FromTierID *int64 `json:"from_tier_id,string,omitempty"`
	ToTierID   int64  `json:"to_tier_id,string"`
	ToTierName string `json:"to_tier_name"`
	Points     int64  `json:"points"`
}

type MismatchKind string

const (
	MismatchMembership    MismatchKind = "membership_points"
	MismatchCampaignStats MismatchKind = "campaign_stats_points"
)

// Mismatch reports a cache that disagrees with its ledger replay.
type Mismatch struct {
	Kind       MismatchKind `json:"kind"`
	CompanyID  int64        `json:"company_id,string"`
	CampaignID int64        `json:"campaign_id,string,omitempty"`
	CreatorID  int64        `json:"creator_id,string"`
	Cached     int64        `json:"cached"`
	Ledger     int64        `json:"ledger"`
	Repaired   bool         `json:"repaired"`
}
