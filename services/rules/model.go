package rules

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ScoringRules is a fully resolved point schedule.
type ScoringRules struct {
	PointsPerDeliverable     int64            `json:"pointsPerDeliverable"`
	PointsPerDeliverableType map[string]int64 `json:"pointsPerDeliverableType,omitempty"`
	PointsOnTimeBonus        int64            `json:"pointsOnTimeBonus"`
	PointsPer1kViews         int64            `json:"pointsPer1kViews"`
	PointsPerLike            int64            `json:"pointsPerLike"`
	PointsPerComment         int64            `json:"pointsPerComment"`
	PointsPerSale            int64            `json:"pointsPerSale"`
}

// DefaultScoringRules is the system layer of the cascade.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		PointsPerDeliverable:     50,
		PointsPerDeliverableType: map[string]int64{},
		PointsOnTimeBonus:        10,
		PointsPer1kViews:         5,
		PointsPerLike:            1,
		PointsPerComment:         2,
		PointsPerSale:            20,
	}
}

// Layer is a partial ScoringRules. Nil fields inherit from the layer below.
type Layer struct {
	PointsPerDeliverable     *int64           `json:"pointsPerDeliverable,omitempty"`
	PointsPerDeliverableType map[string]int64 `json:"pointsPerDeliverableType,omitempty"`
	PointsOnTimeBonus        *int64           `json:"pointsOnTimeBonus,omitempty"`
	PointsPer1kViews         *int64           `json:"pointsPer1kViews,omitempty"`
	PointsPerLike            *int64           `json:"pointsPerLike,omitempty"`
	PointsPerComment         *int64           `json:"pointsPerComment,omitempty"`
	PointsPerSale            *int64           `json:"pointsPerSale,omitempty"`
}

type Category string

const (
	CategoryDeliverable Category = "deliverable"
	CategoryViews       Category = "views"
	CategoryEngagement  Category = "engagement"
	CategorySales       Category = "sales"
	CategoryBonus       Category = "bonus"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryDeliverable, CategoryViews, CategoryEngagement, CategorySales, CategoryBonus:
		return true
	}
	return false
}

type Period string

const (
	PeriodDay      Period = "day"
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
	PeriodCampaign Period = "campaign"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodCampaign:
		return true
	}
	return false
}

type Cap struct {
	MaxPoints int64  `json:"maxPoints"`
	Period    Period `json:"period"`
}

// Caps maps a category to its ceiling. A missing category is uncapped.
type Caps map[Category]Cap

// BrandScoringConfig holds the brand layer of the cascade.
type BrandScoringConfig struct {
	CompanyID int64          `gorm:"column:company_id;primaryKey;autoIncrement:false" json:"company_id,string"`
	Rules     datatypes.JSON `gorm:"column:rules" json:"rules,omitempty"`
	Caps      datatypes.JSON `gorm:"column:caps" json:"caps,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (BrandScoringConfig) TableName() string {
	return "brand_scoring_configs"
}

// Resolved is what the cache stores per (company, campaign).
type Resolved struct {
	Rules    ScoringRules
	Caps     Caps
	LoadedAt time.Time
	// Degraded is set when a layer could not be read. Such a result is
	// served once and never cached.
	Degraded bool
}

// ParseLayer decodes a stored rules document. Malformed documents yield nil
// and negative values are dropped, so a bad layer never breaks resolution.
func ParseLayer(raw []byte) *Layer {
	if len(raw) == 0 {
		return nil
	}
	var l Layer
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil
	}
	for _, f := range []**int64{
		&l.PointsPerDeliverable, &l.PointsOnTimeBonus, &l.PointsPer1kViews,
		&l.PointsPerLike, &l.PointsPerComment, &l.PointsPerSale,
	} {
		if *f != nil && **f < 0 {
			*f = nil
		}
	}
	for k, v := range l.PointsPerDeliverableType {
		if v < 0 || k == "" {
			delete(l.PointsPerDeliverableType, k)
		}
	}
	return &l
}

// ParseCaps decodes a stored caps document, keeping only well formed entries.
func ParseCaps(raw []byte) Caps {
	if len(raw) == 0 {
		return nil
	}
	var in map[Category]Cap
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil
	}
	out := make(Caps, len(in))
	for cat, c := range in {
		if !cat.Valid() || !c.Period.Valid() || c.MaxPoints < 0 {
			continue
		}
		out[cat] = c
	}
	return out
}
