package tier

import (
	"time"

	"gorm.io/datatypes"
)

type Tier struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	CompanyID int64          `gorm:"column:company_id;not null;index:idx_brand_tier_company" json:"company_id,string"`
	TierName  string         `gorm:"column:tier_name;type:varchar(100);not null" json:"tier_name"`
	Slug      string         `gorm:"column:slug;type:varchar(120);not null" json:"slug"`
	MinPoints int64          `gorm:"column:min_points;not null" json:"min_points"`
	SortOrder int            `gorm:"column:sort_order" json:"sort_order"`
	Color     string         `gorm:"column:color;type:varchar(32)" json:"color,omitempty"`
	Icon      string         `gorm:"column:icon;type:varchar(255)" json:"icon,omitempty"`
	Benefits  datatypes.JSON `gorm:"column:benefits" json:"benefits,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Tier) TableName() string {
	return "brand_tier_configs"
}

type Input struct {
	TierName  string         `json:"tier_name"`
	MinPoints int64          `json:"min_points"`
	SortOrder int            `json:"sort_order"`
	Color     string         `json:"color"`
	Icon      string         `json:"icon"`
	Benefits  datatypes.JSON `json:"benefits"`
}
