package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smallbiznis-gamification/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Filter struct {
	CompanyID  int64
	CreatorID  int64
	CampaignID *int64
	EventTypes []EventType
	// Since is inclusive, Until exclusive. Zero values leave the bound open.
	Since time.Time
	Until time.Time

	Pagination pagination.Pagination
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTrx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// idempotencyKey is the conflict target of InsertIgnore. Any other unique
// violation, the primary key included, is returned as an error.
var idempotencyKey = []clause.Column{
	{Name: "company_id"},
	{Name: "event_type"},
	{Name: "ref_type"},
	{Name: "ref_id"},
}

// InsertIgnore inserts e unless an entry with the same idempotency key
// exists. It reports whether a row was written.
func (r *Repository) InsertIgnore(ctx context.Context, e *Entry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: idempotencyKey, DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, fmt.Errorf("insert ledger entry %d: %w", e.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) FindByKey(ctx context.Context, companyID int64, eventType EventType, refType string, refID int64) (*Entry, error) {
	var e Entry
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND event_type = ? AND ref_type = ? AND ref_id = ?", companyID, eventType, refType, refID).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) scope(ctx context.Context, f Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&Entry{}).Where("company_id = ?", f.CompanyID)
	if f.CreatorID > 0 {
		q = q.Where("creator_id = ?", f.CreatorID)
	}
	if f.CampaignID != nil {
		q = q.Where("campaign_id = ?", *f.CampaignID)
	}
	if len(f.EventTypes) > 0 {
		q = q.Where("event_type IN ?", f.EventTypes)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at < ?", f.Until)
	}
	return q
}

// List returns entries ascending by (created_at, id). When a page limit is
// set it fetches one extra row so the caller can detect a following page.
func (r *Repository) List(ctx context.Context, f Filter) ([]*Entry, error) {
	q := r.scope(ctx, f)

	if f.Pagination.Cursor != "" {
		cur, err := pagination.DecodeCursor(f.Pagination.Cursor)
		if err != nil {
			return nil, err
		}
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", cur.CreatedAt, cur.CreatedAt, cur.ID)
	}
	if f.Pagination.Limit > 0 {
		q = q.Limit(f.Pagination.Limit + 1)
	}

	var out []*Entry
	if err := q.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) Sum(ctx context.Context, f Filter) (int64, error) {
	var total int64
	err := r.scope(ctx, f).Select("COALESCE(SUM(delta_points), 0)").Scan(&total).Error
	return total, err
}

func (r *Repository) TotalsByCreator(ctx context.Context, f Filter) ([]CreatorTotal, error) {
	var out []CreatorTotal
	err := r.scope(ctx, f).
		Select("creator_id, COALESCE(SUM(delta_points), 0) AS total").
		Group("creator_id").
		Order("creator_id ASC").
		Scan(&out).Error
	return out, err
}
