package ledger

import (
	"context"

	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/db/pagination"
	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidEntry = errutil.BadRequest("invalid ledger entry", nil)

var (
	appendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamification_ledger_entries_total",
		Help: "Ledger entries written, by event type.",
	}, []string{"event_type"})
	duplicateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamification_ledger_duplicates_total",
		Help: "Appends ignored because the idempotency key already existed.",
	}, []string{"event_type"})
)

var tracer = otel.Tracer("smallbiznis-gamification/services/ledger")

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
	repo  *Repository
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParams) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: c,
		repo:  NewRepository(p.DB),
	}
}

// AppendEntry writes one ledger entry. It returns nil, nil when an entry with
// the same idempotency key already exists.
func (s *Service) AppendEntry(ctx context.Context, p AppendParams) (*Entry, error) {
	return s.AppendEntryTx(ctx, s.db, p)
}

// AppendEntryTx is AppendEntry inside a transaction owned by the caller.
func (s *Service) AppendEntryTx(ctx context.Context, tx *gorm.DB, p AppendParams) (*Entry, error) {
	ctx, span := tracer.Start(ctx, "ledger.AppendEntry")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("company_id", p.CompanyID),
		attribute.Int64("creator_id", p.CreatorID),
		attribute.String("event_type", string(p.EventType)),
	)

	if err := p.validate(); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:          s.node.Generate().Int64(),
		CompanyID:   p.CompanyID,
		CampaignID:  p.CampaignID,
		CreatorID:   p.CreatorID,
		DeltaPoints: p.DeltaPoints,
		EventType:   p.EventType,
		RefType:     p.RefType,
		RefID:       p.RefID,
		Metadata:    datatypes.JSONMap(p.Metadata),
		CreatedAt:   s.clock.Now(),
	}
	entry.Checksum = entry.GenerateChecksum()

	inserted, err := s.repo.WithTrx(tx).InsertIgnore(ctx, entry)
	if err != nil {
		logger.FromContext(ctx).Error("failed to append ledger entry",
			zap.Int64("company_id", p.CompanyID),
			zap.String("event_type", string(p.EventType)),
			zap.Int64("ref_id", p.RefID),
			zap.Error(err),
		)
		return nil, err
	}
	if !inserted {
		duplicateTotal.WithLabelValues(string(p.EventType)).Inc()
		logger.FromContext(ctx).Info("duplicate ledger event ignored",
			zap.Int64("company_id", p.CompanyID),
			zap.String("event_type", string(p.EventType)),
			zap.String("ref_type", p.RefType),
			zap.Int64("ref_id", p.RefID),
		)
		return nil, nil
	}

	appendedTotal.WithLabelValues(string(p.EventType)).Inc()
	return entry, nil
}

func (s *Service) EntriesForCampaign(ctx context.Context, companyID, campaignID int64) ([]*Entry, error) {
	return s.repo.List(ctx, Filter{CompanyID: companyID, CampaignID: &campaignID})
}

func (s *Service) EntriesForCreator(ctx context.Context, companyID, creatorID int64, campaignID *int64) ([]*Entry, error) {
	return s.repo.List(ctx, Filter{CompanyID: companyID, CreatorID: creatorID, CampaignID: campaignID})
}

// Entries lists every entry matching f, ignoring pagination.
func (s *Service) Entries(ctx context.Context, f Filter) ([]*Entry, error) {
	return s.EntriesTx(ctx, s.db, f)
}

// EntriesTx lists entries through tx. Used by callers that already hold a
// transaction.
func (s *Service) EntriesTx(ctx context.Context, tx *gorm.DB, f Filter) ([]*Entry, error) {
	f.Pagination = pagination.Pagination{}
	return s.repo.WithTrx(tx).List(ctx, f)
}

func (s *Service) ListEntries(ctx context.Context, f Filter) ([]*Entry, *pagination.PageInfo, error) {
	if f.CompanyID <= 0 {
		return nil, nil, errutil.BadRequest("company_id is required", nil)
	}
	f.Pagination = f.Pagination.Normalize()
	if f.Pagination.Cursor != "" {
		if _, err := pagination.DecodeCursor(f.Pagination.Cursor); err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
	}

	entries, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, nil, err
	}

	page, info := pagination.BuildCursorPageInfo(entries, f.Pagination.Limit, func(e *Entry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, info, nil
}

func (s *Service) SumPoints(ctx context.Context, f Filter) (int64, error) {
	return s.repo.Sum(ctx, f)
}

func (s *Service) SumPointsTx(ctx context.Context, tx *gorm.DB, f Filter) (int64, error) {
	return s.repo.WithTrx(tx).Sum(ctx, f)
}

func (s *Service) TotalsByCreator(ctx context.Context, f Filter) ([]CreatorTotal, error) {
	return s.repo.TotalsByCreator(ctx, f)
}

func (s *Service) FindByKey(ctx context.Context, companyID int64, eventType EventType, refType string, refID int64) (*Entry, error) {
	return s.repo.FindByKey(ctx, companyID, eventType, refType, refID)
}

// VerifyEntries returns the ids of entries whose stored checksum no longer
// matches their content.
func VerifyEntries(entries []*Entry) []int64 {
	var tampered []int64
	for _, e := range entries {
		if e.Checksum != e.GenerateChecksum() {
			tampered = append(tampered, e.ID)
		}
	}
	return tampered
}
