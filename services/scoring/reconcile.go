package scoring

import (
	"context"
	"slices"

	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/services/ledger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReconcileBrand replays the brand ledger against every membership cache.
// With repair set, caches are overwritten with the replayed totals and tiers
// are re-evaluated.
func (s *Service) ReconcileBrand(ctx context.Context, companyID int64, repair bool) ([]Mismatch, error) {
	ctx, span := tracer.Start(ctx, "scoring.ReconcileBrand")
	defer span.End()

	totals, err := s.ledger.TotalsByCreator(ctx, ledger.Filter{CompanyID: companyID})
	if err != nil {
		return nil, err
	}

	var members []*BrandCreatorMembership
	if err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Find(&members).Error; err != nil {
		return nil, err
	}

	cached := make(map[int64]int64, len(members))
	for _, m := range members {
		cached[m.CreatorID] = m.PointsCache
	}
	replayed := make(map[int64]int64, len(totals))
	for _, t := range totals {
		replayed[t.CreatorID] = t.Total
	}

	var mismatches []Mismatch
	for _, id := range unionKeys(cached, replayed) {
		if cached[id] == replayed[id] {
			continue
		}
		mismatches = append(mismatches, Mismatch{
			Kind:      MismatchMembership,
			CompanyID: companyID,
			CreatorID: id,
			Cached:    cached[id],
			Ledger:    replayed[id],
		})
	}

	logMismatches(ctx, mismatches)
	if !repair || len(mismatches) == 0 {
		return mismatches, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		for i := range mismatches {
			mm := &mismatches[i]
			row := &BrandCreatorMembership{
				ID:          s.node.Generate().Int64(),
				CompanyID:   companyID,
				CreatorID:   mm.CreatorID,
				Status:      MembershipActive,
				PointsCache: mm.Ledger,
				JoinedAt:    now,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "company_id"}, {Name: "creator_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"points_cache", "updated_at"}),
			}).Create(row).Error
			if err != nil {
				return err
			}

			m, err := s.membershipTx(ctx, tx, companyID, mm.CreatorID)
			if err != nil {
				return err
			}
			if _, err := s.assignTierTx(ctx, tx, m); err != nil {
				return err
			}
			mm.Repaired = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mismatches, nil
}

// ReconcileCampaign compares campaign stats points with the campaign ledger.
// Repair rewrites points and ranks from the ledger.
func (s *Service) ReconcileCampaign(ctx context.Context, companyID, campaignID int64, repair bool) ([]Mismatch, error) {
	totals, err := s.ledger.TotalsByCreator(ctx, ledger.Filter{CompanyID: companyID, CampaignID: &campaignID})
	if err != nil {
		return nil, err
	}

	entries, err := s.ledger.EntriesForCampaign(ctx, companyID, campaignID)
	if err != nil {
		return nil, err
	}
	if bad := ledger.VerifyEntries(entries); len(bad) > 0 {
		logger.FromContext(ctx).Warn("ledger entries fail checksum",
			zap.Int64("company_id", companyID),
			zap.Int64("campaign_id", campaignID),
			zap.Int64s("entry_ids", bad),
		)
	}

	var rows []*CampaignCreatorStats
	err = s.db.WithContext(ctx).
		Where("company_id = ? AND campaign_id = ?", companyID, campaignID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	cached := make(map[int64]int64, len(rows))
	for _, r := range rows {
		cached[r.CreatorID] = r.Points
	}
	replayed := make(map[int64]int64, len(totals))
	for _, t := range totals {
		replayed[t.CreatorID] = t.Total
	}

	var mismatches []Mismatch
	for _, id := range unionKeys(cached, replayed) {
		if cached[id] == replayed[id] {
			continue
		}
		mismatches = append(mismatches, Mismatch{
			Kind:       MismatchCampaignStats,
			CompanyID:  companyID,
			CampaignID: campaignID,
			CreatorID:  id,
			Cached:     cached[id],
			Ledger:     replayed[id],
		})
	}

	logMismatches(ctx, mismatches)
	if !repair || len(mismatches) == 0 {
		return mismatches, nil
	}

	if _, err := s.RecalculateCampaignRanks(ctx, companyID, campaignID); err != nil {
		return nil, err
	}
	for i := range mismatches {
		mismatches[i].Repaired = true
	}
	return mismatches, nil
}

// CampaignIDs lists the campaigns of a company that have stats rows.
func (s *Service) CampaignIDs(ctx context.Context, companyID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&CampaignCreatorStats{}).
		Where("company_id = ?", companyID).
		Distinct().Pluck("campaign_id", &ids).Error
	return ids, err
}

func logMismatches(ctx context.Context, mismatches []Mismatch) {
	log := logger.FromContext(ctx)
	for _, mm := range mismatches {
		log.Warn("points cache disagrees with ledger",
			zap.String("kind", string(mm.Kind)),
			zap.Int64("company_id", mm.CompanyID),
			zap.Int64("campaign_id", mm.CampaignID),
			zap.Int64("creator_id", mm.CreatorID),
			zap.Int64("cached", mm.Cached),
			zap.Int64("ledger", mm.Ledger),
		)
	}
}

func unionKeys(a, b map[int64]int64) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	var out []int64
	for _, m := range []map[int64]int64{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	slices.Sort(out)
	return out
}

// CompanyIDs lists every company with at least one membership.
func (s *Service) CompanyIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&BrandCreatorMembership{}).
		Distinct().Order("company_id ASC").Pluck("company_id", &ids).Error
	return ids, err
}
