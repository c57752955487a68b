package gamification

import (
	"smallbiznis-gamification/pkg/clock"
	"smallbiznis-gamification/pkg/db"
	"smallbiznis-gamification/services/campaign"
	"smallbiznis-gamification/services/ledger"
	"smallbiznis-gamification/services/prize"
	"smallbiznis-gamification/services/rules"
	"smallbiznis-gamification/services/scoring"
	"smallbiznis-gamification/services/tier"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("gamification.service",
	fx.Provide(NewService),
)

// Core is every domain service the binaries share, plus the schema migration.
var Core = fx.Options(
	clock.Module,
	rules.Module,
	campaign.Module,
	ledger.Module,
	tier.Module,
	scoring.Module,
	prize.Module,
	Module,
	fx.Invoke(Migrate),
)

// Worker wires the asynq handlers and the nightly scheduler.
var Worker = fx.Module("gamification.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(RegisterHandlers, StartScheduler),
)

func Models() []any {
	return []any{
		&ledger.Entry{},
		&rules.BrandScoringConfig{},
		&campaign.Campaign{},
		&campaign.Deliverable{},
		&tier.Tier{},
		&scoring.CampaignCreatorStats{},
		&scoring.BrandCreatorMembership{},
		&prize.Prize{},
		&prize.Entitlement{},
		&prize.ExecutionAttempt{},
		&prize.AuditLog{},
	}
}

func Migrate(conn *gorm.DB) error {
	return db.Migrate(conn, Models()...)
}
