package rules

import (
	"smallbiznis-gamification/pkg/config"

	"go.uber.org/fx"
)

var Module = fx.Module("rules.service",
	fx.Provide(
		provideCache,
		NewService,
	),
)

func provideCache(cfg *config.Config) *Cache {
	return NewCache(cfg.Gamification.RulesCacheTTL)
}
