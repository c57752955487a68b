package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-gamification/pkg/config"
	"smallbiznis-gamification/pkg/db"
	"smallbiznis-gamification/pkg/idgen"
	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/pkg/otelcol"
	"smallbiznis-gamification/pkg/profiling"
	"smallbiznis-gamification/pkg/redis"
	"smallbiznis-gamification/pkg/secretmanager"
	"smallbiznis-gamification/pkg/sequence"
	"smallbiznis-gamification/pkg/task"
	"smallbiznis-gamification/services/gamification"
)

func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		task.Server,
		idgen.Module,
		gamification.Core,
		gamification.Worker,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})
