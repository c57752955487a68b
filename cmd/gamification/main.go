package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-gamification/internal/httpapi"
	"smallbiznis-gamification/pkg/config"
	"smallbiznis-gamification/pkg/db"
	"smallbiznis-gamification/pkg/health"
	"smallbiznis-gamification/pkg/idgen"
	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/pkg/otelcol"
	"smallbiznis-gamification/pkg/profiling"
	"smallbiznis-gamification/pkg/redis"
	"smallbiznis-gamification/pkg/secretmanager"
	"smallbiznis-gamification/pkg/sequence"
	"smallbiznis-gamification/pkg/server"
	"smallbiznis-gamification/pkg/task"
	"smallbiznis-gamification/services/gamification"
	"smallbiznis-gamification/services/leaderboard"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		health.Module,
		idgen.Module,
		gamification.Core,
		leaderboard.Module,
		httpapi.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
