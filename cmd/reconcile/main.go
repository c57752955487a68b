package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-gamification/pkg/config"
	"smallbiznis-gamification/pkg/db"
	"smallbiznis-gamification/pkg/idgen"
	"smallbiznis-gamification/pkg/logger"
	"smallbiznis-gamification/pkg/redis"
	"smallbiznis-gamification/pkg/secretmanager"
	"smallbiznis-gamification/pkg/sequence"
	"smallbiznis-gamification/services/gamification"
	"smallbiznis-gamification/services/scoring"
)

var (
	companyID = flag.Int64("company", 0, "reconcile a single company (0 = all)")
	repair    = flag.Bool("repair", false, "rewrite caches that drifted from the ledger")
)

// reconcile replays the ledger once and exits non-zero when drift was found
// and left unrepaired.
func main() {
	flag.Parse()

	exitCode := 0
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		idgen.Module,
		gamification.Core,
		fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, svc *gamification.Service) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						mismatches, err := run(context.Background(), svc)
						if err != nil {
							zap.L().Error("reconciliation failed", zap.Error(err))
							exitCode = 1
						} else if len(mismatches) > 0 && !*repair {
							exitCode = 2
						}
						_ = sd.Shutdown(fx.ExitCode(exitCode))
					}()
					return nil
				},
			})
		}),
		fx.WithLogger(func(*zap.Logger) fxevent.Logger { return fxevent.NopLogger }),
	)

	app.Run()
	os.Exit(exitCode)
}

func run(ctx context.Context, svc *gamification.Service) ([]scoring.Mismatch, error) {
	if *companyID > 0 {
		return svc.ReconcileCompany(ctx, *companyID, *repair)
	}
	return svc.ReconcileAll(ctx, *repair)
}
