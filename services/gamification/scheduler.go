package gamification

import (
	"context"
	"time"

	"smallbiznis-gamification/pkg/config"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	cron gocron.Scheduler
}

// NewScheduler registers the nightly reconciliation. The job queues a task
// when a queue is available and otherwise reconciles in process.
func NewScheduler(cfg *config.Config, s *Service) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	hour := cfg.Gamification.ReconcileHour % 24
	repair := cfg.Gamification.ReconcileFix
	_, err = cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, 0, 0))),
		gocron.NewTask(func() {
			ctx := context.Background()
			if s.enqueuer != nil {
				if err := s.EnqueueReconcile(ctx, 0, repair); err != nil {
					zap.L().Error("[Scheduler] failed to enqueue reconciliation", zap.Error(err))
				}
				return
			}
			if _, err := s.ReconcileAll(ctx, repair); err != nil {
				zap.L().Error("[Scheduler] reconciliation failed", zap.Error(err))
			}
		}),
		gocron.WithName("reconcile-ledger"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: cron}, nil
}

func StartScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.cron.Start()
			zap.L().Info("[Scheduler] reconciliation scheduler started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sched.cron.Shutdown()
		},
	})
}
