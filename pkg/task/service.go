package task

import (
	"context"
	"fmt"

	"smallbiznis-gamification/pkg/logger"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("smallbiznis-gamification/pkg/task")

// Enqueuer is the producer side of the task queue. Services depend on it
// rather than on *asynq.Client so tests can substitute a fake.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type asynqEnqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &asynqEnqueuer{client: client}
}

// Enqueue wraps asynq errors, so errors.Is(err, asynq.ErrTaskIDConflict)
// still holds for a task that is already pending.
func (e *asynqEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	ctx, span := tracer.Start(ctx, "task.Enqueue")
	defer span.End()
	span.SetAttributes(attribute.String("task_type", task.Type()))

	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}

	logger.FromContext(ctx).Debug("task enqueued",
		zap.String("task_type", info.Type),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return info, nil
}
