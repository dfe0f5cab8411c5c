// Package queue runs the expiry sweep as an asynq task so one scheduler can
// drive it for a fleet of workers.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// SweepExpiredTask marks overdue Active links as Expired.
	SweepExpiredTask = "qrsuite:sweep-expired"

	sweepTimeout = 10 * time.Minute
	sweepUnique  = time.Hour
)

// RedisOpt builds the asynq connection options.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}
}

// NewSweepTask returns a sweep task. Sweeps carry no payload.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(SweepExpiredTask, nil,
		asynq.MaxRetry(3),
		asynq.Timeout(sweepTimeout),
		asynq.Unique(sweepUnique),
	)
}

// EnqueueSweep asks the worker fleet to run one sweep now.
func EnqueueSweep(ctx context.Context, client *asynq.Client) (string, error) {
	info, err := client.EnqueueContext(ctx, NewSweepTask())
	if err != nil {
		return "", fmt.Errorf("enqueue sweep task: %w", err)
	}
	return info.ID, nil
}

// RegisterSweep schedules the sweep task at spec on s.
func RegisterSweep(s *asynq.Scheduler, spec string) (string, error) {
	id, err := s.Register(spec, NewSweepTask())
	if err != nil {
		return "", fmt.Errorf("register sweep %q: %w", spec, err)
	}
	return id, nil
}
