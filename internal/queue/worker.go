package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Sweeper marks overdue links as expired.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	svc Sweeper
	log logrus.FieldLogger
}

// NewProcessor constructs a worker processor.
func NewProcessor(svc Sweeper, log logrus.FieldLogger) *Processor {
	return &Processor{svc: svc, log: log}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(SweepExpiredTask, p.handleSweep)
	return mux
}

func (p *Processor) handleSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := p.svc.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired links: %w", err)
	}
	p.log.WithField("expired", n).Info("expiry sweep task done")
	return nil
}

// Run starts a worker and, when schedule is non-empty, the periodic
// scheduler. It blocks until ctx is cancelled.
func Run(ctx context.Context, opt asynq.RedisClientOpt, p *Processor, schedule string, log *logrus.Logger) error {
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Logger:      log,
	})
	if err := srv.Start(p.Handler()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer srv.Shutdown()

	if schedule != "" {
		sched := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
			Logger:   log,
			Location: time.UTC,
		})
		if _, err := RegisterSweep(sched, schedule); err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Shutdown()
	}

	log.WithField("schedule", schedule).Info("worker running")
	<-ctx.Done()
	log.Info("worker shutting down")
	return nil
}
