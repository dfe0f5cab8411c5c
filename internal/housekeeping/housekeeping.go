// Package housekeeping runs the expiry sweep on a cron schedule inside the
// serving process.
package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper marks overdue links as expired.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
	log  logrus.FieldLogger
}

// Start schedules svc.SweepExpired at spec (standard 5-field cron or a
// descriptor such as "@daily") and starts the runner. Overlapping runs are
// skipped.
func Start(spec string, svc Sweeper, log logrus.FieldLogger) (*Scheduler, error) {
	cl := cronLogger{log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, err := c.AddFunc(spec, func() {
		n, err := svc.SweepExpired(context.Background())
		if err != nil {
			log.WithError(err).Error("expiry sweep failed")
			return
		}
		log.WithField("expired", n).Debug("expiry sweep done")
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	c.Start()
	log.WithField("schedule", spec).Info("expiry sweep scheduled")
	return &Scheduler{cron: c, log: log}, nil
}

// Stop halts scheduling and waits for a running sweep, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("expiry sweep still running at shutdown")
	}
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
