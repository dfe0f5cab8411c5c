package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/BBbrighton/qr-suite/internal/housekeeping"
	"github.com/BBbrighton/qr-suite/internal/queue"
)

func newServeCmd() *cobra.Command {
	var noSweep bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP front door and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := boot(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !noSweep {
				sched, err := housekeeping.Start(a.Cfg.Sweep.Schedule, a.Service, a.Log)
				if err != nil {
					return err
				}
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					sched.Stop(stopCtx)
				}()
			}
			return a.Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "Do not run the in-process expiry sweep (use when a worker schedules it)")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued expiry sweeps and schedule them on Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := boot(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			schedule := a.Cfg.Sweep.Schedule
			if noSchedule {
				schedule = ""
			}
			opt := queue.RedisOpt(a.Cfg.Redis.Addr, a.Cfg.Redis.Password, a.Cfg.Redis.DB)
			return queue.Run(ctx, opt, queue.NewProcessor(a.Service, a.Log), schedule, a.Log)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Only process tasks; another worker owns the schedule")
	return cmd
}
