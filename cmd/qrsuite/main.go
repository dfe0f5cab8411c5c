package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BBbrighton/qr-suite/internal/app"
	"github.com/BBbrighton/qr-suite/internal/config"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "qrsuite: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "qrsuite",
		Short:        "QR link minting and resolution service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $QRSUITE_CONFIG)")
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newSweepCmd(),
		newRevokeCmd(),
		newMintCmd(),
		newTokenCmd(),
	)
	return cmd
}

// boot loads config and builds the application.
func boot(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("boot: %w", err)
	}
	return a, nil
}
