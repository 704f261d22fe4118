// Command drive-sim streams synthetic drives into a drivescore service and
// checks the evaluations it returns.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/okian/drivescore/internal/drivesim"
	"github.com/okian/drivescore/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	cfg := drivesim.NewConfig()
	var (
		runTimeout time.Duration
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:          "drive-sim",
		Short:        "Simulate drivers against a drivescore service",
		SilenceUsage: true,
		Example: `  drive-sim --drivers 50 --samples 240
  drive-sim --url http://localhost:8080 --batch-size 50 --output results.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(); err != nil {
				return err
			}
			if cfg.Verbose {
				logLevel = "debug"
			}
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()
			return drivesim.Run(ctx, cfg)
		},
	}

	bindFlags(cmd.Flags(), cfg)
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "overall run deadline")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

// bindFlags exposes every simulation knob as a flag.
func bindFlags(f *pflag.FlagSet, cfg *drivesim.Config) {
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVar(&cfg.Drivers, "drivers", cfg.Drivers, "number of synthetic drivers")
	f.IntVar(&cfg.Samples, "samples", cfg.Samples, "samples per session")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "samples per batch request")
	f.DurationVar(&cfg.SampleInterval, "interval", cfg.SampleInterval, "spacing of sample timestamps")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "drivers running concurrently")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "seed for the sample generator")
	f.StringVar(&cfg.OutputFile, "output", "", "write per-driver results to this JSON file")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log every driver")
}
