package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/drivescore/pkg/logger"
)

func newReevaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reevaluate SESSION_ID...",
		Short: "Score ended sessions again from their stored telemetry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc, err := newService(cfg, store, log)
			if err != nil {
				return err
			}

			var errs []error
			for _, id := range args {
				ev, err := svc.Reevaluate(ctx, id)
				if err != nil {
					log.Error(ctx, "reevaluation failed", logger.String("sessionID", id), logger.Error(err))
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", id, ev.Score, ev.Grade)
			}
			return errors.Join(errs...)
		},
	}
}
