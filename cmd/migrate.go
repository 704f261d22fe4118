package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/drivescore/internal/adapters/repository/migrate"
	"github.com/okian/drivescore/pkg/logger"
)

var errNoDatabaseURL = errors.New("database_url is not configured")

func newMigrateCmd() *cobra.Command {
	var dbURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "database url (overrides config database_url)")

	// resolve falls back to the configured url when the flag is unset.
	resolve := func(cmd *cobra.Command) (string, error) {
		cfg, _, err := bootstrap(cmd.Context())
		if err != nil {
			return "", err
		}
		url := dbURL
		if url == "" {
			url = cfg.DatabaseURL
		}
		if url == "" {
			return "", errNoDatabaseURL
		}
		return url, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := resolve(cmd)
				if err != nil {
					return err
				}
				if err := migrate.Up(url); err != nil {
					return err
				}
				logger.Get().Info(cmd.Context(), "schema is up to date")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every applied migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := resolve(cmd)
				if err != nil {
					return err
				}
				if err := migrate.Down(url); err != nil {
					return err
				}
				logger.Get().Info(cmd.Context(), "schema rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := resolve(cmd)
				if err != nil {
					return err
				}
				v, dirty, err := migrate.Version(url)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
				return err
			},
		},
	)
	return cmd
}
