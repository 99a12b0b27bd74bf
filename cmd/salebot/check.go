package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"salebot/internal/app"
	"salebot/internal/config"
	"salebot/internal/monitor"
	"salebot/internal/settings"
	"salebot/internal/storage"
	logx "salebot/pkg/logx"
)

func newCheckCmd(g *globalFlags) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch the sheet once and show how the last rows would be handled",
		Long: `check reads the sheet with the configured driver, prints the row count
and classifies the last rows against the stored settings. Nothing is sent
and the settings are not modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			log := logx.NewConsole(cfg.Logging.Level)
			src, err := app.NewSource(ctx, cfg, log)
			if err != nil {
				return err
			}
			rows, err := src.FetchAll(ctx)
			if err != nil {
				return fmt.Errorf("fetch: %w", err)
			}

			st, err := peekSettings(ctx, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rows: %d\n", len(rows))
			fmt.Fprintf(out, "threshold: %d, registered: %t\n", st.Threshold, settings.Registered(st))
			start := max(len(rows)-last, 0)
			for i := start; i < len(rows); i++ {
				res := monitor.Classify(rows[i], st)
				fmt.Fprintf(out, "row %d: %-15s %q\n", i+1, res.Outcome, []string(rows[i]))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 5, "number of trailing rows to classify")
	return cmd
}

// peekSettings reads the stored settings without creating them.
func peekSettings(ctx context.Context, cfg *config.Config) (settings.Settings, error) {
	backend, err := openStore(cfg)
	if err != nil {
		return settings.Settings{}, err
	}
	defer backend.Close()
	st, err := backend.LoadSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return settings.Defaults(), nil
	}
	return st, err
}

func openStore(cfg *config.Config) (storage.Store, error) {
	busy, err := config.DurationOr("store.busy_timeout", cfg.Store.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{Driver: cfg.Store.Driver, Path: cfg.Store.Path, BusyTimeout: busy}, logx.Nop())
}
