package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"salebot/internal/alert"
	"salebot/internal/config"
	"salebot/internal/monitor"
	"salebot/internal/rowsource"
	"salebot/internal/storage"
	logx "salebot/pkg/logx"
)

// The helpers below map process config sections onto component configs.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChat != 0,
			ChatID:     cfg.Telegram.LogChat,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	busy, err := config.DurationOr("store.busy_timeout", cfg.Store.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		BusyTimeout: busy,
	}, nil
}

func mapAlerts(cfg *config.Config) (alert.Config, error) {
	to, err := config.DurationOr("alerts.send_timeout", cfg.Alerts.SendTimeout, 15*time.Second)
	if err != nil {
		return alert.Config{}, err
	}
	return alert.Config{
		RatePerSec:  cfg.Alerts.RatePerSec,
		Burst:       cfg.Alerts.Burst,
		SendTimeout: to,
	}, nil
}

func mapSchedule(cfg *config.Config) (monitor.ParsedSchedule, error) {
	p, err := monitor.ParseSchedule(cfg.Sheet.PollSchedule)
	if err != nil {
		return monitor.ParsedSchedule{}, fmt.Errorf("sheet.poll_schedule: %w", err)
	}
	return p, nil
}

// validateReload rejects hot-reloaded configs the running app cannot apply.
func validateReload(cfg *config.Config) error {
	_, err := mapSchedule(cfg)
	return err
}

// NewSource builds the row source selected by sheet.driver.
func NewSource(ctx context.Context, cfg *config.Config, log logx.Logger) (rowsource.Source, error) {
	sc := cfg.Sheet
	switch driver := strings.ToLower(strings.TrimSpace(sc.Driver)); driver {
	case "", "sheets":
		return rowsource.NewSheets(ctx, rowsource.SheetsConfig{
			URL:             sc.URL,
			Worksheet:       sc.Worksheet,
			CredentialsFile: sc.CredentialsFile,
		}, log)
	case "csv":
		u := strings.TrimSpace(sc.CSVURL)
		if u == "" {
			id, err := rowsource.ParseSpreadsheetID(sc.URL)
			if err != nil {
				return nil, fmt.Errorf("sheet.url: %w", err)
			}
			u = rowsource.ExportURL(id, "")
		}
		timeout, err := config.DurationOr("sheet.fetch_timeout", sc.FetchTimeout, 30*time.Second)
		if err != nil {
			return nil, err
		}
		return rowsource.NewCSV(u, &http.Client{Timeout: timeout})
	default:
		return nil, fmt.Errorf("unknown sheet driver: %s", driver)
	}
}
