package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid config")

// Duration parses a Go duration field; empty means zero.
// path is the dotted config key used in error messages.
func Duration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: invalid duration %q: %v", ErrInvalid, path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s: duration must be >= 0", ErrInvalid, path)
	}
	return d, nil
}

// DurationOr is Duration with a fallback for empty/zero values.
func DurationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := Duration(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate checks everything that can be checked without touching the network.
// The poll schedule is validated by the monitor package (see Manager.SetValidator).
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	for path, raw := range map[string]string{
		"telegram.poll_timeout": cfg.Telegram.PollTimeout,
		"sheet.fetch_timeout":   cfg.Sheet.FetchTimeout,
		"store.busy_timeout":    cfg.Store.BusyTimeout,
		"alerts.send_timeout":   cfg.Alerts.SendTimeout,
	} {
		if _, err := Duration(path, raw); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Sheet.Driver)) {
	case "", "sheets":
		if strings.TrimSpace(cfg.Sheet.URL) == "" {
			return fmt.Errorf("%w: sheet.url is required for the sheets driver (or set %s)", ErrInvalid, EnvSheetURL)
		}
	case "csv":
		if strings.TrimSpace(cfg.Sheet.CSVURL) == "" && strings.TrimSpace(cfg.Sheet.URL) == "" {
			return fmt.Errorf("%w: sheet.csv_url or sheet.url is required for the csv driver (or set %s)", ErrInvalid, EnvCSVURL)
		}
	default:
		return fmt.Errorf("%w: unknown sheet.driver %q", ErrInvalid, cfg.Sheet.Driver)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, cfg.Store.Driver)
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("%w: store.path is required", ErrInvalid)
	}

	if cfg.Alerts.RatePerSec < 0 || cfg.Alerts.Burst < 0 {
		return fmt.Errorf("%w: alerts.rate_per_sec and alerts.burst must be >= 0", ErrInvalid)
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		return fmt.Errorf("%w: logging.telegram.rate_per_sec must be >= 0", ErrInvalid)
	}
	return nil
}
