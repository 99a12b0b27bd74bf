package config

import (
	"reflect"
	"strings"

	logx "salebot/pkg/logx"
)

// SummarizeChange returns the list of changed sections and safe structured
// fields for logging. Secrets (bot token, credentials path) are never logged.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	fields := make([]logx.Field, 0, 12)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
			logx.Bool("telegram.log_chat_set", newCfg.Telegram.LogChat != 0),
		)
	}
	if oldCfg.Sheet != newCfg.Sheet {
		changed = append(changed, "sheet")
		fields = append(fields,
			logx.String("sheet.driver", newCfg.Sheet.Driver),
			logx.String("sheet.poll_schedule", strings.TrimSpace(newCfg.Sheet.PollSchedule)),
			logx.Bool("sheet.source_changed", oldCfg.Sheet.URL != newCfg.Sheet.URL ||
				oldCfg.Sheet.Worksheet != newCfg.Sheet.Worksheet ||
				oldCfg.Sheet.CSVURL != newCfg.Sheet.CSVURL),
		)
	}
	if oldCfg.Store != newCfg.Store {
		changed = append(changed, "store")
		fields = append(fields, logx.String("store.driver", newCfg.Store.Driver), logx.String("store.path", newCfg.Store.Path))
	}
	if oldCfg.Alerts != newCfg.Alerts {
		changed = append(changed, "alerts")
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
	}
	return changed, fields
}

// RequiresRestart reports whether a change touches settings that are only
// read at startup (connections, credentials, store location).
func RequiresRestart(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	o, n := oldCfg.Sheet, newCfg.Sheet
	o.PollSchedule, n.PollSchedule = "", ""
	return oldCfg.Telegram != newCfg.Telegram || o != n || oldCfg.Store != newCfg.Store || oldCfg.Alerts != newCfg.Alerts
}
