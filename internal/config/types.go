package config

// Config is the process configuration. It is distinct from the bot settings
// (threshold + registered chat) which are mutated at runtime by chat commands
// and live in the settings store.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Sheet    SheetConfig    `json:"sheet"`
	Store    StoreConfig    `json:"store"`
	Alerts   AlertsConfig   `json:"alerts"`
	Logging  LoggingConfig  `json:"logging"`
	Systemd  SystemdConfig  `json:"systemd"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is the long-poll timeout for getUpdates.
	PollTimeout string `json:"poll_timeout,omitempty"`
	// LogChat is an optional ops chat id that receives warn+ logs
	// when logging.telegram.enabled is set.
	LogChat int64 `json:"log_chat,omitempty"`
}

// SheetConfig selects and addresses the row source.
//
// Driver values:
//   - "sheets": Google Sheets API (url + optional worksheet + credentials_file)
//   - "csv": published CSV export (csv_url), no credentials
//
// Example:
//
//	"sheet": { "driver": "sheets", "url": "https://docs.google.com/spreadsheets/d/<id>/edit", "poll_schedule": "10s" }
type SheetConfig struct {
	Driver          string `json:"driver,omitempty"`
	URL             string `json:"url,omitempty"`
	Worksheet       string `json:"worksheet,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	CSVURL          string `json:"csv_url,omitempty"`

	// PollSchedule accepts a duration ("10s"), HH:MM ("00:01") or a cron
	// expression ("@every 30s", "*/2 * * * *"). Default "10s".
	PollSchedule string `json:"poll_schedule,omitempty"`
	FetchTimeout string `json:"fetch_timeout,omitempty"`
}

// StoreConfig controls where settings and the alert log are persisted.
//
// Example:
//
//	"store": { "driver": "file", "path": "./data/settings.json" }
type StoreConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type AlertsConfig struct {
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	Burst       int     `json:"burst,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SystemdConfig toggles sd_notify readiness and watchdog pings.
// Both are no-ops when the process is not started by systemd.
type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Sheet:    SheetConfig{Driver: "sheets", PollSchedule: "10s", FetchTimeout: "30s"},
		Store:    StoreConfig{Driver: "file", Path: "./config.json"},
		Alerts:   AlertsConfig{RatePerSec: 1, Burst: 3, SendTimeout: "15s"},
		Logging:  LoggingConfig{Level: "info", Console: true},
		Systemd:  SystemdConfig{Notify: true},
	}
}
