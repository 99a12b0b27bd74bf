package config

import (
	"strconv"
	"strings"
)

// Environment variables recognized on top of the config file.
// They win over file values so secrets can stay out of the file.
const (
	EnvBotToken    = "BOT_TOKEN"
	EnvSheetURL    = "SHEET_URL"
	EnvWorksheet   = "SHEET_WORKSHEET"
	EnvCredentials = "GOOGLE_CREDENTIALS"
	EnvCSVURL      = "SHEET_CSV_URL"
	EnvStorePath   = "SALEBOT_STORE_PATH"
	EnvStoreDriver = "SALEBOT_STORE_DRIVER"
	EnvLogLevel    = "SALEBOT_LOG_LEVEL"
	EnvLogChat     = "SALEBOT_LOG_CHAT"
)

// ApplyEnv overlays non-empty environment values onto cfg.
// getenv is os.Getenv in production and a map lookup in tests.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, EnvBotToken)
	set(&cfg.Sheet.URL, EnvSheetURL)
	set(&cfg.Sheet.Worksheet, EnvWorksheet)
	set(&cfg.Sheet.CredentialsFile, EnvCredentials)
	set(&cfg.Sheet.CSVURL, EnvCSVURL)
	set(&cfg.Store.Path, EnvStorePath)
	set(&cfg.Store.Driver, EnvStoreDriver)
	set(&cfg.Logging.Level, EnvLogLevel)

	if v := strings.TrimSpace(getenv(EnvLogChat)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.LogChat = id
		}
	}

	// Only a CSV url configured: pick the csv driver instead of failing on
	// the missing spreadsheet url.
	if strings.TrimSpace(cfg.Sheet.URL) == "" && strings.TrimSpace(cfg.Sheet.CSVURL) != "" &&
		strings.EqualFold(strings.TrimSpace(cfg.Sheet.Driver), "sheets") {
		cfg.Sheet.Driver = "csv"
	}
}
