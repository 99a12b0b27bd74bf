// salebot watches a Google Sheet of sales and posts new sales to Telegram.
//
// Usage:
//
//	salebot run --config ./config.yaml
//	salebot check --config ./config.yaml --last 5
//	salebot settings show
//	salebot settings set-threshold 10
//	salebot settings register -- -1001234567890
//	salebot alerts --last 20
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"salebot/internal/config"
)

var version = "dev"

type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	var g globalFlags
	root := &cobra.Command{
		Use:   "salebot",
		Short: "Telegram alerts for new rows in a sales sheet",
		Long: `salebot polls a Google Sheet, detects appended sale rows and sends an
alert to the registered Telegram chat when the quantity exceeds the
configured threshold.

Secrets come from the environment (BOT_TOKEN, SHEET_URL, GOOGLE_CREDENTIALS)
or a .env file; everything else from the config file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(g.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "./config.yaml", "config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before reading config")

	runCmd := newRunCmd(&g)
	root.AddCommand(runCmd, newCheckCmd(&g), newSettingsCmd(&g), newAlertsCmd(&g))
	// Bare "salebot" behaves like "salebot run".
	root.RunE = runCmd.RunE

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnvFile loads KEY=VALUE pairs without overriding variables that are
// already set. A missing file is fine.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}

func loadConfig(g *globalFlags) (*config.Manager, *config.Config, error) {
	m := config.NewManager(g.configPath)
	cfg, err := m.Load()
	if err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}
