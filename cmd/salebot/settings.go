package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"salebot/internal/settings"
	logx "salebot/pkg/logx"
)

func newSettingsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or edit the alert settings offline",
		Long: `Edits go straight to the settings store. Stop the bot first: a running
bot keeps its own copy and would overwrite the change on its next write.`,
	}

	withStore := func(fn func(cmd *cobra.Command, st *settings.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			backend, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer backend.Close()
			return fn(cmd, settings.New(backend, logx.NewConsole("warn")), args)
		}
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print threshold and registered chat",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, st *settings.Store, _ []string) error {
			s := st.Load(cmd.Context())
			chat := "none"
			if s.ChatID != nil {
				chat = strconv.FormatInt(*s.ChatID, 10)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "threshold: %d\nchat_id: %s\n", s.Threshold, chat)
			return nil
		}),
	}

	setThreshold := &cobra.Command{
		Use:   "set-threshold N",
		Short: "Only alert for quantity greater than N",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, st *settings.Store, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("threshold must be an integer: %q", args[0])
			}
			if _, err := st.SetThreshold(cmd.Context(), n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Threshold set to %d. Alerts only for quantity > %d.\n", n, n)
			return nil
		}),
	}

	register := &cobra.Command{
		Use:   "register CHAT_ID",
		Short: "Send alerts to CHAT_ID (use -- before negative group ids)",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, st *settings.Store, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("chat id must be an integer: %q", args[0])
			}
			if _, err := st.SetChat(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alerts will go to chat %d.\n", id)
			return nil
		}),
	}

	cmd.AddCommand(show, setThreshold, register)
	return cmd
}

func newAlertsCmd(g *globalFlags) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recently sent alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			backend, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			recs, err := backend.RecentAlerts(cmd.Context(), last)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tROW\tCHAT\tPRODUCT\tQTY\tCUSTOMER\tERROR")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\t%s\n",
					r.At.Local().Format("2006-01-02 15:04:05"), r.Row, r.ChatID, r.Product, r.Quantity, r.Customer, r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 20, "number of alerts to list")
	return cmd
}
