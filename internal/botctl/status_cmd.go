package botctl

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-bot-console/internal/dashboard"
)

// StatusReport is printed by the status command.
type StatusReport struct {
	Context   string    `json:"context"`
	Server    string    `json:"server"`
	StartedAt time.Time `json:"startedAt"`
	Uptime    string    `json:"uptime"`
	Commands  int       `json:"commands"`
	Disabled  int       `json:"disabledCommands"`
	Conflicts int       `json:"conflicts"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot uptime and command summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, err := mustClient()
		if err != nil {
			return err
		}
		start, err := client.StartTime(cmd.Context())
		if err != nil {
			return err
		}
		report := StatusReport{Context: ctx.Name, Server: ctx.Server, StartedAt: unixTime(start)}
		if !report.StartedAt.IsZero() {
			report.Uptime = humanDuration(time.Since(report.StartedAt).Truncate(time.Second))
		}
		// The command summary is informative only; older servers lack it.
		if list, err := client.ListCommands(cmd.Context()); err == nil {
			report.Commands = len(list.Items)
			report.Disabled = list.Summary.Disabled
			report.Conflicts = list.Summary.Conflicts
		}
		if handled, err := writeOutput(cmd, report); handled {
			return err
		}

		tw := newTable(cmd)
		fmt.Fprintf(tw, "Field\tValue\n")
		fmt.Fprintf(tw, "Context\t%s\n", report.Context)
		fmt.Fprintf(tw, "Server\t%s\n", report.Server)
		fmt.Fprintf(tw, "Started\t%s\n", formatTimestamp(report.StartedAt))
		fmt.Fprintf(tw, "Uptime\t%s\n", report.Uptime)
		fmt.Fprintf(tw, "Commands\t%d (%d disabled, %d conflicts)\n", report.Commands, report.Disabled, report.Conflicts)
		flushTable(tw)
		return nil
	},
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Browse the plugin market",
}

var pluginsMarketCmd = &cobra.Command{
	Use:   "market [search]",
	Short: "List plugins from the market",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("refresh")
		registry, _ := cmd.Flags().GetString("registry")
		plugins, err := client.PluginMarket(cmd.Context(), force, registry)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			term := strings.ToLower(args[0])
			var kept []dashboard.Plugin
			for _, p := range plugins {
				if strings.Contains(strings.ToLower(p.Name+" "+p.DisplayName+" "+p.Desc), term) {
					kept = append(kept, p)
				}
			}
			plugins = kept
		}
		if handled, err := writeOutput(cmd, plugins); handled {
			return err
		}
		tw := newTable(cmd)
		fmt.Fprintf(tw, "NAME\tVERSION\tAUTHOR\tSTARS\tDESCRIPTION\n")
		for _, p := range plugins {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.Name, p.Version, p.Author, p.Stars, truncate(p.Desc, 60))
		}
		flushTable(tw)
		return nil
	},
}

func init() {
	pluginsMarketCmd.Flags().Bool("refresh", false, "Ask the server to refresh its market cache")
	pluginsMarketCmd.Flags().String("registry", "", "Custom registry URL")
	pluginsCmd.AddCommand(pluginsMarketCmd)
}
