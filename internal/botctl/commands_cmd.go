package botctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-bot-console/internal/dashboard"
)

var commandsCmd = &cobra.Command{
	Use:     "commands",
	Aliases: []string{"cmd"},
	Short:   "Inspect and manage bot commands",
}

var (
	cmdFilter   dashboard.CommandFilter
	cmdExpand   []string
	cmdAliases  []string
	cmdDisabled bool
)

var commandsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List commands (conflicts first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		list, err := client.ListCommands(cmd.Context())
		if err != nil {
			return err
		}
		expanded := map[string]bool{}
		for _, name := range cmdExpand {
			expanded[name] = true
		}
		rows := dashboard.FilterCommands(list.Items, cmdFilter, expanded)
		if handled, err := writeOutput(cmd, rows); handled {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No commands match.")
			return nil
		}
		tw := newTable(cmd)
		fmt.Fprintf(tw, "COMMAND\tTYPE\tPLUGIN\tPERMISSION\tENABLED\tCONFLICT\tHANDLER\n")
		for _, c := range rows {
			name := c.EffectiveCommand
			if c.Type == dashboard.CommandTypeSubCommand {
				name = "  " + name
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", name, c.Type, c.Plugin, c.Permission, boolMark(c.Enabled), boolMark(c.HasConflict), c.HandlerFullName)
		}
		flushTable(tw)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d disabled, %d conflicts\n", list.Summary.Disabled, list.Summary.Conflicts)
		return nil
	},
}

var commandsPluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List plugins that register commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		list, err := client.ListCommands(cmd.Context())
		if err != nil {
			return err
		}
		plugins := dashboard.AvailablePlugins(list.Items, cmdFilter.ShowSystem)
		if handled, err := writeOutput(cmd, plugins); handled {
			return err
		}
		for _, p := range plugins {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var commandsToggleCmd = &cobra.Command{
	Use:   "toggle <handler>",
	Short: "Enable a command, or disable it with --disable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.ToggleCommand(cmd.Context(), args[0], !cmdDisabled); err != nil {
			return err
		}
		state := "enabled"
		if cmdDisabled {
			state = "disabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Command %s %s.\n", args[0], state)
		return nil
	},
}

var commandsRenameCmd = &cobra.Command{
	Use:   "rename <handler> <new-name>",
	Short: "Rename a command and replace its aliases",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(args[1]) == "" {
			return fmt.Errorf("new name must not be empty")
		}
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.RenameCommand(cmd.Context(), args[0], args[1], cmdAliases); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Command %s renamed to %q.\n", args[0], strings.TrimSpace(args[1]))
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect LLM function tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered function tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		tools, err := client.ListTools(cmd.Context())
		if err != nil {
			return err
		}
		if handled, err := writeOutput(cmd, tools); handled {
			return err
		}
		tw := newTable(cmd)
		fmt.Fprintf(tw, "NAME\tACTIVE\tORIGIN\tPARAMS\tDESCRIPTION\n")
		for _, t := range tools {
			params := 0
			if t.Parameters != nil {
				params = len(t.Parameters.Properties)
			}
			origin := t.Origin
			if t.OriginName != "" {
				origin += "/" + t.OriginName
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", t.Name, boolMark(t.Active), origin, params, truncate(t.Description, 60))
		}
		flushTable(tw)
		return nil
	},
}

func init() {
	f := commandsListCmd.Flags()
	f.StringVar(&cmdFilter.Search, "search", "", "Match command, description or plugin")
	f.StringVar(&cmdFilter.Plugin, "plugin", "all", "Only this plugin")
	f.StringVar(&cmdFilter.Permission, "permission", "all", "admin|everyone|member")
	f.StringVar(&cmdFilter.Status, "status", "all", "enabled|disabled|conflict")
	f.StringVar(&cmdFilter.Type, "type", "all", "command|group|sub_command")
	f.StringSliceVar(&cmdExpand, "expand", nil, "Show sub-commands of these group handlers")
	commandsCmd.PersistentFlags().BoolVar(&cmdFilter.ShowSystem, "system", false, "Include reserved system commands")

	commandsToggleCmd.Flags().BoolVar(&cmdDisabled, "disable", false, "Disable instead of enable")
	commandsRenameCmd.Flags().StringSliceVar(&cmdAliases, "alias", nil, "Alias (repeatable; replaces existing aliases)")

	commandsCmd.AddCommand(commandsListCmd, commandsPluginsCmd, commandsToggleCmd, commandsRenameCmd)
	toolsCmd.AddCommand(toolsListCmd)
}
