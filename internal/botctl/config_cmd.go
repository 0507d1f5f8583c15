package botctl

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-bot-console/internal/credentials"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
}

var configSetContextCmd = &cobra.Command{
	Use:   "set-context <name>",
	Short: "Create or update a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		server, _ := cmd.Flags().GetString("server")
		liveLogPath, _ := cmd.Flags().GetString("live-log-path")
		credsFile, _ := cmd.Flags().GetString("credentials")
		makeCurrent, _ := cmd.Flags().GetBool("current")

		if server == "" {
			return fmt.Errorf("--server is required")
		}
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		setContext(cfg, Context{
			Name:        name,
			Server:      strings.TrimRight(server, "/"),
			LiveLogPath: liveLogPath,
			Credentials: credsFile,
		}, makeCurrent)
		if err := SaveConfig(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Context %q updated.\n", name)
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Switch the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := ensureContextExists(cfg, args[0]); err != nil {
			return err
		}
		cfg.CurrentContext = args[0]
		if err := SaveConfig(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q.\n", args[0])
		return nil
	},
}

var configCurrentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Print the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No context configured.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if handled, err := writeOutput(cmd, cfg); handled {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", cfgFile)
		names := make([]string, 0, len(cfg.Contexts))
		for name := range cfg.Contexts {
			names = append(names, name)
		}
		sort.Strings(names)
		tw := newTable(cmd)
		fmt.Fprintf(tw, "CURRENT\tNAME\tSERVER\tCREDENTIALS\n")
		for _, name := range names {
			ctx := cfg.Contexts[name]
			current := ""
			if cfg.CurrentContext == name {
				current = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", current, name, ctx.Server, ctx.credentialsPath())
		}
		flushTable(tw)
		return nil
	},
}

var configSetTokenCmd = &cobra.Command{
	Use:   "set-token [token]",
	Short: "Store the API token for a context (reads stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		name := contextName
		if name == "" {
			name = cfg.CurrentContext
		}
		if err := ensureContextExists(cfg, name); err != nil {
			return err
		}

		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read token: %w", err)
			}
			token = line
		}
		token = strings.TrimSpace(token)

		store := credentials.NewFileStore(cfg.Contexts[name].credentialsPath())
		if err := store.Set(cmd.Context(), "token", token); err != nil {
			return err
		}
		if token == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Token for %q cleared.\n", name)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token for %q saved to %s.\n", name, store.Path())
		return nil
	},
}

func init() {
	configSetContextCmd.Flags().String("server", "", "Bot server URL")
	configSetContextCmd.Flags().String("live-log-path", defaultLiveLogPath, "Live log endpoint path")
	configSetContextCmd.Flags().String("credentials", "", "Credentials file (defaults to one per context)")
	configSetContextCmd.Flags().Bool("current", true, "Set as current context")
	configCmd.AddCommand(configSetContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configCurrentContextCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetTokenCmd)
}
