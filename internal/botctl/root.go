// Package botctl implements the botctl command line: it tails the bot's live
// log and drives the dashboard API from a terminal.
package botctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-bot-console/internal/credentials"
	"github.com/oremus-labs/ol-bot-console/internal/dashboard"
)

const defaultLiveLogPath = "/api/live-log"

var (
	cfgFile       string
	contextName   string
	overrideURL   string
	overrideToken string
	outputFormat  string

	appConfig *Config
)

// Execute runs the CLI.
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "botctl",
	Short: "Tail and manage a chat bot from the terminal",
	Long: `botctl streams the bot's live log and manages commands, chat sessions,
providers and media through the dashboard API.
Most commands require a configured context (see 'botctl config set-context').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Config commands load/save the file manually.
		if strings.HasPrefix(cmd.CommandPath(), "botctl config") {
			return nil
		}
		var err error
		appConfig, err = LoadConfig(cfgFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath(), "Path to the botctl config file")
	rootCmd.PersistentFlags().StringVar(&contextName, "context", "", "Context name to use (overrides current)")
	rootCmd.PersistentFlags().StringVar(&overrideURL, "server", "", "Override bot server URL")
	rootCmd.PersistentFlags().StringVar(&overrideToken, "token", "", "Override API token")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table|json|yaml")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(mediaCmd)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(configCmd)
}

// resolvedContext merges config state with flag overrides.
func resolvedContext() (*Context, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	name := contextName
	if name == "" {
		name = appConfig.CurrentContext
	}
	ctx, ok := appConfig.Contexts[name]
	if !ok {
		if overrideURL == "" {
			return nil, fmt.Errorf("context %q not found; use 'botctl config set-context'", name)
		}
		ctx = Context{Name: name}
	}
	if overrideURL != "" {
		ctx.Server = overrideURL
	}
	if ctx.LiveLogPath == "" {
		ctx.LiveLogPath = defaultLiveLogPath
	}
	ctx.Server = strings.TrimRight(ctx.Server, "/")
	if ctx.Server == "" {
		return nil, fmt.Errorf("context %q is missing a server URL", name)
	}
	return &ctx, nil
}

// tokenSource resolves the bearer token: --token, then BOT_CONSOLE_TOKEN,
// then the context's credentials file.
func tokenSource(ctx *Context) credentials.Reader {
	chain := credentials.Chain{}
	if overrideToken != "" {
		chain = append(chain, credentials.Static{"token": overrideToken})
	}
	return append(chain,
		credentials.Env{"token": "BOT_CONSOLE_TOKEN"},
		credentials.NewFileStore(ctx.credentialsPath()),
	)
}

func mustClient() (*dashboard.Client, *Context, error) {
	ctx, err := resolvedContext()
	if err != nil {
		return nil, nil, err
	}
	client := dashboard.New(dashboard.Options{
		BaseURL:     ctx.Server,
		Credentials: tokenSource(ctx),
	})
	return client, ctx, nil
}
