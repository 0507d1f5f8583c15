package botctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-bot-console/internal/dashboard"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage model providers and their sources",
}

var (
	providerType   string
	providerSearch string
)

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provider sources and configured providers of one type",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		cfg, err := client.ProviderTemplate(cmd.Context())
		if err != nil {
			return err
		}
		kind := dashboard.ResolveProviderType(providerType)
		sources := dashboard.SourcesForType(cfg.ProviderSources, kind)
		var providers []dashboard.Provider
		for _, p := range cfg.Providers {
			if dashboard.ProviderTypeOf(p) == kind || sourceIn(sources, p.ProviderSourceID) {
				providers = append(providers, p)
			}
		}
		if handled, err := writeOutput(cmd, map[string]any{"type": kind, "sources": sources, "providers": providers}); handled {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Type: %s\n\n", kind)
		tw := newTable(cmd)
		fmt.Fprintf(tw, "SOURCE\tPROVIDER\tAPI BASE\tENABLED\n")
		for _, s := range sources {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Provider, s.APIBase, boolMark(s.Enable))
		}
		flushTable(tw)
		fmt.Fprintln(cmd.OutOrStdout())
		tw = newTable(cmd)
		fmt.Fprintf(tw, "PROVIDER\tSOURCE\tMODEL\tENABLED\n")
		for _, p := range providers {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.ProviderSourceID, p.Model, boolMark(p.Enable))
		}
		flushTable(tw)
		return nil
	},
}

func sourceIn(sources []dashboard.ProviderSource, id string) bool {
	for _, s := range sources {
		if s.ID == id {
			return true
		}
	}
	return false
}

var providersModelsCmd = &cobra.Command{
	Use:   "models <source-id>",
	Short: "List configured and available models of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		cfg, err := client.ProviderTemplate(cmd.Context())
		if err != nil {
			return err
		}
		available, err := client.SourceModels(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		entries := dashboard.SearchModelEntries(dashboard.MergeModelEntries(args[0], cfg.Providers, available), providerSearch)
		if handled, err := writeOutput(cmd, entries); handled {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No models found.")
			return nil
		}
		tw := newTable(cmd)
		fmt.Fprintf(tw, "MODEL\tSTATE\tCONTEXT\tCAPABILITIES\n")
		for _, e := range entries {
			state := "available"
			if e.Configured {
				state = "configured"
			}
			ctxLimit, caps := "-", "-"
			if e.Metadata != nil {
				if s := dashboard.FormatContextLimit(e.Metadata.Limit.Context); s != "" {
					ctxLimit = s
				}
				caps = capabilities(e.Metadata)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name(), state, ctxLimit, caps)
		}
		flushTable(tw)
		return nil
	},
}

func capabilities(m *dashboard.ModelMetadata) string {
	var caps []string
	for _, in := range m.Modalities.Input {
		if in == "image" {
			caps = append(caps, "vision")
			break
		}
	}
	if m.ToolCall {
		caps = append(caps, "tools")
	}
	if m.Reasoning {
		caps = append(caps, "reasoning")
	}
	if len(caps) == 0 {
		return "-"
	}
	return strings.Join(caps, ",")
}

var providersAddCmd = &cobra.Command{
	Use:   "add <source-id> <model>",
	Short: "Configure a model of a source as a provider (created disabled)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		available, err := client.SourceModels(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		var meta *dashboard.ModelMetadata
		if m, ok := available.Metadata[args[1]]; ok {
			meta = &m
		}
		p, err := client.NewProvider(cmd.Context(), args[0], args[1], meta)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Provider %s added.\n", p.ID)
		return nil
	},
}

var providersCheckCmd = &cobra.Command{
	Use:   "check <provider-id>",
	Short: "Probe a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.CheckProvider(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("provider %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Provider %s is reachable.\n", args[0])
		return nil
	},
}

var providersDeleteCmd = &cobra.Command{
	Use:   "delete <provider-id>",
	Short: "Delete a provider, or a whole source with --source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		whole, _ := cmd.Flags().GetBool("source")
		what := "provider " + args[0]
		if whole {
			what = "provider source " + args[0]
		}
		ok, err := confirm(cmd, what)
		if err != nil || !ok {
			return err
		}
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if whole {
			err = client.DeleteProviderSource(cmd.Context(), args[0])
		} else {
			err = client.DeleteProvider(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", what)
		return nil
	},
}

func init() {
	providersListCmd.Flags().StringVar(&providerType, "type", dashboard.ProviderChatCompletion, "chat_completion|agent_runner|speech_to_text|text_to_speech|embedding|rerank")
	providersModelsCmd.Flags().StringVar(&providerSearch, "search", "", "Filter by provider id or model")
	providersDeleteCmd.Flags().Bool("source", false, "Delete a provider source instead")
	providersDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	providersCmd.AddCommand(providersListCmd, providersModelsCmd, providersAddCmd, providersCheckCmd, providersDeleteCmd)
}
