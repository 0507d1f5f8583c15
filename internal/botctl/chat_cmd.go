package botctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage web chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		sessions, err := client.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if handled, err := writeOutput(cmd, sessions); handled {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
			return nil
		}
		tw := newTable(cmd)
		fmt.Fprintf(tw, "ID\tNAME\tPLATFORM\tCREATOR\tUPDATED\n")
		for _, s := range sessions {
			name := s.DisplayName
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.SessionID, name, s.PlatformID, s.Creator, s.UpdatedAt)
		}
		flushTable(tw)
		return nil
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		id, err := client.NewSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a chat session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirm(cmd, "session "+args[0])
		if err != nil || !ok {
			return err
		}
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s deleted.\n", args[0])
		return nil
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <name...>",
	Short: "Set a session's display name",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		name := strings.Join(args[1:], " ")
		if err := client.RenameSession(cmd.Context(), args[0], name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s renamed.\n", args[0])
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		convs, err := client.ListConversations(cmd.Context())
		if err != nil {
			return err
		}
		if handled, err := writeOutput(cmd, convs); handled {
			return err
		}
		if len(convs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
			return nil
		}
		tw := newTable(cmd)
		fmt.Fprintf(tw, "ID\tTITLE\tUPDATED\n")
		for _, c := range convs {
			title := c.Title
			if title == "" {
				title = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.CID, truncate(title, 50), formatTimestamp(unixTime(float64(c.UpdatedAt))))
		}
		flushTable(tw)
		return nil
	},
}

var conversationsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		id, err := client.NewConversation(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirm(cmd, "conversation "+args[0])
		if err != nil || !ok {
			return err
		}
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.DeleteConversation(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s deleted.\n", args[0])
		return nil
	},
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <conversation-id> <title...>",
	Short: "Set a conversation's title",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.RenameConversation(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s renamed.\n", args[0])
		return nil
	},
}

func init() {
	sessionsDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	conversationsDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsNewCmd, sessionsDeleteCmd, sessionsRenameCmd)
	conversationsCmd.AddCommand(conversationsListCmd, conversationsNewCmd, conversationsDeleteCmd, conversationsRenameCmd)
}
