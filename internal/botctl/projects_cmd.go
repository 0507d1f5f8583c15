package botctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/ol-bot-console/internal/dashboard"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage chat projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		projects, err := client.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if handled, err := writeOutput(cmd, projects); handled {
			return err
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No projects.")
			return nil
		}
		tw := newTable(cmd)
		fmt.Fprintf(tw, "ID\tTITLE\tDESCRIPTION\tUPDATED\n")
		for _, p := range projects {
			desc := p.Description
			if desc == "" {
				desc = "-"
			}
			fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", p.ProjectID, p.Emoji, p.Title, truncate(desc, 50), p.UpdatedAt)
		}
		flushTable(tw)
		return nil
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <title...>",
	Short: "Create a chat project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		emoji, _ := cmd.Flags().GetString("emoji")
		desc, _ := cmd.Flags().GetString("description")
		project, err := client.CreateProject(cmd.Context(), strings.Join(args, " "), emoji, desc)
		if err != nil {
			return err
		}
		if handled, err := writeOutput(cmd, project); handled {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %s created.\n", project.ProjectID)
		return nil
	},
}

var projectsUpdateCmd = &cobra.Command{
	Use:   "update <project-id>",
	Short: "Change a project's title, emoji or description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var update dashboard.ProjectUpdate
		for name, target := range map[string]**string{
			"title":       &update.Title,
			"emoji":       &update.Emoji,
			"description": &update.Description,
		} {
			if cmd.Flags().Changed(name) {
				v, _ := cmd.Flags().GetString(name)
				*target = &v
			}
		}
		if update.Title == nil && update.Emoji == nil && update.Description == nil {
			return fmt.Errorf("nothing to update: pass --title, --emoji or --description")
		}
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.UpdateProject(cmd.Context(), args[0], update); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %s updated.\n", args[0])
		return nil
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a chat project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirm(cmd, "project "+args[0])
		if err != nil || !ok {
			return err
		}
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.DeleteProject(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %s deleted.\n", args[0])
		return nil
	},
}

var projectsAddSessionCmd = &cobra.Command{
	Use:   "add-session <project-id> <session-id>",
	Short: "Move a session into a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.AddSessionToProject(cmd.Context(), args[1], args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s added to project %s.\n", args[1], args[0])
		return nil
	},
}

var projectsRemoveSessionCmd = &cobra.Command{
	Use:   "remove-session <session-id>",
	Short: "Detach a session from its project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		if err := client.RemoveSessionFromProject(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s removed from its project.\n", args[0])
		return nil
	},
}

var projectsSessionsCmd = &cobra.Command{
	Use:   "sessions <project-id>",
	Short: "List the sessions in a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := mustClient()
		if err != nil {
			return err
		}
		sessions, err := client.ProjectSessions(cmd.Context(), args[0])
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
		fmt.Fprintf(tw, "ID\tNAME\tUPDATED\n")
		for _, s := range sessions {
			name := s.DisplayName
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.SessionID, name, s.UpdatedAt)
		}
		flushTable(tw)
		return nil
	},
}

func init() {
	projectsCreateCmd.Flags().String("emoji", "", "Project emoji (default "+dashboard.DefaultProjectEmoji+")")
	projectsCreateCmd.Flags().String("description", "", "Project description")
	projectsUpdateCmd.Flags().String("title", "", "New title")
	projectsUpdateCmd.Flags().String("emoji", "", "New emoji")
	projectsUpdateCmd.Flags().String("description", "", "New description")
	projectsDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd, projectsUpdateCmd, projectsDeleteCmd,
		projectsAddSessionCmd, projectsRemoveSessionCmd, projectsSessionsCmd)
}
