package dashboard

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Command types.
const (
	CommandTypeCommand    = "command"
	CommandTypeGroup      = "group"
	CommandTypeSubCommand = "sub_command"
)

// Command is one registered bot command, possibly a group with children.
type Command struct {
	HandlerFullName    string    `json:"handler_full_name"`
	HandlerName        string    `json:"handler_name"`
	Plugin             string    `json:"plugin"`
	PluginDisplayName  string    `json:"plugin_display_name,omitempty"`
	ModulePath         string    `json:"module_path"`
	Description        string    `json:"description"`
	Type               string    `json:"type"`
	ParentSignature    string    `json:"parent_signature"`
	ParentGroupHandler string    `json:"parent_group_handler"`
	OriginalCommand    string    `json:"original_command"`
	CurrentFragment    string    `json:"current_fragment"`
	EffectiveCommand   string    `json:"effective_command"`
	Aliases            []string  `json:"aliases"`
	Permission         string    `json:"permission"`
	Enabled            bool      `json:"enabled"`
	IsGroup            bool      `json:"is_group"`
	HasConflict        bool      `json:"has_conflict"`
	Reserved           bool      `json:"reserved"`
	SubCommands        []Command `json:"sub_commands"`
}

// CommandSummary counts disabled and conflicting commands.
type CommandSummary struct {
	Disabled  int `json:"disabled"`
	Conflicts int `json:"conflicts"`
}

// CommandList is the payload of GET /api/commands.
type CommandList struct {
	Items   []Command      `json:"items"`
	Summary CommandSummary `json:"summary"`
}

// ToolParameter describes one tool argument.
type ToolParameter struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Tool is an LLM function tool known to the bot.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Parameters  *struct {
		Properties map[string]ToolParameter `json:"properties,omitempty"`
	} `json:"parameters,omitempty"`
	Origin     string `json:"origin,omitempty"`
	OriginName string `json:"origin_name,omitempty"`
}

// ListCommands fetches all commands with their summary.
func (c *Client) ListCommands(ctx context.Context) (CommandList, error) {
	var out CommandList
	err := c.get(ctx, "/api/commands", nil, &out)
	return out, err
}

// ToggleCommand enables or disables a command.
func (c *Client) ToggleCommand(ctx context.Context, handler string, enabled bool) error {
	_, err := c.post(ctx, "/api/commands/toggle", map[string]any{
		"handler_full_name": handler,
		"enabled":           enabled,
	}, nil)
	return err
}

// RenameCommand sets a command's name and aliases. Blank aliases are dropped.
func (c *Client) RenameCommand(ctx context.Context, handler, newName string, aliases []string) error {
	kept := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if strings.TrimSpace(a) != "" {
			kept = append(kept, a)
		}
	}
	_, err := c.post(ctx, "/api/commands/rename", map[string]any{
		"handler_full_name": handler,
		"new_name":          strings.TrimSpace(newName),
		"aliases":           kept,
	}, nil)
	return err
}

// ListTools fetches the registered function tools.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var out []Tool
	err := c.get(ctx, "/api/tools/list", nil, &out)
	return out, err
}

// CommandFilter narrows a command list. Empty string fields and "all" match
// everything.
type CommandFilter struct {
	Search     string
	Plugin     string
	Permission string
	Status     string
	Type       string
	ShowSystem bool
}

func isAll(v string) bool {
	return v == "" || v == "all"
}

// showSystem reports whether reserved commands are visible. A conflict
// involving a reserved command forces them visible.
func showSystem(cmds []Command, f CommandFilter) bool {
	if f.ShowSystem {
		return true
	}
	for _, cmd := range cmds {
		if cmd.HasConflict && cmd.Reserved {
			return true
		}
	}
	return false
}

func matches(cmd Command, f CommandFilter, query string, system bool) bool {
	if !system && cmd.Reserved {
		return false
	}
	if query != "" &&
		!strings.Contains(strings.ToLower(cmd.EffectiveCommand), query) &&
		!strings.Contains(strings.ToLower(cmd.Description), query) &&
		!strings.Contains(strings.ToLower(cmd.Plugin), query) {
		return false
	}
	if !isAll(f.Plugin) && cmd.Plugin != f.Plugin {
		return false
	}
	if !isAll(f.Permission) {
		if f.Permission == "everyone" {
			if cmd.Permission != "everyone" && cmd.Permission != "member" {
				return false
			}
		} else if cmd.Permission != f.Permission {
			return false
		}
	}
	switch f.Status {
	case "enabled":
		if !cmd.Enabled {
			return false
		}
	case "disabled":
		if cmd.Enabled {
			return false
		}
	case "conflict":
		if !cmd.HasConflict {
			return false
		}
	}
	if !isAll(f.Type) && cmd.Type != f.Type {
		return false
	}
	return true
}

// FilterCommands flattens cmds into display order. Conflicting commands come
// first, sorted by effective command, followed by the rest in input order.
// A group is kept when it or any sub-command matches; the sub-commands of
// groups named in expanded follow it (only the matching ones when searching).
func FilterCommands(cmds []Command, f CommandFilter, expanded map[string]bool) []Command {
	query := strings.ToLower(f.Search)
	system := showSystem(cmds, f)

	var conflicts, normal []Command
	add := func(cmd Command) {
		if cmd.HasConflict {
			conflicts = append(conflicts, cmd)
		} else {
			normal = append(normal, cmd)
		}
	}

	for _, cmd := range cmds {
		switch {
		case cmd.IsGroup:
			var subs []Command
			for _, sub := range cmd.SubCommands {
				if matches(sub, f, query, system) {
					subs = append(subs, sub)
				}
			}
			if !matches(cmd, f, query, system) && len(subs) == 0 {
				continue
			}
			add(cmd)
			if expanded[cmd.HandlerFullName] {
				if query == "" {
					subs = cmd.SubCommands
				}
				for _, sub := range subs {
					add(sub)
				}
			}
		case cmd.Type != CommandTypeSubCommand:
			if matches(cmd, f, query, system) {
				add(cmd)
			}
		}
	}

	col := collate.New(language.Und)
	sort.SliceStable(conflicts, func(i, j int) bool {
		return col.CompareString(conflicts[i].EffectiveCommand, conflicts[j].EffectiveCommand) < 0
	})
	return append(conflicts, normal...)
}

// AvailablePlugins lists the distinct plugins of visible commands, sorted.
func AvailablePlugins(cmds []Command, showReserved bool) []string {
	system := showSystem(cmds, CommandFilter{ShowSystem: showReserved})
	seen := make(map[string]struct{})
	var out []string
	for _, cmd := range cmds {
		if cmd.Reserved && !system {
			continue
		}
		if _, ok := seen[cmd.Plugin]; ok {
			continue
		}
		seen[cmd.Plugin] = struct{}{}
		out = append(out, cmd.Plugin)
	}
	sort.Strings(out)
	return out
}
