package dashboard

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// DefaultProjectEmoji is used when a project is created without one.
const DefaultProjectEmoji = "📁"

// Project groups chat sessions in the web chat UI.
type Project struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Emoji       string `json:"emoji,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

var errEmptyTitle = errors.New("dashboard: project title is required")

// ProjectUpdate carries the fields to change. Nil fields are left untouched.
type ProjectUpdate struct {
	Title       *string `json:"title,omitempty"`
	Emoji       *string `json:"emoji,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ListProjects fetches all chat projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.get(ctx, "/api/chatui_project/list", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Project{}
	}
	return out, nil
}

// CreateProject creates a project and returns it as stored by the server.
func (c *Client) CreateProject(ctx context.Context, title, emoji, description string) (*Project, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errEmptyTitle
	}
	if emoji == "" {
		emoji = DefaultProjectEmoji
	}
	payload := map[string]string{"title": title, "emoji": emoji}
	if description != "" {
		payload["description"] = description
	}
	var out Project
	if _, err := c.post(ctx, "/api/chatui_project/create", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProject changes a project's title, emoji or description.
func (c *Client) UpdateProject(ctx context.Context, id string, update ProjectUpdate) error {
	if id == "" {
		return errEmptyID
	}
	payload := struct {
		ProjectID string `json:"project_id"`
		ProjectUpdate
	}{ProjectID: id, ProjectUpdate: update}
	_, err := c.post(ctx, "/api/chatui_project/update", payload, nil)
	return err
}

// DeleteProject removes a project. Its sessions are kept.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	if id == "" {
		return errEmptyID
	}
	return c.get(ctx, "/api/chatui_project/delete", url.Values{"project_id": {id}}, nil)
}

// AddSessionToProject moves a session into a project.
func (c *Client) AddSessionToProject(ctx context.Context, sessionID, projectID string) error {
	if sessionID == "" || projectID == "" {
		return errEmptyID
	}
	_, err := c.post(ctx, "/api/chatui_project/add_session", map[string]string{
		"session_id": sessionID,
		"project_id": projectID,
	}, nil)
	return err
}

// RemoveSessionFromProject detaches a session from whatever project holds it.
func (c *Client) RemoveSessionFromProject(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errEmptyID
	}
	_, err := c.post(ctx, "/api/chatui_project/remove_session", map[string]string{
		"session_id": sessionID,
	}, nil)
	return err
}

// ProjectSessions lists the sessions in a project.
func (c *Client) ProjectSessions(ctx context.Context, projectID string) ([]Session, error) {
	if projectID == "" {
		return nil, errEmptyID
	}
	var out []Session
	if err := c.get(ctx, "/api/chatui_project/get_sessions", url.Values{"project_id": {projectID}}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Session{}
	}
	return out, nil
}
