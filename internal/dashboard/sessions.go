package dashboard

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Session is a chat session on the bot's web platform.
type Session struct {
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name,omitempty"`
	PlatformID  string `json:"platform_id"`
	Creator     string `json:"creator"`
	IsGroup     int    `json:"is_group"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Conversation is one conversation thread.
type Conversation struct {
	CID       string `json:"cid"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updated_at"`
}

var errEmptyID = errors.New("dashboard: id is required")

// ListSessions fetches all chat sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	err := c.get(ctx, "/api/chat/sessions", nil, &out)
	return out, err
}

// NewSession creates a session and returns its id.
func (c *Client) NewSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.get(ctx, "/api/chat/new_session", nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return errEmptyID
	}
	return c.get(ctx, "/api/chat/delete_session", url.Values{"session_id": {id}}, nil)
}

// RenameSession sets a session's display name.
func (c *Client) RenameSession(ctx context.Context, id, name string) error {
	if id == "" {
		return errEmptyID
	}
	_, err := c.post(ctx, "/api/chat/update_session_display_name", map[string]string{
		"session_id":   id,
		"display_name": strings.TrimSpace(name),
	}, nil)
	return err
}

// ListConversations fetches all conversations.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	err := c.get(ctx, "/api/chat/conversations", nil, &out)
	return out, err
}

// NewConversation creates a conversation and returns its id.
func (c *Client) NewConversation(ctx context.Context) (string, error) {
	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := c.get(ctx, "/api/chat/new_conversation", nil, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, cid string) error {
	if cid == "" {
		return errEmptyID
	}
	return c.get(ctx, "/api/chat/delete_conversation", url.Values{"conversation_id": {cid}}, nil)
}

// RenameConversation sets a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, cid, title string) error {
	if cid == "" {
		return errEmptyID
	}
	_, err := c.post(ctx, "/api/chat/rename_conversation", map[string]string{
		"conversation_id": cid,
		"title":           strings.TrimSpace(title),
	}, nil)
	return err
}
