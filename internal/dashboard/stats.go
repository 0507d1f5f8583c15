package dashboard

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
)

// Plugin is a normalized plugin market listing.
type Plugin struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Desc        string   `json:"desc"`
	Author      string   `json:"author"`
	Repo        string   `json:"repo"`
	Installed   bool     `json:"installed"`
	Version     string   `json:"version"`
	SocialLink  string   `json:"social_link,omitempty"`
	Tags        []string `json:"tags"`
	Logo        string   `json:"logo"`
	Pinned      bool     `json:"pinned"`
	Stars       int      `json:"stars"`
	UpdatedAt   string   `json:"updated_at"`
}

// StartTime returns the bot's start time in unix seconds. The value is
// fetched once per Client.
func (c *Client) StartTime(ctx context.Context) (float64, error) {
	c.mu.Lock()
	if c.startTime != nil {
		v := *c.startTime
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	var out struct {
		StartTime float64 `json:"start_time"`
	}
	if err := c.get(ctx, "/api/stat/start-time", nil, &out); err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.startTime = &out.StartTime
	c.mu.Unlock()
	return out.StartTime, nil
}

// PluginMarket lists the plugin market. The default registry's listing is
// cached; force refetches it, and a custom registry is never cached.
func (c *Client) PluginMarket(ctx context.Context, force bool, customRegistry string) ([]Plugin, error) {
	if !force && customRegistry == "" {
		c.mu.Lock()
		cached := c.market
		c.mu.Unlock()
		if len(cached) > 0 {
			return append([]Plugin(nil), cached...), nil
		}
	}

	query := url.Values{}
	if force {
		query.Set("force_refresh", "true")
	}
	if customRegistry != "" {
		query.Set("custom_registry", customRegistry)
	}
	var raw map[string]json.RawMessage
	if err := c.get(ctx, "/api/plugin/market_list", query, &raw); err != nil {
		return nil, err
	}
	plugins := normalizeMarket(raw)

	if customRegistry == "" {
		c.mu.Lock()
		c.market = plugins
		c.mu.Unlock()
	}
	return append([]Plugin(nil), plugins...), nil
}

// normalizeMarket converts the keyed listing into plugins, filling defaults.
// Entries that are not objects are skipped.
func normalizeMarket(raw map[string]json.RawMessage) []Plugin {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Plugin, 0, len(keys))
	for _, key := range keys {
		var p Plugin
		if err := json.Unmarshal(raw[key], &p); err != nil {
			continue
		}
		p.Installed = false
		if p.Name == "" {
			p.Name = key
		}
		if p.Version == "" {
			p.Version = "unknown"
		}
		if p.Tags == nil {
			p.Tags = []string{}
		}
		out = append(out, p)
	}
	return out
}
