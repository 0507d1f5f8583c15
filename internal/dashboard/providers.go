package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// Provider types.
const (
	ProviderChatCompletion = "chat_completion"
	ProviderAgentRunner    = "agent_runner"
	ProviderSpeechToText   = "speech_to_text"
	ProviderTextToSpeech   = "text_to_speech"
	ProviderEmbedding      = "embedding"
	ProviderRerank         = "rerank"
)

// legacyProviderTypes maps adapter types from configs that predate the
// provider_type field.
var legacyProviderTypes = map[string]string{
	"openai_chat_completion":      ProviderChatCompletion,
	"anthropic_chat_completion":   ProviderChatCompletion,
	"googlegenai_chat_completion": ProviderChatCompletion,
	"zhipu_chat_completion":       ProviderChatCompletion,
	"dify":                        ProviderAgentRunner,
	"coze":                        ProviderAgentRunner,
	"dashscope":                   ProviderChatCompletion,
	"openai_whisper_api":          ProviderSpeechToText,
	"openai_whisper_selfhost":     ProviderSpeechToText,
	"sensevoice_stt_selfhost":     ProviderSpeechToText,
	"openai_tts_api":              ProviderTextToSpeech,
	"edge_tts":                    ProviderTextToSpeech,
	"gsvi_tts_api":                ProviderTextToSpeech,
	"fishaudio_tts_api":           ProviderTextToSpeech,
	"dashscope_tts":               ProviderTextToSpeech,
	"azure_tts":                   ProviderTextToSpeech,
	"minimax_tts_api":             ProviderTextToSpeech,
	"volcengine_tts":              ProviderTextToSpeech,
}

// ProviderSource is an upstream account (endpoint plus key). Fields beyond
// the common ones are kept in Extra so updates round-trip.
type ProviderSource struct {
	ID           string
	Type         string
	ProviderType string
	Provider     string
	APIBase      string
	Enable       bool
	Extra        map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ProviderSource) UnmarshalJSON(b []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	take := func(key string, dst any) {
		if raw, ok := fields[key]; ok {
			_ = json.Unmarshal(raw, dst)
		}
	}
	take("id", &s.ID)
	take("type", &s.Type)
	take("provider_type", &s.ProviderType)
	take("provider", &s.Provider)
	take("api_base", &s.APIBase)
	take("enable", &s.Enable)
	s.Extra = fields
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s ProviderSource) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+6)
	for k, v := range s.Extra {
		out[k] = v
	}
	out["id"] = s.ID
	out["type"] = s.Type
	out["provider_type"] = s.ProviderType
	out["provider"] = s.Provider
	out["api_base"] = s.APIBase
	out["enable"] = s.Enable
	return json.Marshal(out)
}

// Provider is a configured model on a source.
type Provider struct {
	ID               string         `json:"id"`
	Enable           bool           `json:"enable"`
	Type             string         `json:"type,omitempty"`
	ProviderType     string         `json:"provider_type,omitempty"`
	ProviderSourceID string         `json:"provider_source_id,omitempty"`
	Model            string         `json:"model,omitempty"`
	Modalities       []string       `json:"modalities,omitempty"`
	CustomExtraBody  map[string]any `json:"custom_extra_body,omitempty"`
	MaxContextTokens int            `json:"max_context_tokens,omitempty"`
}

// ModelMetadata describes capabilities reported for a model.
type ModelMetadata struct {
	Modalities struct {
		Input []string `json:"input"`
	} `json:"modalities"`
	ToolCall  bool `json:"tool_call"`
	Reasoning bool `json:"reasoning"`
	Limit     struct {
		Context int `json:"context"`
	} `json:"limit"`
}

// ProviderConfig is the payload of GET /api/config/provider/template.
type ProviderConfig struct {
	ConfigSchema    map[string]json.RawMessage `json:"config_schema"`
	ProviderSources []ProviderSource           `json:"provider_sources"`
	Providers       []Provider                 `json:"providers"`
}

// SourceModelList is the payload of GET /api/config/provider_sources/models.
type SourceModelList struct {
	Models   []string                 `json:"models"`
	Metadata map[string]ModelMetadata `json:"model_metadata"`
}

// ProviderTemplate fetches the provider schema, sources and providers.
func (c *Client) ProviderTemplate(ctx context.Context) (ProviderConfig, error) {
	var out ProviderConfig
	err := c.get(ctx, "/api/config/provider/template", nil, &out)
	return out, err
}

// UpdateProviderSource saves src, replacing the source currently named
// originalID (which may differ when the id is being changed).
func (c *Client) UpdateProviderSource(ctx context.Context, originalID string, src ProviderSource) error {
	if originalID == "" {
		originalID = src.ID
	}
	_, err := c.post(ctx, "/api/config/provider_sources/update", map[string]any{
		"config":      src,
		"original_id": originalID,
	}, nil)
	return err
}

// DeleteProviderSource removes a source.
func (c *Client) DeleteProviderSource(ctx context.Context, id string) error {
	if id == "" {
		return errEmptyID
	}
	_, err := c.post(ctx, "/api/config/provider_sources/delete", map[string]string{"id": id}, nil)
	return err
}

// SourceModels lists the models a source offers.
func (c *Client) SourceModels(ctx context.Context, sourceID string) (SourceModelList, error) {
	var out SourceModelList
	err := c.get(ctx, "/api/config/provider_sources/models", url.Values{"source_id": {sourceID}}, &out)
	return out, err
}

// NewProvider registers model on a source. The provider starts disabled;
// modalities and context size come from meta when known.
func (c *Client) NewProvider(ctx context.Context, sourceID, model string, meta *ModelMetadata) (Provider, error) {
	if sourceID == "" || model == "" {
		return Provider{}, errors.New("dashboard: source id and model are required")
	}
	p := Provider{
		ID:               sourceID + "/" + model,
		ProviderSourceID: sourceID,
		Model:            model,
		Modalities:       []string{"text", "image", "tool_use"},
		CustomExtraBody:  map[string]any{},
	}
	if meta != nil {
		p.Modalities = []string{"text"}
		for _, in := range meta.Modalities.Input {
			if in == "image" {
				p.Modalities = append(p.Modalities, "image")
				break
			}
		}
		if meta.ToolCall {
			p.Modalities = append(p.Modalities, "tool_use")
		}
		p.MaxContextTokens = meta.Limit.Context
	}
	_, err := c.post(ctx, "/api/config/provider/new", p, nil)
	return p, err
}

// DeleteProvider removes a provider.
func (c *Client) DeleteProvider(ctx context.Context, id string) error {
	if id == "" {
		return errEmptyID
	}
	_, err := c.post(ctx, "/api/config/provider/delete", map[string]string{"id": id}, nil)
	return err
}

// CheckProvider asks the server to probe a provider. A non-nil error
// carries the probe failure.
func (c *Client) CheckProvider(ctx context.Context, id string) error {
	var out struct {
		Error *string `json:"error"`
	}
	if err := c.get(ctx, "/api/config/provider/check_one", url.Values{"id": {id}}, &out); err != nil {
		return err
	}
	if out.Error != nil {
		return &APIError{Path: "/api/config/provider/check_one", Status: "error", Message: *out.Error}
	}
	return nil
}

// ResolveProviderType normalizes a selector name to a provider type,
// defaulting to chat completion.
func ResolveProviderType(value string) string {
	v := strings.ToLower(value)
	switch {
	case strings.HasPrefix(v, "select_agent_runner_provider") || v == ProviderAgentRunner:
		return ProviderAgentRunner
	case v == "select_provider_stt" || v == ProviderSpeechToText || strings.Contains(v, "stt"):
		return ProviderSpeechToText
	case v == "select_provider_tts" || v == ProviderTextToSpeech || strings.Contains(v, "tts"):
		return ProviderTextToSpeech
	case strings.Contains(v, "embedding"):
		return ProviderEmbedding
	case strings.Contains(v, "rerank"):
		return ProviderRerank
	}
	return ProviderChatCompletion
}

// ProviderTypeOf reports a provider's type, falling back to the legacy
// adapter mapping.
func ProviderTypeOf(p Provider) string {
	if p.ProviderType != "" {
		return p.ProviderType
	}
	return legacyProviderTypes[p.Type]
}

// SourcesForType returns the sources serving providerType.
func SourcesForType(sources []ProviderSource, providerType string) []ProviderSource {
	var out []ProviderSource
	for _, s := range sources {
		if s.ProviderType == providerType || (s.Type != "" && strings.Contains(s.Type, providerType)) {
			out = append(out, s)
		}
	}
	return out
}

// ModelEntry is either a configured provider or a model the source offers
// that has no provider yet.
type ModelEntry struct {
	Configured bool
	Provider   *Provider
	Model      string
	Metadata   *ModelMetadata
}

// Name returns the model name for either kind of entry.
func (e ModelEntry) Name() string {
	if e.Provider != nil {
		return e.Provider.Model
	}
	return e.Model
}

// MergeModelEntries lists the providers of sourceID followed by the
// available models not yet configured on it.
func MergeModelEntries(sourceID string, providers []Provider, available SourceModelList) []ModelEntry {
	var out []ModelEntry
	existing := make(map[string]struct{})
	for i := range providers {
		p := providers[i]
		if p.ProviderSourceID != sourceID {
			continue
		}
		existing[p.Model] = struct{}{}
		out = append(out, ModelEntry{Configured: true, Provider: &p, Model: p.Model, Metadata: lookupMeta(available, p.Model)})
	}
	for _, m := range available.Models {
		if _, ok := existing[m]; ok {
			continue
		}
		out = append(out, ModelEntry{Model: m, Metadata: lookupMeta(available, m)})
	}
	return out
}

func lookupMeta(list SourceModelList, model string) *ModelMetadata {
	if m, ok := list.Metadata[model]; ok {
		return &m
	}
	return nil
}

// SearchModelEntries keeps entries whose provider id or model contains term,
// case-insensitively.
func SearchModelEntries(entries []ModelEntry, term string) []ModelEntry {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return entries
	}
	var out []ModelEntry
	for _, e := range entries {
		if e.Provider != nil && strings.Contains(strings.ToLower(e.Provider.ID), term) {
			out = append(out, e)
			continue
		}
		if strings.Contains(strings.ToLower(e.Name()), term) {
			out = append(out, e)
		}
	}
	return out
}

// FormatContextLimit renders a context window as 128K or 1M.
func FormatContextLimit(n int) string {
	switch {
	case n <= 0:
		return ""
	case n >= 1_000_000:
		return strconv.Itoa((n+500_000)/1_000_000) + "M"
	case n >= 1_000:
		return strconv.Itoa((n+500)/1_000) + "K"
	}
	return strconv.Itoa(n)
}
