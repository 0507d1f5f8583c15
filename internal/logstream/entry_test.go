package logstream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEntryDecodesKnownFields(t *testing.T) {
	t.Parallel()

	entry, err := ParseEntry([]byte(`{"type":"log","level":"INFO","time":1712.5,"data":"x","source":"core"}`))
	require.NoError(t, err)
	require.Equal(t, "log", entry.Type)
	require.Equal(t, "INFO", entry.Level)
	require.Equal(t, 1712.5, entry.Time)
	require.Equal(t, "x", entry.Data)
	require.Empty(t, entry.UUID)
	require.Contains(t, entry.Fields, "source")
}

func TestParseEntryKeepsNonStringData(t *testing.T) {
	t.Parallel()

	entry, err := ParseEntry([]byte(`{"level":"DEBUG","data":{"k":[1,2]}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"k":[1,2]}`, entry.Data)
}

func TestParseEntryRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	_, err := ParseEntry([]byte(`{"level":`))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotObject))

	_, err = ParseEntry([]byte(`["not","an","object"]`))
	require.ErrorIs(t, err, ErrNotObject)

	_, err = ParseEntry([]byte(`null`))
	require.ErrorIs(t, err, ErrNotObject)
}

func TestMarshalPreservesPayloadAndUUID(t *testing.T) {
	t.Parallel()

	entry, err := ParseEntry([]byte(`{"level":"WARN","data":"disk low","extra":{"free":12}}`))
	require.NoError(t, err)
	entry = entry.WithUUID("id-1")

	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.JSONEq(t, `{"level":"WARN","data":"disk low","extra":{"free":12},"uuid":"id-1"}`, string(raw))

	var decoded LogEntry
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "id-1", decoded.UUID)
	require.Equal(t, "disk low", decoded.Data)
}

func TestWithUUIDDoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	entry, err := ParseEntry([]byte(`{"data":"x"}`))
	require.NoError(t, err)
	_ = entry.WithUUID("copy")
	require.NotContains(t, entry.Fields, "uuid")
}

func TestNewErrorEntry(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000000123)
	entry := NewErrorEntry(now, "live log connection failed: boom")
	require.Equal(t, "error-1700000000123", entry.UUID)
	require.Equal(t, "ERROR", entry.Level)
	require.Equal(t, "log", entry.Type)
	require.InDelta(t, 1700000000.123, entry.Time, 0.0001)

	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.JSONEq(t, `{"uuid":"error-1700000000123","type":"log","level":"ERROR","time":1700000000.123,"data":"live log connection failed: boom"}`, string(raw))
}

func TestParseEntryKeepsNonStringUUID(t *testing.T) {
	t.Parallel()

	entry, err := ParseEntry([]byte(`{"uuid":42,"data":"x"}`))
	require.NoError(t, err)
	require.Equal(t, "42", entry.UUID)

	out, err := json.Marshal(entry)
	require.NoError(t, err)
	require.JSONEq(t, `{"uuid":42,"data":"x"}`, string(out))

	for _, raw := range []string{`{"uuid":null}`, `{"uuid":""}`, `{"uuid":0}`, `{"uuid":false}`, `{}`} {
		entry, err := ParseEntry([]byte(raw))
		require.NoError(t, err)
		require.Empty(t, entry.UUID, raw)
	}
}

func TestClientOnlyReplacesMissingUUIDs(t *testing.T) {
	t.Parallel()

	c := New(Options{Endpoint: "http://127.0.0.1:1/api/live-log", IDs: NewFallbackIDs(nil)})
	c.handlePayload(context.Background(), `{"uuid":42,"data":"kept"}`)
	c.handlePayload(context.Background(), `{"uuid":0,"data":"replaced"}`)

	cached := c.Cache()
	require.Len(t, cached, 2)
	require.Equal(t, "42", cached[0].UUID)
	require.NotEqual(t, "", cached[1].UUID)
	require.NotEqual(t, "0", cached[1].UUID)

	out, err := json.Marshal(cached[0])
	require.NoError(t, err)
	require.JSONEq(t, `{"uuid":42,"data":"kept"}`, string(out))
}
