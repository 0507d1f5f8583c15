package graphqlapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
	"github.com/oremus-labs/ol-bot-console/internal/store"
)

type fakeLive struct {
	entries []logstream.LogEntry
}

func (f fakeLive) Connected() bool { return true }
func (f fakeLive) CacheLen() int   { return len(f.entries) }
func (f fakeLive) CacheMax() int   { return 1000 }
func (f fakeLive) Tail(n int) []logstream.LogEntry {
	if n <= 0 || n > len(f.entries) {
		return f.entries
	}
	return f.entries[len(f.entries)-n:]
}

type fakeArchive struct {
	query store.LogQuery
	err   error
}

func (f *fakeArchive) ListLogs(q store.LogQuery) ([]store.ArchivedLog, error) {
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	entry, _ := logstream.ParseEntry([]byte(`{"uuid":"a1","level":"ERROR","data":"boom"}`))
	return []store.ArchivedLog{{ID: 7, ReceivedAt: time.Unix(1700000000, 0).UTC(), Entry: entry}}, nil
}

func (f *fakeArchive) ListHistory(limit int) ([]store.HistoryEntry, error) {
	return []store.HistoryEntry{{ID: "h1", Event: store.EventStreamOpened, CreatedAt: time.Unix(1700000000, 0).UTC()}}, nil
}

func parse(t *testing.T, raw string) logstream.LogEntry {
	t.Helper()
	entry, err := logstream.ParseEntry([]byte(raw))
	require.NoError(t, err)
	return entry
}

func query(t *testing.T, h http.Handler, q string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(EncodeGraphQLQuery(q)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestStatusAndCachedLogs(t *testing.T) {
	t.Parallel()

	live := fakeLive{entries: []logstream.LogEntry{
		parse(t, `{"uuid":"1","level":"INFO","data":"one","extra":{"k":1}}`),
		parse(t, `{"uuid":"2","level":"WARN","data":"two"}`),
		parse(t, `{"uuid":"3","level":"info","data":"three"}`),
	}}
	h, err := NewHandler(Config{Live: live})
	require.NoError(t, err)

	resp := query(t, h, `{ status { connected cacheSize cacheMax } logs(level: "INFO") { uuid data fields } }`)
	data := resp["data"].(map[string]any)
	require.Equal(t, map[string]any{"connected": true, "cacheSize": float64(3), "cacheMax": float64(1000)}, data["status"])

	logs := data["logs"].([]any)
	require.Len(t, logs, 2)
	first := logs[0].(map[string]any)
	require.Equal(t, "one", first["data"])
	require.Equal(t, map[string]any{"k": float64(1)}, first["fields"].(map[string]any)["extra"])

	resp = query(t, h, `{ logs(limit: 1) { uuid } }`)
	require.Equal(t, []any{map[string]any{"uuid": "3"}}, resp["data"].(map[string]any)["logs"])
}

func TestArchivedLogsAndHistory(t *testing.T) {
	t.Parallel()

	archive := &fakeArchive{}
	h, err := NewHandler(Config{Live: fakeLive{}, Archive: archive})
	require.NoError(t, err)

	resp := query(t, h, `{ archivedLogs(limit: 5, level: "error", since: "2024-01-01T00:00:00Z") { id receivedAt entry { uuid level } } history { id event } }`)
	require.Nil(t, resp["errors"])
	data := resp["data"].(map[string]any)

	logs := data["archivedLogs"].([]any)
	require.Len(t, logs, 1)
	row := logs[0].(map[string]any)
	require.Equal(t, float64(7), row["id"])
	require.Equal(t, "2023-11-14T22:13:20Z", row["receivedAt"])
	require.Equal(t, "ERROR", row["entry"].(map[string]any)["level"])

	require.Equal(t, 5, archive.query.Limit)
	require.Equal(t, "error", archive.query.Level)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), archive.query.Since)

	history := data["history"].([]any)
	require.Equal(t, "stream_opened", history[0].(map[string]any)["event"])
}

func TestArchiveErrors(t *testing.T) {
	t.Parallel()

	h, err := NewHandler(Config{Live: fakeLive{}})
	require.NoError(t, err)
	resp := query(t, h, `{ history { id } }`)
	require.Contains(t, resp["errors"].([]any)[0].(map[string]any)["message"], "not configured")

	h, err = NewHandler(Config{Archive: &fakeArchive{err: errors.New("db down")}})
	require.NoError(t, err)
	resp = query(t, h, `{ archivedLogs { id } }`)
	require.Contains(t, resp["errors"].([]any)[0].(map[string]any)["message"], "db down")

	resp = query(t, h, `{ archivedLogs(since: "yesterday") { id } }`)
	require.Contains(t, resp["errors"].([]any)[0].(map[string]any)["message"], "RFC3339")
}
