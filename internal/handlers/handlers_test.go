package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/oremus-labs/ol-bot-console/internal/events"
	"github.com/oremus-labs/ol-bot-console/internal/logstream"
	"github.com/oremus-labs/ol-bot-console/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStream struct {
	mu        sync.Mutex
	connected bool
	starts    int
	stops     int
	entries   []logstream.LogEntry
}

func (f *fakeStream) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.connected = true
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.connected = false
}

func (f *fakeStream) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) Cache() []logstream.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logstream.LogEntry(nil), f.entries...)
}

func (f *fakeStream) Tail(n int) []logstream.LogEntry {
	all := f.Cache()
	if n <= 0 || n > len(all) {
		return all
	}
	return all[len(all)-n:]
}

func (f *fakeStream) CacheLen() int { return len(f.Cache()) }
func (f *fakeStream) CacheMax() int { return 1000 }

type fakeArchive struct {
	logs    []store.ArchivedLog
	history []store.HistoryEntry
	query   store.LogQuery
	err     error
}

func (f *fakeArchive) ListLogs(q store.LogQuery) ([]store.ArchivedLog, error) {
	f.query = q
	return f.logs, f.err
}

func (f *fakeArchive) ListHistory(int) ([]store.HistoryEntry, error) {
	return f.history, f.err
}

func (f *fakeArchive) Ping() error { return f.err }

func entries(ids ...string) []logstream.LogEntry {
	out := make([]logstream.LogEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, logstream.LogEntry{UUID: id, Level: "INFO", Data: "msg-" + id})
	}
	return out
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	engine := gin.New()
	engine.GET("/healthz", h.Health)
	engine.GET("/api/live-log/status", h.Status)
	engine.POST("/api/live-log/start", h.StartStream)
	engine.POST("/api/live-log/stop", h.StopStream)
	engine.GET("/api/logs", h.ListLogs)
	engine.GET("/api/logs/history", h.LogHistory)
	engine.GET("/api/history", h.ConnectionHistory)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestStatusStartStop(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{entries: entries("a", "b")}
	h := New(stream, nil, nil, Options{Logger: quietLogger()})

	w := serve(h, http.MethodPost, "/api/live-log/start")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", w.Code)
	}

	w = serve(h, http.MethodGet, "/api/live-log/status")
	var body struct {
		Connected bool `json:"connected"`
		CacheSize int  `json:"cacheSize"`
		CacheMax  int  `json:"cacheMax"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.Connected || body.CacheSize != 2 || body.CacheMax != 1000 {
		t.Fatalf("unexpected status payload: %+v", body)
	}

	serve(h, http.MethodPost, "/api/live-log/stop")
	if stream.Connected() || stream.starts != 1 || stream.stops != 1 {
		t.Fatalf("unexpected controller state: %+v", stream)
	}
}

func TestListLogsHonoursLimit(t *testing.T) {
	t.Parallel()

	h := New(&fakeStream{entries: entries("a", "b", "c")}, nil, nil, Options{Logger: quietLogger()})

	w := serve(h, http.MethodGet, "/api/logs?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", w.Code)
	}
	var body struct {
		Logs []logstream.LogEntry `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Logs) != 2 || body.Logs[0].UUID != "b" || body.Logs[1].Data != "msg-c" {
		t.Fatalf("unexpected logs payload: %+v", body.Logs)
	}

	if w := serve(h, http.MethodGet, "/api/logs?limit=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestArchiveRoutesWithoutArchive(t *testing.T) {
	t.Parallel()

	var nilStore *store.Store
	h := New(&fakeStream{}, nil, nilStore, Options{Logger: quietLogger()})
	for _, target := range []string{"/api/logs/history", "/api/history"} {
		if w := serve(h, http.MethodGet, target); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503 got %d", target, w.Code)
		}
	}
}

func TestLogHistoryPassesFilters(t *testing.T) {
	t.Parallel()

	archive := &fakeArchive{logs: []store.ArchivedLog{{ID: 7, Entry: entries("z")[0]}}}
	h := New(&fakeStream{}, nil, archive, Options{Logger: quietLogger()})

	w := serve(h, http.MethodGet, "/api/logs/history?limit=5&level=error&since=2024-01-02T03:04:05Z")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if archive.query.Limit != 5 || archive.query.Level != "error" || archive.query.Since.Year() != 2024 {
		t.Fatalf("unexpected query: %+v", archive.query)
	}
	if !strings.Contains(w.Body.String(), `"uuid":"z"`) {
		t.Fatalf("expected entry in payload: %s", w.Body.String())
	}

	if w := serve(h, http.MethodGet, "/api/logs/history?since=yesterday"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", w.Code)
	}

	archive.err = errors.New("db down")
	if w := serve(h, http.MethodGet, "/api/history"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", w.Code)
	}
}

func newRelay(t *testing.T, stream *fakeStream) (*httptest.Server, *events.Bus) {
	t.Helper()
	bus := events.NewBus(events.Options{Logger: quietLogger()})
	h := New(stream, bus, nil, Options{Logger: quietLogger(), PingInterval: 50 * time.Millisecond})

	engine := gin.New()
	engine.GET("/api/live-log", h.StreamLiveLog)
	engine.GET("/api/live-log/ws", h.StreamLiveLogWS)
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		bus.Close()
		srv.Close()
	})
	return srv, bus
}

func waitForSubscriber(t *testing.T, bus *events.Bus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no subscriber attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamLiveLogRelaysFrames(t *testing.T) {
	t.Parallel()

	srv, bus := newRelay(t, &fakeStream{entries: entries("cached")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/live-log?replay=true", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	waitForSubscriber(t, bus)
	if err := bus.Publish(ctx, entries("live")[0]); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Decode with the client's own framer to prove wire compatibility.
	framer := logstream.NewFramer()
	reader := bufio.NewReader(resp.Body)
	var got []string
	sawPing := false
	buf := make([]byte, 1024)
	deadline := time.Now().Add(2 * time.Second)
	for (len(got) < 2 || !sawPing) && time.Now().Before(deadline) {
		n, err := reader.Read(buf)
		if n > 0 {
			if strings.Contains(string(buf[:n]), ": ping") {
				sawPing = true
			}
			for _, payload := range framer.Push(buf[:n]) {
				entry, perr := logstream.ParseEntry([]byte(payload))
				if perr != nil {
					t.Fatalf("bad frame %q: %v", payload, perr)
				}
				got = append(got, entry.UUID)
			}
		}
		if err != nil {
			break
		}
	}
	if len(got) != 2 || got[0] != "cached" || got[1] != "live" {
		t.Fatalf("unexpected relayed entries: %v", got)
	}
	if !sawPing {
		t.Fatal("expected keep-alive comment frame")
	}
}

func TestStreamLiveLogWebSocket(t *testing.T) {
	t.Parallel()

	srv, bus := newRelay(t, &fakeStream{entries: entries("cached")})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live-log/ws?replay=true"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForSubscriber(t, bus)
	if err := bus.Publish(context.Background(), entries("live")[0]); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{"cached", "live"} {
		var entry logstream.LogEntry
		if err := conn.ReadJSON(&entry); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if entry.UUID != want {
			t.Fatalf("expected %s got %s", want, entry.UUID)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()

	h := New(&fakeStream{}, nil, nil, Options{Logger: quietLogger(), AllowedOrigins: []string{"https://console.example.com"}})
	req := httptest.NewRequest(http.MethodGet, "/api/live-log/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if h.checkOrigin(req) {
		t.Fatal("unexpected origin accepted")
	}
	req.Header.Set("Origin", "https://console.example.com")
	if !h.checkOrigin(req) {
		t.Fatal("allowed origin rejected")
	}
}

// queuedBus hands every subscriber a channel that already holds entries, the
// way a publish racing the cache snapshot would.
type queuedBus struct {
	queued []logstream.LogEntry
}

func (b queuedBus) Subscribe(context.Context) (<-chan logstream.LogEntry, func(), error) {
	ch := make(chan logstream.LogEntry, len(b.queued))
	for _, e := range b.queued {
		ch <- e
	}
	return ch, func() {}, nil
}

func TestReplaySkipsEntriesAlreadyInSnapshot(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{entries: entries("a", "b")}
	bus := queuedBus{queued: entries("b", "c")}
	h := New(stream, bus, nil, Options{Logger: quietLogger(), PingInterval: time.Hour})

	engine := gin.New()
	engine.GET("/api/live-log/ws", h.StreamLiveLogWS)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live-log/ws?replay=true"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{"a", "b", "c"} {
		var entry logstream.LogEntry
		if err := conn.ReadJSON(&entry); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if entry.UUID != want {
			t.Fatalf("expected %s got %s", want, entry.UUID)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var extra logstream.LogEntry
	if err := conn.ReadJSON(&extra); err == nil {
		t.Fatalf("unexpected duplicate entry %s", extra.UUID)
	}
}

func TestReplayedMatchesOnce(t *testing.T) {
	t.Parallel()

	sent := replayed{}
	sent.add(entries("a")[0])
	if !sent.seen(entries("a")[0]) {
		t.Fatal("expected replayed entry to be skipped")
	}
	if sent.seen(entries("a")[0]) {
		t.Fatal("a uuid should only be skipped once")
	}
	if sent.seen(entries("z")[0]) {
		t.Fatal("unknown entry reported as replayed")
	}
}

func TestHealthChecksArchive(t *testing.T) {
	t.Parallel()

	w := serve(New(&fakeStream{}, events.NewBus(events.Options{Logger: quietLogger()}), nil, Options{}), http.MethodGet, "/healthz")
	if w.Code != http.StatusOK || strings.Contains(w.Body.String(), "archive") {
		t.Fatalf("unexpected health without archive: %d %s", w.Code, w.Body.String())
	}

	archive := &fakeArchive{}
	h := New(&fakeStream{}, events.NewBus(events.Options{Logger: quietLogger()}), archive, Options{})
	if w := serve(h, http.MethodGet, "/healthz"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"archive":"ok"`) {
		t.Fatalf("unexpected health with archive: %d %s", w.Code, w.Body.String())
	}

	archive.err = errors.New("database is closed")
	if w := serve(h, http.MethodGet, "/healthz"); w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "database is closed") {
		t.Fatalf("expected 503 when archive is down: %d %s", w.Code, w.Body.String())
	}
}

func TestHealthPingsRealStore(t *testing.T) {
	t.Parallel()

	s, err := store.Open(filepath.Join(t.TempDir(), "archive.db"), "sqlite")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h := New(&fakeStream{}, events.NewBus(events.Options{Logger: quietLogger()}), s, Options{})
	if w := serve(h, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("expected healthy archive: %d %s", w.Code, w.Body.String())
	}
	_ = s.Close()
	if w := serve(h, http.MethodGet, "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close: %d %s", w.Code, w.Body.String())
	}
}
