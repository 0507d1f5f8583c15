// Package handlers provides HTTP request handlers for the bot console relay.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
	"github.com/oremus-labs/ol-bot-console/internal/openapi"
	"github.com/oremus-labs/ol-bot-console/internal/store"
)

// Options configures handler runtime behavior.
type Options struct {
	Logger         *log.Logger
	PingInterval   time.Duration
	DefaultLimit   int
	AllowedOrigins []string
}

type streamController interface {
	Start()
	Stop()
	Connected() bool
	Cache() []logstream.LogEntry
	Tail(n int) []logstream.LogEntry
	CacheLen() int
	CacheMax() int
}

type logBus interface {
	Subscribe(ctx context.Context) (<-chan logstream.LogEntry, func(), error)
}

type logArchive interface {
	ListLogs(store.LogQuery) ([]store.ArchivedLog, error)
	ListHistory(limit int) ([]store.HistoryEntry, error)
}

// Handler encapsulates dependencies for HTTP handlers.
type Handler struct {
	stream   streamController
	bus      logBus
	archive  logArchive
	logger   *log.Logger
	opts     Options
	upgrader websocket.Upgrader
}

// New creates a new Handler instance. archive may be nil when no datastore
// is configured.
func New(stream streamController, bus logBus, archive logArchive, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 200
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if s, ok := archive.(*store.Store); ok && s == nil {
		archive = nil
	}
	h := &Handler{
		stream:  stream,
		bus:     bus,
		archive: archive,
		logger:  opts.Logger,
		opts:    opts,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

type pinger interface {
	Ping() error
}

// Health returns the health status of the service. With an archive
// configured it also checks the database connection.
func (h *Handler) Health(c *gin.Context) {
	if p, ok := h.archive.(pinger); ok {
		if err := p.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "archive": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "archive": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// OpenAPI serves the API description as JSON.
func (h *Handler) OpenAPI(c *gin.Context) {
	doc, err := openapi.JSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", doc)
}

// Status reports the live log connection state.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

func (h *Handler) status() gin.H {
	return gin.H{
		"connected": h.stream.Connected(),
		"cacheSize": h.stream.CacheLen(),
		"cacheMax":  h.stream.CacheMax(),
	}
}

// StartStream opens the upstream stream if it is not already running.
func (h *Handler) StartStream(c *gin.Context) {
	h.stream.Start()
	c.JSON(http.StatusAccepted, h.status())
}

// StopStream closes the upstream stream and cancels any pending reconnect.
func (h *Handler) StopStream(c *gin.Context) {
	h.stream.Stop()
	c.JSON(http.StatusOK, h.status())
}

// ListLogs returns the newest cached entries, oldest first.
func (h *Handler) ListLogs(c *gin.Context) {
	limit, err := h.limit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": h.stream.Tail(limit)})
}

// LogHistory queries the durable archive.
func (h *Handler) LogHistory(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "log archive not configured"})
		return
	}
	limit, err := h.limit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q := store.LogQuery{Limit: limit, Level: c.Query("level")}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		q.Since = since
	}
	logs, err := h.archive.ListLogs(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// ConnectionHistory lists recorded stream lifecycle events.
func (h *Handler) ConnectionHistory(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "log archive not configured"})
		return
	}
	limit, err := h.limit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	history, err := h.archive.ListHistory(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) limit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return h.opts.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

// StreamLiveLog relays entries as server-sent events using the same
// `data: <json>` framing the upstream emits. ?replay=true sends the cached
// entries first.
func (h *Handler) StreamLiveLog(c *gin.Context) {
	ctx := c.Request.Context()
	ch, cancel, err := h.bus.Subscribe(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer cancel()

	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sent := replayed{}
	if c.Query("replay") == "true" {
		for _, entry := range h.stream.Cache() {
			if err := writeFrame(w, entry); err != nil {
				return
			}
			sent.add(entry)
		}
	}
	w.Flush()

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if sent.seen(entry) {
				continue
			}
			if err := writeFrame(w, entry); err != nil {
				return
			}
			w.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}

// replayed holds the uuids sent from the cache snapshot. The subscription is
// opened before the snapshot is taken, so an entry can show up in both.
type replayed map[string]struct{}

func (r replayed) add(entry logstream.LogEntry) {
	if entry.UUID != "" {
		r[entry.UUID] = struct{}{}
	}
}

// seen reports whether entry was already replayed. Each uuid matches once.
func (r replayed) seen(entry logstream.LogEntry) bool {
	if _, ok := r[entry.UUID]; !ok {
		return false
	}
	delete(r, entry.UUID)
	return true
}

func writeFrame(w gin.ResponseWriter, entry logstream.LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// StreamLiveLogWS relays entries over a WebSocket, one JSON message each.
func (h *Handler) StreamLiveLogWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ch, unsubscribe, err := h.bus.Subscribe(ctx)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		return
	}
	defer unsubscribe()

	// Reader: detects the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := replayed{}
	if c.Query("replay") == "true" {
		for _, entry := range h.stream.Cache() {
			if err := writeJSON(conn, entry); err != nil {
				return
			}
			sent.add(entry)
		}
	}

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if sent.seen(entry) {
				continue
			}
			if err := writeJSON(conn, entry); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, entry logstream.LogEntry) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(entry)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
