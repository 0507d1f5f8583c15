package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oremus-labs/ol-bot-console/internal/credentials"
	"github.com/oremus-labs/ol-bot-console/internal/logutil"
	"github.com/oremus-labs/ol-bot-console/internal/metrics"
)

const (
	// DefaultClosedDelay is the wait before reconnecting after the server
	// ended the stream cleanly.
	DefaultClosedDelay = 2000 * time.Millisecond
	// DefaultErrorDelay is the wait before reconnecting after a failure.
	DefaultErrorDelay = 1000 * time.Millisecond

	// TokenKey is the credential store key holding the bearer token.
	TokenKey = "token"

	readChunkSize = 32 * 1024
)

// CredentialStore supplies the bearer token for each connection attempt.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// Publisher receives every entry after it has been cached.
type Publisher interface {
	Publish(ctx context.Context, entry LogEntry) error
}

// Session lifecycle transitions reported through Options.OnEvent.
const (
	EventOpened  = "opened"
	EventClosed  = "closed"
	EventError   = "error"
	EventStopped = "stopped"
)

// StreamEvent describes one session lifecycle transition.
type StreamEvent struct {
	Kind    string
	Err     error
	RetryIn time.Duration
}

// StatusError reports a non-success response from the log endpoint.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("live log connection failed: %s", e.Status)
}

// Options configure the client.
type Options struct {
	Endpoint          string
	Credentials       CredentialStore
	HTTPClient        *http.Client
	CacheSize         int
	ClosedDelay       time.Duration
	ErrorDelay        time.Duration
	IDs               IDGenerator
	Publisher         Publisher
	Logger            *log.Logger
	LegacyContentType bool
	// OnEvent, when set, is called outside the client's lock for every
	// lifecycle transition.
	OnEvent func(StreamEvent)
}

// session is one live connection. It is replaced, never reused.
type session struct {
	cancel    context.CancelFunc
	connected atomic.Bool
}

// Client keeps a single live log stream open and caches what it receives.
type Client struct {
	endpoint    string
	creds       CredentialStore
	http        *http.Client
	cache       *Cache
	closedDelay time.Duration
	errorDelay  time.Duration
	ids         IDGenerator
	publisher   Publisher
	logger      *logutil.Logger
	legacyCT    bool
	onEvent     func(StreamEvent)
	now         func() time.Time

	mu      sync.Mutex
	session *session
	timer   *time.Timer
}

// New constructs a stopped client.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		// No overall timeout: the response body stays open indefinitely.
		opts.HTTPClient = &http.Client{}
	}
	if opts.ClosedDelay <= 0 {
		opts.ClosedDelay = DefaultClosedDelay
	}
	if opts.ErrorDelay <= 0 {
		opts.ErrorDelay = DefaultErrorDelay
	}
	if opts.IDs == nil {
		opts.IDs = NewIDGenerator(nil)
	}
	return &Client{
		endpoint:    opts.Endpoint,
		creds:       opts.Credentials,
		http:        opts.HTTPClient,
		cache:       NewCache(opts.CacheSize),
		closedDelay: opts.ClosedDelay,
		errorDelay:  opts.ErrorDelay,
		ids:         opts.IDs,
		publisher:   opts.Publisher,
		logger:      logutil.New(opts.Logger, "logstream"),
		legacyCT:    opts.LegacyContentType,
		onEvent:     opts.OnEvent,
		now:         time.Now,
	}
}

// Start opens the stream unless a session is already active. Any pending
// reconnect is superseded.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return
	}
	c.stopTimerLocked()

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{cancel: cancel}
	c.session = sess
	go c.run(ctx, sess)
}

// Stop aborts the active session and any scheduled reconnect.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopTimerLocked()
	sess := c.session
	c.session = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	metrics.SetStreamConnected(false)
	c.logger.Info("live log stream stopped", nil)
	c.emit(StreamEvent{Kind: EventStopped})
}

// Run starts the client and stops it once ctx is done.
func (c *Client) Run(ctx context.Context) {
	c.Start()
	<-ctx.Done()
	c.Stop()
}

// Cache returns a copy of the cached entries, oldest first.
func (c *Client) Cache() []LogEntry {
	return c.cache.Snapshot()
}

// Tail returns up to n of the newest cached entries.
func (c *Client) Tail(n int) []LogEntry {
	return c.cache.Tail(n)
}

// CacheLen reports the number of cached entries.
func (c *Client) CacheLen() int {
	return c.cache.Len()
}

// CacheMax reports the cache capacity.
func (c *Client) CacheMax() int {
	return c.cache.Max()
}

// Connected reports whether the current session has an open response body.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.connected.Load()
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) run(ctx context.Context, sess *session) {
	defer sess.cancel()
	err := c.stream(ctx, sess)

	c.mu.Lock()
	if c.session != sess {
		// Stopped, or already replaced by a newer session.
		c.mu.Unlock()
		return
	}
	c.session = nil
	delay := c.closedDelay
	if err != nil {
		delay = c.errorDelay
	}
	c.scheduleLocked(delay)
	c.mu.Unlock()
	metrics.SetStreamConnected(false)

	if err == nil {
		metrics.ObserveStreamReconnect("closed")
		c.logger.Info("live log stream closed", logutil.Fields{"retryIn": delay.String()})
		c.emit(StreamEvent{Kind: EventClosed, RetryIn: delay})
		return
	}
	metrics.ObserveStreamReconnect("error")
	c.logger.Error("live log stream failed", err, logutil.Fields{"retryIn": delay.String()})
	c.append(ctx, NewErrorEntry(c.now(), fmt.Sprintf("%s, retrying in %s", failureMessage(err), delay)))
	c.emit(StreamEvent{Kind: EventError, Err: err, RetryIn: delay})
}

func (c *Client) emit(evt StreamEvent) {
	if c.onEvent != nil {
		c.onEvent(evt)
	}
}

func failureMessage(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	return "live log connection failed: " + err.Error()
}

func (c *Client) scheduleLocked(delay time.Duration) {
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.timer != t {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.mu.Unlock()
		c.Start()
	})
	c.timer = t
}

func (c *Client) stream(ctx context.Context, sess *session) error {
	req, err := c.newRequest(ctx)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	sess.connected.Store(true)
	metrics.SetStreamConnected(true)
	c.logger.Info("live log stream opened", logutil.Fields{"endpoint": c.endpoint})
	c.emit(StreamEvent{Kind: EventOpened})

	framer := NewFramer()
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, payload := range framer.Push(buf[:n]) {
				c.handlePayload(ctx, payload)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

func (c *Client) newRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.legacyCT {
		req.Header.Set("Content-Type", "multipart/form-data")
	}
	return req, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", nil
	}
	token, err := c.creds.Get(ctx, TokenKey)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read credentials: %w", err)
	}
	return token, nil
}

func (c *Client) handlePayload(ctx context.Context, payload string) {
	entry, err := ParseEntry([]byte(payload))
	if err != nil {
		metrics.ObserveLogFrame("malformed")
		c.logger.Warn("skipping malformed live log frame", logutil.Fields{
			"error":   err.Error(),
			"payload": payload,
		})
		return
	}
	if entry.UUID == "" {
		entry = entry.WithUUID(c.ids.NewID())
	}
	metrics.ObserveLogFrame("accepted")
	c.append(ctx, entry)
}

func (c *Client) append(ctx context.Context, entry LogEntry) {
	c.cache.Append(entry)
	metrics.SetLogCacheSize(c.cache.Len())
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, entry); err != nil {
		c.logger.Warn("publish live log entry failed", logutil.Fields{"error": err.Error(), "uuid": entry.UUID})
	}
}
