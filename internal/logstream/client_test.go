package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/ol-bot-console/internal/credentials"
)

// upstream is a fake live log endpoint. handle receives the 1-based attempt
// number so tests can script behaviour per connection.
type upstream struct {
	srv      *httptest.Server
	attempts atomic.Int32

	mu      sync.Mutex
	headers []http.Header
}

func newUpstream(t *testing.T, handle func(attempt int, w http.ResponseWriter, r *http.Request)) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(u.attempts.Add(1))
		u.mu.Lock()
		u.headers = append(u.headers, r.Header.Clone())
		u.mu.Unlock()
		handle(n, w, r)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) header(i int) http.Header {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.headers[i]
}

func writeFrames(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, f := range frames {
		_, _ = io.WriteString(w, f)
	}
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

// holdOpen keeps the response body open until the client goes away.
func holdOpen(r *http.Request) {
	<-r.Context().Done()
}

func newTestClient(t *testing.T, u *upstream, opts Options) *Client {
	t.Helper()
	opts.Endpoint = u.srv.URL
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	c := New(opts)
	t.Cleanup(c.Stop)
	return c
}

func TestClientCachesFramesAndAssignsIDs(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w,
			"data: {\"level\":\"INFO\",\"data\":\"x\"}\n\n",
			"data: {\"uuid\":\"keep-me\",\"level\":\"DEBUG\",\"data\":\"y\"}\n\n",
		)
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{Credentials: credentials.Static{"token": "abc"}})
	c.Start()

	require.Eventually(t, func() bool { return len(c.Cache()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.True(t, c.Connected())

	entries := c.Cache()
	require.Equal(t, "INFO", entries[0].Level)
	require.Equal(t, "x", entries[0].Data)
	require.Regexp(t, uuidV4Pattern, entries[0].UUID)
	require.Equal(t, "keep-me", entries[1].UUID)

	h := u.header(0)
	require.Equal(t, "Bearer abc", h.Get("Authorization"))
	require.Equal(t, "text/event-stream", h.Get("Accept"))
	require.Equal(t, "no-cache", h.Get("Cache-Control"))
	require.Empty(t, h.Get("Content-Type"))
}

func TestClientOmitsAuthorizationWithoutToken(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w)
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{Credentials: credentials.Static{}, LegacyContentType: true})
	c.Start()

	require.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
	h := u.header(0)
	require.Empty(t, h.Get("Authorization"))
	require.Equal(t, "multipart/form-data", h.Get("Content-Type"))
}

func TestClientStartIsIdempotent(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w)
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{})
	c.Start()
	c.Start()
	require.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
	c.Start()

	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 1, u.attempts.Load())
}

func TestClientSkipsMalformedFrames(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w,
			"data: {\"data\":\"first\"}\n\n",
			"data: {not json}\n\n",
			"data: [1,2,3]\n\n",
			"data: {\"data\":\"second\"}\n\n",
		)
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{})
	c.Start()

	require.Eventually(t, func() bool { return len(c.Cache()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"first", "second"}, dataOf(c.Cache()))
}

func TestClientBoundsCache(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		var frames []string
		for _, d := range []string{"A", "B", "C", "D", "E"} {
			frames = append(frames, fmt.Sprintf("data: {\"data\":%q}\n\n", d))
		}
		writeFrames(w, frames...)
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{CacheSize: 3})
	c.Start()

	require.Eventually(t, func() bool {
		entries := c.Cache()
		return len(entries) == 3 && entries[2].Data == "E"
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"C", "D", "E"}, dataOf(c.Cache()))
	require.Equal(t, 3, c.CacheMax())
}

func TestClientRecordsErrorAndReconnects(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(attempt int, w http.ResponseWriter, r *http.Request) {
		if attempt == 1 {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		writeFrames(w, "data: {\"data\":\"recovered\"}\n\n")
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{ErrorDelay: 50 * time.Millisecond, ClosedDelay: time.Minute})
	c.Start()

	require.Eventually(t, func() bool { return len(c.Cache()) == 2 }, 2*time.Second, 10*time.Millisecond)
	entries := c.Cache()
	require.Equal(t, "ERROR", entries[0].Level)
	require.Equal(t, "log", entries[0].Type)
	require.True(t, strings.HasPrefix(entries[0].UUID, "error-"))
	require.Contains(t, entries[0].Data, "401 Unauthorized")
	require.Contains(t, entries[0].Data, "retrying in 50ms")
	require.Equal(t, "recovered", entries[1].Data)
	require.EqualValues(t, 2, u.attempts.Load())
}

func TestClientReconnectsAfterCleanClose(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(attempt int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w, fmt.Sprintf("data: {\"data\":\"attempt-%d\"}\n\n", attempt))
		if attempt > 1 {
			holdOpen(r)
		}
	})
	c := newTestClient(t, u, Options{ClosedDelay: 50 * time.Millisecond, ErrorDelay: time.Minute})
	c.Start()

	require.Eventually(t, func() bool { return len(c.Cache()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"attempt-1", "attempt-2"}, dataOf(c.Cache()))
}

func TestClientStopCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	c := newTestClient(t, u, Options{ErrorDelay: 300 * time.Millisecond})
	c.Start()

	require.Eventually(t, func() bool { return len(c.Cache()) == 1 }, 2*time.Second, 5*time.Millisecond)
	c.Stop()

	time.Sleep(600 * time.Millisecond)
	require.EqualValues(t, 1, u.attempts.Load())
	require.False(t, c.Connected())
	require.Len(t, c.Cache(), 1)
}

func TestClientStopWhileConnectedIsSilent(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w, "data: {\"data\":\"only\"}\n\n")
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{ClosedDelay: 20 * time.Millisecond, ErrorDelay: 20 * time.Millisecond})
	c.Start()

	require.Eventually(t, func() bool { return len(c.Cache()) == 1 }, 2*time.Second, 10*time.Millisecond)
	c.Stop()
	require.False(t, c.Connected())

	time.Sleep(200 * time.Millisecond)
	require.EqualValues(t, 1, u.attempts.Load())
	require.Equal(t, []string{"only"}, dataOf(c.Cache()))
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("vault sealed")
}

func TestClientCredentialFailureIsAStreamError(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w)
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{Credentials: failingStore{}, ErrorDelay: time.Minute})
	c.Start()

	require.Eventually(t, func() bool { return len(c.Cache()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, c.Cache()[0].Data, "vault sealed")
	require.EqualValues(t, 0, u.attempts.Load())
}

type recordingPublisher struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (p *recordingPublisher) Publish(_ context.Context, e LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func TestClientPublishesCachedEntries(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w, "data: {\"data\":\"a\"}\n\ndata: {\"data\":\"b\"}\n\n")
		holdOpen(r)
	})
	pub := &recordingPublisher{}
	c := newTestClient(t, u, Options{Publisher: pub})
	c.Start()

	require.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientRunStopsWithContext(t *testing.T) {
	t.Parallel()

	u := newUpstream(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		writeFrames(w)
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	require.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.False(t, c.Connected())
}

func TestClientReportsLifecycleEvents(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		kinds []string
	)
	record := func(evt StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, evt.Kind)
	}
	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), kinds...)
	}

	u := newUpstream(t, func(attempt int, w http.ResponseWriter, r *http.Request) {
		if attempt == 1 {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		writeFrames(w)
		holdOpen(r)
	})
	c := newTestClient(t, u, Options{ErrorDelay: 100 * time.Millisecond, OnEvent: record})
	c.Start()

	require.Eventually(t, func() bool { return len(seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	c.Stop()
	require.Equal(t, []string{EventError, EventOpened, EventStopped}, seen())
}
