// Package dashboard is a typed client for the bot's dashboard REST API.
// Every response is wrapped in an {status, message, data} envelope.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oremus-labs/ol-bot-console/internal/credentials"
)

// ErrUnauthorized is returned when the server rejects the bearer token.
var ErrUnauthorized = errors.New("dashboard: unauthorized")

// APIError reports an envelope whose status is not "ok".
type APIError struct {
	Path    string
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %q", e.Path, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Credentials credentials.Reader
	HTTPClient  *http.Client
	// CacheDir receives files fetched by GetFile. Defaults to a directory
	// under os.TempDir.
	CacheDir string
}

// Client talks to the dashboard API.
type Client struct {
	baseURL  string
	creds    credentials.Reader
	http     *http.Client
	cacheDir string

	mu        sync.Mutex
	startTime *float64
	market    []Plugin
	files     map[string]string
}

// New builds a Client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		creds:    opts.Credentials,
		http:     httpClient,
		cacheDir: opts.CacheDir,
		files:    make(map[string]string),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.creds != nil {
		token, err := c.creds.Get(ctx, "token")
		switch {
		case err == nil && token != "":
			req.Header.Set("Authorization", "Bearer "+token)
		case err != nil && !errors.Is(err, credentials.ErrNotFound):
			return nil, fmt.Errorf("read token: %w", err)
		}
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var env envelope
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&env) == nil && env.Message != "" {
			return nil, &APIError{Path: req.URL.Path, Status: resp.Status, Message: env.Message}
		}
		return nil, fmt.Errorf("%s %s failed: %s", req.Method, req.URL.Path, resp.Status)
	}
	return resp, nil
}

// do sends req and decodes the envelope's data into target when non-nil.
// It returns the envelope message.
func (c *Client) do(req *http.Request, target any) (string, error) {
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	if env.Status != "ok" {
		return "", &APIError{Path: req.URL.Path, Status: env.Status, Message: env.Message}
	}
	if target != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return "", fmt.Errorf("decode %s data: %w", req.URL.Path, err)
		}
	}
	return env.Message, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, target)
	return err
}

func (c *Client) post(ctx context.Context, path string, payload, target any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target)
}
