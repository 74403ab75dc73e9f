// Package client is a typed HTTP client for a running healthbridge twin:
// the /v1 bridge operations and the /admin control plane.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/device"
	"github.com/wondertwin-ai/healthbridge/internal/store"
	"github.com/wondertwin-ai/healthbridge/internal/twincore"
	"gopkg.in/yaml.v3"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client talks to a healthbridge twin.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Client with a 5-second timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the twin URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	switch o := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*o = data
		return nil
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding %s %s: %w", method, path, err)
		}
		return nil
	}
}

// RequestAuthorization calls POST /v1/authorization.
func (c *Client) RequestAuthorization(ctx context.Context, scopes []string) (bridge.Envelope, error) {
	var env bridge.Envelope
	err := c.do(ctx, http.MethodPost, "/v1/authorization", map[string]any{"permissions": scopes}, &env)
	return env, err
}

// ReadData calls POST /v1/data/read.
func (c *Client) ReadData(ctx context.Context, opts bridge.ReadOptions) (bridge.ReadResult, error) {
	var res bridge.ReadResult
	err := c.do(ctx, http.MethodPost, "/v1/data/read", opts, &res)
	return res, err
}

// CheckAppStatus calls GET /v1/app/status.
func (c *Client) CheckAppStatus(ctx context.Context) (bridge.AppStatus, error) {
	var st bridge.AppStatus
	err := c.do(ctx, http.MethodGet, "/v1/app/status", nil, &st)
	return st, err
}

// OpenApp calls POST /v1/app/open.
func (c *Client) OpenApp(ctx context.Context) (bridge.Envelope, error) {
	var env bridge.Envelope
	err := c.do(ctx, http.MethodPost, "/v1/app/open", nil, &env)
	return env, err
}

// Schema fetches GET /v1/schemas/{name}.
func (c *Client) Schema(ctx context.Context, name string) ([]byte, error) {
	var doc []byte
	err := c.do(ctx, http.MethodGet, "/v1/schemas/"+url.PathEscape(name), nil, &doc)
	return doc, err
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *Client) Health(ctx context.Context) (bool, string) {
	var body []byte
	if err := c.do(ctx, http.MethodGet, "/admin/health", nil, &body); err != nil {
		return false, err.Error()
	}
	return true, strings.TrimSpace(string(body))
}

// Ready calls GET /admin/ready and returns nil when every readiness check
// passes.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/admin/ready", nil, nil)
}

// WaitReady polls /admin/ready with exponential backoff until it succeeds,
// maxWait elapses or ctx is done.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
		backoff.WithMaxElapsedTime(maxWait),
	)
	err := backoff.Retry(func() error {
		return c.Ready(ctx)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("twin at %s not ready: %w", c.baseURL, err)
	}
	return nil
}

// Reset calls POST /admin/reset.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/reset", nil, nil)
}

// State returns GET /admin/state.
func (c *Client) State(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/admin/state", nil, &raw)
	return raw, err
}

// LoadState POSTs a JSON state document to /admin/state.
func (c *Client) LoadState(ctx context.Context, state []byte) error {
	return c.do(ctx, http.MethodPost, "/admin/state", state, nil)
}

// ReadSeedFile reads a JSON or YAML state document and returns it as JSON.
func ReadSeedFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing seed file: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("converting seed file: %w", err)
		}
	}
	return data, nil
}

// Seed loads a JSON or YAML seed file into the twin.
func (c *Client) Seed(ctx context.Context, filePath string) error {
	data, err := ReadSeedFile(filePath)
	if err != nil {
		return err
	}
	if err := c.LoadState(ctx, data); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	return nil
}

// Admin returns the raw JSON of GET /admin/{resource}, e.g. "requests".
func (c *Client) Admin(ctx context.Context, resource string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/admin/"+strings.TrimPrefix(resource, "/"), nil, &raw)
	return raw, err
}

// DeviceInfo is the body of GET /admin/device.
type DeviceInfo struct {
	Profile   string           `json:"profile"`
	Profiles  []string         `json:"profiles"`
	Packages  []device.Package `json:"packages"`
	Companion bridge.Companion `json:"companion"`
}

// Device returns the simulated device.
func (c *Client) Device(ctx context.Context) (DeviceInfo, error) {
	var info DeviceInfo
	err := c.do(ctx, http.MethodGet, "/admin/device", nil, &info)
	return info, err
}

// SwitchProfile resets the device to the named profile.
func (c *Client) SwitchProfile(ctx context.Context, profile string) error {
	return c.do(ctx, http.MethodPut, "/admin/device/profile", map[string]string{"profile": profile}, nil)
}

// InstallPackage installs or replaces pkg on the device.
func (c *Client) InstallPackage(ctx context.Context, pkg device.Package) error {
	return c.do(ctx, http.MethodPut, "/admin/device/packages/"+url.PathEscape(pkg.ID), pkg, nil)
}

// UninstallPackage removes a package from the device.
func (c *Client) UninstallPackage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/device/packages/"+url.PathEscape(id), nil, nil)
}

// Launches pages through the device launch history. limit <= 0 returns all.
func (c *Client) Launches(ctx context.Context, cursor string, limit int) (store.Page[device.Launch], error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/admin/launches"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page store.Page[device.Launch]
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// AdvanceTime moves the simulated clock forward.
func (c *Client) AdvanceTime(ctx context.Context, d time.Duration) error {
	return c.do(ctx, http.MethodPost, "/admin/time/advance", map[string]string{"duration": d.String()}, nil)
}

// InjectFault registers a fault for an endpoint path such as /v1/app/open.
func (c *Client) InjectFault(ctx context.Context, endpoint string, fault twincore.FaultConfig) error {
	return c.do(ctx, http.MethodPost, "/admin/fault/"+strings.TrimPrefix(endpoint, "/"), fault, nil)
}

// RemoveFault clears a fault.
func (c *Client) RemoveFault(ctx context.Context, endpoint string) error {
	return c.do(ctx, http.MethodDelete, "/admin/fault/"+strings.TrimPrefix(endpoint, "/"), nil, nil)
}

// FlushWebhooks delivers queued webhook events.
func (c *Client) FlushWebhooks(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/webhooks/flush", nil, nil)
}
