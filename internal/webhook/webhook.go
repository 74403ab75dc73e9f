// Package webhook delivers device events to an outbound HTTP endpoint with
// retry and optional HMAC signing.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
)

// Signer signs webhook payloads.
type Signer interface {
	// Sign returns headers to add to the delivery request.
	Sign(payload []byte, secret string) map[string]string
}

// Event is a queued webhook event.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// Delivery records one delivery attempt.
type Delivery struct {
	EventID    string    `json:"event_id"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
}

// Config configures a Dispatcher.
type Config struct {
	URL         string
	Secret      string
	Signer      Signer
	Logger      *slog.Logger
	MaxRetries  int
	RetryDelay  time.Duration
	EventPrefix string
	// AutoDeliver delivers each event in the background as it is queued.
	AutoDeliver bool
	// PoolSize bounds concurrent background deliveries. Defaults to 8.
	PoolSize int
	Now      func() time.Time
}

// Dispatcher queues events and delivers them to the configured URL.
type Dispatcher struct {
	mu          sync.RWMutex
	url         string
	secret      string
	signer      Signer
	logger      *slog.Logger
	queue       []Event
	deliveries  []Delivery
	maxRetries  int
	retryDelay  time.Duration
	client      *http.Client
	eventPrefix string
	counter     int
	autoDeliver bool
	now         func() time.Time

	pool     *ants.Pool
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher. The background pool is only created
// when AutoDeliver is set.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.EventPrefix == "" {
		cfg.EventPrefix = "evt"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	d := &Dispatcher{
		url:         cfg.URL,
		secret:      cfg.Secret,
		signer:      cfg.Signer,
		logger:      cfg.Logger.With("component", "webhook"),
		queue:       make([]Event, 0),
		deliveries:  make([]Delivery, 0),
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		client:      &http.Client{Timeout: 30 * time.Second},
		eventPrefix: cfg.EventPrefix,
		autoDeliver: cfg.AutoDeliver,
		now:         cfg.Now,
	}

	if cfg.AutoDeliver {
		pool, err := ants.NewPool(cfg.PoolSize, ants.WithPanicHandler(func(p any) {
			d.logger.Error("panic delivering webhook", "panic", p)
		}))
		if err != nil {
			return nil, fmt.Errorf("creating delivery pool: %w", err)
		}
		d.pool = pool
	}
	return d, nil
}

// SetURL updates the delivery URL. An empty URL disables delivery.
func (d *Dispatcher) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
}

// URL returns the current delivery URL.
func (d *Dispatcher) URL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.url
}

// Enqueue adds an event to the queue and, with AutoDeliver, schedules its
// delivery on the pool.
func (d *Dispatcher) Enqueue(eventType string, payload map[string]any) Event {
	d.mu.Lock()
	d.counter++
	evt := Event{
		ID:        fmt.Sprintf("%s_%06d", d.eventPrefix, d.counter),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: d.now(),
	}
	d.queue = append(d.queue, evt)
	d.mu.Unlock()

	if d.autoDeliver {
		d.submit(evt)
	}
	return evt
}

// Notify implements device.Notifier.
func (d *Dispatcher) Notify(eventType string, payload map[string]any) {
	d.Enqueue(eventType, payload)
}

func (d *Dispatcher) submit(evt Event) {
	d.inflight.Add(1)
	err := d.pool.Submit(func() {
		defer d.inflight.Done()
		if err := d.deliverEvent(context.Background(), evt); err != nil {
			d.logger.Warn("webhook delivery failed", "event_id", evt.ID, "error", err)
			return
		}
		d.dequeue(evt.ID)
	})
	if err != nil {
		d.inflight.Done()
		d.logger.Warn("webhook not scheduled", "event_id", evt.ID, "error", err)
	}
}

func (d *Dispatcher) dequeue(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, evt := range d.queue {
		if evt.ID == id {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return
		}
	}
}

// Flush delivers every queued event synchronously and empties the queue. It
// returns the last delivery error, if any.
func (d *Dispatcher) Flush() error {
	d.mu.Lock()
	events := d.queue
	d.queue = make([]Event, 0)
	d.mu.Unlock()

	var lastErr error
	for _, evt := range events {
		if err := d.deliverEvent(context.Background(), evt); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// FlushWebhooks implements admin.WebhookFlusher.
func (d *Dispatcher) FlushWebhooks() error {
	return d.Flush()
}

// Wait blocks until background deliveries finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close waits for background deliveries and releases the pool.
func (d *Dispatcher) Close() error {
	d.inflight.Wait()
	if d.pool == nil {
		return nil
	}
	return d.pool.ReleaseTimeout(5 * time.Second)
}

func (d *Dispatcher) deliverEvent(ctx context.Context, evt Event) error {
	d.mu.RLock()
	url := d.url
	secret := d.secret
	signer := d.signer
	d.mu.RUnlock()

	if url == "" {
		d.logger.Debug("no webhook URL configured, skipping delivery", "event_id", evt.ID)
		return nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if signer != nil && secret != "" {
			for k, v := range signer.Sign(payload, secret) {
				req.Header.Set(k, v)
			}
		}

		delivery := Delivery{
			EventID:   evt.ID,
			URL:       url,
			Attempt:   attempt,
			Timestamp: d.now(),
		}
		resp, err := d.client.Do(req)
		if err != nil {
			delivery.Error = err.Error()
			d.record(delivery)
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		delivery.StatusCode = resp.StatusCode
		d.record(delivery)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook delivery failed: status %d", resp.StatusCode)
		}
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.retryDelay), uint64(d.maxRetries-1)),
		ctx,
	)
	return backoff.Retry(op, b)
}

func (d *Dispatcher) record(delivery Delivery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery)
}

// Deliveries returns all delivery records.
func (d *Dispatcher) Deliveries() []Delivery {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Delivery, len(d.deliveries))
	copy(out, d.deliveries)
	return out
}

// QueuedEvents returns events not yet delivered.
func (d *Dispatcher) QueuedEvents() []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Event, len(d.queue))
	copy(out, d.queue)
	return out
}

// Reset clears the queue, deliveries and the event counter.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = d.queue[:0]
	d.deliveries = d.deliveries[:0]
	d.counter = 0
}
