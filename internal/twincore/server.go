// Package twincore provides the base HTTP server, middleware chain and
// response helpers for the healthbridge twin.
package twincore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the server configuration. Latency, FailRate, Verbose and
// WebhookURL are runtime knobs and may change through the admin API.
type Config struct {
	Name       string
	Port       int
	Latency    time.Duration
	FailRate   float64
	WebhookURL string
	Verbose    bool
}

// Twin is the HTTP server for the simulated bridge. It wraps a chi router with
// the common middleware and owns the Prometheus registry the bridge reports to.
type Twin struct {
	Config   *Config
	Router   *chi.Mux
	Logger   *slog.Logger
	Registry *prometheus.Registry
	mw       *Middleware

	// onUpdate is notified after runtime config changes are applied.
	onUpdate []func(Config)
}

// NewLogger builds the JSON slog logger used across the twin.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// New creates a Twin with the given config.
func New(cfg *Config) *Twin {
	logger := NewLogger(cfg.Verbose).With("twin", cfg.Name)
	reg := prometheus.NewRegistry()

	r := chi.NewRouter()
	mw := NewMiddleware(*cfg, logger)
	mw.RegisterMetrics(reg)

	// Latency and failure middleware are always mounted; both check the
	// current settings per request, so admin updates apply immediately.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.CORS)
	r.Use(mw.RequestLog)
	r.Use(mw.LatencyInjection)
	r.Use(mw.RandomFailure)

	return &Twin{
		Config:   cfg,
		Router:   r,
		Logger:   logger,
		Registry: reg,
		mw:       mw,
	}
}

// Middleware returns the middleware instance (request log, fault registry).
func (t *Twin) Middleware() *Middleware {
	return t.mw
}

// OnConfigUpdate registers fn to run after a successful UpdateConfig.
func (t *Twin) OnConfigUpdate(fn func(Config)) {
	t.onUpdate = append(t.onUpdate, fn)
}

// GetConfig returns the current runtime configuration as a map.
// It implements admin.ConfigProvider.
func (t *Twin) GetConfig() map[string]any {
	s := t.mw.Settings()
	return map[string]any{
		"name":        t.Config.Name,
		"port":        t.Config.Port,
		"latency":     s.Latency.String(),
		"fail_rate":   s.FailRate,
		"webhook_url": s.WebhookURL,
		"verbose":     s.Verbose,
	}
}

// UpdateConfig validates every update before applying any of them.
// Only latency, fail_rate, verbose and webhook_url can change at runtime.
// It implements admin.ConfigProvider.
func (t *Twin) UpdateConfig(updates map[string]any) error {
	var (
		latency    *time.Duration
		failRate   *float64
		verbose    *bool
		webhookURL *string
	)

	for k, v := range updates {
		switch k {
		case "latency":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("latency must be a duration string")
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("invalid latency duration: %w", err)
			}
			if d < 0 {
				return fmt.Errorf("latency must not be negative")
			}
			latency = &d
		case "fail_rate":
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("fail_rate must be a number")
			}
			if f < 0 || f > 1 {
				return fmt.Errorf("fail_rate must be between 0.0 and 1.0")
			}
			failRate = &f
		case "verbose":
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("verbose must be a boolean")
			}
			verbose = &b
		case "webhook_url":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("webhook_url must be a string")
			}
			webhookURL = &s
		case "name", "port":
			return fmt.Errorf("%s cannot be changed at runtime", k)
		default:
			return fmt.Errorf("unknown config key: %s", k)
		}
	}

	applied := t.mw.update(func(c *Config) {
		if latency != nil {
			c.Latency = *latency
		}
		if failRate != nil {
			c.FailRate = *failRate
		}
		if verbose != nil {
			c.Verbose = *verbose
		}
		if webhookURL != nil {
			c.WebhookURL = *webhookURL
		}
	})
	for _, fn := range t.onUpdate {
		fn(applied)
	}
	return nil
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func (t *Twin) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", t.Config.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      t.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.Logger.Info("starting twin", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	t.Logger.Info("shutting down twin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeHTTP implements http.Handler so a Twin can be mounted in tests.
func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.Router.ServeHTTP(w, r)
}

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    http.StatusText(status),
			"code":    status,
		},
	})
}
