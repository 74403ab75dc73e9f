package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wondertwin-ai/healthbridge/internal/admin"
	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/device"
	"github.com/wondertwin-ai/healthbridge/internal/provider"
	"github.com/wondertwin-ai/healthbridge/internal/store"
	"github.com/wondertwin-ai/healthbridge/internal/twincore"
	"github.com/wondertwin-ai/healthbridge/internal/webhook"
)

// DefaultPort is the port the twin listens on when none is configured.
const DefaultPort = 4330

// Config assembles a Server.
type Config struct {
	Twin      twincore.Config
	Provider  provider.Config
	Companion bridge.Companion
	// Profile is the initial device profile. Nil loads the default profile.
	Profile *device.Profile

	WebhookSecret   string
	WebhookPoolSize int
}

// Server is a fully wired twin: simulated device, provider, bridge, webhook
// dispatcher, API routes and the admin control plane.
type Server struct {
	Twin       *twincore.Twin
	Clock      *store.Clock
	Device     *device.Simulator
	Provider   provider.HealthDataProvider
	Bridge     *bridge.HealthBridge
	Dispatcher *webhook.Dispatcher
	Admin      *admin.Handler
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Twin.Name == "" {
		cfg.Twin.Name = "healthbridge"
	}
	if cfg.Twin.Port == 0 {
		cfg.Twin.Port = DefaultPort
	}

	twin := twincore.New(&cfg.Twin)
	clock := store.NewClock()

	profile := cfg.Profile
	if profile == nil {
		var err error
		if profile, err = device.LoadProfile(device.DefaultProfile); err != nil {
			return nil, err
		}
	}
	sim := device.NewSimulator(profile, clock, twin.Logger)

	cfg.Provider.Logger = twin.Logger
	prov, err := provider.New(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	b, err := bridge.New(bridge.Options{
		Locator:    sim,
		Launcher:   sim,
		Provider:   prov,
		Companion:  cfg.Companion,
		Logger:     twin.Logger,
		Registerer: twin.Registry,
		Now:        clock.Now,
	})
	if err != nil {
		return nil, err
	}

	// Webhook dispatcher with HMAC signing
	dispatcher, err := webhook.NewDispatcher(webhook.Config{
		URL:         cfg.Twin.WebhookURL,
		Secret:      cfg.WebhookSecret,
		Signer:      webhook.NewHMACSigner(),
		Logger:      twin.Logger,
		EventPrefix: "evt",
		AutoDeliver: cfg.Twin.WebhookURL != "",
		PoolSize:    cfg.WebhookPoolSize,
		Now:         clock.Now,
	})
	if err != nil {
		return nil, err
	}
	sim.SetNotifier(dispatcher)
	twin.OnConfigUpdate(func(c twincore.Config) {
		dispatcher.SetURL(c.WebhookURL)
	})

	// API handlers
	apiHandler := NewHandler(b, sim, twin.Middleware())
	apiHandler.Routes(twin.Router)
	MetricsRoute(twin.Router, twin.Registry)

	// Admin control plane
	adminHandler := admin.NewHandler(&twinState{device: sim, webhooks: dispatcher}, twin.Middleware(), clock)
	adminHandler.SetFlusher(dispatcher)
	adminHandler.SetConfigProvider(twin)
	adminHandler.AddReadinessCheck("provider", func() error {
		return prov.Authorize(context.Background(), nil)
	})
	adminHandler.ExportHealthMetrics(twin.Registry)
	adminHandler.Routes(twin.Router)

	return &Server{
		Twin:       twin,
		Clock:      clock,
		Device:     sim,
		Provider:   prov,
		Bridge:     b,
		Dispatcher: dispatcher,
		Admin:      adminHandler,
	}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Twin.ServeHTTP(w, r)
}

// Serve runs the twin until ctx is cancelled, then drains webhook delivery.
func (s *Server) Serve(ctx context.Context) error {
	err := s.Twin.Serve(ctx)
	if cerr := s.Dispatcher.Close(); cerr != nil {
		s.Twin.Logger.Warn("closing webhook dispatcher", "error", cerr)
	}
	return err
}

// twinState resets the device and the webhook queue together.
type twinState struct {
	device   *device.Simulator
	webhooks *webhook.Dispatcher
}

func (s *twinState) Snapshot() any {
	return s.device.Snapshot()
}

func (s *twinState) LoadState(data []byte) error {
	return s.device.LoadState(data)
}

func (s *twinState) Reset() {
	s.device.Reset()
	s.webhooks.Reset()
}
