// Package admin provides the /admin/* control plane of the healthbridge twin:
// state reset and seeding, fault injection, request inspection, simulated
// time, runtime configuration and liveness/readiness probes.
package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wondertwin-ai/healthbridge/internal/store"
	"github.com/wondertwin-ai/healthbridge/internal/twincore"
)

// StateStore is implemented by whatever holds the twin's resettable state.
type StateStore interface {
	// Snapshot returns the full state as a JSON-serializable value.
	Snapshot() any
	// LoadState replaces the full state from a JSON body.
	LoadState(data []byte) error
	// Reset restores the initial state.
	Reset()
}

// WebhookFlusher is implemented by a webhook dispatcher with queued events.
type WebhookFlusher interface {
	FlushWebhooks() error
}

// ConfigProvider exposes runtime configuration (implemented by twincore.Twin).
type ConfigProvider interface {
	GetConfig() map[string]any
	UpdateConfig(updates map[string]any) error
}

// Handler serves the admin endpoints.
type Handler struct {
	state   StateStore
	flusher WebhookFlusher
	config  ConfigProvider
	mw      *twincore.Middleware
	clock   *store.Clock

	health    healthcheck.Handler
	liveness  map[string]healthcheck.Check
	readiness map[string]healthcheck.Check
}

// NewHandler creates an admin handler. clock may be nil.
func NewHandler(state StateStore, mw *twincore.Middleware, clock *store.Clock) *Handler {
	h := &Handler{
		state:     state,
		mw:        mw,
		clock:     clock,
		health:    healthcheck.NewHandler(),
		liveness:  map[string]healthcheck.Check{},
		readiness: map[string]healthcheck.Check{},
	}
	h.addLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	return h
}

// ExportHealthMetrics mirrors every check as a
// healthbridge_healthcheck_status gauge in reg. Call it once.
func (h *Handler) ExportHealthMetrics(reg prometheus.Registerer) {
	h.health = healthcheck.NewMetricsHandler(reg, "healthbridge")
	for name, check := range h.liveness {
		h.health.AddLivenessCheck(name, check)
	}
	for name, check := range h.readiness {
		h.health.AddReadinessCheck(name, check)
	}
}

func (h *Handler) addLivenessCheck(name string, check healthcheck.Check) {
	h.liveness[name] = check
	h.health.AddLivenessCheck(name, check)
}

// SetFlusher sets the webhook flusher.
func (h *Handler) SetFlusher(f WebhookFlusher) {
	h.flusher = f
}

// SetConfigProvider enables GET/PATCH /admin/config.
func (h *Handler) SetConfigProvider(p ConfigProvider) {
	h.config = p
}

// AddReadinessCheck registers a check reported by /admin/ready.
func (h *Handler) AddReadinessCheck(name string, check func() error) {
	h.readiness[name] = check
	h.health.AddReadinessCheck(name, check)
}

// Routes mounts the admin endpoints on r. Routes are registered flat so
// twin-specific /admin/* endpoints can live on the same router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/admin/reset", h.handleReset)
	r.Get("/admin/state", h.handleGetState)
	r.Post("/admin/state", h.handleLoadState)
	r.Post("/admin/fault/*", h.handleInjectFault)
	r.Delete("/admin/fault/*", h.handleRemoveFault)
	r.Get("/admin/faults", h.handleListFaults)
	r.Get("/admin/requests", h.handleGetRequests)
	r.Post("/admin/webhooks/flush", h.handleFlushWebhooks)
	r.Post("/admin/time/advance", h.handleTimeAdvance)
	r.Get("/admin/time", h.handleGetTime)
	r.Get("/admin/config", h.handleGetConfig)
	r.Patch("/admin/config", h.handleUpdateConfig)
	r.Get("/admin/health", h.handleHealth)
	r.Get("/admin/live", h.handleLive)
	r.Get("/admin/ready", h.handleReady)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.state.Reset()
	h.mw.ReqLog.Clear()
	h.mw.Faults.Reset()
	if h.clock != nil {
		h.clock.Reset()
	}
	twincore.JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.state.Snapshot())
}

func (h *Handler) handleLoadState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		twincore.Error(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	if err := h.state.LoadState(body); err != nil {
		twincore.Error(w, http.StatusBadRequest, "failed to load state: "+err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

// faultPath turns the wildcard remainder into the request path it targets,
// so /admin/fault/v1/app/open registers a fault for /v1/app/open.
func faultPath(r *http.Request) string {
	return "/" + chi.URLParam(r, "*")
}

func (h *Handler) handleInjectFault(w http.ResponseWriter, r *http.Request) {
	endpoint := faultPath(r)

	var fault twincore.FaultConfig
	if err := json.NewDecoder(r.Body).Decode(&fault); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid fault config: "+err.Error())
		return
	}
	h.mw.Faults.Set(endpoint, fault)
	twincore.JSON(w, http.StatusOK, map[string]any{
		"status":   "injected",
		"endpoint": endpoint,
		"fault":    fault,
	})
}

func (h *Handler) handleRemoveFault(w http.ResponseWriter, r *http.Request) {
	endpoint := faultPath(r)
	if !h.mw.Faults.Remove(endpoint) {
		twincore.Error(w, http.StatusNotFound, "no fault registered for "+endpoint)
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{"status": "removed", "endpoint": endpoint})
}

func (h *Handler) handleListFaults(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.mw.Faults.All())
}

func (h *Handler) handleGetRequests(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.mw.ReqLog.Entries())
}

func (h *Handler) handleFlushWebhooks(w http.ResponseWriter, r *http.Request) {
	if h.flusher == nil {
		twincore.JSON(w, http.StatusOK, map[string]string{"status": "no webhooks configured"})
		return
	}
	if err := h.flusher.FlushWebhooks(); err != nil {
		twincore.Error(w, http.StatusInternalServerError, "flush failed: "+err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (h *Handler) handleTimeAdvance(w http.ResponseWriter, r *http.Request) {
	if h.clock == nil {
		twincore.Error(w, http.StatusBadRequest, "simulated clock not configured")
		return
	}

	var req struct {
		Duration string `json:"duration"` // e.g. "24h", "30m"
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	h.clock.Advance(d)
	twincore.JSON(w, http.StatusOK, map[string]any{
		"status":    "advanced",
		"duration":  d.String(),
		"offset":    h.clock.Offset().String(),
		"simulated": h.clock.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleGetTime(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"real": time.Now().Format(time.RFC3339)}
	if h.clock != nil {
		resp["simulated"] = h.clock.Now().Format(time.RFC3339)
		resp["offset"] = h.clock.Offset().String()
	}
	twincore.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if h.config == nil {
		twincore.Error(w, http.StatusNotFound, "runtime config not available")
		return
	}
	twincore.JSON(w, http.StatusOK, h.config.GetConfig())
}

func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if h.config == nil {
		twincore.Error(w, http.StatusNotFound, "runtime config not available")
		return
	}
	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid config update: "+err.Error())
		return
	}
	if err := h.config.UpdateConfig(updates); err != nil {
		twincore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, h.config.GetConfig())
}

// The probe handlers look up h.health per request so ExportHealthMetrics
// may run after Routes.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	h.health.LiveEndpoint(w, r)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	h.health.ReadyEndpoint(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
