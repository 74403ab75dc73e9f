// Package api serves the bridge operations and the simulated device over
// HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/device"
	"github.com/wondertwin-ai/healthbridge/internal/twincore"
)

// Handler holds all API handler state.
type Handler struct {
	bridge *bridge.HealthBridge
	device *device.Simulator
	mw     *twincore.Middleware
}

// NewHandler creates a new API handler.
func NewHandler(b *bridge.HealthBridge, sim *device.Simulator, mw *twincore.Middleware) *Handler {
	return &Handler{bridge: b, device: sim, mw: mw}
}

// Routes mounts the v1 bridge routes and the device admin endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		// Fault injection for API routes (not admin)
		r.Use(h.mw.FaultInjection)

		r.Post("/authorization", h.RequestAuthorization)
		r.Post("/data/read", h.ReadData)
		r.Get("/app/status", h.CheckAppStatus)
		r.Post("/app/open", h.OpenApp)

		r.Get("/schemas", h.ListSchemas)
		r.Get("/schemas/{name}", h.GetSchema)
	})

	// Device endpoints (outside /v1, no fault injection)
	r.Get("/admin/device", h.GetDevice)
	r.Put("/admin/device/profile", h.SwitchProfile)
	r.Put("/admin/device/packages/{id}", h.InstallPackage)
	r.Delete("/admin/device/packages/{id}", h.UninstallPackage)
	r.Get("/admin/launches", h.ListLaunches)
}

// MetricsRoute mounts GET /metrics for the given registry.
func MetricsRoute(r chi.Router, reg *prometheus.Registry) {
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
