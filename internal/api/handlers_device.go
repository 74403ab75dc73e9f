package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wondertwin-ai/healthbridge/internal/device"
	"github.com/wondertwin-ai/healthbridge/internal/twincore"
)

// GetDevice handles GET /admin/device.
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, map[string]any{
		"profile":   h.device.Profile(),
		"profiles":  device.BuiltinProfiles(),
		"packages":  h.device.Packages(),
		"companion": h.bridge.Companion(),
	})
}

// SwitchProfile handles PUT /admin/device/profile. The body names a built-in
// profile; the device resets to it. Profile files are only read at startup.
func (h *Handler) SwitchProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile string `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	p, err := device.BuiltinProfile(req.Profile)
	if err != nil {
		twincore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.device.SwitchProfile(p)
	twincore.JSON(w, http.StatusOK, map[string]any{
		"profile":  h.device.Profile(),
		"packages": h.device.Packages(),
	})
}

// InstallPackage handles PUT /admin/device/packages/{id}.
func (h *Handler) InstallPackage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var pkg device.Package
	if err := json.NewDecoder(r.Body).Decode(&pkg); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if pkg.ID != "" && pkg.ID != id {
		twincore.Error(w, http.StatusBadRequest, "package id '"+pkg.ID+"' does not match path '"+id+"'")
		return
	}
	pkg.ID = id
	if pkg.Name == "" {
		pkg.Name = id
	}

	h.device.Install(pkg)
	twincore.JSON(w, http.StatusOK, pkg)
}

// UninstallPackage handles DELETE /admin/device/packages/{id}.
func (h *Handler) UninstallPackage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.device.Uninstall(id) {
		twincore.Error(w, http.StatusNotFound, "No such package: '"+id+"'")
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// ListLaunches handles GET /admin/launches?cursor=&limit=.
func (h *Handler) ListLaunches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			twincore.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	twincore.JSON(w, http.StatusOK, h.device.Launches(r.URL.Query().Get("cursor"), limit))
}
