package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/schema"
	"github.com/wondertwin-ai/healthbridge/internal/twincore"
)

// decodeOptional decodes a JSON body into v. An empty body leaves v unchanged.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// RequestAuthorization handles POST /v1/authorization.
// Bridge results are always 200; failures are carried in the envelope.
func (h *Handler) RequestAuthorization(w http.ResponseWriter, r *http.Request) {
	var req schema.AuthorizationRequest
	if err := decodeOptional(r, &req); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, h.bridge.RequestAuthorization(r.Context(), req.Permissions))
}

// ReadData handles POST /v1/data/read.
func (h *Handler) ReadData(w http.ResponseWriter, r *http.Request) {
	var opts bridge.ReadOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		twincore.Error(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	twincore.JSON(w, http.StatusOK, h.bridge.ReadData(r.Context(), opts))
}

// CheckAppStatus handles GET /v1/app/status.
func (h *Handler) CheckAppStatus(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.bridge.CheckAppStatus(r.Context()))
}

// OpenApp handles POST /v1/app/open.
func (h *Handler) OpenApp(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.bridge.OpenApp(r.Context()))
}

// ListSchemas handles GET /v1/schemas.
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, map[string]any{"schemas": schema.Names()})
}

// GetSchema handles GET /v1/schemas/{name}.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc, err := schema.Generate(name)
	if errors.Is(err, schema.ErrUnknownSchema) {
		twincore.Error(w, http.StatusNotFound, "no such schema: '"+name+"'")
		return
	}
	if err != nil {
		twincore.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
