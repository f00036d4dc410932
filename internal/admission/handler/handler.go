// Package handler exposes the admission engine over HTTP for callers that
// consume it as a sidecar service rather than linking it as a library, plus
// operator endpoints for clearing blocks and inspecting keys.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"bastion/internal/admission/models"
	dErrors "bastion/pkg/domain-errors"

	"github.com/go-chi/chi/v5"
)

// AdmissionService is the engine surface the HTTP layer consumes.
type AdmissionService interface {
	Check(ctx context.Context, class models.EndpointClass, identity string) (*models.Decision, error)
	RecordFailure(ctx context.Context, class models.EndpointClass, identity string) error
	RecordSuccess(ctx context.Context, class models.EndpointClass, identity string) error
	Reset(ctx context.Context, class models.EndpointClass, identity string) error
	Inspect(ctx context.Context, class models.EndpointClass, identity string) (*models.Snapshot, error)
}

type Handler struct {
	service AdmissionService
	logger  *slog.Logger
}

func New(service AdmissionService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the admission API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/check", h.check)
	r.Post("/failure", h.recordFailure)
	r.Post("/success", h.recordSuccess)
	return r
}

// AdminRoutes mounts the operator endpoints. The caller is responsible for
// wrapping them in its own operator authentication.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/reset", h.reset)
	r.Get("/inspect", h.inspect)
	return r
}

type keyRequest struct {
	Class    string `json:"class"`
	Identity string `json:"identity"`
}

func (h *Handler) decodeKey(w http.ResponseWriter, r *http.Request) (keyRequest, bool) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return keyRequest{}, false
	}
	return req, true
}

// check returns the admission decision for a key. The decision itself is
// always a 200; only contract violations and internal failures are errors.
// Turning a denial into a 429 is the caller's concern.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeKey(w, r)
	if !ok {
		return
	}

	decision, err := h.service.Check(r.Context(), models.EndpointClass(req.Class), req.Identity)
	if err != nil {
		h.writeServiceError(w, err, "admission check failed")
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) recordFailure(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeKey(w, r)
	if !ok {
		return
	}

	if err := h.service.RecordFailure(r.Context(), models.EndpointClass(req.Class), req.Identity); err != nil {
		h.writeServiceError(w, err, "record failure failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) recordSuccess(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeKey(w, r)
	if !ok {
		return
	}

	if err := h.service.RecordSuccess(r.Context(), models.EndpointClass(req.Class), req.Identity); err != nil {
		h.writeServiceError(w, err, "record success failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeKey(w, r)
	if !ok {
		return
	}

	if err := h.service.Reset(r.Context(), models.EndpointClass(req.Class), req.Identity); err != nil {
		h.writeServiceError(w, err, "admission reset failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) inspect(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("class")
	identity := r.URL.Query().Get("identity")

	snap, err := h.service.Inspect(r.Context(), models.EndpointClass(class), identity)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			writeError(w, http.StatusNotFound, "no counter record for key")
			return
		}
		h.writeServiceError(w, err, "admission inspect failed")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error(logMsg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
