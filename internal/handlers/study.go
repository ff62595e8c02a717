package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"hanmadi-backend/internal/catalog"
	"hanmadi-backend/internal/middleware"
	"hanmadi-backend/internal/services"
)

type StudyHandler struct {
	catalog *catalog.Catalog
	study   *services.StudyService
}

func NewStudyHandler(cat *catalog.Catalog, study *services.StudyService) *StudyHandler {
	return &StudyHandler{catalog: cat, study: study}
}

// ListUnits is public: the catalog is static content.
func (h *StudyHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units := h.catalog.Units()

	out := make([]map[string]interface{}, 0, len(units))
	for _, unit := range units {
		out = append(out, map[string]interface{}{
			"unit":       unit,
			"card_count": h.catalog.Size(unit),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"units": out})
}

func (h *StudyHandler) GetCards(w http.ResponseWriter, r *http.Request) {
	unit := unitParam(r)
	if !h.catalog.Has(unit) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Unit not found", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unit":  unit,
		"cards": h.catalog.Cards(unit),
	})
}

type openRequest struct {
	// GuestID carries the learner's pre-login guest identity so their
	// device-local progress can be merged on first authenticated open.
	GuestID string `json:"guest_id"`
}

func (h *StudyHandler) Open(w http.ResponseWriter, r *http.Request) {
	unit := unitParam(r)
	subject := middleware.GetSubject(r.Context())

	var req openRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	view, err := h.study.Open(r.Context(), subject, unit, req.GuestID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *StudyHandler) State(w http.ResponseWriter, r *http.Request) {
	unit := unitParam(r)
	subject := middleware.GetSubject(r.Context())

	view, err := h.study.Open(r.Context(), subject, unit, "")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *StudyHandler) Act(w http.ResponseWriter, r *http.Request) {
	unit := unitParam(r)
	subject := middleware.GetSubject(r.Context())

	var action services.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if action.Type == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "type is required", r))
		return
	}

	view, err := h.study.Act(r.Context(), subject, unit, action)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *StudyHandler) Overview(w http.ResponseWriter, r *http.Request) {
	subject := middleware.GetSubject(r.Context())
	stats := h.study.Overview(r.Context(), subject)
	writeJSON(w, http.StatusOK, map[string]interface{}{"units": stats})
}

// unitParam decodes the unit path segment; lesson keys like "1과" arrive
// percent-encoded.
func unitParam(r *http.Request) string {
	raw := chi.URLParam(r, "unit")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
