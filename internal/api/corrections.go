package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/propbook-app/propbook/internal/ledger"
	"github.com/propbook-app/propbook/internal/model"
	"github.com/propbook-app/propbook/internal/store"
)

// CorrectionsHandler handles the correction log endpoints. Recording a
// correction requires manager role or above: corrections are the only
// way to amend the ledger, so they are gated the way a commander's
// adjustment memo would be.
type CorrectionsHandler struct {
	DB *sql.DB
}

type recordCorrectionRequest struct {
	OriginalEventID   string `json:"original_event_id"`
	OriginalEventType string `json:"original_event_type"`
	Reason            string `json:"reason"`
}

// Record handles POST /api/corrections. When the original event type
// is one the ledger records, the original must exist; corrections
// against foreign event types are accepted as-is.
func (h *CorrectionsHandler) Record(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req recordCorrectionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if model.LedgerRecorded(req.OriginalEventType) && req.OriginalEventID != "" {
		if _, err := ledger.Get(r.Context(), h.DB, req.OriginalEventID); err != nil {
			domainError(w, err)
			return
		}
	}

	event, err := ledger.RecordCorrection(r.Context(), h.DB,
		req.OriginalEventID, req.OriginalEventType, req.Reason, claims.UserID)
	if err != nil {
		domainError(w, err)
		return
	}

	slog.Info("correction recorded",
		"correction", event.EventID, "original", event.OriginalEventID, "by", claims.Username)
	jsonResponse(w, http.StatusCreated, event)
}

// List handles GET /api/corrections with limit and offset pagination.
func (h *CorrectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	events, err := ledger.ListCorrections(r.Context(), h.DB, limit, offset)
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, events)
}

// Get handles GET /api/corrections/{id}.
func (h *CorrectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := ledger.GetCorrection(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, event)
}

// ForOriginal handles GET /api/events/{id}/corrections: all
// corrections for an original event in fold order.
func (h *CorrectionsHandler) ForOriginal(w http.ResponseWriter, r *http.Request) {
	events, err := store.CorrectionHistory(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, events)
}

// pagination reads limit and offset query parameters. Bounds are
// enforced by the stores.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
