package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/propbook-app/propbook/internal/model"
	"github.com/propbook-app/propbook/internal/qr"
	"github.com/propbook-app/propbook/internal/store"
)

// TransfersHandler handles custody transfer endpoints.
type TransfersHandler struct {
	DB *sql.DB
	// QRSecret verifies scanned hand-off codes.
	QRSecret string
}

type createTransferRequest struct {
	SerialNumber string `json:"serial_number"`
	ToUserID     int64  `json:"to_user_id"`
}

type decideTransferRequest struct {
	Decision model.Decision `json:"decision"`
	Reason   string         `json:"reason"`
}

type scanHandoffRequest struct {
	Code string `json:"code"`
}

// Create handles POST /api/transfers. The acting user must be the
// current holder of the property; the transfer opens pending and
// nothing is ledgered until the recipient approves.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	transfer, err := store.CreateTransfer(r.Context(), h.DB, req.SerialNumber, claims.UserID, req.ToUserID)
	if err != nil {
		domainError(w, err)
		return
	}

	slog.Info("transfer opened",
		"transfer", transfer.ID, "serial_number", transfer.SerialNumber,
		"from", transfer.FromUsername, "to", transfer.ToUsername)
	jsonResponse(w, http.StatusCreated, transfer)
}

// List handles GET /api/transfers. The view query parameter partitions
// by the acting user's side: incoming, outgoing, or history; admins
// may omit it to see everything.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	view := r.URL.Query().Get("view")
	if view == "" && !model.RoleAtLeast(claims.Role, model.RoleManager) {
		view = model.TransferViewHistory
	}

	transfers, err := store.ListTransfers(r.Context(), h.DB, store.TransferFilter{
		View:         view,
		ActingUserID: claims.UserID,
		Status:       r.URL.Query().Get("status"),
		Search:       r.URL.Query().Get("q"),
	})
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	transfer, err := store.GetTransfer(r.Context(), h.DB, id)
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, transfer)
}

// Decide handles POST /api/transfers/{id}/decision. Only the recipient
// may decide, a rejection requires a reason, and a resolved transfer
// stays resolved; violations map to 403, 400, and 409 respectively.
func (h *TransfersHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	var req decideTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	transfer, err := store.DecideTransfer(r.Context(), h.DB, id, claims.UserID, req.Decision, req.Reason)
	if err != nil {
		domainError(w, err)
		return
	}

	slog.Info("transfer decided",
		"transfer", transfer.ID, "serial_number", transfer.SerialNumber,
		"status", transfer.Status, "by", claims.Username)
	jsonResponse(w, http.StatusOK, transfer)
}

// Pending handles GET /api/transfers/pending: the acting user's
// approval inbox.
func (h *TransfersHandler) Pending(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	transfers, err := store.PendingApprovalsFor(r.Context(), h.DB, claims.UserID)
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// ScanHandoff handles POST /api/transfers/handoff. The scanner submits
// a code minted by the property's holder; on verification a pending
// transfer opens from the holder to the scanner.
func (h *TransfersHandler) ScanHandoff(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req scanHandoffRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload, err := qr.Verify(h.QRSecret, req.Code, time.Now())
	if err != nil {
		domainError(w, err)
		return
	}

	transfer, err := store.CreateTransfer(r.Context(), h.DB, payload.SerialNumber, payload.HolderID, claims.UserID)
	if err != nil {
		domainError(w, err)
		return
	}

	slog.Info("transfer opened from hand-off code",
		"transfer", transfer.ID, "serial_number", transfer.SerialNumber,
		"from", transfer.FromUsername, "to", transfer.ToUsername)
	jsonResponse(w, http.StatusCreated, transfer)
}
