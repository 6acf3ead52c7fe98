package api

import (
	"database/sql"
	"net/http"

	"github.com/propbook-app/propbook/internal/ledger"
	"github.com/propbook-app/propbook/internal/store"
)

// LedgerHandler exposes read-only views over the custody ledger.
type LedgerHandler struct {
	DB *sql.DB
}

// List handles GET /api/ledger, optionally filtered by event_type,
// paginated with limit and offset.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	entries, err := ledger.List(r.Context(), h.DB, r.URL.Query().Get("event_type"), limit, offset)
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Get handles GET /api/ledger/{txid}.
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := ledger.Get(r.Context(), h.DB, r.PathValue("txid"))
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, entry)
}

// SerialHistory handles GET /api/ledger/serial/{serial}: the full
// event history for one serial number in ledger order.
func (h *LedgerHandler) SerialHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := store.SerialHistory(r.Context(), h.DB, r.PathValue("serial"))
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

type holderResponse struct {
	SerialNumber string `json:"serial_number"`
	HolderID     int64  `json:"holder_id"`
}

// CurrentHolder handles GET /api/ledger/serial/{serial}/holder: who
// holds the property according to the ledger.
func (h *LedgerHandler) CurrentHolder(w http.ResponseWriter, r *http.Request) {
	serial := r.PathValue("serial")
	holderID, err := store.CurrentHolder(r.Context(), h.DB, serial)
	if err != nil {
		domainError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, holderResponse{SerialNumber: serial, HolderID: holderID})
}
