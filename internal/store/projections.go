package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/propbook-app/propbook/internal/ledger"
	"github.com/propbook-app/propbook/internal/model"
)

// Read views derived from the ledger and correction log. Nothing in
// this file writes; queries are safe to run concurrently with ongoing
// decisions and observe either the pre- or post-decision state, never
// a partial one.

// CurrentHolder returns the user currently holding the property with
// the given serial number: the recipient of the latest approved
// transfer on the ledger, or the registered holder if the property
// has never been transferred.
func CurrentHolder(ctx context.Context, db *sql.DB, serialNumber string) (int64, error) {
	var payload string
	err := db.QueryRowContext(ctx,
		`SELECT payload FROM ledger_entries
		 WHERE event_type = ? AND json_extract(payload, '$.serial_number') = ?
		 ORDER BY seq DESC LIMIT 1`,
		model.EventTransfer, serialNumber,
	).Scan(&payload)
	if err == nil {
		var p model.TransferPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return 0, fmt.Errorf("decoding transfer payload: %w", err)
		}
		return p.ToUserID, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("%w: querying custody history: %v", model.ErrStorageUnavailable, err)
	}

	// No recorded transfer yet: fall back to the registered holder.
	property, err := GetPropertyBySerial(ctx, db, serialNumber)
	if err != nil {
		return 0, err
	}
	if property == nil {
		return 0, fmt.Errorf("%w: property with serial number %s", model.ErrNotFound, serialNumber)
	}
	if property.AssignedTo == nil {
		return 0, fmt.Errorf("%w: property %s has no holder", model.ErrNotFound, serialNumber)
	}
	return *property.AssignedTo, nil
}

// SerialHistory returns the full ledger history for a serial number
// in ascending sequence order.
func SerialHistory(ctx context.Context, db *sql.DB, serialNumber string) ([]model.LedgerEntry, error) {
	return ledger.ListByPayloadField(ctx, db, "serial_number", serialNumber)
}

// CorrectionHistory returns all corrections for an event in fold
// order (ascending correction timestamp).
func CorrectionHistory(ctx context.Context, db *sql.DB, eventID string) ([]model.CorrectionEvent, error) {
	return ledger.CorrectionsForOriginal(ctx, db, eventID)
}

// PendingApprovalsFor returns the transfers awaiting a decision from
// the given user.
func PendingApprovalsFor(ctx context.Context, db *sql.DB, userID int64) ([]model.Transfer, error) {
	return ListTransfers(ctx, db, TransferFilter{
		View:         model.TransferViewIncoming,
		ActingUserID: userID,
		Status:       model.TransferPending,
	})
}
