package model

import (
	"encoding/json"
	"time"
)

// Ledger event types.
const (
	EventTransfer           = "transfer"
	EventPropertyRegistered = "property_registered"
	EventStatusChange       = "status_change"
	EventCorrection         = "correction"
)

// LedgerEntry is an immutable, append-only custody record. Sequence
// numbers are assigned by the ledger store at append time, strictly
// increasing and gapless; entries are never updated or deleted.
type LedgerEntry struct {
	Seq        int64           `json:"sequence_number"`
	TxID       string          `json:"transaction_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	RecordedBy int64           `json:"recorded_by"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// TransferPayload is the ledger payload written when a transfer is
// approved.
type TransferPayload struct {
	TransferID   int64     `json:"transfer_id"`
	PropertyID   int64     `json:"property_id"`
	SerialNumber string    `json:"serial_number"`
	PropertyName string    `json:"property_name"`
	FromUserID   int64     `json:"from_user_id"`
	ToUserID     int64     `json:"to_user_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// RegistrationPayload is the ledger payload written when a property
// is registered into the property book.
type RegistrationPayload struct {
	PropertyID   int64     `json:"property_id"`
	SerialNumber string    `json:"serial_number"`
	PropertyName string    `json:"property_name"`
	AssignedTo   *int64    `json:"assigned_to,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// StatusChangePayload is the ledger payload written when a property's
// status changes (e.g. active to damaged).
type StatusChangePayload struct {
	PropertyID   int64     `json:"property_id"`
	SerialNumber string    `json:"serial_number"`
	OldStatus    string    `json:"old_status"`
	NewStatus    string    `json:"new_status"`
	Timestamp    time.Time `json:"timestamp"`
}

// CorrectionPayload is the ledger payload written alongside a
// correction event, so the correction is itself part of the ledger.
type CorrectionPayload struct {
	EventID           string `json:"event_id"`
	OriginalEventID   string `json:"original_event_id"`
	OriginalEventType string `json:"original_event_type"`
	Reason            string `json:"reason"`
}

// CorrectionEvent amends a previously recorded event by annotation.
// It references the original by id and type and never mutates it;
// current truth for a corrected event is derived by folding its
// corrections in timestamp order over the original.
type CorrectionEvent struct {
	EventID             string    `json:"event_id"`
	OriginalEventID     string    `json:"original_event_id"`
	OriginalEventType   string    `json:"original_event_type"`
	Reason              string    `json:"reason"`
	CorrectingUserID    int64     `json:"correcting_user_id"`
	CorrectionTimestamp time.Time `json:"correction_timestamp"`
	LedgerTxID          *string   `json:"ledger_transaction_id,omitempty"`
	LedgerSeq           *int64    `json:"ledger_sequence_number,omitempty"`
}

// LedgerRecorded reports whether the original event type is one the
// ledger store records, and therefore whether a correction against it
// can be validated for existence.
func LedgerRecorded(eventType string) bool {
	switch eventType {
	case EventTransfer, EventPropertyRegistered, EventStatusChange, EventCorrection:
		return true
	}
	return false
}
