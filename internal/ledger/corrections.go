package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/propbook-app/propbook/internal/model"
)

// RecordCorrection appends a correction event referencing a previous
// event. The correction is itself recorded to the ledger in the same
// transaction, and the resulting transaction id and sequence number
// are stamped onto the correction.
//
// Existence of the original event is not checked here: corrections
// may reference event types this store has never seen. The caller
// validates existence where it can (see the corrections API handler).
func RecordCorrection(ctx context.Context, db *sql.DB, originalEventID, originalEventType, reason string, correctingUser int64) (*model.CorrectionEvent, error) {
	if strings.TrimSpace(originalEventID) == "" {
		return nil, fmt.Errorf("%w: original event id is required", model.ErrInvalidArgument)
	}
	if strings.TrimSpace(originalEventType) == "" {
		return nil, fmt.Errorf("%w: original event type is required", model.ErrInvalidArgument)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: a correction requires a reason", model.ErrInvalidArgument)
	}
	if correctingUser <= 0 {
		return nil, fmt.Errorf("%w: correcting user is required", model.ErrInvalidArgument)
	}

	event := &model.CorrectionEvent{
		EventID:             uuid.NewString(),
		OriginalEventID:     originalEventID,
		OriginalEventType:   originalEventType,
		Reason:              reason,
		CorrectingUserID:    correctingUser,
		CorrectionTimestamp: time.Now().UTC(),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning correction: %v", model.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	entry, err := AppendTx(ctx, tx, Draft{
		EventType: model.EventCorrection,
		Payload: model.CorrectionPayload{
			EventID:           event.EventID,
			OriginalEventID:   event.OriginalEventID,
			OriginalEventType: event.OriginalEventType,
			Reason:            event.Reason,
		},
		RecordedBy: correctingUser,
	})
	if err != nil {
		return nil, err
	}
	event.LedgerTxID = &entry.TxID
	event.LedgerSeq = &entry.Seq

	_, err = tx.ExecContext(ctx,
		`INSERT INTO correction_events
		     (event_id, original_event_id, original_event_type, reason,
		      correcting_user_id, correction_timestamp, ledger_tx_id, ledger_seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.OriginalEventID, event.OriginalEventType, event.Reason,
		event.CorrectingUserID, event.CorrectionTimestamp, event.LedgerTxID, event.LedgerSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: recording correction: %v", model.ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing correction: %v", model.ErrStorageUnavailable, err)
	}
	return event, nil
}

// GetCorrection returns the correction event with the given id.
func GetCorrection(ctx context.Context, db *sql.DB, eventID string) (*model.CorrectionEvent, error) {
	row := db.QueryRowContext(ctx,
		`SELECT event_id, original_event_id, original_event_type, reason,
		        correcting_user_id, correction_timestamp, ledger_tx_id, ledger_seq
		 FROM correction_events WHERE event_id = ?`, eventID,
	)

	event, err := scanCorrection(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: correction event %s", model.ErrNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: getting correction event: %v", model.ErrStorageUnavailable, err)
	}
	return event, nil
}

// CorrectionsForOriginal returns all corrections referencing the
// given original event, in ascending correction timestamp order. This
// is the fold order for deriving current truth from the original.
func CorrectionsForOriginal(ctx context.Context, db *sql.DB, originalEventID string) ([]model.CorrectionEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT event_id, original_event_id, original_event_type, reason,
		        correcting_user_id, correction_timestamp, ledger_tx_id, ledger_seq
		 FROM correction_events
		 WHERE original_event_id = ?
		 ORDER BY correction_timestamp, rowid`,
		originalEventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing corrections: %v", model.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	return scanCorrections(rows)
}

// ListCorrections returns the full correction audit trail in
// ascending timestamp order, paginated with limit and offset.
func ListCorrections(ctx context.Context, db *sql.DB, limit, offset int) ([]model.CorrectionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.QueryContext(ctx,
		`SELECT event_id, original_event_id, original_event_type, reason,
		        correcting_user_id, correction_timestamp, ledger_tx_id, ledger_seq
		 FROM correction_events
		 ORDER BY correction_timestamp, rowid
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing corrections: %v", model.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	return scanCorrections(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCorrection(row rowScanner) (*model.CorrectionEvent, error) {
	e := &model.CorrectionEvent{}
	var ledgerTxID sql.NullString
	var ledgerSeq sql.NullInt64
	err := row.Scan(&e.EventID, &e.OriginalEventID, &e.OriginalEventType, &e.Reason,
		&e.CorrectingUserID, &e.CorrectionTimestamp, &ledgerTxID, &ledgerSeq)
	if err != nil {
		return nil, err
	}
	if ledgerTxID.Valid {
		e.LedgerTxID = &ledgerTxID.String
	}
	if ledgerSeq.Valid {
		e.LedgerSeq = &ledgerSeq.Int64
	}
	return e, nil
}

func scanCorrections(rows *sql.Rows) ([]model.CorrectionEvent, error) {
	var events []model.CorrectionEvent
	for rows.Next() {
		e, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning correction event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
