// Package ledger implements the append-only custody ledger and its
// companion correction log. Entries are immutable once appended;
// amendments happen only through correction events that reference the
// original and never touch it.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/propbook-app/propbook/internal/model"
)

// Draft describes a ledger entry before the store finalizes it.
// TxID may be left empty, in which case the store assigns one.
type Draft struct {
	TxID       string
	EventType  string
	Payload    any
	RecordedBy int64
}

// Append finalizes and stores a draft in its own transaction. The
// returned entry carries the assigned sequence number and transaction
// id. On success the entry is durable and immediately retrievable.
func Append(ctx context.Context, db *sql.DB, d Draft) (*model.LedgerEntry, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning append: %v", model.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	entry, err := AppendTx(ctx, tx, d)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing append: %v", model.ErrStorageUnavailable, err)
	}
	return entry, nil
}

// AppendTx appends within an existing transaction, so callers can
// make a ledger write atomic with their own state change. The next
// sequence number is read and assigned inside the transaction; the
// database serializes write transactions, so sequences are unique and
// gapless under concurrent appends.
func AppendTx(ctx context.Context, tx *sql.Tx, d Draft) (*model.LedgerEntry, error) {
	if d.EventType == "" {
		return nil, fmt.Errorf("%w: event type is required", model.ErrInvalidArgument)
	}
	if d.RecordedBy <= 0 {
		return nil, fmt.Errorf("%w: recording actor is required", model.ErrInvalidArgument)
	}

	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding payload: %v", model.ErrInvalidArgument, err)
	}

	txID := d.TxID
	if txID == "" {
		txID = uuid.NewString()
	}

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM ledger_entries`,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("%w: reading last sequence number: %v", model.ErrStorageUnavailable, err)
	}

	entry := &model.LedgerEntry{
		Seq:        last + 1,
		TxID:       txID,
		EventType:  d.EventType,
		Payload:    payload,
		RecordedBy: d.RecordedBy,
		RecordedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (seq, tx_id, event_type, payload, recorded_by, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.TxID, entry.EventType, string(entry.Payload), entry.RecordedBy, entry.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: appending ledger entry: %v", model.ErrStorageUnavailable, err)
	}

	return entry, nil
}

// Get returns the entry with the given transaction id.
func Get(ctx context.Context, db *sql.DB, txID string) (*model.LedgerEntry, error) {
	entry := &model.LedgerEntry{}
	var payload string
	err := db.QueryRowContext(ctx,
		`SELECT seq, tx_id, event_type, payload, recorded_by, recorded_at
		 FROM ledger_entries WHERE tx_id = ?`, txID,
	).Scan(&entry.Seq, &entry.TxID, &entry.EventType, &payload, &entry.RecordedBy, &entry.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: ledger entry %s", model.ErrNotFound, txID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: getting ledger entry: %v", model.ErrStorageUnavailable, err)
	}
	entry.Payload = json.RawMessage(payload)
	return entry, nil
}

// payloadField restricts ListByPayloadField lookups to plain JSON keys.
var payloadField = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ListByPayloadField returns all entries whose payload has the given
// top-level field equal to value, in ascending sequence order. Used to
// reconstruct custody history, e.g. by serial_number.
func ListByPayloadField(ctx context.Context, db *sql.DB, field string, value any) ([]model.LedgerEntry, error) {
	if !payloadField.MatchString(field) {
		return nil, fmt.Errorf("%w: invalid payload field %q", model.ErrInvalidArgument, field)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT seq, tx_id, event_type, payload, recorded_by, recorded_at
		 FROM ledger_entries
		 WHERE json_extract(payload, ?) = ?
		 ORDER BY seq`,
		"$."+field, value,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing ledger entries: %v", model.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// List returns entries in ascending sequence order, optionally
// filtered by event type, paginated with limit and offset.
func List(ctx context.Context, db *sql.DB, eventType string, limit, offset int) ([]model.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT seq, tx_id, event_type, payload, recorded_by, recorded_at
	          FROM ledger_entries`
	var args []any

	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY seq LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing ledger entries: %v", model.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var payload string
		if err := rows.Scan(&e.Seq, &e.TxID, &e.EventType, &payload, &e.RecordedBy, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
