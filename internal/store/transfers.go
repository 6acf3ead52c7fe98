package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/propbook-app/propbook/internal/ledger"
	"github.com/propbook-app/propbook/internal/model"
)

// CreateTransfer opens a pending custody transfer for the property
// with the given serial number. The ledger is not touched until the
// recipient approves.
func CreateTransfer(ctx context.Context, db *sql.DB, serialNumber string, fromUserID, toUserID int64) (*model.Transfer, error) {
	if serialNumber == "" || fromUserID <= 0 || toUserID <= 0 {
		return nil, fmt.Errorf("%w: serial number, from, and to are required", model.ErrInvalidArgument)
	}
	if fromUserID == toUserID {
		return nil, fmt.Errorf("%w: cannot transfer property to its current holder", model.ErrInvalidArgument)
	}

	property, err := GetPropertyBySerial(ctx, db, serialNumber)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, fmt.Errorf("%w: property with serial number %s", model.ErrNotFound, serialNumber)
	}
	if property.AssignedTo == nil || *property.AssignedTo != fromUserID {
		return nil, fmt.Errorf("%w: transfer must originate from the current holder", model.ErrInvalidArgument)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO transfers (property_id, from_user_id, to_user_id) VALUES (?, ?, ?)`,
		property.ID, fromUserID, toUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transfer id: %w", err)
	}

	return GetTransfer(ctx, db, id)
}

const transferColumns = `t.id, t.property_id, t.from_user_id, t.to_user_id, t.status, t.reason,
	        t.created_at, t.resolved_at,
	        p.name AS property_name, p.serial_number,
	        fu.username AS from_username, tu.username AS to_username`

const transferJoins = ` FROM transfers t
	 JOIN properties p ON p.id = t.property_id
	 JOIN users fu ON fu.id = t.from_user_id
	 JOIN users tu ON tu.id = t.to_user_id`

// GetTransfer returns a transfer by ID.
func GetTransfer(ctx context.Context, db *sql.DB, id int64) (*model.Transfer, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+transferColumns+transferJoins+` WHERE t.id = ?`, id,
	)
	t, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transfer %d", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// DecideTransfer resolves a pending transfer. The status flip, the
// holder reassignment, and the ledger append run in one transaction:
// readers either see the transfer pending with no ledger entry, or
// terminal with its entry durable. A failed ledger append rolls the
// decision back entirely.
func DecideTransfer(ctx context.Context, db *sql.DB, transferID, actingUserID int64, decision model.Decision, reason string) (*model.Transfer, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning decision: %v", model.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	t := &model.Transfer{}
	err = tx.QueryRowContext(ctx,
		`SELECT `+transferColumns+transferJoins+` WHERE t.id = ?`, transferID,
	).Scan(scanTransferDest(t)...)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transfer %d", model.ErrNotFound, transferID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading transfer: %v", model.ErrStorageUnavailable, err)
	}

	now := time.Now().UTC()
	if err := t.Decide(actingUserID, decision, reason, now); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE transfers SET status = ?, reason = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		t.Status, nullableString(t.Reason), now, t.ID, model.TransferPending,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving transfer: %v", model.ErrStorageUnavailable, err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return nil, fmt.Errorf("%w: transfer %d was already resolved", model.ErrInvalidStateTransition, t.ID)
	}

	if t.Status == model.TransferApproved {
		_, err = tx.ExecContext(ctx,
			`UPDATE properties SET assigned_to = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			t.ToUserID, t.PropertyID,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: reassigning property: %v", model.ErrStorageUnavailable, err)
		}

		_, err = ledger.AppendTx(ctx, tx, ledger.Draft{
			EventType: model.EventTransfer,
			Payload: model.TransferPayload{
				TransferID:   t.ID,
				PropertyID:   t.PropertyID,
				SerialNumber: t.SerialNumber,
				PropertyName: t.PropertyName,
				FromUserID:   t.FromUserID,
				ToUserID:     t.ToUserID,
				Timestamp:    now,
			},
			RecordedBy: actingUserID,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing decision: %v", model.ErrStorageUnavailable, err)
	}

	return GetTransfer(ctx, db, t.ID)
}

// TransferFilter narrows ListTransfers results.
type TransferFilter struct {
	// View partitions by the acting user's side of the transfer:
	// incoming (user is recipient), outgoing (user is sender), or
	// history (either side). Empty means no user filter.
	View         string
	ActingUserID int64
	Status       string
	// Search matches property name or serial number.
	Search string
}

// ListTransfers returns transfers matching the filter, newest first.
func ListTransfers(ctx context.Context, db *sql.DB, f TransferFilter) ([]model.Transfer, error) {
	query := `SELECT ` + transferColumns + transferJoins + ` WHERE 1=1`
	var args []any

	switch f.View {
	case "":
	case model.TransferViewIncoming:
		query += ` AND t.to_user_id = ?`
		args = append(args, f.ActingUserID)
	case model.TransferViewOutgoing:
		query += ` AND t.from_user_id = ?`
		args = append(args, f.ActingUserID)
	case model.TransferViewHistory:
		query += ` AND (t.from_user_id = ? OR t.to_user_id = ?)`
		args = append(args, f.ActingUserID, f.ActingUserID)
	default:
		return nil, fmt.Errorf("%w: unknown view %q", model.ErrInvalidArgument, f.View)
	}

	if f.Status != "" {
		query += ` AND t.status = ?`
		args = append(args, f.Status)
	}
	if f.Search != "" {
		query += ` AND (p.name LIKE ? OR p.serial_number LIKE ?)`
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}

	query += ` ORDER BY t.created_at DESC, t.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		t := &model.Transfer{}
		if err := rows.Scan(scanTransferDest(t)...); err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

func scanTransfer(row rowScanner) (*model.Transfer, error) {
	t := &model.Transfer{}
	if err := row.Scan(scanTransferDest(t)...); err != nil {
		return nil, err
	}
	return t, nil
}

// scanTransferDest returns scan destinations matching transferColumns.
// The reason column is nullable; the wrapper swaps it in afterwards.
func scanTransferDest(t *model.Transfer) []any {
	return []any{
		&t.ID, &t.PropertyID, &t.FromUserID, &t.ToUserID, &t.Status,
		&nullString{&t.Reason},
		&t.CreatedAt, &t.ResolvedAt,
		&t.PropertyName, &t.SerialNumber, &t.FromUsername, &t.ToUsername,
	}
}

// nullString scans a nullable TEXT column into a plain string.
type nullString struct {
	s *string
}

func (n *nullString) Scan(value any) error {
	var ns sql.NullString
	if err := ns.Scan(value); err != nil {
		return err
	}
	*n.s = ns.String
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
