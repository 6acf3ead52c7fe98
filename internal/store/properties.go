package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/propbook-app/propbook/internal/ledger"
	"github.com/propbook-app/propbook/internal/model"
)

// RegisterProperty adds a property to the property book and appends a
// registration entry to the ledger in the same transaction.
func RegisterProperty(ctx context.Context, db *sql.DB, name, serialNumber, nsn, description string, assignedTo *int64, actorID int64) (*model.Property, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(serialNumber) == "" {
		return nil, fmt.Errorf("%w: name and serial number are required", model.ErrInvalidArgument)
	}

	existing, err := GetPropertyBySerial(ctx, db, serialNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: serial number %s is already registered", model.ErrInvalidArgument, serialNumber)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning registration: %v", model.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO properties (name, serial_number, nsn, description, assigned_to)
		 VALUES (?, ?, ?, ?, ?)`,
		name, serialNumber, nsn, description, assignedTo,
	)
	if err != nil {
		return nil, fmt.Errorf("registering property: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting property id: %w", err)
	}

	_, err = ledger.AppendTx(ctx, tx, ledger.Draft{
		EventType: model.EventPropertyRegistered,
		Payload: model.RegistrationPayload{
			PropertyID:   id,
			SerialNumber: serialNumber,
			PropertyName: name,
			AssignedTo:   assignedTo,
			Timestamp:    time.Now().UTC(),
		},
		RecordedBy: actorID,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing registration: %v", model.ErrStorageUnavailable, err)
	}

	return GetProperty(ctx, db, id)
}

const propertyColumns = `p.id, p.name, p.serial_number, p.nsn, p.description, p.photo_mime,
	        p.status, p.assigned_to, p.created_at, p.updated_at, p.deleted_at,
	        COALESCE(u.username, '') AS assigned_to_name`

// GetProperty returns a property by ID.
func GetProperty(ctx context.Context, db *sql.DB, id int64) (*model.Property, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+`
		 FROM properties p LEFT JOIN users u ON u.id = p.assigned_to
		 WHERE p.id = ?`, id,
	)
	return scanProperty(row)
}

// GetPropertyBySerial returns a non-deleted property by serial number.
func GetPropertyBySerial(ctx context.Context, db *sql.DB, serialNumber string) (*model.Property, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+`
		 FROM properties p LEFT JOIN users u ON u.id = p.assigned_to
		 WHERE p.serial_number = ? AND p.deleted_at IS NULL`, serialNumber,
	)
	return scanProperty(row)
}

// ListProperties returns non-deleted properties, optionally filtered
// by status, holder, or a search term over name and serial number.
func ListProperties(ctx context.Context, db *sql.DB, status string, holderID int64, search string) ([]model.Property, error) {
	query := `SELECT ` + propertyColumns + `
	          FROM properties p LEFT JOIN users u ON u.id = p.assigned_to
	          WHERE p.deleted_at IS NULL`
	var args []any

	if status != "" {
		query += ` AND p.status = ?`
		args = append(args, status)
	}
	if holderID > 0 {
		query += ` AND p.assigned_to = ?`
		args = append(args, holderID)
	}
	if search != "" {
		query += ` AND (p.name LIKE ? OR p.serial_number LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}

	query += ` ORDER BY p.name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	defer rows.Close()

	var properties []model.Property
	for rows.Next() {
		p, err := scanPropertyRow(rows)
		if err != nil {
			return nil, err
		}
		properties = append(properties, *p)
	}
	return properties, rows.Err()
}

// UpdateProperty updates a property's descriptive metadata.
func UpdateProperty(ctx context.Context, db *sql.DB, id int64, name, nsn, description string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE properties SET name = ?, nsn = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		name, nsn, description, id,
	)
	if err != nil {
		return fmt.Errorf("updating property: %w", err)
	}
	return nil
}

// UpdatePropertyStatus changes a property's status and appends a
// status change entry to the ledger in the same transaction.
func UpdatePropertyStatus(ctx context.Context, db *sql.DB, id int64, newStatus string, actorID int64) (*model.Property, error) {
	if !model.ValidPropertyStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidArgument, newStatus)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning status change: %v", model.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var serialNumber, oldStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT serial_number, status FROM properties WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&serialNumber, &oldStatus)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: property %d", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading property: %v", model.ErrStorageUnavailable, err)
	}

	if oldStatus == newStatus {
		return GetProperty(ctx, db, id)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE properties SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newStatus, id,
	)
	if err != nil {
		return nil, fmt.Errorf("changing property status: %w", err)
	}

	_, err = ledger.AppendTx(ctx, tx, ledger.Draft{
		EventType: model.EventStatusChange,
		Payload: model.StatusChangePayload{
			PropertyID:   id,
			SerialNumber: serialNumber,
			OldStatus:    oldStatus,
			NewStatus:    newStatus,
			Timestamp:    time.Now().UTC(),
		},
		RecordedBy: actorID,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing status change: %v", model.ErrStorageUnavailable, err)
	}

	return GetProperty(ctx, db, id)
}

// DeleteProperty soft-deletes a property.
func DeleteProperty(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE properties SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting property: %w", err)
	}
	return nil
}

// SetPropertyPhoto sets a property's photo data.
func SetPropertyPhoto(ctx context.Context, db *sql.DB, id int64, photo []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE properties SET photo = ?, photo_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		photo, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting property photo: %w", err)
	}
	return nil
}

// GetPropertyPhoto returns a property's photo data and MIME type.
func GetPropertyPhoto(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var photo []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT photo, photo_mime FROM properties WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&photo, &mime)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("%w: property %d", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting property photo: %w", err)
	}
	return photo, mime.String, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*model.Property, error) {
	p, err := scanPropertyRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting property: %w", err)
	}
	return p, nil
}

func scanPropertyRow(row rowScanner) (*model.Property, error) {
	p := &model.Property{}
	var nsn, description, photoMime sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.SerialNumber, &nsn, &description, &photoMime,
		&p.Status, &p.AssignedTo, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt, &p.AssignedToName)
	if err != nil {
		return nil, err
	}
	p.NSN = nsn.String
	p.Description = description.String
	p.PhotoMime = photoMime.String
	return p, nil
}
