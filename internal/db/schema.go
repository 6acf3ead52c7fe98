package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    rank          TEXT,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS properties (
    id            INTEGER PRIMARY KEY,
    name          TEXT NOT NULL,
    serial_number TEXT NOT NULL,
    nsn           TEXT,
    description   TEXT,
    photo         BLOB,
    photo_mime    TEXT,
    status        TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'damaged', 'lost', 'retired')),
    assigned_to   INTEGER REFERENCES users(id),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_properties_serial_active
    ON properties(serial_number) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS transfers (
    id           INTEGER PRIMARY KEY,
    property_id  INTEGER NOT NULL REFERENCES properties(id),
    from_user_id INTEGER NOT NULL REFERENCES users(id),
    to_user_id   INTEGER NOT NULL REFERENCES users(id),
    status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
    reason       TEXT,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    resolved_at  DATETIME,
    CHECK (from_user_id <> to_user_id)
);

CREATE INDEX IF NOT EXISTS idx_transfers_to_status ON transfers(to_user_id, status);

CREATE TABLE IF NOT EXISTS ledger_entries (
    seq         INTEGER PRIMARY KEY,
    tx_id       TEXT NOT NULL UNIQUE,
    event_type  TEXT NOT NULL,
    payload     TEXT NOT NULL,
    recorded_by INTEGER NOT NULL,
    recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_event_type ON ledger_entries(event_type);
CREATE INDEX IF NOT EXISTS idx_ledger_serial
    ON ledger_entries(json_extract(payload, '$.serial_number'));

CREATE TABLE IF NOT EXISTS correction_events (
    event_id             TEXT PRIMARY KEY,
    original_event_id    TEXT NOT NULL,
    original_event_type  TEXT NOT NULL,
    reason               TEXT NOT NULL CHECK (reason <> ''),
    correcting_user_id   INTEGER NOT NULL,
    correction_timestamp DATETIME NOT NULL,
    ledger_tx_id         TEXT,
    ledger_seq           INTEGER
);

CREATE INDEX IF NOT EXISTS idx_corrections_original ON correction_events(original_event_id);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// immutability holds triggers that make the ledger and correction
// tables append-only at the database level. Corrections amend by
// annotation; nothing rewrites history.
var immutability = []string{
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update
	     BEFORE UPDATE ON ledger_entries
	 BEGIN SELECT RAISE(ABORT, 'ledger entries are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete
	     BEFORE DELETE ON ledger_entries
	 BEGIN SELECT RAISE(ABORT, 'ledger entries are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS correction_events_no_update
	     BEFORE UPDATE ON correction_events
	 BEGIN SELECT RAISE(ABORT, 'correction events are immutable'); END`,
	`CREATE TRIGGER IF NOT EXISTS correction_events_no_delete
	     BEFORE DELETE ON correction_events
	 BEGIN SELECT RAISE(ABORT, 'correction events are immutable'); END`,
}

// migrations is a list of SQL statements applied in order after schema
// creation. Each migration must be idempotent. Append new migrations
// at the end.
var migrations []string

// Migrate creates the schema, immutability triggers, and applies any
// pending migrations. Safe to run on every startup.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for _, stmt := range immutability {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating immutability trigger: %w", err)
		}
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
