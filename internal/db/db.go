package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database connection pool.
//
// Pragmas ride on the DSN so every pooled connection gets them, and
// _txlock=immediate makes BeginTx take the write lock up front. That
// serializes write transactions, which the ledger relies on for
// gapless sequence assignment.
func Open(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Fail fast on an unreadable or corrupt file.
	if _, err := db.Exec("SELECT 1"); err != nil {
		db.Close()
		return nil, fmt.Errorf("checking database: %w", err)
	}

	return db, nil
}
