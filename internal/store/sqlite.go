package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS artifacts (
		session   TEXT    NOT NULL,
		kind      TEXT    NOT NULL,
		params    TEXT    NOT NULL,
		shuffle   INTEGER NOT NULL,
		value     BLOB    NOT NULL,
		PRIMARY KEY (session, kind, params, shuffle)
	)
`

// SQLite stores artifacts in a single SQLite table
type SQLite struct {
	db     *sql.DB
	dbPath string
}

// NewSQLite opens (and if needed creates) the artifact database at dbPath
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// concurrent shuffle workers share one connection; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create artifacts table: %w", err)
	}

	return &SQLite{db: db, dbPath: dbPath}, nil
}

func (s *SQLite) Get(ctx context.Context, key Key, dst any) (bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM artifacts WHERE session = ? AND kind = ? AND params = ? AND shuffle = ?`,
		key.Session, key.Kind, key.Params, key.Shuffle,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query artifact: %w", err)
	}
	return true, unmarshal(data, dst)
}

func (s *SQLite) Put(ctx context.Context, key Key, v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (session, kind, params, shuffle, value) VALUES (?, ?, ?, ?, ?)`,
		key.Session, key.Kind, key.Params, key.Shuffle, data,
	)
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
