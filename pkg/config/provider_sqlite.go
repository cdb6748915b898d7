package config

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// DefaultConfigName is the parameter set LoadConfig reads
const DefaultConfigName = "default"

// SQLiteProvider implements ConfigProvider for a SQLite database holding
// named analysis parameter sets
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
	name   string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS configs (
			name       TEXT PRIMARY KEY,
			body       TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create configs table: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
		name:   DefaultConfigName,
	}, nil
}

// WithName selects the parameter set read by LoadConfig
func (s *SQLiteProvider) WithName(name string) *SQLiteProvider {
	s.name = name
	return s
}

// LoadConfig loads the selected parameter set from the database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM configs WHERE name = ?`, s.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no configuration named %q in %s", s.name, s.dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query configuration: %w", err)
	}
	return ParseYAML([]byte(body))
}

// SaveConfig validates c and stores it under name, replacing any previous set
func (s *SQLiteProvider) SaveConfig(name string, c *ConfigData) error {
	if err := c.Validate(); err != nil {
		return err
	}
	body, err := MarshalYAML(c)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO configs (name, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
		name, string(body))
	if err != nil {
		return fmt.Errorf("failed to save configuration %q: %w", name, err)
	}
	return nil
}

// ListConfigs returns the stored parameter set names
func (s *SQLiteProvider) ListConfigs() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM configs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query configurations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan configuration row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
