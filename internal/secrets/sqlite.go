// ABOUTME: SQLite implementation of the SecretStore provider using modernc.org/sqlite
// ABOUTME: Values are sealed at rest; writes and deletes leave an audit trail

package secrets

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/credvault/internal/keychain"
)

// SQLite is a SecretStore backed by a local SQLite database. Entry values
// are sealed with a passphrase-derived key before insertion, so the database
// file never contains plaintext secrets.
type SQLite struct {
	db     *sql.DB
	sealer *sealer
	logger *slog.Logger
}

// NewSQLite opens (or creates) the vault database at the given path.
// Parent directories are created if needed.
func NewSQLite(path string, passphrase []byte) (*SQLite, error) {
	logger := slog.Default().With("component", "secrets")

	sealer, err := newSealer(passphrase)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating vault directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLite{
		db:     db,
		sealer: sealer,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite vault initialized", "path", path)
	return s, nil
}

func (s *SQLite) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS vault_entries (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS vault_audit (
			id        TEXT PRIMARY KEY,
			op        TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			ts        TEXT NOT NULL,

			CHECK (op IN ('write', 'delete'))
		);

		CREATE INDEX IF NOT EXISTS idx_vault_audit_ts ON vault_audit(ts DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Write seals value and upserts it under key.
func (s *SQLite) Write(ctx context.Context, key string, value []byte) error {
	sealed, err := s.sealer.seal(value)
	if err != nil {
		return fmt.Errorf("sealing value: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO vault_entries (key, value, updated_at)
		VALUES (?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query, key, sealed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	s.audit(ctx, "write", key)
	s.logger.Debug("wrote vault entry", "key", key)
	return nil
}

// Read returns the unsealed value for key.
// Returns keychain.ErrNoEntry if the key is absent.
func (s *SQLite) Read(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM vault_entries WHERE key = ?`

	var sealed []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&sealed)
	if err == sql.ErrNoRows {
		return nil, keychain.ErrNoEntry
	}
	if err != nil {
		return nil, fmt.Errorf("querying entry: %w", err)
	}

	return s.sealer.open(sealed)
}

// Delete removes the entry for key. Deleting an absent key is a no-op.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM vault_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		s.audit(ctx, "delete", key)
		s.logger.Debug("deleted vault entry", "key", key)
	}
	return nil
}

// Keys returns all stored keys in sorted order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM vault_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys: %w", err)
	}
	return keys, nil
}

// audit appends an access-trail row. Best effort; vault operations must not
// fail because the trail couldn't be written.
func (s *SQLite) audit(ctx context.Context, op, key string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault_audit (id, op, entry_key, ts)
		VALUES (?, ?, ?, ?)
	`, uuid.New().String(), op, key, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.logger.Warn("failed to append audit row", "op", op, "key", key, "error", err)
	}
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	s.logger.Info("closing SQLite vault")
	return s.db.Close()
}

var _ keychain.SecretStore = (*SQLite)(nil)
