// ABOUTME: One-time schema migration from v1 bare secrets to v2 wrappers
// ABOUTME: Per-key idempotent; partial failures are retried on the next run

package keychain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/credvault/internal/auth"
)

// Schema version markers persisted under schemaVersionKey.
const (
	SchemaV1 = "1.0"
	SchemaV2 = "2.0"
)

// MigrationState describes where the store sits in the migration lifecycle.
type MigrationState int

const (
	StateNotRequired MigrationState = iota
	StateRequired
	StateInProgress
	StateCompleted
	StateFailed
)

func (st MigrationState) String() string {
	switch st {
	case StateNotRequired:
		return "not required"
	case StateRequired:
		return "required"
	case StateInProgress:
		return "in progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(st))
	}
}

// MigrationStatus is the current migration state plus the version pair it
// applies to.
type MigrationStatus struct {
	State MigrationState
	From  string
	To    string
}

// MigrationStatus reports the store's migration state. Before any run this
// session it is derived from the persisted schema marker; afterwards it
// reflects the outcome of that run.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	s.mu.Lock()
	last := s.lastRun
	s.mu.Unlock()
	if last != nil {
		return *last, nil
	}

	ver, err := s.schemaVersion(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	if ver == SchemaV2 {
		return MigrationStatus{State: StateNotRequired, From: ver, To: SchemaV2}, nil
	}
	return MigrationStatus{State: StateRequired, From: ver, To: SchemaV2}, nil
}

// schemaVersion reads the persisted marker. Installs that predate the marker
// are unversioned v1 stores.
func (s *Store) schemaVersion(ctx context.Context) (string, error) {
	raw, err := s.secrets.Read(ctx, schemaVersionKey)
	if errors.Is(err, ErrNoEntry) {
		return SchemaV1, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading schema version: %w", err)
	}
	return string(raw), nil
}

// Migrate upgrades v1 entries to the v2 wrapper format, attaching a default
// expiration without altering the secret bytes. It runs at most once per
// process; repeat calls are no-ops. A partial failure leaves the schema
// marker unadvanced so the next launch retries the remaining keys, and is
// surfaced as ErrMigrationFailed. Migration failure is never fatal: the
// store keeps serving whatever subset of entries is readable.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return nil
	}
	s.ran = true
	s.mu.Unlock()
	return s.migrate(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	status, err := s.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	if status.State == StateNotRequired {
		s.logger.Debug("schema migration not required", "version", SchemaV2)
		s.setRunState(status)
		return nil
	}

	s.logger.Info("migrating credential store", "from", status.From, "to", status.To)
	s.setRunState(MigrationStatus{State: StateInProgress, From: status.From, To: status.To})

	var failed []string
	for _, key := range KnownKeys() {
		if err := s.migrateKey(ctx, key); err != nil {
			s.logger.Error("migrating credential", "key", key, "error", err)
			failed = append(failed, string(key))
		}
	}
	if len(failed) > 0 {
		// Marker stays put so the next launch retries the keys that failed.
		s.setRunState(MigrationStatus{State: StateFailed, From: status.From, To: status.To})
		return fmt.Errorf("%w: keys %s", ErrMigrationFailed, strings.Join(failed, ", "))
	}

	if err := s.secrets.Write(ctx, schemaVersionKey, []byte(SchemaV2)); err != nil {
		s.setRunState(MigrationStatus{State: StateFailed, From: status.From, To: status.To})
		return fmt.Errorf("%w: advancing schema marker: %v", ErrMigrationFailed, err)
	}

	s.setRunState(MigrationStatus{State: StateCompleted, From: status.From, To: status.To})
	s.logger.Info("credential store migrated", "version", SchemaV2)
	return nil
}

// migrateKey rewrites a single v1 entry as a v2 wrapper. Re-migrating an
// already-wrapped entry is a no-op, detected by parsing the stored format
// first. Absent keys are skipped.
func (s *Store) migrateKey(ctx context.Context, key Key) error {
	raw, err := s.secrets.Read(ctx, string(key))
	if errors.Is(err, ErrNoEntry) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := decodeEntry(raw); err == nil {
		return nil
	} else if !errors.Is(err, errNotWrapper) {
		return err
	}

	value := string(raw)
	exp := s.defaultExpiry(value)
	wrapped, err := encodeEntry(value, &exp)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	if err := s.secrets.Write(ctx, string(key), wrapped); err != nil {
		return fmt.Errorf("rewriting entry: %w", err)
	}
	s.logger.Debug("migrated credential", "key", key, "expires_at", exp.Format(time.RFC3339))
	return nil
}

// defaultExpiry computes the expiration attached to a migrated entry.
// Backend-issued tokens are JWTs, so the exp claim is authoritative when
// present; everything else gets the configured validity window.
func (s *Store) defaultExpiry(value string) time.Time {
	if exp, ok := auth.TokenExpiry(value); ok {
		return exp.UTC()
	}
	return s.now().Add(s.window).UTC()
}

func (s *Store) setRunState(status MigrationStatus) {
	s.mu.Lock()
	s.lastRun = &status
	s.mu.Unlock()
}
