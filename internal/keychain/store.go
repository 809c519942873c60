// ABOUTME: Credential store with optional expiration and fail-closed eviction
// ABOUTME: Wraps a SecretStore provider and an optional BiometricGate

package keychain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultValidityWindow is the expiration attached to tokens that carry no
// explicit expiry, e.g. v1 entries rewritten during migration.
const DefaultValidityWindow = 30 * 24 * time.Hour

// Store owns persisted authentication material. Every operation is a
// self-contained read-modify-write against the SecretStore; no decrypted
// secret is cached beyond the call stack of a single operation.
type Store struct {
	secrets SecretStore
	gate    BiometricGate
	logger  *slog.Logger
	window  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	ran     bool             // migration attempted this session
	lastRun *MigrationStatus // result of the session's migration run
}

// Option configures a Store.
type Option func(*Store)

// WithBiometricGate sets the authentication capability consulted by
// RetrieveProtected. Without a gate, protected reads always come back empty.
func WithBiometricGate(g BiometricGate) Option {
	return func(s *Store) { s.gate = g }
}

// WithValidityWindow overrides the default expiration window applied when
// migrating entries that carry no expiry of their own.
func WithValidityWindow(d time.Duration) Option {
	return func(s *Store) { s.window = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l.With("component", "keychain") }
}

// New creates a credential store backed by the given provider.
func New(secrets SecretStore, opts ...Option) *Store {
	s := &Store{
		secrets: secrets,
		logger:  slog.Default().With("component", "keychain"),
		window:  DefaultValidityWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store persists value under key with no expiration.
func (s *Store) Store(ctx context.Context, key Key, value string) error {
	return s.put(ctx, key, value, nil)
}

// StoreWithExpiration persists value under key with an absolute expiration.
// The expiration must be strictly in the future.
func (s *Store) StoreWithExpiration(ctx context.Context, key Key, value string, expiresAt time.Time) error {
	if !expiresAt.After(s.now()) {
		return fmt.Errorf("%w: %s", ErrInvalidExpiration, expiresAt.Format(time.RFC3339))
	}
	t := expiresAt.UTC()
	return s.put(ctx, key, value, &t)
}

func (s *Store) put(ctx context.Context, key Key, value string, expiresAt *time.Time) error {
	raw, err := encodeEntry(value, expiresAt)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	if err := s.secrets.Write(ctx, string(key), raw); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	s.logger.Debug("stored credential", "key", key, "expires", expiresAt != nil)
	return nil
}

// Retrieve returns the value stored under key. An absent entry yields
// ok == false with a nil error. Expiration is not checked; use
// RetrieveToken for expiration-aware reads.
func (s *Store) Retrieve(ctx context.Context, key Key) (value string, ok bool, err error) {
	e, err := s.load(ctx, key)
	if errors.Is(err, ErrNoEntry) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

// RetrieveProtected returns the value stored under key after a successful
// biometric check. Denial, user cancel, and an unavailable capability all
// collapse into ok == false with a nil error.
func (s *Store) RetrieveProtected(ctx context.Context, key Key) (value string, ok bool, err error) {
	if s.gate == nil || !s.gate.Available(ctx) {
		s.logger.Warn("biometric gate unavailable", "key", key)
		return "", false, nil
	}
	if err := s.gate.Evaluate(ctx, "unlock "+string(key)); err != nil {
		s.logger.Info("biometric check denied", "key", key, "error", err)
		return "", false, nil
	}
	return s.Retrieve(ctx, key)
}

// RetrieveToken returns the value stored under key, enforcing expiration.
// An expired entry is deleted before the error returns, so a stale secret
// never stays readable even if the caller ignores the error. Returns
// ErrNoEntry when the key is absent.
func (s *Store) RetrieveToken(ctx context.Context, key Key) (string, error) {
	e, err := s.load(ctx, key)
	if err != nil {
		return "", err
	}
	if e.ExpiresAt != nil && s.now().After(*e.ExpiresAt) {
		if derr := s.secrets.Delete(ctx, string(key)); derr != nil {
			s.logger.Warn("failed to evict expired credential", "key", key, "error", derr)
		} else {
			s.logger.Info("evicted expired credential", "key", key, "expired_at", e.ExpiresAt.Format(time.RFC3339))
		}
		return "", fmt.Errorf("%s: %w", key, ErrTokenExpired)
	}
	return e.Value, nil
}

// Delete removes the entry for key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.secrets.Delete(ctx, string(key)); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	s.logger.Debug("deleted credential", "key", key)
	return nil
}

// Exists reports whether an entry is present for key, expired or not.
func (s *Store) Exists(ctx context.Context, key Key) (bool, error) {
	_, err := s.secrets.Read(ctx, string(key))
	if errors.Is(err, ErrNoEntry) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	return true, nil
}

// IsTokenExpired reports whether the entry for key has lapsed. An entry with
// no expiration never expires. Returns ErrNoEntry when the key is absent.
func (s *Store) IsTokenExpired(ctx context.Context, key Key) (bool, error) {
	e, err := s.load(ctx, key)
	if err != nil {
		return false, err
	}
	if e.ExpiresAt == nil {
		return false, nil
	}
	return s.now().After(*e.ExpiresAt), nil
}

// TokenExpirationDate returns the stored expiration for key, or nil when the
// entry is absent or carries no expiry.
func (s *Store) TokenExpirationDate(ctx context.Context, key Key) (*time.Time, error) {
	e, err := s.load(ctx, key)
	if errors.Is(err, ErrNoEntry) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.ExpiresAt, nil
}

// DeleteAllTokens removes every known credential key. Absent keys are
// skipped without error.
func (s *Store) DeleteAllTokens(ctx context.Context) error {
	var errs []error
	for _, key := range KnownKeys() {
		if err := s.secrets.Delete(ctx, string(key)); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("deleted all credentials")
	return nil
}

// ExpirationInfo holds the expiries of the auth and refresh tokens.
// A nil field means the token is absent or never expires.
type ExpirationInfo struct {
	AuthToken    *time.Time
	RefreshToken *time.Time
}

// TokenExpirationInfo returns the auth and refresh token expiries in one call.
func (s *Store) TokenExpirationInfo(ctx context.Context) (ExpirationInfo, error) {
	auth, err := s.TokenExpirationDate(ctx, KeyAuthToken)
	if err != nil {
		return ExpirationInfo{}, err
	}
	refresh, err := s.TokenExpirationDate(ctx, KeyRefreshToken)
	if err != nil {
		return ExpirationInfo{}, err
	}
	return ExpirationInfo{AuthToken: auth, RefreshToken: refresh}, nil
}

// HasValidAuthToken reports whether a non-expired auth token is present.
// Expired and absent both come back false; an expired token is evicted as a
// side effect, same as RetrieveToken.
func (s *Store) HasValidAuthToken(ctx context.Context) bool {
	_, err := s.RetrieveToken(ctx, KeyAuthToken)
	return err == nil
}

// load reads and decodes the entry for key. Unmigrated v1 entries come back
// as bare values with no expiration.
func (s *Store) load(ctx context.Context, key Key) (*entry, error) {
	raw, err := s.secrets.Read(ctx, string(key))
	if errors.Is(err, ErrNoEntry) {
		return nil, fmt.Errorf("%s: %w", key, ErrNoEntry)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	e, err := decodeEntry(raw)
	if errors.Is(err, errNotWrapper) {
		return &entry{Version: 1, Value: string(raw)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return e, nil
}
