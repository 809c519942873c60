// ABOUTME: Core types for the credential store: keys, entry format, and errors
// ABOUTME: Defines the SecretStore and BiometricGate collaborator interfaces

package keychain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Key identifies the logical purpose of a stored secret.
// The set of keys is closed so enumeration (migration, purge) is
// exhaustive by construction.
type Key string

const (
	KeyAuthToken       Key = "auth_token"
	KeyRefreshToken    Key = "refresh_token"
	KeyUserCredentials Key = "user_credentials"
)

// KnownKeys returns every credential key the store manages.
// Migration and DeleteAllTokens iterate exactly this set.
func KnownKeys() []Key {
	return []Key{KeyAuthToken, KeyRefreshToken, KeyUserCredentials}
}

// ParseKey maps a user-supplied name to a known credential key.
func ParseKey(s string) (Key, error) {
	switch s {
	case "auth", "auth_token", "token":
		return KeyAuthToken, nil
	case "refresh", "refresh_token":
		return KeyRefreshToken, nil
	case "credentials", "user_credentials":
		return KeyUserCredentials, nil
	}
	return "", fmt.Errorf("unknown credential key %q", s)
}

// schemaVersionKey is the marker entry recording the persisted entry format
// version. It lives alongside the credentials in the same SecretStore.
const schemaVersionKey = "schema_version"

// Credential store errors
var (
	ErrNoEntry              = errors.New("no entry for key")
	ErrTokenExpired         = errors.New("token expired")
	ErrInvalidExpiration    = errors.New("expiration date must be in the future")
	ErrUnexpectedData       = errors.New("unexpected data shape")
	ErrBiometricUnavailable = errors.New("biometric capability unavailable")
	ErrMigrationFailed      = errors.New("migration failed")
	ErrWriteFailed          = errors.New("secure storage write failed")
)

// SecretStore is the external secure-storage provider the store persists
// into. Read returns ErrNoEntry when the key is absent. Delete is idempotent.
type SecretStore interface {
	Write(ctx context.Context, key string, value []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// BiometricGate is the external authentication capability consulted before
// releasing a protected secret. Evaluate blocks on user presence; a user
// cancel surfaces as a non-nil error, same as a denial.
type BiometricGate interface {
	Available(ctx context.Context) bool
	Evaluate(ctx context.Context, reason string) error
}

// entryVersion is the current wrapper format version.
const entryVersion = 2

// entry is the versioned wrapper persisted for every credential.
// Version 1 entries are bare secret strings with no wrapper at all.
type entry struct {
	Version   int        `json:"v"`
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// errNotWrapper signals that stored bytes are not a v2 wrapper and should be
// interpreted as a v1 bare secret.
var errNotWrapper = errors.New("not a versioned wrapper")

func encodeEntry(value string, expiresAt *time.Time) ([]byte, error) {
	e := entry{Version: entryVersion, Value: value, ExpiresAt: expiresAt}
	return json.Marshal(e)
}

// decodeEntry parses stored bytes as a v2 wrapper. It returns errNotWrapper
// for v1 bare strings and ErrUnexpectedData for wrapper versions this code
// does not understand.
func decodeEntry(raw []byte) (*entry, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, errNotWrapper
	}
	if e.Version == 0 && e.Value == "" {
		// Parsed but carries none of the wrapper fields (e.g. a bare JSON
		// scalar stored as a v1 secret).
		return nil, errNotWrapper
	}
	if e.Version != entryVersion {
		return nil, fmt.Errorf("%w: wrapper version %d", ErrUnexpectedData, e.Version)
	}
	return &e, nil
}
