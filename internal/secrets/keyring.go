// ABOUTME: OS keyring implementation of the SecretStore provider
// ABOUTME: Keeps a JSON key index because OS keyrings cannot enumerate

package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/2389/credvault/internal/keychain"
)

// indexAccount is the keyring account holding the list of stored keys.
// OS keyrings offer no enumeration, so the provider maintains its own.
const indexAccount = "__index__"

// Keyring is a SecretStore backed by the operating system keyring
// (Keychain on macOS, Secret Service on Linux, Credential Manager on
// Windows). The OS owns encryption and user-presence prompts.
type Keyring struct {
	service string
	logger  *slog.Logger

	// Guards read-modify-write cycles on the index entry.
	mu sync.Mutex
}

// NewKeyring creates a provider namespaced under the given service name.
func NewKeyring(service string) *Keyring {
	return &Keyring{
		service: service,
		logger:  slog.Default().With("component", "secrets"),
	}
}

func (k *Keyring) Write(ctx context.Context, key string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := gokeyring.Set(k.service, key, string(value)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	if err := k.indexAdd(key); err != nil {
		return err
	}
	k.logger.Debug("wrote keyring entry", "key", key)
	return nil
}

func (k *Keyring) Read(ctx context.Context, key string) ([]byte, error) {
	value, err := gokeyring.Get(k.service, key)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return nil, keychain.ErrNoEntry
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	return []byte(value), nil
}

func (k *Keyring) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	err := gokeyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	if err := k.indexRemove(key); err != nil {
		return err
	}
	k.logger.Debug("deleted keyring entry", "key", key)
	return nil
}

func (k *Keyring) Keys(ctx context.Context) ([]string, error) {
	return k.index()
}

func (k *Keyring) index() ([]string, error) {
	raw, err := gokeyring.Get(k.service, indexAccount)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get index: %w", err)
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("%w: key index: %v", keychain.ErrUnexpectedData, err)
	}
	return keys, nil
}

func (k *Keyring) indexAdd(key string) error {
	keys, err := k.index()
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	keys = append(keys, key)
	slices.Sort(keys)
	return k.writeIndex(keys)
}

func (k *Keyring) indexRemove(key string) error {
	keys, err := k.index()
	if err != nil {
		return err
	}
	i := slices.Index(keys, key)
	if i < 0 {
		return nil
	}
	return k.writeIndex(slices.Delete(keys, i, i+1))
}

func (k *Keyring) writeIndex(keys []string) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encoding key index: %w", err)
	}
	if err := gokeyring.Set(k.service, indexAccount, string(raw)); err != nil {
		return fmt.Errorf("keyring set index: %w", err)
	}
	return nil
}

var _ keychain.SecretStore = (*Keyring)(nil)
