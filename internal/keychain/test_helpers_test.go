// ABOUTME: Shared test helpers for keychain package tests
// ABOUTME: Provides an in-memory SecretStore fake with failure injection

package keychain

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeSecrets is an in-memory SecretStore with per-key write failure
// injection for exercising partial-migration paths.
type fakeSecrets struct {
	mu         sync.Mutex
	entries    map[string][]byte
	failWrites map[string]error
}

func newFakeSecrets() *fakeSecrets {
	return &fakeSecrets{
		entries:    make(map[string][]byte),
		failWrites: make(map[string]error),
	}
}

func (f *fakeSecrets) Write(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWrites[key]; ok {
		return err
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	f.entries[key] = buf
	return nil
}

func (f *fakeSecrets) Read(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.entries[key]
	if !ok {
		return nil, ErrNoEntry
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

func (f *fakeSecrets) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeSecrets) Keys(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

// seed stores raw bytes directly, bypassing the v2 wrapper. Used to set up
// v1 entries for migration tests.
func (f *fakeSecrets) seed(key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = value
}

// fakeGate is a BiometricGate with scripted answers.
type fakeGate struct {
	available bool
	err       error
	evaluated int
}

func (g *fakeGate) Available(ctx context.Context) bool { return g.available }

func (g *fakeGate) Evaluate(ctx context.Context, reason string) error {
	g.evaluated++
	return g.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore returns a store over a fresh fake provider with a
// controllable clock.
func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeSecrets, *time.Time) {
	t.Helper()
	secrets := newFakeSecrets()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	s := New(secrets, opts...)
	s.now = func() time.Time { return *clock }
	return s, secrets, clock
}
