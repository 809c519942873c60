// ABOUTME: Tests for credential store operations
// ABOUTME: Covers round-trips, expiration boundaries, eviction, and the biometric gate

package keychain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStoreRetrieve_RoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	values := map[Key]string{
		KeyAuthToken:       "token-abc",
		KeyRefreshToken:    "refresh-xyz",
		KeyUserCredentials: `{"username":"pat","password":"hunter2"}`,
	}

	for key, value := range values {
		if err := s.Store(ctx, key, value); err != nil {
			t.Fatalf("Store(%s) error = %v", key, err)
		}
	}

	for key, want := range values {
		got, ok, err := s.Retrieve(ctx, key)
		if err != nil {
			t.Fatalf("Retrieve(%s) error = %v", key, err)
		}
		if !ok {
			t.Fatalf("Retrieve(%s) ok = false, want true", key)
		}
		if got != want {
			t.Errorf("Retrieve(%s) = %q, want %q", key, got, want)
		}
	}
}

func TestRetrieve_Absent(t *testing.T) {
	s, _, _ := newTestStore(t)

	value, ok, err := s.Retrieve(context.Background(), KeyAuthToken)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if ok || value != "" {
		t.Errorf("Retrieve() = (%q, %v), want empty and not ok", value, ok)
	}
}

func TestStoreWithExpiration_RejectsPast(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		expiresAt time.Time
	}{
		{name: "one second ago", expiresAt: clock.Add(-time.Second)},
		{name: "exactly now", expiresAt: *clock},
		{name: "an hour ago", expiresAt: clock.Add(-time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.StoreWithExpiration(ctx, KeyAuthToken, "value", tt.expiresAt)
			if !errors.Is(err, ErrInvalidExpiration) {
				t.Errorf("StoreWithExpiration() error = %v, want ErrInvalidExpiration", err)
			}
		})
	}
}

func TestStoreWithExpiration_Boundary(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.StoreWithExpiration(ctx, KeyAuthToken, "value", clock.Add(time.Hour)); err != nil {
		t.Fatalf("StoreWithExpiration() error = %v", err)
	}

	expired, err := s.IsTokenExpired(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("IsTokenExpired() error = %v", err)
	}
	if expired {
		t.Error("token should not be expired immediately after storing")
	}

	*clock = clock.Add(time.Hour + time.Second)

	expired, err = s.IsTokenExpired(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("IsTokenExpired() error = %v", err)
	}
	if !expired {
		t.Error("token should be expired after the expiry passes")
	}
}

func TestRetrieveToken_EvictsExpired(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.StoreWithExpiration(ctx, KeyAuthToken, "stale", clock.Add(time.Minute)); err != nil {
		t.Fatalf("StoreWithExpiration() error = %v", err)
	}

	*clock = clock.Add(2 * time.Minute)

	_, err := s.RetrieveToken(ctx, KeyAuthToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("RetrieveToken() error = %v, want ErrTokenExpired", err)
	}

	// Fail-closed eviction: the lapsed entry must be gone.
	exists, err := s.Exists(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("expired entry should have been deleted")
	}
}

func TestRetrieveToken_Absent(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.RetrieveToken(context.Background(), KeyRefreshToken)
	if !errors.Is(err, ErrNoEntry) {
		t.Errorf("RetrieveToken() error = %v, want ErrNoEntry", err)
	}
}

func TestRetrieveToken_NoExpiryNeverExpires(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.Store(ctx, KeyUserCredentials, "creds"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	*clock = clock.Add(1000 * time.Hour)

	value, err := s.RetrieveToken(ctx, KeyUserCredentials)
	if err != nil {
		t.Fatalf("RetrieveToken() error = %v", err)
	}
	if value != "creds" {
		t.Errorf("RetrieveToken() = %q, want %q", value, "creds")
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, KeyAuthToken); err != nil {
		t.Fatalf("Delete(absent) error = %v", err)
	}

	if err := s.Store(ctx, KeyAuthToken, "value"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := s.Delete(ctx, KeyAuthToken); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	exists, err := s.Exists(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true after delete")
	}

	if err := s.Delete(ctx, KeyAuthToken); err != nil {
		t.Fatalf("Delete(again) error = %v", err)
	}
}

func TestExists_IgnoresExpiration(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.StoreWithExpiration(ctx, KeyAuthToken, "value", clock.Add(time.Minute)); err != nil {
		t.Fatalf("StoreWithExpiration() error = %v", err)
	}

	*clock = clock.Add(time.Hour)

	// Exists is a pure presence check; only expiration-aware reads evict.
	exists, err := s.Exists(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false for an expired but present entry")
	}
}

func TestIsTokenExpired_Absent(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.IsTokenExpired(context.Background(), KeyAuthToken)
	if !errors.Is(err, ErrNoEntry) {
		t.Errorf("IsTokenExpired() error = %v, want ErrNoEntry", err)
	}
}

func TestTokenExpirationDate(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	// Absent: nil, no error.
	got, err := s.TokenExpirationDate(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("TokenExpirationDate(absent) error = %v", err)
	}
	if got != nil {
		t.Errorf("TokenExpirationDate(absent) = %v, want nil", got)
	}

	// No expiry: nil.
	if err := s.Store(ctx, KeyAuthToken, "value"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	got, err = s.TokenExpirationDate(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("TokenExpirationDate() error = %v", err)
	}
	if got != nil {
		t.Errorf("TokenExpirationDate() = %v, want nil for no expiry", got)
	}

	// With expiry: the stored timestamp.
	want := clock.Add(2 * time.Hour)
	if err := s.StoreWithExpiration(ctx, KeyRefreshToken, "value", want); err != nil {
		t.Fatalf("StoreWithExpiration() error = %v", err)
	}
	got, err = s.TokenExpirationDate(ctx, KeyRefreshToken)
	if err != nil {
		t.Fatalf("TokenExpirationDate() error = %v", err)
	}
	if got == nil || !got.Equal(want) {
		t.Errorf("TokenExpirationDate() = %v, want %v", got, want)
	}
}

func TestDeleteAllTokens(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.Store(ctx, KeyAuthToken, "auth"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := s.StoreWithExpiration(ctx, KeyRefreshToken, "refresh", clock.Add(time.Hour)); err != nil {
		t.Fatalf("StoreWithExpiration() error = %v", err)
	}
	if err := s.Store(ctx, KeyUserCredentials, "creds"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if err := s.DeleteAllTokens(ctx); err != nil {
		t.Fatalf("DeleteAllTokens() error = %v", err)
	}

	for _, key := range KnownKeys() {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			t.Fatalf("Exists(%s) error = %v", key, err)
		}
		if exists {
			t.Errorf("Exists(%s) = true after DeleteAllTokens", key)
		}
	}
}

func TestTokenExpirationInfo(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	authExp := clock.Add(time.Hour)
	if err := s.StoreWithExpiration(ctx, KeyAuthToken, "auth", authExp); err != nil {
		t.Fatalf("StoreWithExpiration() error = %v", err)
	}
	if err := s.Store(ctx, KeyRefreshToken, "refresh"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	info, err := s.TokenExpirationInfo(ctx)
	if err != nil {
		t.Fatalf("TokenExpirationInfo() error = %v", err)
	}
	if info.AuthToken == nil || !info.AuthToken.Equal(authExp) {
		t.Errorf("AuthToken expiry = %v, want %v", info.AuthToken, authExp)
	}
	if info.RefreshToken != nil {
		t.Errorf("RefreshToken expiry = %v, want nil", info.RefreshToken)
	}
}

func TestHasValidAuthToken_Scenario(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	if err := s.StoreWithExpiration(ctx, KeyAuthToken, "token", clock.Add(3600*time.Second)); err != nil {
		t.Fatalf("StoreWithExpiration() error = %v", err)
	}

	if !s.HasValidAuthToken(ctx) {
		t.Fatal("HasValidAuthToken() = false immediately after storing")
	}

	*clock = clock.Add(3601 * time.Second)

	if s.HasValidAuthToken(ctx) {
		t.Error("HasValidAuthToken() = true after expiry")
	}

	// The expired token was evicted as a side effect.
	exists, err := s.Exists(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("expired auth token should no longer exist")
	}
}

func TestRetrieveProtected(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		gate   *fakeGate
		wantOK bool
	}{
		{
			name:   "granted",
			gate:   &fakeGate{available: true},
			wantOK: true,
		},
		{
			name:   "denied",
			gate:   &fakeGate{available: true, err: errors.New("denied")},
			wantOK: false,
		},
		{
			name:   "capability unavailable",
			gate:   &fakeGate{available: false},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestStore(t, WithBiometricGate(tt.gate))
			if err := s.Store(ctx, KeyUserCredentials, "secret"); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			value, ok, err := s.RetrieveProtected(ctx, KeyUserCredentials)
			if err != nil {
				t.Fatalf("RetrieveProtected() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("RetrieveProtected() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK && value != "secret" {
				t.Errorf("RetrieveProtected() = %q, want %q", value, "secret")
			}
			if !tt.wantOK && value != "" {
				t.Errorf("RetrieveProtected() leaked value %q on denial", value)
			}
		})
	}
}

func TestRetrieveProtected_NoGate(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Store(ctx, KeyUserCredentials, "secret"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	_, ok, err := s.RetrieveProtected(ctx, KeyUserCredentials)
	if err != nil {
		t.Fatalf("RetrieveProtected() error = %v", err)
	}
	if ok {
		t.Error("RetrieveProtected() ok = true without a gate")
	}
}

func TestStore_WriteFailure(t *testing.T) {
	s, secrets, _ := newTestStore(t)
	secrets.failWrites[string(KeyAuthToken)] = errors.New("disk full")

	err := s.Store(context.Background(), KeyAuthToken, "value")
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Store() error = %v, want ErrWriteFailed", err)
	}
}

func TestLoad_UnreadableWrapperVersion(t *testing.T) {
	s, secrets, _ := newTestStore(t)
	secrets.seed(string(KeyAuthToken), []byte(`{"v":3,"value":"future"}`))

	_, _, err := s.Retrieve(context.Background(), KeyAuthToken)
	if !errors.Is(err, ErrUnexpectedData) {
		t.Errorf("Retrieve() error = %v, want ErrUnexpectedData", err)
	}
}

func TestRetrieve_V1EntryReadable(t *testing.T) {
	s, secrets, _ := newTestStore(t)
	secrets.seed(string(KeyAuthToken), []byte("bare-v1-token"))

	value, ok, err := s.Retrieve(context.Background(), KeyAuthToken)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !ok || value != "bare-v1-token" {
		t.Errorf("Retrieve() = (%q, %v), want unmigrated v1 value", value, ok)
	}
}
