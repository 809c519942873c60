// Package keychain owns persisted authentication material for the app:
// the auth token, the refresh token, and the user credentials.
//
// # Design
//
// The store is a thin logical layer over two narrow collaborator interfaces:
//
//   - SecretStore: the secure-storage provider entries persist into
//   - BiometricGate: the authentication capability consulted before
//     releasing a protected secret
//
// Both are injected at construction time so the core logic is testable with
// in-memory fakes. Production providers live in internal/secrets and
// internal/gate.
//
// # Expiration
//
// Entries carry an optional absolute expiration. Expiration-aware reads
// (RetrieveToken, HasValidAuthToken) delete a lapsed entry before returning
// ErrTokenExpired, so a stale secret never stays readable even if the
// caller ignores the error. Exists and TokenExpirationDate ignore
// expiration.
//
// # Schema migration
//
// Version 1 stores hold bare secret strings. Version 2 wraps each secret in
// a JSON envelope carrying the format version and an optional expiration. A
// schema marker entry gates how values are interpreted. Migrate rewrites v1
// entries in place without touching the secret bytes, deriving the default
// expiration from the token's JWT exp claim when it has one. Migration is
// idempotent per key; a partial failure leaves the marker unadvanced and is
// retried on the next launch.
//
// # Concurrency
//
// Every operation is a self-contained read-modify-write against the
// provider. Operations on the same key from the same caller are strictly
// ordered; no ordering is guaranteed across keys. The store holds no
// in-memory secret state, only the per-session migration guard.
package keychain
