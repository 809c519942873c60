// Package secrets provides SecretStore providers for the credential store.
//
// Three providers are available:
//
//   - SQLite: local database with values sealed by a passphrase-derived key
//     (ChaCha20-Poly1305), plus an access audit trail
//   - Keyring: the operating system keyring; the OS owns encryption
//   - Memory: in-memory map for tests and ephemeral mode
//
// All providers return keychain.ErrNoEntry for absent keys and treat
// deleting an absent key as a no-op, matching the keychain.SecretStore
// contract.
package secrets
