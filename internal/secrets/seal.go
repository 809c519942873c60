// ABOUTME: At-rest sealing for the SQLite provider using ChaCha20-Poly1305
// ABOUTME: Derives the sealing key from a passphrase via HKDF-SHA256

package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/2389/credvault/internal/keychain"
)

// hkdfInfo binds derived keys to this use so the same passphrase used
// elsewhere yields a different key.
const hkdfInfo = "credvault-at-rest-v1"

var errEmptyPassphrase = errors.New("passphrase must not be empty")

// sealer encrypts entry values before they hit disk. Each value gets a
// fresh random nonce, prepended to the ciphertext.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(passphrase []byte) (*sealer, error) {
	if len(passphrase) == 0 {
		return nil, errEmptyPassphrase
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, passphrase, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving sealing key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: sealed value too short", keychain.ErrUnexpectedData)
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keychain.ErrUnexpectedData, err)
	}
	return plain, nil
}
