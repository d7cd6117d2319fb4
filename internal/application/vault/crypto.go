package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/DanielPopoola/payment-security-core/internal/config"
)

// Keys holds the vault secrets in raw form.
type Keys struct {
	Fingerprint []byte
	Encryption  []byte
}

// KeysFromConfig decodes the configured secrets.
func KeysFromConfig(cfg config.VaultConfig) (Keys, error) {
	enc, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return Keys{}, fmt.Errorf("decode encryption key: %w", err)
	}
	return Keys{
		Fingerprint: []byte(cfg.FingerprintKey),
		Encryption:  enc,
	}, nil
}

// fingerprint is hex(HMAC-SHA256(key, pan)): stable for deduplication, useless without the key.
func fingerprint(key []byte, pan string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(pan))
	return hex.EncodeToString(mac.Sum(nil))
}

// sealer encrypts with AES-256-GCM. Output is nonce || ciphertext.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("sealed value too short")
	}
	return s.aead.Open(nil, sealed[:n], sealed[n:], nil)
}
