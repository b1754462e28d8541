// Package crypto seals secrets stored in the local database, such as the API session
// token, with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"runtime"
	"strings"
)

var (
	// ErrInvalidCiphertext is returned when decryption fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the secret is empty.
	ErrInvalidKey = errors.New("invalid key")
)

// keyContext separates keys derived here from other uses of the same secret.
const keyContext = "propsnap:"

// Sealer encrypts and decrypts short strings with a key derived from a secret.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 256-bit key from secret. An empty secret falls back to the
// machine identifier.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		secret = MachineID()
	}
	if secret == "" {
		return nil, ErrInvalidKey
	}

	key := sha256.Sum256([]byte(keyContext + secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Any tampering or a wrong key yields ErrInvalidCiphertext.
func (s *Sealer) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// MachineID returns a best-effort stable identifier of this machine.
func MachineID() string {
	if runtime.GOOS == "linux" {
		for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
			if data, err := os.ReadFile(path); err == nil {
				if id := strings.TrimSpace(string(data)); id != "" {
					return "linux:" + id
				}
			}
		}
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return ""
	}
	return runtime.GOOS + ":" + hostname
}
