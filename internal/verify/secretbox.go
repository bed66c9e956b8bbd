package verify

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	SchemeSecretbox = "secretbox"

	secretboxInfo  = "qrgate-secretbox"
	nonceSize      = 24
	minSecretBytes = 16
)

// SecretboxScheme opens tokens of the form base64url(nonce || box).
type SecretboxScheme struct {
	key [32]byte
}

// DeriveSecretboxKey stretches a shared secret into a secretbox key with HKDF-SHA256.
func DeriveSecretboxKey(secret []byte) ([32]byte, error) {
	var key [32]byte
	if len(secret) < minSecretBytes {
		return key, fmt.Errorf("%w: secret must be at least %d bytes", ErrInvalidKey, minSecretBytes)
	}
	h := hkdf.New(sha256.New, secret, nil, []byte(secretboxInfo))
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

func NewSecretboxScheme(secret []byte) (*SecretboxScheme, error) {
	key, err := DeriveSecretboxKey(secret)
	if err != nil {
		return nil, err
	}
	return &SecretboxScheme{key: key}, nil
}

func (s *SecretboxScheme) Name() string { return SchemeSecretbox }

func (s *SecretboxScheme) Verify(raw string) (string, bool, error) {
	box, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(box) < nonceSize+secretbox.Overhead {
		return "", false, fmt.Errorf("%w: token too short", ErrMalformedToken)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	out, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", false, nil
	}
	return string(out), true, nil
}

// Seal produces a token that Verify accepts.
func (s *SecretboxScheme) Seal(payload string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(payload), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}
