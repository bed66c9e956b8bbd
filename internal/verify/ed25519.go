package verify

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const SchemeEd25519 = "ed25519"

// Ed25519Scheme checks tokens of the form base64url(payload) "." base64url(sig).
type Ed25519Scheme struct {
	pub ed25519.PublicKey
}

func NewEd25519Scheme(pub ed25519.PublicKey) (*Ed25519Scheme, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrInvalidKey, ed25519.PublicKeySize)
	}
	return &Ed25519Scheme{pub: append(ed25519.PublicKey(nil), pub...)}, nil
}

func (s *Ed25519Scheme) Name() string { return SchemeEd25519 }

func (s *Ed25519Scheme) Verify(raw string) (string, bool, error) {
	msgPart, sigPart, found := strings.Cut(strings.TrimSpace(raw), ".")
	if !found {
		return "", false, fmt.Errorf("%w: missing signature", ErrMalformedToken)
	}
	msg, err := base64.RawURLEncoding.DecodeString(msgPart)
	if err != nil {
		return "", false, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return "", false, fmt.Errorf("%w: signature: %v", ErrMalformedToken, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return "", false, fmt.Errorf("%w: signature length %d", ErrMalformedToken, len(sig))
	}
	if !ed25519.Verify(s.pub, msg, sig) {
		return "", false, nil
	}
	return string(msg), true, nil
}

// SignEd25519 produces a token that Ed25519Scheme.Verify accepts.
func SignEd25519(priv ed25519.PrivateKey, payload string) string {
	sig := ed25519.Sign(priv, []byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(sig)
}

// GenerateEd25519 returns a new signing key pair.
func GenerateEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

func ParsePublicKey(raw string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrInvalidKey, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes", ErrInvalidKey, ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(b), nil
}

func ParsePrivateKey(raw string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrInvalidKey, err)
	}
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	default:
		return nil, fmt.Errorf("%w: private key must be %d or %d bytes", ErrInvalidKey, ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}
