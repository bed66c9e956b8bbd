// Package verify authenticates decoded QR payloads before any downstream action.
//
// The Gate fails closed: scheme errors, panics, a missing scheme and empty
// or non-text results are all reported as invalid, never as success.
package verify

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/qrgate/internal/codec"
	"github.com/rs/zerolog/log"
)

var (
	ErrMalformedToken = errors.New("verify: malformed token")
	ErrUnknownScheme  = errors.New("verify: unknown scheme")
	ErrInvalidKey     = errors.New("verify: invalid key")
)

// Scheme is the external cryptographic contract: it returns the recovered
// payload and whether the token is authentic.
type Scheme interface {
	Name() string
	Verify(raw string) (string, bool, error)
}

// SchemeFunc adapts a function into a Scheme.
type SchemeFunc func(raw string) (string, bool, error)

func (f SchemeFunc) Name() string { return "func" }

func (f SchemeFunc) Verify(raw string) (string, bool, error) { return f(raw) }

// Result is the Gate's verdict for one payload. Payload is only set when
// Valid is true.
type Result struct {
	Payload string
	Valid   bool
	Detail  string
}

type Gate struct {
	scheme Scheme
}

func NewGate(scheme Scheme) *Gate {
	return &Gate{scheme: scheme}
}

func (g *Gate) SchemeName() string {
	if g == nil || g.scheme == nil {
		return ""
	}
	return g.scheme.Name()
}

// Verify never panics and never returns an error; failures are data.
func (g *Gate) Verify(p codec.Payload) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("scheme", g.SchemeName()).Interface("panic", r).Msg("verify.Gate.Verify scheme panicked")
			res = invalid(fmt.Sprintf("scheme panic: %v", r))
		}
	}()

	if g == nil || g.scheme == nil {
		return invalid("no verification scheme configured")
	}
	out, ok, err := g.scheme.Verify(string(p))
	switch {
	case err != nil:
		return invalid(err.Error())
	case !ok:
		return invalid("signature mismatch")
	case strings.TrimSpace(out) == "":
		return invalid("empty verified payload")
	case !utf8.ValidString(out):
		return invalid("verified payload is not text")
	}
	return Result{Payload: out, Valid: true}
}

func invalid(detail string) Result {
	return Result{Valid: false, Detail: detail}
}

// NewScheme builds a named scheme from its key material. secret feeds the
// secretbox key derivation; publicKey is a hex ed25519 public key.
func NewScheme(name, secret, publicKey string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SchemeSecretbox:
		return NewSecretboxScheme([]byte(secret))
	case SchemeEd25519:
		pub, err := ParsePublicKey(publicKey)
		if err != nil {
			return nil, err
		}
		return NewEd25519Scheme(pub)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}
