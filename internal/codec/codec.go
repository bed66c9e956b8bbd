// Package codec turns the bytes read from one connection into a text payload.
package codec

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var ErrDecode = errors.New("codec: decode failed")

// Payload is decoded QR text. It is never empty and always valid UTF-8.
type Payload string

// DecodeError reports why raw bytes could not become a Payload.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("codec: %s", e.Reason)
	}
	return fmt.Sprintf("codec: %s at byte %d", e.Reason, e.Offset)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Decode validates raw as UTF-8 text and copies it into a Payload.
func Decode(raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return "", &DecodeError{Offset: -1, Reason: "empty payload"}
	}
	if !utf8.Valid(raw) {
		return "", &DecodeError{Offset: invalidOffset(raw), Reason: "invalid utf-8"}
	}
	return Payload(raw), nil
}

func invalidOffset(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(raw)
}
