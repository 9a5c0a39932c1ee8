// Package signedcookie signs and verifies opaque cookie values with
// HMAC-SHA256.
package signedcookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// MinKeyLength is the shortest accepted signing key in bytes.
const MinKeyLength = 32

var (
	ErrKeyTooShort = fmt.Errorf("signing key must be at least %d bytes", MinKeyLength)
	ErrMalformed   = errors.New("malformed signed value")
	ErrSignature   = errors.New("signature mismatch")
)

type Signer struct {
	key []byte
}

func NewSigner(key []byte) (*Signer, error) {
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	return &Signer{key: key}, nil
}

func formMessage(value string) []byte {
	return fmt.Appendf(nil, "%d!%s", len(value), value)
}

func (s *Signer) mac(value string) []byte {
	hash := hmac.New(sha256.New, s.key)
	hash.Write(formMessage(value))

	return hash.Sum(nil)
}

// Sign returns "<value>.<hex mac>". The value must not contain a dot.
func (s *Signer) Sign(value string) string {
	return value + "." + hex.EncodeToString(s.mac(value))
}

// Verify returns the original value of a signed string.
func (s *Signer) Verify(signed string) (string, error) {
	value, sig, ok := strings.Cut(signed, ".")
	if !ok || value == "" || strings.Contains(sig, ".") {
		return "", ErrMalformed
	}

	received, err := hex.DecodeString(sig)
	if err != nil {
		return "", ErrMalformed
	}

	if !hmac.Equal(received, s.mac(value)) {
		return "", ErrSignature
	}

	return value, nil
}
