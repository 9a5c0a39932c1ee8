package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	MethodS256 = "S256"

	// UnknownCaller is reported when a state carries no caller context.
	UnknownCaller = "unknown"

	callerSeparator = "|peer_id="
)

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

type Source struct{}

func (p Source) randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)

	return b
}

func (p Source) randString(n int) string {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

	ret := make([]byte, n)
	for i := range n {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		ret[i] = letters[num.Int64()]
	}

	return string(ret)
}

func (p Source) PKCE() PKCE {
	const n = 32

	verifierBuf := make([]byte, base64.RawURLEncoding.EncodedLen(n))
	base64.RawURLEncoding.Encode(verifierBuf, p.randBytes(n))

	challengeSHA := sha256.Sum256(verifierBuf)
	challengeBuf := make([]byte, base64.RawURLEncoding.EncodedLen(len(challengeSHA)))
	base64.RawURLEncoding.Encode(challengeBuf, challengeSHA[:])

	return PKCE{
		Verifier:  string(verifierBuf),
		Challenge: string(challengeBuf),
		Method:    MethodS256,
	}
}

// State returns a fresh v4 UUID, suffixed with the caller context when one
// is given.
func (p Source) State(callerContext string) string {
	state := uuid.NewString()
	if callerContext == "" {
		return state
	}

	return state + callerSeparator + callerContext
}

func (p Source) SessionID() string {
	return p.randString(32) // Entropy E = L * log2(63) = 32 * log2(63) = 191.3 bits
}

// CallerContext extracts the caller context embedded in a state value.
func CallerContext(state string) string {
	_, caller, ok := strings.Cut(state, callerSeparator)
	if !ok || caller == "" {
		return UnknownCaller
	}

	return caller
}
