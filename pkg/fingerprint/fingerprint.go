package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	slogctx "github.com/veqryn/slog-context"
)

var headerKeys = []string{"user-agent", "accept-language"}

type ctxKey string

const fingerprintKey ctxKey = "fingerprint"

// FromHTTPRequest hashes the request headers that stay stable for one browser
// across the redirect to a provider and back.
func FromHTTPRequest(r *http.Request) (string, error) {
	if r == nil {
		return "", errors.New("http request is nil")
	}

	h := sha256.New()

	for _, key := range headerKeys {
		val := r.Header.Get(key)
		slogctx.Debug(r.Context(), "Building fingerprint", "header", key)
		h.Write([]byte(val))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp, _ := FromHTTPRequest(r)
		next.ServeHTTP(w, r.WithContext(WithFingerprint(r.Context(), fp)))
	})
}

func WithFingerprint(ctx context.Context, fp string) context.Context {
	return context.WithValue(ctx, fingerprintKey, fp)
}

func Extract(ctx context.Context) (string, error) {
	fp, ok := ctx.Value(fingerprintKey).(string)
	if !ok {
		return "", errors.New("no fingerprint in ctx")
	}

	return fp, nil
}
