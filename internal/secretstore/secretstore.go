// Package secretstore persists provider credentials as versioned secrets.
package secretstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/openkcm/connector-manager/internal/serviceerr"
)

// MaxKeyLength is the longest secret id Secret Manager accepts.
const MaxKeyLength = 255

// Store keeps an append-only list of versions per key.
type Store interface {
	// Put creates the container for key when it does not exist yet and
	// appends payload as a new version.
	Put(ctx context.Context, key string, payload []byte) (version string, err error)
	// Get returns the latest version. A missing key is not an error.
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)
}

var plainSubject = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Key derives the secret id for a subject and provider. Plain alphanumeric
// subjects are used verbatim, anything else is hex encoded behind a marker
// that plain subjects cannot produce, and overlong ids fall back to a digest.
func Key(subject, provider string) string {
	if plainSubject.MatchString(subject) {
		if k := fmt.Sprintf("user_%s_%s_token", subject, provider); len(k) <= MaxKeyLength {
			return k
		}
	}

	if k := fmt.Sprintf("user_-%s_%s_token", hex.EncodeToString([]byte(subject)), provider); len(k) <= MaxKeyLength {
		return k
	}

	sum := sha256.Sum256([]byte(subject))

	return fmt.Sprintf("user_--%s_%s_token", hex.EncodeToString(sum[:]), provider)
}

// TokenBundle is the credential record stored for one subject and provider.
type TokenBundle struct {
	Provider     string `json:"provider"`
	Subject      string `json:"subject"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiresAt is in epoch seconds; zero means the token does not expire.
	ExpiresAt    int64  `json:"expires_at"`
	ServerPrefix string `json:"dc,omitempty"`
	Scope        string `json:"scope,omitempty"`
	Email        string `json:"email,omitempty"`
	ObtainedAt   int64  `json:"obtained_at"`
}

func (b TokenBundle) Expired(now time.Time) bool {
	return b.ExpiresAt != 0 && now.Unix() >= b.ExpiresAt
}

func PutBundle(ctx context.Context, s Store, bundle TokenBundle) (key, version string, err error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return "", "", fmt.Errorf("encoding token bundle: %w", err)
	}

	key = Key(bundle.Subject, bundle.Provider)
	version, err = s.Put(ctx, key, payload)
	if err != nil {
		return key, "", errors.Join(serviceerr.ErrSecretStore, err)
	}

	return key, version, nil
}

func GetBundle(ctx context.Context, s Store, subject, provider string) (TokenBundle, bool, error) {
	payload, found, err := s.Get(ctx, Key(subject, provider))
	if err != nil {
		return TokenBundle{}, false, errors.Join(serviceerr.ErrSecretStore, err)
	}
	if !found {
		return TokenBundle{}, false, nil
	}

	var bundle TokenBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return TokenBundle{}, false, errors.Join(serviceerr.ErrSecretStore, fmt.Errorf("decoding token bundle: %w", err))
	}

	return bundle, true, nil
}
