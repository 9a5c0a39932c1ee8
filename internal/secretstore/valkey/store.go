// Package secretstorevalkey keeps versioned secrets in valkey lists, for
// deployments without Secret Manager.
package secretstorevalkey

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/connector-manager/internal/secretstore"
)

type Store struct {
	valkey valkey.Client
	prefix string
}

var _ = secretstore.Store(&Store{})

func NewStore(valkeyClient valkey.Client, prefix string) *Store {
	return &Store{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (s *Store) containerKey(key string) string {
	return fmt.Sprintf("%s:secret:%s", s.prefix, key)
}

func (s *Store) versionsKey(key string) string {
	return fmt.Sprintf("%s:secret:%s:versions", s.prefix, key)
}

func (s *Store) Put(ctx context.Context, key string, payload []byte) (string, error) {
	// The marker mirrors the container of other backends; NX keeps a
	// concurrent creation harmless.
	created := s.valkey.B().Set().Key(s.containerKey(key)).Value("1").Nx().Build()
	if err := s.valkey.Do(ctx, created).Error(); err != nil && !valkey.IsValkeyNil(err) {
		return "", fmt.Errorf("creating secret: %w", err)
	}

	n, err := s.valkey.Do(ctx, s.valkey.B().Rpush().Key(s.versionsKey(key)).Element(valkey.BinaryString(payload)).Build()).AsInt64()
	if err != nil {
		return "", fmt.Errorf("adding secret version: %w", err)
	}

	return strconv.FormatInt(n, 10), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.valkey.Do(ctx, s.valkey.B().Lindex().Key(s.versionsKey(key)).Index(-1).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading latest secret version: %w", err)
	}

	return payload, true, nil
}
