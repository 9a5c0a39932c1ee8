package sessionvalkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/connector-manager/internal/serviceerr"
)

type store struct {
	valkey valkey.Client
	prefix string
}

func newStore(valkeyClient valkey.Client, prefix string) *store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

// Set writes val under the key. A non-positive ttl stores the key without
// expiry.
func (s *store) Set(ctx context.Context, objectType ObjectType, id string, val any, ttl time.Duration) error {
	key := s.key(objectType, id)
	bytes, err := s.encode(val)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}

	set := s.valkey.B().Set().Key(key).Value(valkey.BinaryString(bytes))
	cmd := set.Build()
	if ttl > 0 {
		cmd = set.PxMilliseconds(max(ttl.Milliseconds(), 1)).Build()
	}

	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *store) Get(ctx context.Context, objectType ObjectType, id string, decodeInto any) error {
	key := s.key(objectType, id)
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(key).Build()).AsBytes()
	return s.decodeReply(bytes, err, decodeInto)
}

// Take reads and deletes the key in one command.
func (s *store) Take(ctx context.Context, objectType ObjectType, id string, decodeInto any) error {
	key := s.key(objectType, id)
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Getdel().Key(key).Build()).AsBytes()
	return s.decodeReply(bytes, err, decodeInto)
}

func (s *store) Destroy(ctx context.Context, objectType ObjectType, id string) error {
	key := s.key(objectType, id)
	deleted, err := s.valkey.Do(ctx, s.valkey.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	if deleted == 0 {
		return serviceerr.ErrNotFound
	}

	return nil
}

func (s *store) decodeReply(bytes []byte, err error, decodeInto any) error {
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return serviceerr.ErrNotFound
		}

		return fmt.Errorf("executing get command: %w", err)
	}

	if err := s.decode(bytes, decodeInto); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}

	return nil
}

func (s *store) key(objectType ObjectType, objectID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, objectType, objectID)
}

func (s *store) encode(v any) ([]byte, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling json: %w", err)
	}

	return bytes, nil
}

func (s *store) decode(data []byte, into any) error {
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}

	return nil
}
