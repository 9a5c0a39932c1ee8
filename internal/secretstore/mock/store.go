package secretstoremock

import (
	"context"
	"strconv"
	"sync"

	"github.com/openkcm/connector-manager/internal/secretstore"
)

type StoreOption func(*Store)

// Store is an in-memory secretstore.Store.
type Store struct {
	mu       sync.Mutex
	versions map[string][][]byte

	putErr, getErr error
	puts, gets     int
}

var _ = secretstore.Store(&Store{})

func WithSecret(key string, payload []byte) StoreOption {
	return func(s *Store) { s.versions[key] = append(s.versions[key], payload) }
}
func WithPutError(err error) StoreOption {
	return func(s *Store) { s.putErr = err }
}
func WithGetError(err error) StoreOption {
	return func(s *Store) { s.getErr = err }
}

func NewInMemStore(opts ...StoreOption) *Store {
	s := &Store{versions: make(map[string][][]byte)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Put(_ context.Context, key string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++
	if s.putErr != nil {
		return "", s.putErr
	}
	s.versions[key] = append(s.versions[key], append([]byte(nil), payload...))
	return strconv.Itoa(len(s.versions[key])), nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gets++
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	versions := s.versions[key]
	if len(versions) == 0 {
		return nil, false, nil
	}
	return versions[len(versions)-1], true, nil
}

// Versions returns every stored version of key, oldest first.
func (s *Store) Versions(key string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([][]byte(nil), s.versions[key]...)
}

func (s *Store) PutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.puts
}

func (s *Store) GetCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gets
}
