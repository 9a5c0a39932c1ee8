package sinkmock

import (
	"context"
	"maps"
	"sync"

	"github.com/openkcm/connector-manager/internal/sink"
)

type SinkOption func(*Sink)

// Sink keeps replaced tables in memory.
type Sink struct {
	mu         sync.Mutex
	tables     map[string][]sink.Record
	replaces   int
	replaceErr error
}

var _ = sink.Sink(&Sink{})

func WithTable(name string, records []sink.Record) SinkOption {
	return func(s *Sink) { s.tables[name] = records }
}

func WithReplaceError(err error) SinkOption {
	return func(s *Sink) { s.replaceErr = err }
}

func NewInMemSink(opts ...SinkOption) *Sink {
	s := &Sink{tables: make(map[string][]sink.Record)}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Sink) Replace(_ context.Context, table string, records []sink.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaces++
	if s.replaceErr != nil {
		return s.replaceErr
	}

	if err := sink.ValidateTable(table); err != nil {
		return err
	}

	copied := make([]sink.Record, 0, len(records))
	for _, r := range records {
		copied = append(copied, maps.Clone(r))
	}
	s.tables[table] = copied

	return nil
}

// Table returns the current rows of a table and whether it exists.
func (s *Sink) Table(name string) ([]sink.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[name]

	return rows, ok
}

func (s *Sink) Replaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.replaces
}
