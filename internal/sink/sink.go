// Package sink writes extracted records into a tabular destination.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
)

// Record is one extracted row as decoded from the upstream JSON.
type Record map[string]any

// Sink replaces the whole content of a table with a set of records. The
// schema is inferred from the records; prior rows and columns are discarded.
type Sink interface {
	Replace(ctx context.Context, table string, records []Record) error
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// ValidateTable rejects names that are not plain identifiers in both
// BigQuery and Postgres.
func ValidateTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}

	return nil
}

// WriteNDJSON encodes records as newline delimited JSON.
func WriteNDJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}

	return nil
}
