// Package sinkpostgres loads records into a Postgres table that is dropped
// and recreated on every load.
package sinkpostgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/sink"
)

const (
	TypeText    = "text"
	TypeNumber  = "double precision"
	TypeBoolean = "boolean"
	TypeJSON    = "jsonb"
)

// Column is an inferred table column.
type Column struct {
	Name string
	Type string
}

// DB is satisfied by *pgxpool.Pool and *pgx.Conn.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Sink struct {
	db DB
}

var _ = sink.Sink(&Sink{})

func NewSink(db DB) *Sink {
	return &Sink{db: db}
}

// Replace drops the table, recreates it with the columns inferred from
// records and copies the rows in, all in one transaction.
func (s *Sink) Replace(ctx context.Context, table string, records []sink.Record) error {
	if err := sink.ValidateTable(table); err != nil {
		return err
	}

	columns := InferColumns(records)
	if len(columns) == 0 {
		return fmt.Errorf("no columns found in %d records", len(records))
	}

	rows, err := toRows(columns, records)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ident := pgx.Identifier{table}

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
		return fmt.Errorf("dropping table: %w", err)
	}

	if _, err := tx.Exec(ctx, createTable(ident, columns)); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.Name)
	}

	copied, err := tx.CopyFrom(ctx, ident, names, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copying rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	slogctx.Info(ctx, "Replaced table", "table", table, "rows", copied, "columns", len(columns))

	return nil
}

func createTable(ident pgx.Identifier, columns []Column) string {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, pgx.Identifier{c.Name}.Sanitize()+" "+c.Type)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", ident.Sanitize(), strings.Join(defs, ", "))
}

// InferColumns derives one column per record key, sorted by name. A key
// whose values disagree on their type becomes jsonb; a key that is only ever
// null becomes text.
func InferColumns(records []sink.Record) []Column {
	types := make(map[string]string)
	for _, r := range records {
		for k, v := range r {
			t := typeOf(v)
			prev, seen := types[k]
			switch {
			case !seen || prev == "":
				types[k] = t
			case t == "" || t == prev:
			default:
				types[k] = TypeJSON
			}
		}
	}

	columns := make([]Column, 0, len(types))
	for name, t := range types {
		if t == "" {
			t = TypeText
		}
		columns = append(columns, Column{Name: name, Type: t})
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Name < columns[j].Name })

	return columns
}

func typeOf(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string:
		return TypeText
	case bool:
		return TypeBoolean
	case json.Number, float64, float32, int, int32, int64:
		return TypeNumber
	default:
		return TypeJSON
	}
}

func toRows(columns []Column, records []sink.Record) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for i, r := range records {
		row := make([]any, len(columns))
		for j, c := range columns {
			v, err := toValue(c.Type, r[c.Name])
			if err != nil {
				return nil, fmt.Errorf("record %d column %q: %w", i, c.Name, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func toValue(colType string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch colType {
	case TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(b), nil
	case TypeNumber:
		if n, ok := v.(json.Number); ok {
			return n.Float64()
		}
		return v, nil
	default:
		return v, nil
	}
}
