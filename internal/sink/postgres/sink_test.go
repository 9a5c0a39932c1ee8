package sinkpostgres_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/connector-manager/internal/dbtest/postgrestest"
	"github.com/openkcm/connector-manager/internal/sink"
	sinkpostgres "github.com/openkcm/connector-manager/internal/sink/postgres"
)

var dbPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pool, _, terminate := postgrestest.Start(ctx)

	dbPool = pool

	code := m.Run()
	terminate(ctx)
	os.Exit(code)
}

func TestInferColumns(t *testing.T) {
	tests := []struct {
		name    string
		records []sink.Record
		want    []sinkpostgres.Column
	}{
		{
			name:    "no records",
			records: nil,
			want:    []sinkpostgres.Column{},
		},
		{
			name: "scalar types",
			records: []sink.Record{
				{"id": "a", "emails_sent": json.Number("12"), "archived": false},
			},
			want: []sinkpostgres.Column{
				{Name: "archived", Type: sinkpostgres.TypeBoolean},
				{Name: "emails_sent", Type: sinkpostgres.TypeNumber},
				{Name: "id", Type: sinkpostgres.TypeText},
			},
		},
		{
			name: "nested values are json",
			records: []sink.Record{
				{"settings": map[string]any{"title": "Spring"}, "tags": []any{"a"}},
			},
			want: []sinkpostgres.Column{
				{Name: "settings", Type: sinkpostgres.TypeJSON},
				{Name: "tags", Type: sinkpostgres.TypeJSON},
			},
		},
		{
			name: "null is refined by later records",
			records: []sink.Record{
				{"send_time": nil, "parent": nil},
				{"send_time": "2024-05-01T10:00:00Z"},
			},
			want: []sinkpostgres.Column{
				{Name: "parent", Type: sinkpostgres.TypeText},
				{Name: "send_time", Type: sinkpostgres.TypeText},
			},
		},
		{
			name: "mixed types widen to json",
			records: []sink.Record{
				{"value": "one"},
				{"value": json.Number("1")},
				{"value": nil},
			},
			want: []sinkpostgres.Column{
				{Name: "value", Type: sinkpostgres.TypeJSON},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sinkpostgres.InferColumns(tt.records)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("InferColumns() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSink_Replace(t *testing.T) {
	ctx := t.Context()
	s := sinkpostgres.NewSink(dbPool)

	err := s.Replace(ctx, "campaigns_replace", []sink.Record{
		{"id": "a", "emails_sent": json.Number("10"), "old_column": true},
		{"id": "b", "emails_sent": json.Number("20"), "old_column": false},
	})
	require.NoError(t, err)

	err = s.Replace(ctx, "campaigns_replace", []sink.Record{
		{"id": "c", "emails_sent": json.Number("30"), "settings": map[string]any{"title": "Spring"}},
	})
	require.NoError(t, err)

	rows, err := dbPool.Query(ctx, `SELECT id, emails_sent, settings FROM campaigns_replace`)
	require.NoError(t, err)

	type row struct {
		ID         string
		EmailsSent float64
		Settings   map[string]any
	}
	got, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (row, error) {
		var out row
		err := r.Scan(&out.ID, &out.EmailsSent, &out.Settings)
		return out, err
	})
	require.NoError(t, err)

	want := []row{{ID: "c", EmailsSent: 30, Settings: map[string]any{"title": "Spring"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("table content mismatch (-want +got):\n%s", diff)
	}

	var oldColumns int
	err = dbPool.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.columns WHERE table_name = 'campaigns_replace' AND column_name = 'old_column'`,
	).Scan(&oldColumns)
	require.NoError(t, err)
	assert.Zero(t, oldColumns, "previous schema is discarded")
}

func TestSink_ReplaceRejectsBadInput(t *testing.T) {
	s := sinkpostgres.NewSink(dbPool)

	tests := []struct {
		name    string
		table   string
		records []sink.Record
	}{
		{name: "invalid table", table: `x"; DROP TABLE extraction_runs; --`, records: []sink.Record{{"id": "a"}}},
		{name: "no columns", table: "empty_records", records: []sink.Record{{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.Replace(t.Context(), tt.table, tt.records))
		})
	}
}
