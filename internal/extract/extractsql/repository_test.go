package extractsql_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/connector-manager/internal/dbtest/postgrestest"
	"github.com/openkcm/connector-manager/internal/extract"
	"github.com/openkcm/connector-manager/internal/extract/extractsql"
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

func TestRepository_RecordRun(t *testing.T) {
	r := extractsql.NewRepository(dbPool)
	ctx := t.Context()

	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	runs := []extract.Run{
		{Subject: "42", Provider: "mailchimp", Table: "campaigns", Records: 5, Pages: 3, Status: extract.StatusLoaded, StartedAt: base, FinishedAt: base.Add(time.Second)},
		{Subject: "42", Provider: "mailchimp", Table: "campaigns", Status: extract.StatusFailed, Error: "upstream_api_error", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour)},
		{Subject: "43", Provider: "mailchimp", Table: "campaigns", Status: extract.StatusEmpty, StartedAt: base, FinishedAt: base},
	}
	for _, run := range runs {
		require.NoError(t, r.RecordRun(ctx, run))
	}

	got, err := r.LatestRuns(ctx, "42", "mailchimp", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, extract.StatusFailed, got[0].Status)
	assert.Equal(t, "upstream_api_error", got[0].Error)
	assert.NotEmpty(t, got[0].ID)

	assert.Equal(t, extract.StatusLoaded, got[1].Status)
	assert.Equal(t, 5, got[1].Records)
	assert.Equal(t, 3, got[1].Pages)
	assert.True(t, base.Equal(got[1].StartedAt))

	limited, err := r.LatestRuns(ctx, "42", "mailchimp", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRepository_RecordRunRejectsDuplicateID(t *testing.T) {
	r := extractsql.NewRepository(dbPool)
	run := extract.Run{
		ID:         "0b7f0a52-6c7b-4c1c-9bd9-3c5b8c8f4b11",
		Subject:    "dup",
		Provider:   "mailchimp",
		Table:      "campaigns",
		Status:     extract.StatusEmpty,
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}

	require.NoError(t, r.RecordRun(t.Context(), run))
	assert.Error(t, r.RecordRun(t.Context(), run))
}
