// Package extractsql records extraction runs in Postgres.
package extractsql

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/connector-manager/internal/extract"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ = extract.RunLog(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) RecordRun(ctx context.Context, run extract.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO extraction_runs (id, subject, provider, table_name, records, pages, status, error, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
		run.ID, run.Subject, run.Provider, run.Table, run.Records, run.Pages, string(run.Status), run.Error, run.StartedAt, run.FinishedAt,
	); err != nil {
		return fmt.Errorf("inserting extraction run: %w", err)
	}

	return nil
}

// LatestRuns returns up to limit runs of a subject and provider, newest first.
func (r *Repository) LatestRuns(ctx context.Context, subject, provider string, limit int) ([]extract.Run, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, subject, provider, table_name, records, pages, status, error, started_at, finished_at
			 FROM extraction_runs
			 WHERE subject = $1 AND provider = $2
			 ORDER BY started_at DESC
			 LIMIT $3;`,
		subject, provider, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying extraction runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (extract.Run, error) {
		var run extract.Run
		var id uuid.UUID
		var status string
		err := row.Scan(&id, &run.Subject, &run.Provider, &run.Table, &run.Records, &run.Pages, &status, &run.Error, &run.StartedAt, &run.FinishedAt)
		run.ID = id.String()
		run.Status = extract.Status(status)
		return run, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning extraction runs: %w", err)
	}

	return runs, nil
}
