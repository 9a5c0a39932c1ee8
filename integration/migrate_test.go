//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/openkcm/connector-manager/internal/dbtest/postgrestest"
)

func TestMigrate(t *testing.T) {
	const cmdName = "migrate"

	ctx := t.Context()

	istat := initInfra(t, cmdName)
	defer istat.Close(ctx)

	// postgrestest migrates its database, this test needs an empty one.
	pgContainer, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase(postgrestest.DBName),
		postgres.WithUsername(postgrestest.DBUser),
		postgres.WithPassword(postgrestest.DBPassword),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start PostgreSQL")
	defer func() { _ = pgContainer.Terminate(context.WithoutCancel(ctx)) }()

	port, err := pgContainer.MappedPort(ctx, nat.Port("5432"))
	require.NoError(t, err, "failed to get mapped port for the PostgreSQL container")

	istat.Cfg.Database = postgrestest.Config(port)
	istat.PrepareConfig(t)

	commandCtx, cancelCommand := context.WithTimeout(ctx, 30*time.Second)
	defer cancelCommand()

	require.NoError(t, istat.Command(t, commandCtx, cmdName, cmdName).Run(), "process exited abnormally")

	conn, err := pgx.Connect(ctx, postgrestest.ConnStr(port))
	require.NoError(t, err)
	defer conn.Close(ctx)

	var version int64
	require.NoError(t, conn.QueryRow(ctx, "SELECT max(version_id) FROM goose_db_version").Scan(&version))
	assert.Equal(t, int64(1), version)

	var exists bool
	require.NoError(t, conn.QueryRow(ctx, "SELECT to_regclass('extraction_runs') IS NOT NULL").Scan(&exists))
	assert.True(t, exists)
}
