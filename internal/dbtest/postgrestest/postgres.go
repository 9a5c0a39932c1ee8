package postgrestest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/config"
	migrations "github.com/openkcm/connector-manager/sql"
)

const (
	DBHost     = "localhost"
	DBUser     = "postgres"
	DBPassword = "secret"
	DBName     = "connector_manager"
	DBSSLMode  = "disable"
)

// Start initialises a database instance and returns a connection pool, database port, and termination function.
//
// Database credentials are available as exported variables.
// The database schema is migrated to the latest version.
func Start(ctx context.Context) (*pgxpool.Pool, nat.Port, func(ctx context.Context)) {
	pgContainer, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase(DBName),
		postgres.WithUsername(DBUser),
		postgres.WithPassword(DBPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		slogctx.Error(ctx, "Failed to start PostgreSQL", slog.String("error", err.Error()))
		panic(err)
	}

	port, err := pgContainer.MappedPort(ctx, nat.Port("5432"))
	if err != nil {
		slogctx.Error(ctx, "Failed to get mapped port for the PostgreSQL container", slog.String("error", err.Error()))
		panic(err)
	}

	migrateDB(ctx, port)
	dbPool := makeDBConn(ctx, port)

	terminate := func(ctx context.Context) {
		dbPool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			slogctx.Error(ctx, "Failed to terminate PostgreSQL container", slog.String("error", err.Error()))
			panic(err)
		}
	}

	return dbPool, port, terminate
}

// ConnStr returns the keyword/value connection string for the container.
func ConnStr(port nat.Port) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s", DBHost, DBUser, DBPassword, DBName, port.Port(), DBSSLMode)
}

// Config returns the database settings that reach the container.
func Config(port nat.Port) config.Database {
	return config.Database{
		Name:     DBName,
		Port:     port.Port(),
		SSLMode:  DBSSLMode,
		Host:     commoncfg.SourceRef{Source: "embedded", Value: DBHost},
		User:     commoncfg.SourceRef{Source: "embedded", Value: DBUser},
		Password: commoncfg.SourceRef{Source: "embedded", Value: DBPassword},
	}
}

func makeDBConn(ctx context.Context, port nat.Port) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, ConnStr(port))
	if err != nil {
		panic(err)
	}

	return pool
}

func migrateDB(ctx context.Context, port nat.Port) {
	db, err := sql.Open("pgx", ConnStr(port))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("pgx"); err != nil {
		panic(err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		panic(err)
	}
}
