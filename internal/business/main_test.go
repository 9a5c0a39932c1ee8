package business

import (
	"context"
	"os"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/connector-manager/internal/dbtest/postgrestest"
	"github.com/openkcm/connector-manager/internal/dbtest/valkeytest"
)

var (
	dbPool       *pgxpool.Pool
	dbPort       nat.Port
	valkeyClient valkey.Client
	valkeyPort   nat.Port
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	pool, pgPort, terminateDB := postgrestest.Start(ctx)
	client, vkPort, terminateValkey := valkeytest.Start(ctx)

	dbPool, dbPort = pool, pgPort
	valkeyClient, valkeyPort = client, vkPort

	code := m.Run()

	terminateValkey(ctx)
	terminateDB(ctx)
	os.Exit(code)
}
