package business

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/authflow"
	"github.com/openkcm/connector-manager/internal/business/server"
	"github.com/openkcm/connector-manager/internal/config"
	"github.com/openkcm/connector-manager/internal/provider"
	"github.com/openkcm/connector-manager/internal/secretstore"
	secretstoregcp "github.com/openkcm/connector-manager/internal/secretstore/gcp"
	secretstorevalkey "github.com/openkcm/connector-manager/internal/secretstore/valkey"
	"github.com/openkcm/connector-manager/internal/session"
	sessionvalkey "github.com/openkcm/connector-manager/internal/session/valkey"
	"github.com/openkcm/connector-manager/internal/valkeyclient"
)

// Main starts the public HTTP server of the connector flows.
func Main(ctx context.Context, cfg *config.Config) error {
	valkeyClient, err := valkeyclient.FromConfig(cfg.ValKey)
	if err != nil {
		return err
	}
	defer valkeyClient.Close()

	registry, err := provider.NewRegistry(cfg.Providers, cfg.DefaultProvider, httpClientFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating provider registry: %w", err)
	}

	sessionRepo := sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix)

	sessions, err := session.NewManager(&cfg.Session, sessionRepo)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	secrets, err := secretStoreFromConfig(ctx, cfg, valkeyClient)
	if err != nil {
		return err
	}

	flow, err := authflow.NewManager(registry, sessionRepo, sessions, secrets, cfg.Session.StateDuration)
	if err != nil {
		return fmt.Errorf("creating authorization flow: %w", err)
	}

	names := registry.Names()
	slogctx.Info(ctx, "Serving connectors", "providers", names, "secretStore", cfg.SecretStore.Type)

	return server.StartHTTPServer(ctx, cfg, flow, sessions, names)
}

func httpClientFromConfig(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTP.ClientTimeout}
}

// secretStoreFromConfig selects the token store. The valkey client is only
// used by the valkey store and may be nil otherwise.
func secretStoreFromConfig(ctx context.Context, cfg *config.Config, valkeyClient valkey.Client) (secretstore.Store, error) {
	switch cfg.SecretStore.Type {
	case config.SecretStoreGCP, "":
		store, err := secretstoregcp.NewStore(ctx, cfg.SecretStore.ProjectID,
			secretstoregcp.WithEndpoint(cfg.SecretStore.Endpoint),
		)
		if err != nil {
			return nil, fmt.Errorf("creating secret manager store: %w", err)
		}

		return store, nil
	case config.SecretStoreValKey:
		if valkeyClient == nil {
			return nil, errors.New("valkey secret store needs a valkey client")
		}

		return secretstorevalkey.NewStore(valkeyClient, cfg.ValKey.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown secret store type %q", cfg.SecretStore.Type)
	}
}

func dbPoolFromConfig(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}

	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}
