package cmdutils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/connector-manager/internal/config"
)

func TestCobraCommand(t *testing.T) {
	t.Run("creates command with correct properties", func(t *testing.T) {
		businessFunc := func(ctx context.Context, cfg *config.Config) error {
			return nil
		}

		wrapperFunc := func(ctx context.Context, fn func(context.Context, *config.Config) error, cfg *config.Config) error {
			return fn(ctx, cfg)
		}

		cmd := CobraCommand("test-cmd", "short desc", "long description", "v1.0.0", wrapperFunc, businessFunc)

		assert.Equal(t, "test-cmd", cmd.Use)
		assert.Equal(t, "short desc", cmd.Short)
		assert.Equal(t, "long description", cmd.Long)
		assert.NotNil(t, cmd.RunE)
	})

	t.Run("RunE returns error when config loading fails", func(t *testing.T) {
		businessFunc := func(ctx context.Context, cfg *config.Config) error {
			return nil
		}

		wrapperFunc := func(ctx context.Context, fn func(context.Context, *config.Config) error, cfg *config.Config) error {
			return fn(ctx, cfg)
		}

		cmd := CobraCommand("test", "short", "long", "v1.0.0", wrapperFunc, businessFunc)

		// Execute will fail because no config file exists
		err := cmd.Execute()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "loading config")
	})

	t.Run("RunE returns error when wrapper function fails", func(t *testing.T) {
		businessFunc := func(ctx context.Context, cfg *config.Config) error {
			return nil
		}

		wrapperErr := errors.New("wrapper error")
		wrapperFunc := func(ctx context.Context, fn func(context.Context, *config.Config) error, cfg *config.Config) error {
			return wrapperErr
		}

		cmd := CobraCommand("test", "short", "long", "v1.0.0", wrapperFunc, businessFunc)

		// Execute will fail because no config file exists (before reaching wrapper)
		err := cmd.Execute()
		assert.Error(t, err)
	})
}

func TestStatusListener(t *testing.T) {
	tests := []struct {
		name  string
		state health.State
	}{
		{
			name:  "no checks",
			state: health.State{Status: health.StatusUp, CheckState: map[string]health.CheckState{}},
		},
		{
			name: "postgres up",
			state: health.State{
				Status: health.StatusUp,
				CheckState: map[string]health.CheckState{
					"pgx": {Status: health.StatusUp},
				},
			},
		},
		{
			name: "valkey down",
			state: health.State{
				Status: health.StatusDown,
				CheckState: map[string]health.CheckState{
					"pgx":    {Status: health.StatusUp},
					"valkey": {Status: health.StatusDown, Result: errors.New("valkey health check failed on ping: connection refused")},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				statusListener(t.Context(), tt.state)
			})
		})
	}
}

func TestStartStatusServer(t *testing.T) {
	t.Run("returns error when connection string creation fails", func(t *testing.T) {
		cfg := &config.Config{
			Database: config.Database{
				Name: "connector_manager",
				Port: "5432",
				Host: commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/host"}},
			},
		}
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := startStatusServer(ctx, cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "making connection string from config")
	})
}

func TestReadinessOptions(t *testing.T) {
	database := config.Database{
		Name:     "connector_manager",
		Port:     "5432",
		Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost"},
		User:     commoncfg.SourceRef{Source: "embedded", Value: "postgres"},
		Password: commoncfg.SourceRef{Source: "embedded", Value: "secret"},
	}
	valkey := config.ValKey{
		Host: commoncfg.SourceRef{Source: "embedded", Value: "localhost:6379"},
	}

	tests := []struct {
		name     string
		cfg      *config.Config
		wantOpts int
	}{
		{
			name:     "nothing to check",
			cfg:      &config.Config{},
			wantOpts: 3,
		},
		{
			name:     "database",
			cfg:      &config.Config{Database: database},
			wantOpts: 4,
		},
		{
			name:     "valkey",
			cfg:      &config.Config{ValKey: valkey},
			wantOpts: 4,
		},
		{
			name:     "database and valkey",
			cfg:      &config.Config{Database: database, ValKey: valkey},
			wantOpts: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := readinessOptions(tt.cfg)
			require.NoError(t, err)
			assert.Len(t, opts, tt.wantOpts)
		})
	}
}

func TestReadinessOptions_ValKeyDown(t *testing.T) {
	opts, err := readinessOptions(&config.Config{
		ValKey: config.ValKey{
			Host:     commoncfg.SourceRef{Source: "embedded", Value: "127.0.0.1:1"},
			User:     commoncfg.SourceRef{Source: "embedded", Value: ""},
			Password: commoncfg.SourceRef{Source: "embedded", Value: ""},
		},
	})
	require.NoError(t, err)

	checker := health.NewChecker(opts...)
	res := checker.Check(t.Context())

	assert.Equal(t, health.StatusDown, res.Status)
	require.Contains(t, res.Details, "valkey")
	assert.Equal(t, health.StatusDown, res.Details["valkey"].Status)
}

// The connector sections of config.yaml reach the business function.
func TestCobraCommand_LoadsConnectorConfig(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantStore config.SecretStoreType
		wantSink  config.SinkType
		wantTable string
	}{
		{
			name: "valkey secrets into postgres",
			yaml: `application:
  name: connector-manager-test
secretStore:
  type: valkey
sink:
  type: postgres
extraction:
  subject: "42"
  table: campaigns_local
`,
			wantStore: config.SecretStoreValKey,
			wantSink:  config.SinkPostgres,
			wantTable: "campaigns_local",
		},
		{
			name: "secret manager into bigquery",
			yaml: `application:
  name: connector-manager-test
secretStore:
  type: gcp
  projectID: demo
sink:
  type: bigquery
  projectID: demo
  dataset: marketing
extraction:
  subject: "7"
  table: campaigns
`,
			wantStore: config.SecretStoreGCP,
			wantSink:  config.SinkBigQuery,
			wantTable: "campaigns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.yaml), 0o600))
			t.Chdir(dir)

			var got *config.Config
			businessFunc := func(_ context.Context, cfg *config.Config) error {
				got = cfg
				return nil
			}
			wrapperFunc := func(ctx context.Context, fn func(context.Context, *config.Config) error, cfg *config.Config) error {
				return fn(ctx, cfg)
			}

			cmd := CobraCommand("extract", "short", "long", "{}", wrapperFunc, businessFunc)
			cmd.SetArgs([]string{})
			require.NoError(t, cmd.ExecuteContext(t.Context()))

			require.NotNil(t, got)
			assert.Equal(t, tt.wantStore, got.SecretStore.Type)
			assert.Equal(t, tt.wantSink, got.Sink.Type)
			assert.Equal(t, tt.wantTable, got.Extraction.Table)
			assert.Equal(t, "connector-manager-test", got.Application.Name)
		})
	}
}

func TestHealthStatusTimeout(t *testing.T) {
	t.Run("has correct value", func(t *testing.T) {
		assert.Equal(t, 5*time.Second, healthStatusTimeout)
	})
}

func ExampleCobraCommand() {
	businessFunc := func(ctx context.Context, cfg *config.Config) error {
		fmt.Println("Running business logic")
		return nil
	}

	wrapperFunc := func(ctx context.Context, fn func(context.Context, *config.Config) error, cfg *config.Config) error {
		fmt.Println("Wrapper function called")
		return fn(ctx, cfg)
	}

	cmd := CobraCommand(
		"example",
		"Example command",
		"This is an example of how to use CobraCommand",
		"v1.0.0",
		wrapperFunc,
		businessFunc,
	)

	fmt.Printf("Command use: %s\n", cmd.Use)
	// Output: Command use: example
}
