//go:build integration

package integration_test

import (
	"context"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
	"gopkg.in/yaml.v3"

	"github.com/openkcm/connector-manager/internal/config"
	"github.com/openkcm/connector-manager/internal/dbtest/postgrestest"
	"github.com/openkcm/connector-manager/internal/dbtest/valkeytest"
	"github.com/openkcm/connector-manager/internal/provider"
	"github.com/openkcm/connector-manager/internal/provider/providertest"
)

const valkeyPrefix = "connector-manager-it"

type closeFunc func(ctx context.Context)

type infraStat struct {
	PostgresPort   nat.Port
	ValKeyPort     nat.Port
	ConfigFilePath string
	Procdir        string
	Socket         string
	Cfg            config.Config

	DB       *pgxpool.Pool
	ValKey   valkey.Client
	Provider *providertest.Server

	closeFuncs []closeFunc
}

func initInfra(t *testing.T, exeName string) (istat infraStat) {
	t.Helper()

	// The config is read from $PWD/config.yaml, so every process runs in its
	// own directory.
	wd, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")
	istat.Procdir = filepath.Join(wd, exeName+"-test")
	istat.ConfigFilePath = filepath.Join(istat.Procdir, "config.yaml")

	err = os.MkdirAll(istat.Procdir, fs.ModePerm)
	require.NoError(t, err, "failed to create a dir for the process")

	err = os.WriteFile(istat.ConfigFilePath, []byte(validConfig), fs.ModePerm)
	require.NoError(t, err, "failed to write config file")

	err = commoncfg.LoadConfig(&istat.Cfg, nil, istat.Procdir)
	require.NoError(t, err, "failed to load config")

	istat.Socket = filepath.Join(istat.Procdir, exeName+".sock")
	istat.Cfg.HTTP.Address = "unix://" + istat.Socket

	return istat
}

func (istat *infraStat) PreparePostgres(t *testing.T) {
	t.Helper()

	pool, port, terminate := postgrestest.Start(t.Context())

	istat.DB = pool
	istat.PostgresPort = port
	istat.closeFuncs = append(istat.closeFuncs, terminate)
	istat.Cfg.Database = postgrestest.Config(port)
}

func (istat *infraStat) PrepareValKey(t *testing.T) {
	t.Helper()

	client, port, terminate := valkeytest.Start(t.Context())

	istat.ValKey = client
	istat.ValKeyPort = port
	istat.closeFuncs = append(istat.closeFuncs, terminate)
	istat.Cfg.ValKey = valkeytest.Config(port, valkeyPrefix)
	istat.Cfg.SecretStore = config.SecretStore{Type: config.SecretStoreValKey}
}

// PrepareProviders points every connector at a fake authorization server.
func (istat *infraStat) PrepareProviders(t *testing.T) {
	t.Helper()

	istat.Provider = providertest.NewServer()
	istat.closeFuncs = append(istat.closeFuncs, func(context.Context) { istat.Provider.Close() })

	istat.Cfg.Providers = config.Providers{
		Mailchimp:       istat.Provider.ProviderConfig(provider.Mailchimp, "http://localhost/mailchimp/callback"),
		ConstantContact: istat.Provider.ProviderConfig(provider.ConstantContact, "http://localhost/constantcontact/callback"),
	}
}

// PrepareConfig writes a config file for running the test into the ConfigFilePath.
func (istat *infraStat) PrepareConfig(t *testing.T) {
	t.Helper()

	configFile, err := os.Create(istat.ConfigFilePath)
	require.NoError(t, err, "failed to create config file")
	defer configFile.Close()

	err = yaml.NewEncoder(configFile).Encode(istat.Cfg)
	require.NoError(t, err, "failed to write config")
}

// Command prepares the binary to run with the given arguments inside the
// process directory, logging into <name>.log.
func (istat *infraStat) Command(t *testing.T, ctx context.Context, name string, args ...string) *exec.Cmd {
	t.Helper()

	currdir, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")

	cmd := exec.CommandContext(ctx, filepath.Join(currdir, binary), args...)
	cmd.Dir = istat.Procdir

	cmdOutPath := filepath.Join(currdir, name+".log")
	cmdOut, err := os.Create(cmdOutPath)
	require.NoError(t, err, "failed to create a log file")
	t.Cleanup(func() { cmdOut.Close() })

	cmd.Stdout = cmdOut
	cmd.Stderr = cmdOut
	t.Logf("running %s. Logs will be saved into %s", strings.Join(args, " "), cmdOutPath)

	return cmd
}

// HTTPClient talks to the API server over its unix socket and does not
// follow redirects.
func (istat *infraStat) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return new(net.Dialer).DialContext(ctx, "unix", istat.Socket)
			},
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 5 * time.Second,
	}
}

func (istat *infraStat) WaitForSocket(t *testing.T) {
	t.Helper()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", istat.Socket)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 10*time.Second, 100*time.Millisecond, "api server did not start listening")
}

func (istat *infraStat) Close(ctx context.Context) {
	os.Remove(istat.ConfigFilePath)
	os.RemoveAll(istat.Procdir)

	for _, close := range istat.closeFuncs {
		close(ctx)
	}
}
