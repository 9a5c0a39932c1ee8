// Package secretstoregcp stores secrets in Google Secret Manager.
package secretstoregcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"

	"google.golang.org/api/secretmanager/v1"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/gcpclient"
	"github.com/openkcm/connector-manager/internal/secretstore"
)

type Store struct {
	secrets   *secretmanager.ProjectsSecretsService
	projectID string
}

var _ = secretstore.Store(&Store{})

type Option func(*options)

type options struct {
	endpoint   string
	httpClient *http.Client
}

func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func NewStore(ctx context.Context, projectID string, opts ...Option) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("project id is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	svc, err := secretmanager.NewService(ctx, gcpclient.Options(o.endpoint, o.httpClient)...)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}

	return &Store{
		secrets:   svc.Projects.Secrets,
		projectID: projectID,
	}, nil
}

func (s *Store) secretName(key string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, key)
}

func (s *Store) Put(ctx context.Context, key string, payload []byte) (string, error) {
	if err := s.ensureSecret(ctx, key); err != nil {
		return "", err
	}

	version, err := s.secrets.AddVersion(s.secretName(key), &secretmanager.AddSecretVersionRequest{
		Payload: &secretmanager.SecretPayload{
			Data: base64.StdEncoding.EncodeToString(payload),
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("adding secret version: %w", err)
	}

	return path.Base(version.Name), nil
}

// ensureSecret creates the secret container. Losing a creation race to
// another writer is fine.
func (s *Store) ensureSecret(ctx context.Context, key string) error {
	_, err := s.secrets.Create("projects/"+s.projectID, &secretmanager.Secret{
		Replication: &secretmanager.Replication{
			Automatic: &secretmanager.Automatic{},
		},
	}).SecretId(key).Context(ctx).Do()

	switch {
	case err == nil:
		slogctx.Debug(ctx, "Created secret", "secret_id", key)
		return nil
	case gcpclient.IsConflict(err):
		return nil
	default:
		return fmt.Errorf("creating secret: %w", err)
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := s.secrets.Versions.Access(s.secretName(key) + "/versions/latest").Context(ctx).Do()
	if gcpclient.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("accessing secret version: %w", err)
	}

	if resp.Payload == nil {
		return nil, false, errors.New("secret version has no payload")
	}

	payload, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding secret payload: %w", err)
	}

	return payload, true, nil
}
