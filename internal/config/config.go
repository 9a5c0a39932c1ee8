// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const (
	ProviderMailchimp       = "mailchimp"
	ProviderConstantContact = "constantcontact"
	ProviderGoogle          = "google"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	Database   Database   `yaml:"database"`
	ValKey     ValKey     `yaml:"valkey"`
	Migrate    Migrate    `yaml:"migrate"`
	Session    Session    `yaml:"session"`
	Providers  Providers  `yaml:"providers"`
	Extraction Extraction `yaml:"extraction"`

	DefaultProvider string      `yaml:"defaultProvider" default:"mailchimp"`
	SecretStore     SecretStore `yaml:"secretStore"`
	Sink            Sink        `yaml:"sink"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
	ClientTimeout   time.Duration `yaml:"clientTimeout" default:"30s"`
	PublicURL       string        `yaml:"publicURL"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	SSLMode  string              `yaml:"sslMode"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

// Configured reports whether a database has been set up at all. The API
// server and the extraction job run without one.
func (d Database) Configured() bool {
	return d.Name != "" && d.Host.Source != ""
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix" default:"connector-manager"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

func (v ValKey) Configured() bool {
	return v.Host.Source != ""
}

type Session struct {
	Cookie        CookieTemplate      `yaml:"cookie"`
	Secret        commoncfg.SourceRef `yaml:"secret"`
	StateDuration time.Duration       `yaml:"stateDuration" default:"10m"`
	LoginDuration time.Duration       `yaml:"loginDuration" default:"12h"`
}

// Migrate points at a directory of goose migrations. The migrations built
// into the binary are applied when Source is empty.
type Migrate struct {
	Source string `yaml:"source"`
}

type Providers struct {
	Mailchimp       Provider `yaml:"mailchimp"`
	ConstantContact Provider `yaml:"constantContact"`
	Google          Provider `yaml:"google"`
}

// ByName returns the provider settings for a connector name.
func (p Providers) ByName(name string) (Provider, bool) {
	switch name {
	case ProviderMailchimp:
		return p.Mailchimp, true
	case ProviderConstantContact:
		return p.ConstantContact, true
	case ProviderGoogle:
		return p.Google, true
	default:
		return Provider{}, false
	}
}

type Provider struct {
	ClientID     commoncfg.SourceRef `yaml:"clientID"`
	ClientSecret commoncfg.SourceRef `yaml:"clientSecret"`
	RedirectURI  string              `yaml:"redirectURI"`
	AuthURL      string              `yaml:"authURL"`
	TokenURL     string              `yaml:"tokenURL"`
	MetadataURL  string              `yaml:"metadataURL"`
	IssuerURL    string              `yaml:"issuerURL"`
	Scopes       []string            `yaml:"scopes"`

	// AllowHTTPScheme permits a plain http issuer, for local providers only.
	AllowHTTPScheme bool `yaml:"allowHttpScheme"`
}

type SecretStoreType string

const (
	SecretStoreGCP    SecretStoreType = "gcp"
	SecretStoreValKey SecretStoreType = "valkey"
)

type SecretStore struct {
	Type      SecretStoreType `yaml:"type" default:"gcp"`
	ProjectID string          `yaml:"projectID"`
	Endpoint  string          `yaml:"endpoint"`
}

type SinkType string

const (
	SinkBigQuery SinkType = "bigquery"
	SinkPostgres SinkType = "postgres"
)

type Sink struct {
	Type      SinkType `yaml:"type" default:"bigquery"`
	ProjectID string   `yaml:"projectID"`
	Dataset   string   `yaml:"dataset" default:"mailchimp_data"`
	Location  string   `yaml:"location" default:"US"`
	Endpoint  string   `yaml:"endpoint"`
}

type Extraction struct {
	Subject    string `yaml:"subject"`
	Provider   string `yaml:"provider" default:"mailchimp"`
	Table      string `yaml:"table" default:"campaigns"`
	PageSize   int    `yaml:"pageSize" default:"100"`
	MaxPages   int    `yaml:"maxPages" default:"50"`
	APIBaseURL string `yaml:"apiBaseURL"`
}

// ValidateRedirectURI checks that a configured redirect URI is an absolute
// http(s) URL pointing at a callback route served for the named provider. The
// bare /callback route only serves the default provider.
func ValidateRedirectURI(provider, defaultProvider, redirectURI string) error {
	if redirectURI == "" {
		return errors.New("redirect URI is empty")
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("parsing redirect URI: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("redirect URI %q must use http or https", redirectURI)
	}

	if u.Host == "" {
		return fmt.Errorf("redirect URI %q must be absolute", redirectURI)
	}

	path := strings.TrimSuffix(u.Path, "/")
	switch {
	case strings.HasSuffix(path, "/"+provider+"/callback"):
	case strings.HasSuffix(path, "/"+provider+"_callback"):
	case path == "/callback" && provider == defaultProvider:
	default:
		return fmt.Errorf("redirect URI %q must point at a callback route of %s", redirectURI, provider)
	}

	return nil
}
