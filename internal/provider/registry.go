package provider

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/openkcm/connector-manager/internal/config"
	"github.com/openkcm/connector-manager/internal/serviceerr"
)

// Registry is the strategy table of supported providers.
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry builds every supported provider from configuration. Providers
// without credentials are kept so that requests for them fail with a
// configuration error rather than an unknown provider. Only defaultProvider
// may redirect to the bare /callback route.
func NewRegistry(cfg config.Providers, defaultProvider string, httpClient *http.Client) (*Registry, error) {
	r := &Registry{providers: make(map[string]*Provider)}

	for _, name := range []string{Mailchimp, ConstantContact, Google} {
		pc, _ := cfg.ByName(name)

		p, err := newProvider(name, pc, defaultProvider, httpClient)
		if err != nil {
			return nil, fmt.Errorf("configuring provider %s: %w", name, err)
		}

		r.providers[name] = p
	}

	return r, nil
}

// Register adds or replaces a provider.
func (r *Registry) Register(p *Provider) {
	r.providers[p.Name] = p
}

func (r *Registry) Get(name string) (*Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, serviceerr.ErrUnknownProvider
	}

	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func newProvider(name string, pc config.Provider, defaultProvider string, httpClient *http.Client) (*Provider, error) {
	clientID, err := loadOptional(pc.ClientID)
	if err != nil {
		return nil, fmt.Errorf("loading client id: %w", err)
	}

	clientSecret, err := loadOptional(pc.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("loading client secret: %w", err)
	}

	if pc.RedirectURI != "" {
		if err := config.ValidateRedirectURI(name, defaultProvider, pc.RedirectURI); err != nil {
			return nil, err
		}
	}

	p := &Provider{
		Name: name,
		OAuth2: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  pc.RedirectURI,
			Scopes:       pc.Scopes,
		},
		httpClient: httpClient,
	}

	switch name {
	case Mailchimp:
		p.OAuth2.Endpoint = oauth2.Endpoint{
			AuthURL:   or(pc.AuthURL, mailchimpAuthURL),
			TokenURL:  or(pc.TokenURL, mailchimpTokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		}
		p.Enricher = MailchimpMetadata{URL: or(pc.MetadataURL, mailchimpMetadataURL), Client: httpClient}
	case ConstantContact:
		p.OAuth2.Endpoint = oauth2.Endpoint{
			AuthURL:   or(pc.AuthURL, "https://authz.constantcontact.com/oauth2/default/v1/authorize"),
			TokenURL:  or(pc.TokenURL, "https://authz.constantcontact.com/oauth2/default/v1/token"),
			AuthStyle: oauth2.AuthStyleInHeader,
		}
		if len(p.OAuth2.Scopes) == 0 {
			p.OAuth2.Scopes = []string{"contact_data", "offline_access"}
		}
	case Google:
		p.OAuth2.Endpoint = oauth2.Endpoint{
			AuthURL:   or(pc.AuthURL, google.Endpoint.AuthURL),
			TokenURL:  or(pc.TokenURL, google.Endpoint.TokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		}
		if len(p.OAuth2.Scopes) == 0 {
			p.OAuth2.Scopes = []string{"openid", "email", "profile"}
		}
		p.PKCE = true
		p.Offline = true
		verifier, err := NewIDTokenVerifier(or(pc.IssuerURL, googleIssuerURL), clientID, httpClient, pc.AllowHTTPScheme)
		if err != nil {
			return nil, err
		}
		p.Enricher = verifier
	default:
		return nil, serviceerr.ErrUnknownProvider
	}

	return p, nil
}

func loadOptional(ref commoncfg.SourceRef) (string, error) {
	if ref.Source == "" {
		return "", nil
	}

	v, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return "", err
	}

	return string(v), nil
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}

	return fallback
}
