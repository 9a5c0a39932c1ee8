// Package provider describes the OAuth providers a connector can be
// authorized against.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/openkcm/connector-manager/internal/pkce"
	"github.com/openkcm/connector-manager/internal/serviceerr"
)

const (
	Mailchimp       = "mailchimp"
	ConstantContact = "constantcontact"
	Google          = "google"
)

// Details is what a provider reveals about the authorized account after the
// code exchange.
type Details struct {
	ServerPrefix string
	Subject      string
	Email        string
	Name         string
}

// Enricher runs provider specific lookups with a fresh token.
type Enricher interface {
	Enrich(ctx context.Context, token *oauth2.Token) (Details, error)
}

type Provider struct {
	Name     string
	OAuth2   oauth2.Config
	PKCE     bool
	Offline  bool
	Enricher Enricher

	httpClient *http.Client
}

// Configured reports whether client credentials and a redirect URI are set.
func (p *Provider) Configured() bool {
	return p.OAuth2.ClientID != "" && p.OAuth2.ClientSecret != "" && p.OAuth2.RedirectURL != ""
}

// AuthCodeURL builds the redirect to the provider's consent page.
func (p *Provider) AuthCodeURL(state string, challenge *pkce.PKCE) string {
	var opts []oauth2.AuthCodeOption
	if p.PKCE && challenge != nil {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", challenge.Challenge),
			oauth2.SetAuthURLParam("code_challenge_method", challenge.Method),
		)
	}
	if p.Offline {
		opts = append(opts, oauth2.AccessTypeOffline)
	}

	return p.OAuth2.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for a token. Failures wrap
// serviceerr.ErrTokenExchange; a rejection by the provider keeps its status
// and body.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if p.PKCE && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := p.OAuth2.Exchange(p.clientContext(ctx), code, opts...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, serviceerr.TokenExchangeError(re.Response.StatusCode, string(re.Body))
		}

		return nil, fmt.Errorf("%w: %w", serviceerr.ErrTokenExchange, err)
	}

	return token, nil
}

// Enrich runs the provider's post-exchange lookups, if it has any.
func (p *Provider) Enrich(ctx context.Context, token *oauth2.Token) (Details, error) {
	if p.Enricher == nil {
		return Details{}, nil
	}

	return p.Enricher.Enrich(ctx, token)
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
