package provider

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/openkcm/common-sdk/pkg/oidc"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	"github.com/openkcm/connector-manager/internal/serviceerr"
)

const (
	googleIssuerURL = "https://accounts.google.com"

	discoveryTTL = time.Hour
	clockLeeway  = time.Minute
)

// IDTokenVerifier checks the id_token returned with a Google token against the
// issuer's published keys.
type IDTokenVerifier struct {
	IssuerURL string
	ClientID  string
	Client    *http.Client

	allowHTTPScheme bool
	cache           *cache.Cache
	now             func() time.Time
}

// NewIDTokenVerifier fails when the issuer URL is not usable, e.g. a plain
// http issuer without allowHTTPScheme.
func NewIDTokenVerifier(issuerURL, clientID string, client *http.Client, allowHTTPScheme bool) (*IDTokenVerifier, error) {
	v := &IDTokenVerifier{
		IssuerURL:       strings.TrimSuffix(issuerURL, "/"),
		ClientID:        clientID,
		Client:          client,
		allowHTTPScheme: allowHTTPScheme,
		cache:           cache.New(discoveryTTL, 2*discoveryTTL),
		now:             time.Now,
	}

	if _, err := v.oidcProvider(); err != nil {
		return nil, fmt.Errorf("creating oidc provider for %s: %w", v.IssuerURL, err)
	}

	return v, nil
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	AtHash        string `json:"at_hash,omitempty"`
}

// Enrich verifies the id_token of a Google token response. Failures to reach
// the issuer are upstream errors; everything else is an invalid id token.
func (v *IDTokenVerifier) Enrich(ctx context.Context, token *oauth2.Token) (Details, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return Details{}, fmt.Errorf("%w: token response has no id_token", serviceerr.ErrInvalidIDToken)
	}

	return v.Verify(ctx, raw, token.AccessToken)
}

// Verify validates signature, issuer, audience and lifetime of an ID token.
func (v *IDTokenVerifier) Verify(ctx context.Context, rawIDToken, accessToken string) (Details, error) {
	conf, err := v.openIDConfig(ctx)
	if err != nil {
		return Details{}, fmt.Errorf("%w: getting openid configuration: %w", serviceerr.ErrUpstreamAPI, err)
	}

	algs := make([]jose.SignatureAlgorithm, 0, len(conf.IDTokenSigningAlgValuesSupported))
	for _, alg := range conf.IDTokenSigningAlgValuesSupported {
		algs = append(algs, jose.SignatureAlgorithm(alg))
	}
	if len(algs) == 0 {
		algs = []jose.SignatureAlgorithm{jose.RS256}
	}

	idToken, err := jwt.ParseSigned(rawIDToken, algs)
	if err != nil {
		return Details{}, invalidIDToken("parsing id token: %w", err)
	}

	if len(idToken.Headers) == 0 {
		return Details{}, invalidIDToken("id token has no headers")
	}

	key, err := v.signingKey(ctx, conf.JwksURI, idToken.Headers[0].KeyID)
	if err != nil {
		var notFound oidc.CouldNotFindKeyForKeyIDError
		if errors.As(err, &notFound) {
			return Details{}, invalidIDToken("%w", err)
		}

		return Details{}, fmt.Errorf("%w: getting signing key: %w", serviceerr.ErrUpstreamAPI, err)
	}

	var standard jwt.Claims
	var custom idTokenClaims
	if err := idToken.Claims(key, &standard, &custom); err != nil {
		return Details{}, invalidIDToken("getting JWT claims: %w", err)
	}

	if err := standard.ValidateWithLeeway(jwt.Expected{
		AnyAudience: jwt.Audience{v.ClientID},
		Time:        v.now(),
	}, clockLeeway); err != nil {
		return Details{}, invalidIDToken("validating claims: %w", err)
	}

	if !v.issuerMatches(standard.Issuer, conf.Issuer) {
		return Details{}, invalidIDToken("unexpected issuer %q", standard.Issuer)
	}

	if standard.Subject == "" {
		return Details{}, invalidIDToken("id token has no subject")
	}

	if custom.AtHash != "" && accessToken != "" {
		if err := verifyAccessToken(accessToken, custom.AtHash, idToken); err != nil {
			return Details{}, invalidIDToken("%w", err)
		}
	}

	return Details{
		Subject: standard.Subject,
		Email:   custom.Email,
		Name:    custom.Name,
	}, nil
}

func invalidIDToken(format string, args ...any) error {
	return fmt.Errorf("%w: %w", serviceerr.ErrInvalidIDToken, fmt.Errorf(format, args...))
}

// issuerMatches accepts the scheme-less issuer Google puts in some tokens.
func (v *IDTokenVerifier) issuerMatches(got, want string) bool {
	if got == want {
		return true
	}

	return want == googleIssuerURL && got == strings.TrimPrefix(googleIssuerURL, "https://")
}

func (v *IDTokenVerifier) oidcProvider(opts ...oidc.ProviderOption) (*oidc.Provider, error) {
	opts = append(opts, oidc.WithAllowHttpScheme(v.allowHTTPScheme))
	if v.Client != nil {
		opts = append(opts, oidc.WithPublicHTTPClient(v.Client))
	}

	return oidc.NewProvider(v.IssuerURL, []string{v.ClientID}, opts...)
}

func (v *IDTokenVerifier) openIDConfig(ctx context.Context) (*oidc.Configuration, error) {
	const wkocPrefix = "wkoc_"

	// first check the cache for a recent configuration for this issuer
	cacheKey := wkocPrefix + v.IssuerURL
	if cached, ok := v.cache.Get(cacheKey); ok {
		//nolint:forcetypeassert
		return cached.(*oidc.Configuration), nil
	}

	provider, err := v.oidcProvider()
	if err != nil {
		return nil, err
	}

	conf, err := provider.GetConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	if conf.JwksURI == "" {
		return nil, errors.New("openid configuration has no jwks_uri")
	}

	v.cache.Set(cacheKey, conf, cache.DefaultExpiration)

	return conf, nil
}

func (v *IDTokenVerifier) signingKey(ctx context.Context, jwksURI, keyID string) (*jose.JSONWebKey, error) {
	const jwkPrefix = "jwk_"

	cacheKey := jwkPrefix + jwksURI + "#" + keyID
	if cached, ok := v.cache.Get(cacheKey); ok {
		//nolint:forcetypeassert
		return cached.(*jose.JSONWebKey), nil
	}

	provider, err := v.oidcProvider(oidc.WithCustomJWKSURI(jwksURI))
	if err != nil {
		return nil, err
	}

	key, err := provider.GetSigningKey(ctx, keyID)
	if err != nil {
		return nil, err
	}

	v.cache.Set(cacheKey, key, cache.DefaultExpiration)

	return key, nil
}

var errAtHashMismatch = errors.New("at_hash does not match the access token")

func verifyAccessToken(accessToken, atHash string, idToken *jwt.JSONWebToken) error {
	if len(idToken.Headers) == 0 {
		return errors.New("id token has no headers")
	}

	var h hash.Hash
	switch alg := idToken.Headers[0].Algorithm; {
	case slices.Contains([]string{"RS256", "ES256", "PS256"}, alg):
		h = sha256.New()
	case slices.Contains([]string{"RS384", "ES384", "PS384"}, alg):
		h = sha512.New384()
	case slices.Contains([]string{"RS512", "ES512", "PS512", "EdDSA"}, alg):
		h = sha512.New()
	default:
		return fmt.Errorf("unsupported signing algorithm %q", alg)
	}

	h.Write([]byte(accessToken))
	sum := h.Sum(nil)[:h.Size()/2]
	if base64.RawURLEncoding.EncodeToString(sum) != atHash {
		return errAtHashMismatch
	}

	return nil
}
