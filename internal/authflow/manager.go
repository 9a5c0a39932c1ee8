// Package authflow runs the OAuth authorization code flow for connectors:
// it starts the redirect to a provider and finishes the callback by storing
// the obtained token in the secret store.
package authflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/pkce"
	"github.com/openkcm/connector-manager/internal/provider"
	"github.com/openkcm/connector-manager/internal/secretstore"
	"github.com/openkcm/connector-manager/internal/serviceerr"
	"github.com/openkcm/connector-manager/internal/session"
)

// UnknownSubject is stored as the subject when no identity is available.
const UnknownSubject = "unknown"

// Outcome is the terminal state of a callback.
type Outcome string

const (
	OutcomeStored          Outcome = "stored"
	OutcomeStoreFailed     Outcome = "store_failed"
	OutcomeCSRFRejected    Outcome = "csrf_rejected"
	OutcomeAccessDenied    Outcome = "access_denied"
	OutcomeCodeMissing     Outcome = "code_missing"
	OutcomeExchangeFailed  Outcome = "exchange_failed"
	OutcomeInvalidIDToken  Outcome = "invalid_id_token"
	OutcomeUpstreamFailed  Outcome = "upstream_failed"
	OutcomeInternalFailure Outcome = "internal_failure"
)

// SessionTracker knows which user is signed in on a browser session.
type SessionTracker interface {
	CurrentUser(ctx context.Context, sessionID string) (session.Login, bool, error)
	SignIn(ctx context.Context, login session.Login) error
}

type Manager struct {
	providers *provider.Registry
	states    session.Repository
	sessions  SessionTracker
	secrets   secretstore.Store
	ids       pkce.Source

	stateTTL time.Duration
	now      func() time.Time

	outcomes metric.Int64Counter
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(
	providers *provider.Registry,
	states session.Repository,
	sessions SessionTracker,
	secrets secretstore.Store,
	stateTTL time.Duration,
	opts ...Option,
) (*Manager, error) {
	outcomes, err := otel.Meter("github.com/openkcm/connector-manager/internal/authflow").Int64Counter(
		"connector.callback.outcomes",
		metric.WithDescription("Number of finished authorization callbacks by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outcome counter: %w", err)
	}

	m := &Manager{
		providers: providers,
		states:    states,
		sessions:  sessions,
		secrets:   secrets,
		stateTTL:  stateTTL,
		now:       time.Now,
		outcomes:  outcomes,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

type AuthorizeRequest struct {
	SessionID     string
	Provider      string
	CallerContext string
	Fingerprint   string
}

// Authorize records a fresh state for the session and returns the URL of
// the provider's consent page.
func (m *Manager) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	p, err := m.configuredProvider(req.Provider)
	if err != nil {
		return "", err
	}

	ctx = slogctx.With(ctx, "provider", p.Name)

	state := session.State{
		ID:            m.ids.State(req.CallerContext),
		SessionID:     req.SessionID,
		Provider:      p.Name,
		CallerContext: req.CallerContext,
		Fingerprint:   req.Fingerprint,
		Expiry:        m.now().Add(m.stateTTL),
	}

	var challenge *pkce.PKCE
	if p.PKCE {
		c := m.ids.PKCE()
		challenge = &c
		state.PKCEVerifier = c.Verifier
	}

	if err := m.states.StoreState(ctx, state); err != nil {
		return "", fmt.Errorf("storing state: %w", err)
	}

	slogctx.Info(ctx, "Authorization initiated", "has_caller_context", req.CallerContext != "")

	return p.AuthCodeURL(state.ID, challenge), nil
}

type CallbackRequest struct {
	SessionID        string
	Provider         string
	State            string
	Code             string
	Error            string
	ErrorDescription string
	Fingerprint      string
}

type Result struct {
	Provider  string
	SecretKey string
	Subject   string
	Version   string
	Email     string
	Name      string
}

// Callback validates the returned state, exchanges the code and stores the
// resulting token. The pending state is consumed whatever the outcome.
func (m *Manager) Callback(ctx context.Context, req CallbackRequest) (_ Result, err error) {
	p, err := m.configuredProvider(req.Provider)
	if err != nil {
		return Result{}, err
	}

	ctx = slogctx.With(ctx, "provider", p.Name)

	outcome := OutcomeInternalFailure
	defer func() {
		m.record(ctx, p.Name, outcome, err)
	}()

	state, err := m.states.ConsumeState(ctx, req.SessionID, p.Name)
	switch {
	case errors.Is(err, serviceerr.ErrNotFound):
		outcome = OutcomeCSRFRejected
		return Result{}, serviceerr.ErrCSRFValidation
	case err != nil:
		return Result{}, fmt.Errorf("consuming state: %w", err)
	}

	if !m.stateMatches(state, req) {
		outcome = OutcomeCSRFRejected
		return Result{}, serviceerr.ErrCSRFValidation
	}

	if req.Error != "" {
		outcome = OutcomeAccessDenied
		slogctx.Warn(ctx, "Provider returned an error", "error", req.Error, "description", req.ErrorDescription)
		return Result{}, serviceerr.ErrAccessDenied
	}

	if req.Code == "" {
		outcome = OutcomeCodeMissing
		return Result{}, serviceerr.ErrMissingAuthorizationCode
	}

	token, err := p.Exchange(ctx, req.Code, state.PKCEVerifier)
	if err != nil {
		outcome = OutcomeExchangeFailed
		return Result{}, err
	}

	details, err := p.Enrich(ctx, token)
	if err != nil {
		outcome = OutcomeInvalidIDToken
		if errors.Is(err, serviceerr.ErrUpstreamAPI) {
			outcome = OutcomeUpstreamFailed
		}
		return Result{}, err
	}

	if p.Name == provider.Google {
		m.signIn(ctx, req.SessionID, details)
	}

	subject := m.resolveSubject(ctx, state, req.SessionID, p.Name, details)
	ctx = slogctx.With(ctx, "subject", subject)

	bundle := m.bundle(p.Name, subject, token, details)
	key, version, err := secretstore.PutBundle(ctx, m.secrets, bundle)
	if err != nil {
		outcome = OutcomeStoreFailed
		return Result{}, err
	}

	outcome = OutcomeStored

	return Result{
		Provider:  p.Name,
		SecretKey: key,
		Subject:   subject,
		Version:   version,
		Email:     details.Email,
		Name:      details.Name,
	}, nil
}

func (m *Manager) configuredProvider(name string) (*provider.Provider, error) {
	p, err := m.providers.Get(name)
	if err != nil {
		return nil, err
	}

	if !p.Configured() {
		return nil, serviceerr.ErrConfiguration
	}

	return p, nil
}

func (m *Manager) stateMatches(state session.State, req CallbackRequest) bool {
	if req.State == "" || subtle.ConstantTimeCompare([]byte(state.ID), []byte(req.State)) != 1 {
		return false
	}

	if state.Fingerprint != req.Fingerprint {
		return false
	}

	return !state.Expired(m.now())
}

// resolveSubject picks the identity the token is stored under: the caller
// context of the flow, then the signed-in user, then the Google account.
func (m *Manager) resolveSubject(ctx context.Context, state session.State, sessionID, providerName string, details provider.Details) string {
	if caller := pkce.CallerContext(state.ID); caller != pkce.UnknownCaller {
		return caller
	}

	login, ok, err := m.sessions.CurrentUser(ctx, sessionID)
	if err != nil {
		slogctx.Warn(ctx, "Failed to look up the signed-in user", "error", err)
	}
	if ok && login.UserID != "" {
		return login.UserID
	}

	if providerName == provider.Google && details.Subject != "" {
		return details.Subject
	}

	return UnknownSubject
}

func (m *Manager) signIn(ctx context.Context, sessionID string, details provider.Details) {
	err := m.sessions.SignIn(ctx, session.Login{
		SessionID: sessionID,
		UserID:    details.Subject,
		Email:     details.Email,
		Name:      details.Name,
	})
	if err != nil {
		slogctx.Warn(ctx, "Failed to sign in the session", "error", err)
	}
}

func (m *Manager) bundle(providerName, subject string, token *oauth2.Token, details provider.Details) secretstore.TokenBundle {
	var expiresAt int64
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry.Unix()
	}

	scope, _ := token.Extra("scope").(string)

	return secretstore.TokenBundle{
		Provider:     providerName,
		Subject:      subject,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    expiresAt,
		ServerPrefix: details.ServerPrefix,
		Scope:        scope,
		Email:        details.Email,
		ObtainedAt:   m.now().Unix(),
	}
}

func (m *Manager) record(ctx context.Context, providerName string, outcome Outcome, err error) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("outcome", string(outcome)),
	))

	level := slog.LevelInfo
	if outcome != OutcomeStored {
		level = slog.LevelWarn
	}

	attrs := []any{"outcome", string(outcome)}
	if err != nil {
		attrs = append(attrs, "error", err)
	}

	slogctx.Log(ctx, level, "Authorization callback finished", attrs...)
}
