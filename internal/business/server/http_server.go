package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/authflow"
	"github.com/openkcm/connector-manager/internal/config"
	"github.com/openkcm/connector-manager/internal/serviceerr"
	"github.com/openkcm/connector-manager/internal/session"
	"github.com/openkcm/connector-manager/pkg/fingerprint"
)

const (
	authorizeSuffix = "_authorize"
	callbackSuffix  = "_callback"
)

type connectors struct {
	flow            *authflow.Manager
	sessions        *session.Manager
	providers       []string
	defaultProvider string
}

func newHandler(cfg *config.Config, m *meters, flow *authflow.Manager, sessions *session.Manager, providers []string) http.Handler {
	c := &connectors{
		flow:            flow,
		sessions:        sessions,
		providers:       providers,
		defaultProvider: cfg.DefaultProvider,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", m.traced("index", c.index))
	mux.Handle("GET /logout", m.traced("logout", c.logout))
	mux.Handle("GET /authorize", m.traced("authorize", c.withDefaultProvider(c.authorize)))
	mux.Handle("GET /callback", m.traced("callback", c.withDefaultProvider(c.callback)))
	mux.Handle("GET /{provider}/authorize", m.traced("authorize", c.authorize))
	mux.Handle("GET /{provider}/callback", m.traced("callback", c.callback))
	mux.Handle("GET /{route}", m.traced("legacy", c.legacy))

	return fingerprint.Middleware(mux)
}

// createHTTPServer creates an API http server using the given config
func createHTTPServer(ctx context.Context, cfg *config.Config, flow *authflow.Manager, sessions *session.Manager, providers []string) (*http.Server, error) {
	m, err := newMeters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           newHandler(cfg, m, flow, sessions, providers),
		ReadHeaderTimeout: cfg.HTTP.ClientTimeout,
	}, nil
}

// StartHTTPServer serves the connector pages until ctx is cancelled.
func StartHTTPServer(ctx context.Context, cfg *config.Config, flow *authflow.Manager, sessions *session.Manager, providers []string) error {
	server, err := createHTTPServer(ctx, cfg, flow, sessions, providers)
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Parse network if the address if provided in the format of network://address.
	// Otherwise use tcp network by default.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}

// sessionID returns the caller's session, setting the cookie when the
// session is new.
func (c *connectors) sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	id, fresh := c.sessions.SessionID(r)
	if !fresh {
		return id, nil
	}

	cookie, err := c.sessions.MakeSessionCookie(r.Context(), id)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, cookie)

	return id, nil
}

func (c *connectors) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := c.sessionID(w, r)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	data := indexPage{Title: "Connectors", Providers: c.providers}

	login, ok, err := c.sessions.CurrentUser(ctx, id)
	if err != nil {
		slogctx.Warn(ctx, "Could not load the signed in user", "error", err)
	}
	if ok {
		data.User = &userView{UserID: login.UserID, Email: login.Email, Name: login.Name}
	}

	render(ctx, w, http.StatusOK, "index", data)
}

func (c *connectors) logout(w http.ResponseWriter, r *http.Request) {
	id, fresh := c.sessions.SessionID(r)
	if !fresh {
		if err := c.sessions.SignOut(r.Context(), id); err != nil {
			c.fail(w, r, err)
			return
		}
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (c *connectors) authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := c.sessionID(w, r)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	fp, err := fingerprint.Extract(ctx)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	redirect, err := c.flow.Authorize(ctx, authflow.AuthorizeRequest{
		SessionID:     id,
		Provider:      r.PathValue("provider"),
		CallerContext: r.URL.Query().Get("peer"),
		Fingerprint:   fp,
	})
	if err != nil {
		c.fail(w, r, err)
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

func (c *connectors) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := c.sessionID(w, r)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	fp, err := fingerprint.Extract(ctx)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	res, err := c.flow.Callback(ctx, authflow.CallbackRequest{
		SessionID:        id,
		Provider:         r.PathValue("provider"),
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		Fingerprint:      fp,
	})
	if err != nil {
		c.fail(w, r, err)
		return
	}

	render(ctx, w, http.StatusOK, "success", successPage{
		Title:     "Connected",
		Provider:  res.Provider,
		Subject:   res.Subject,
		SecretKey: res.SecretKey,
		Version:   res.Version,
	})
}

// legacy serves the flat /<provider>_authorize and /<provider>_callback paths.
func (c *connectors) legacy(w http.ResponseWriter, r *http.Request) {
	route := r.PathValue("route")

	switch {
	case strings.HasSuffix(route, authorizeSuffix):
		r.SetPathValue("provider", strings.TrimSuffix(route, authorizeSuffix))
		c.authorize(w, r)
	case strings.HasSuffix(route, callbackSuffix):
		r.SetPathValue("provider", strings.TrimSuffix(route, callbackSuffix))
		c.callback(w, r)
	default:
		c.fail(w, r, serviceerr.ErrNotFound)
	}
}

func (c *connectors) withDefaultProvider(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.SetPathValue("provider", c.defaultProvider)
		next(w, r)
	}
}

func (c *connectors) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := serviceerr.HTTPStatus(err)
	serr := serviceerr.AsError(err)

	if status >= http.StatusInternalServerError {
		slogctx.Error(r.Context(), "Request failed", "error", err)
	} else {
		slogctx.Warn(r.Context(), "Request rejected", "error", err)
	}

	render(r.Context(), w, status, "error", errorPage{
		Title:       http.StatusText(status),
		Code:        string(serr.Err),
		Description: serr.Description,
	})
}
