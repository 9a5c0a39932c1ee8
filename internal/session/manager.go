package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/config"
	"github.com/openkcm/connector-manager/internal/pkce"
	"github.com/openkcm/connector-manager/internal/serviceerr"
	"github.com/openkcm/connector-manager/pkg/signedcookie"
)

// Manager binds browser sessions to signed cookies and keeps track of the
// user signed in on each of them.
type Manager struct {
	logins   Repository
	signer   *signedcookie.Signer
	ids      pkce.Source
	template config.CookieTemplate

	loginDuration time.Duration
}

func NewManager(cfg *config.Session, repo Repository) (*Manager, error) {
	secret, err := commoncfg.LoadValueFromSourceRef(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("loading session secret from source ref: %w", err)
	}

	signer, err := signedcookie.NewSigner(secret)
	if err != nil {
		return nil, fmt.Errorf("creating cookie signer: %w", err)
	}

	return &Manager{
		logins:        repo,
		signer:        signer,
		template:      cfg.Cookie,
		loginDuration: cfg.LoginDuration,
	}, nil
}

// SessionID returns the session id carried by the request cookie. A new id
// is minted when the cookie is absent or fails verification; fresh reports
// whether the caller must set the cookie.
func (m *Manager) SessionID(r *http.Request) (id string, fresh bool) {
	c, err := r.Cookie(m.template.Name)
	if err == nil {
		id, err = m.signer.Verify(c.Value)
		if err == nil {
			return id, false
		}

		slogctx.Warn(r.Context(), "Discarding session cookie", "error", err)
	}

	return m.ids.SessionID(), true
}

func (m *Manager) MakeSessionCookie(ctx context.Context, sessionID string) (*http.Cookie, error) {
	if sessionID == "" || strings.Contains(sessionID, ".") {
		return nil, errors.New("invalid session id")
	}

	sessionCookie := m.template.ToCookie(m.signer.Sign(sessionID))

	err := sessionCookie.Valid()
	if err != nil {
		return nil, fmt.Errorf("invalid session cookie: %w", err)
	}

	if !sessionCookie.Secure {
		slogctx.Warn(ctx, "Session cookie is not marked as Secure; this is not recommended in production environments")
	}
	if !sessionCookie.HttpOnly {
		slogctx.Warn(ctx, "Session cookie is not marked as HttpOnly; this is not recommended in production environments")
	}

	return sessionCookie, nil
}

func (m *Manager) ExpiredSessionCookie() *http.Cookie {
	return m.template.ToExpiredCookie()
}

// CurrentUser returns the user signed in on the session. ok is false when
// nobody is signed in.
func (m *Manager) CurrentUser(ctx context.Context, sessionID string) (_ Login, ok bool, _ error) {
	login, err := m.logins.LoadLogin(ctx, sessionID)
	if errors.Is(err, serviceerr.ErrNotFound) {
		return Login{}, false, nil
	}
	if err != nil {
		return Login{}, false, fmt.Errorf("loading login: %w", err)
	}

	if !login.Expiry.IsZero() && time.Now().After(login.Expiry) {
		return Login{}, false, nil
	}

	return login, true, nil
}

func (m *Manager) SignIn(ctx context.Context, login Login) error {
	if login.Expiry.IsZero() {
		login.Expiry = time.Now().Add(m.loginDuration)
	}

	if err := m.logins.StoreLogin(ctx, login); err != nil {
		return fmt.Errorf("storing login: %w", err)
	}

	slogctx.Info(ctx, "User signed in", "user_id", login.UserID)

	return nil
}

func (m *Manager) SignOut(ctx context.Context, sessionID string) error {
	if err := m.logins.DeleteLogin(ctx, sessionID); err != nil && !errors.Is(err, serviceerr.ErrNotFound) {
		return fmt.Errorf("deleting login: %w", err)
	}

	return nil
}
