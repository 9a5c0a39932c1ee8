package sessionvalkey

import (
	"context"
	"errors"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/connector-manager/internal/session"
)

type ObjectType string

const (
	objectTypeState ObjectType = "state"
	objectTypeLogin ObjectType = "login"
)

var (
	ErrStoreState   = errors.New("setting state into storage")
	ErrConsumeState = errors.New("consuming state from store")
	ErrStoreLogin   = errors.New("setting login into storage")
	ErrGetLogin     = errors.New("getting login from store")
	ErrDeleteLogin  = errors.New("deleting login from store")
)

type Repository struct {
	store *store
}

var _ = session.Repository(&Repository{})

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func stateID(sessionID, provider string) string {
	return sessionID + ":" + provider
}

// StoreState replaces any pending state of the session for the provider. The
// key expires together with the state.
func (r *Repository) StoreState(ctx context.Context, state session.State) error {
	ttl := time.Until(state.Expiry)
	if ttl <= 0 {
		return errors.Join(ErrStoreState, errors.New("state already expired"))
	}

	if err := r.store.Set(ctx, objectTypeState, stateID(state.SessionID, state.Provider), state, ttl); err != nil {
		return errors.Join(ErrStoreState, err)
	}

	return nil
}

func (r *Repository) ConsumeState(ctx context.Context, sessionID, provider string) (session.State, error) {
	var state session.State
	if err := r.store.Take(ctx, objectTypeState, stateID(sessionID, provider), &state); err != nil {
		return session.State{}, errors.Join(ErrConsumeState, err)
	}

	return state, nil
}

func (r *Repository) StoreLogin(ctx context.Context, login session.Login) error {
	if err := r.store.Set(ctx, objectTypeLogin, login.SessionID, login, time.Until(login.Expiry)); err != nil {
		return errors.Join(ErrStoreLogin, err)
	}

	return nil
}

func (r *Repository) LoadLogin(ctx context.Context, sessionID string) (session.Login, error) {
	var login session.Login
	if err := r.store.Get(ctx, objectTypeLogin, sessionID, &login); err != nil {
		return session.Login{}, errors.Join(ErrGetLogin, err)
	}

	return login, nil
}

func (r *Repository) DeleteLogin(ctx context.Context, sessionID string) error {
	if err := r.store.Destroy(ctx, objectTypeLogin, sessionID); err != nil {
		return errors.Join(ErrDeleteLogin, err)
	}

	return nil
}
