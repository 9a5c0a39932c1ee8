package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/connector-manager/internal/serviceerr"
	"github.com/openkcm/connector-manager/internal/session"
)

type RepositoryOption func(*Repository)

type Repository struct {
	mu     sync.Mutex
	states map[string]session.State
	logins map[string]session.Login

	storeStateErr, consumeStateErr              error
	storeLoginErr, loadLoginErr, deleteLoginErr error
}

func WithState(state session.State) RepositoryOption {
	return func(r *Repository) { r.states[stateKey(state.SessionID, state.Provider)] = state }
}
func WithLogin(login session.Login) RepositoryOption {
	return func(r *Repository) { r.logins[login.SessionID] = login }
}
func WithStoreStateError(err error) RepositoryOption {
	return func(r *Repository) { r.storeStateErr = err }
}
func WithConsumeStateError(err error) RepositoryOption {
	return func(r *Repository) { r.consumeStateErr = err }
}
func WithStoreLoginError(err error) RepositoryOption {
	return func(r *Repository) { r.storeLoginErr = err }
}
func WithLoadLoginError(err error) RepositoryOption {
	return func(r *Repository) { r.loadLoginErr = err }
}
func WithDeleteLoginError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteLoginErr = err }
}

var _ = session.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		states: make(map[string]session.State),
		logins: make(map[string]session.Login),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func stateKey(sessionID, provider string) string {
	return sessionID + "/" + provider
}

func (r *Repository) StoreState(_ context.Context, state session.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeStateErr != nil {
		return r.storeStateErr
	}
	r.states[stateKey(state.SessionID, state.Provider)] = state
	return nil
}

func (r *Repository) ConsumeState(_ context.Context, sessionID, provider string) (session.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumeStateErr != nil {
		return session.State{}, r.consumeStateErr
	}
	key := stateKey(sessionID, provider)
	state, ok := r.states[key]
	if !ok {
		return session.State{}, serviceerr.ErrNotFound
	}
	delete(r.states, key)
	return state, nil
}

// States returns a snapshot of the pending states.
func (r *Repository) States() []session.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]session.State, 0, len(r.states))
	for _, s := range r.states {
		states = append(states, s)
	}
	return states
}

func (r *Repository) StoreLogin(_ context.Context, login session.Login) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeLoginErr != nil {
		return r.storeLoginErr
	}
	r.logins[login.SessionID] = login
	return nil
}

func (r *Repository) LoadLogin(_ context.Context, sessionID string) (session.Login, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadLoginErr != nil {
		return session.Login{}, r.loadLoginErr
	}
	if l, ok := r.logins[sessionID]; ok {
		return l, nil
	}
	return session.Login{}, serviceerr.ErrNotFound
}

func (r *Repository) DeleteLogin(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteLoginErr != nil {
		return r.deleteLoginErr
	}
	if _, ok := r.logins[sessionID]; !ok {
		return serviceerr.ErrNotFound
	}
	delete(r.logins, sessionID)
	return nil
}
