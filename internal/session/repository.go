package session

import "context"

type Repository interface {
	// State operations
	StoreState(ctx context.Context, state State) error
	// ConsumeState returns and deletes the pending state of a session for a
	// provider. It fails with serviceerr.ErrNotFound when there is none.
	ConsumeState(ctx context.Context, sessionID, provider string) (State, error)
	// Login operations
	StoreLogin(ctx context.Context, login Login) error
	LoadLogin(ctx context.Context, sessionID string) (Login, error)
	DeleteLogin(ctx context.Context, sessionID string) error
}
