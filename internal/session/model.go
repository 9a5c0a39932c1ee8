package session

import "time"

// State is an authorization request in flight. It aligns the redirect to a
// provider with the callback that comes back from it.
type State struct {
	ID            string    // Opaque state value sent to the provider
	SessionID     string    // Browser session that started the flow
	Provider      string    // Connector the flow belongs to
	CallerContext string    // Peer id supplied by the caller, if any
	PKCEVerifier  string    // PKCE verifier, empty for providers without PKCE
	Fingerprint   string    // Fingerprint to bind the flow to a specific client
	Expiry        time.Time // The state is void after this point even if unused
}

func (s State) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && now.After(s.Expiry)
}

// Login is the Google sign-in bound to a browser session.
type Login struct {
	SessionID string
	UserID    string
	Email     string
	Name      string
	Expiry    time.Time
}
