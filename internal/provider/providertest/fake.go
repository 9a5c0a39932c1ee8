// Package providertest runs a fake OAuth authorization server that stands in
// for every supported provider in tests.
package providertest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/openkcm/connector-manager/internal/config"
)

const (
	ClientID     = "client-id"
	ClientSecret = "client-secret"
	AccessToken  = "access-token"
	RefreshToken = "refresh-token"
	ServerPrefix = "us6"
	keyID        = "test-key"
)

// TokenRequest is a token endpoint call as seen by the server.
type TokenRequest struct {
	Form          url.Values
	BasicUser     string
	BasicPassword string
	HasBasicAuth  bool
}

type Server struct {
	*httptest.Server

	mu             sync.Mutex
	key            *rsa.PrivateKey
	tokenRequests  []TokenRequest
	metadataCalls  int
	tokenStatus    int
	tokenBody      string
	metadataStatus int
	idToken        string
	discoveryDown  bool
}

func NewServer() *Server {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	s := &Server{key: key, metadataStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", s.token)
	mux.HandleFunc("GET /oauth2/metadata", s.metadata)
	mux.HandleFunc("GET /.well-known/openid-configuration", s.discovery)
	mux.HandleFunc("GET /jwks", s.jwks)
	s.Server = httptest.NewServer(mux)

	return s
}

// ProviderConfig points a provider at the fake server.
func (s *Server) ProviderConfig(name, redirectURI string) config.Provider {
	return config.Provider{
		ClientID:        commoncfg.SourceRef{Source: "embedded", Value: ClientID},
		ClientSecret:    commoncfg.SourceRef{Source: "embedded", Value: ClientSecret},
		RedirectURI:     redirectURI,
		AuthURL:         s.URL + "/oauth2/authorize",
		TokenURL:        s.URL + "/oauth2/token",
		MetadataURL:     s.URL + "/oauth2/metadata",
		IssuerURL:       s.URL,
		AllowHTTPScheme: true,
	}
}

// FailToken makes the token endpoint answer with status and body.
func (s *Server) FailToken(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokenStatus = status
	s.tokenBody = body
}

func (s *Server) FailMetadata(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadataStatus = status
}

// FailDiscovery makes the OpenID discovery endpoint answer 503.
func (s *Server) FailDiscovery() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discoveryDown = true
}

// ReturnIDToken adds an id_token to successful token responses.
func (s *Server) ReturnIDToken(idToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idToken = idToken
}

func (s *Server) TokenRequests() []TokenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]TokenRequest(nil), s.tokenRequests...)
}

func (s *Server) MetadataCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.metadataCalls
}

// IDToken signs an ID token issued by the fake server.
func (s *Server) IDToken(subject, audience string, extra map[string]any, expiry time.Time) string {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: s.key, KeyID: keyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		panic(err)
	}

	claims := jwt.Claims{
		Issuer:   s.URL,
		Subject:  subject,
		Audience: jwt.Audience{audience},
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Expiry:   jwt.NewNumericDate(expiry),
	}

	if extra == nil {
		extra = map[string]any{}
	}

	raw, err := jwt.Signed(signer).Claims(claims).Claims(extra).Serialize()
	if err != nil {
		panic(err)
	}

	return raw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	user, password, ok := r.BasicAuth()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokenRequests = append(s.tokenRequests, TokenRequest{
		Form:          r.PostForm,
		BasicUser:     user,
		BasicPassword: password,
		HasBasicAuth:  ok,
	})

	if s.tokenStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.tokenStatus)
		_, _ = w.Write([]byte(s.tokenBody))
		return
	}

	resp := map[string]any{
		"access_token":  AccessToken,
		"refresh_token": RefreshToken,
		"token_type":    "bearer",
		"expires_in":    3600,
		"scope":         r.PostForm.Get("scope"),
	}
	if s.idToken != "" {
		resp["id_token"] = s.idToken
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadataCalls++

	if r.Header.Get("Authorization") != "OAuth "+AccessToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	if s.metadataStatus != http.StatusOK {
		writeJSON(w, s.metadataStatus, map[string]string{"error": "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dc":           ServerPrefix,
		"accountname":  "Test Account",
		"api_endpoint": "https://" + ServerPrefix + ".api.mailchimp.com",
		"login":        map[string]string{"login_email": "owner@example.com"},
	})
}

func (s *Server) discovery(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	down := s.discoveryDown
	s.mu.Unlock()

	if down {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                s.URL,
		"authorization_endpoint":                s.URL + "/oauth2/authorize",
		"token_endpoint":                        s.URL + "/oauth2/token",
		"jwks_uri":                              s.URL + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (s *Server) jwks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &s.key.PublicKey,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}
