// Package security holds the request hardening helpers: sessions, CSRF
// tokens, output escaping, input cleaning, validators and client address
// resolution.
package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	CSRFHeader    = "X-CSRF-Token"
	CSRFFormField = "csrf_token"

	tokenBytes = 32
)

var ErrNoSession = errors.New("no session")

// CSRF issues and checks per-session tokens. A session keeps its token for
// its whole lifetime; verifying does not consume it.
type CSRF struct {
	store TokenStore
}

func NewCSRF(store TokenStore) *CSRF {
	return &CSRF{store: store}
}

// Token returns the token for sessionID, creating it on first use.
func (c *CSRF) Token(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrNoSession
	}

	if existing, ok, err := c.store.Load(ctx, sessionID); err != nil {
		return "", err
	} else if ok {
		return existing, nil
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	return c.store.LoadOrStore(ctx, sessionID, token)
}

// Verify reports whether token is the one issued for sessionID.
func (c *CSRF) Verify(ctx context.Context, sessionID, token string) bool {
	if sessionID == "" || token == "" {
		return false
	}
	stored, ok, err := c.store.Load(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Msg("csrf token lookup failed")
		return false
	}
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(token)) == 1
}

// Middleware rejects unsafe requests without a valid token in the
// X-CSRF-Token header or the csrf_token form field. It must run after
// Sessions.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(CSRFHeader)
		if token == "" {
			token = r.PostFormValue(CSRFFormField)
		}

		if !c.Verify(r.Context(), SessionID(r.Context()), token) {
			log.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("client_ip", ClientIP(r)).
				Msg("csrf check failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid csrf token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleToken serves the current session's token as JSON.
func (c *CSRF) HandleToken(w http.ResponseWriter, r *http.Request) {
	token, err := c.Token(r.Context(), SessionID(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("failed to issue csrf token")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"csrf_token": token})
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
