package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/internal/httputil"
)

// TokenAuth guards the API with a single static bearer token, the stand-in
// for a real identity service in the single-user deployment. The token may
// be configured in the clear or as a bcrypt hash; with neither configured
// the guard is disabled.
type TokenAuth struct {
	token     string
	tokenHash string
}

// NewTokenAuth creates the guard. tokenHash wins when both are set.
func NewTokenAuth(token, tokenHash string) *TokenAuth {
	return &TokenAuth{token: token, tokenHash: tokenHash}
}

// Enabled reports whether a credential is configured.
func (a *TokenAuth) Enabled() bool {
	return a.token != "" || a.tokenHash != ""
}

// Handler rejects requests without a valid bearer token. When the guard is
// disabled every request passes through.
func (a *TokenAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		presented := bearerToken(r)
		if presented == "" {
			httputil.Error(w, errors.Unauthorized("missing bearer token"))
			return
		}
		if !a.valid(presented) {
			httputil.Error(w, errors.Unauthorized("invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *TokenAuth) valid(presented string) bool {
	if a.tokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.tokenHash), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(a.token), []byte(presented)) == 1
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
