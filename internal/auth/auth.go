// Package auth validates bearer tokens on inbound HTTP requests.
package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// Authenticator validates a bearer token and returns the caller's identity.
// Implementations must be safe for concurrent use.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identity string, err error)
}

type contextKey int

const identityKey contextKey = iota

// IdentityFromContext returns the identity stored by Middleware, or "".
func IdentityFromContext(ctx context.Context) string {
	v, _ := ctx.Value(identityKey).(string)
	return v
}

// WithIdentity stores an identity in ctx.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

const bearerPrefix = "Bearer "

// TokenFromHeader extracts the token from an "Authorization: Bearer" value.
func TokenFromHeader(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", alerr.New(alerr.ErrUnauthorized, "authorization header must use Bearer scheme")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", alerr.New(alerr.ErrUnauthorized, "authorization token is empty")
	}
	return token, nil
}

// Middleware rejects requests without a valid bearer token. A missing or
// malformed header is 401; a token the authenticator rejects is 403.
func Middleware(authn Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tilehouse"`)
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			identity, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				logger.Warn("bearer token rejected", "path", r.URL.Path, "error", err)
				deny(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
