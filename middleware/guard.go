// Package middleware provides net/http handlers that gate requests on the
// engine's token resolution. Handlers depend only on the small [Resolver]
// interface, so tests can stub the engine.
package middleware

import (
	"context"
	"net/http"
	"strings"

	goCred "github.com/MrEthical07/goCred"
)

type contextKey int

const (
	identityKey contextKey = iota
	tokenKey
)

// Resolver is the slice of the engine the guards need.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*goCred.Identity, error)
	ResolveAllowExpired(ctx context.Context, token string) (*goCred.Identity, error)
	IsAdmin(ident *goCred.Identity) bool
}

// Guard rejects requests without a resolvable bearer token. On success the
// identity and the raw token are stored on the request context.
func Guard(resolver Resolver) func(http.Handler) http.Handler {
	return guard(resolver, false)
}

// GuardAllowExpired admits expired tokens that are otherwise valid and
// unrevoked. Used on paths that must identify a caller who is logging out.
func GuardAllowExpired(resolver Resolver) func(http.Handler) http.Handler {
	return guard(resolver, true)
}

func guard(resolver Resolver, allowExpired bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			var (
				ident *goCred.Identity
				err   error
			)
			if allowExpired {
				ident, err = resolver.ResolveAllowExpired(r.Context(), token)
			} else {
				ident, err = resolver.Resolve(r.Context(), token)
			}
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, ident)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects authenticated requests whose identity lacks the admin
// role. Must run after [Guard].
func RequireAdmin(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if !resolver.IsAdmin(ident) {
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext returns the identity stored by a guard.
func IdentityFromContext(ctx context.Context) (*goCred.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(*goCred.Identity)
	return ident, ok
}

// TokenFromContext returns the raw bearer token stored by a guard.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}

// BearerToken extracts the token from the Authorization header. The scheme
// comparison is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// Rejection bodies are deliberately generic; the internal failure reason
// stays in audit events only.
func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid or expired token"}`))
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"requires admin role"}`))
}
