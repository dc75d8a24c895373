// Package auth implements the auth kernel: extracting the opaque user-ID
// claim set by an upstream identity module and evaluating the allow-list
// and admin policies against it.
package auth

import (
	"context"
	"net/http"
)

// HeaderUserID is the header an upstream identity-terminating proxy sets
// once a request carries a verified principal. Its presence is the only
// signal the kernel trusts; how the proxy verified it is out of scope.
const HeaderUserID = "X-Sendie-User-Id"

type contextKey int

const principalKey contextKey = iota

// Principal is the authenticated claim attached to one request or hub
// connection. An anonymous caller has a zero-value Principal with
// Authenticated false.
type Principal struct {
	UserID        string
	Authenticated bool
}

// WithPrincipal returns a context carrying p, retrievable with
// PrincipalFromContext.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the Principal attached to ctx, or the zero
// (anonymous) Principal if none was attached.
func PrincipalFromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}
	}
	return p
}

// Middleware extracts the user-ID claim from the configured header and
// attaches it to the request context as a Principal. Requests without
// the header proceed as anonymous, which is a valid caller for every
// surface except session creation, host-authority commands and admin
// endpoints.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := Principal{}
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			p = Principal{UserID: userID, Authenticated: true}
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
