// Package auth identifies the caller of each HTTP request. The ledger trusts
// whatever address this layer attaches to the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atmx/adledger/internal/model"
)

var (
	// ErrNoCredentials is returned when a request carries no caller identity.
	ErrNoCredentials = errors.New("auth: no credentials")

	// ErrBadCredentials is returned when credentials are present but invalid.
	ErrBadCredentials = errors.New("auth: invalid credentials")
)

// Modes accepted in configuration.
const (
	ModeHeader    = "header"
	ModeSignature = "signature"
)

// Authenticator resolves the caller address of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (model.Address, error)
}

type callerKey struct{}

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller model.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Caller returns the authenticated caller, if any.
func Caller(ctx context.Context) (model.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(model.Address)
	return caller, ok
}

// Middleware authenticates every request. Requests without credentials pass
// through anonymously; handlers that need a caller reject them. Requests
// with bad credentials are refused with 401.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := a.Authenticate(r)
			switch {
			case errors.Is(err, ErrNoCredentials):
				next.ServeHTTP(w, r)
			case err != nil:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "Unauthenticated",
					"message": err.Error(),
				})
			default:
				next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
			}
		})
	}
}
