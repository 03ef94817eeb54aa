// Package middleware provides HTTP middleware for authenticating API callers.
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// callerKey is the context key for storing the authenticated caller.
const callerKey ContextKey = "caller"

// ErrInvalidToken is returned by validators for any token they do not accept.
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator checks a bearer token and returns the caller it identifies.
type TokenValidator interface {
	ValidateToken(token string) (caller string, err error)
}

// StaticKey accepts exactly one shared key.
type StaticKey string

// ValidateToken compares in constant time.
func (k StaticKey) ValidateToken(token string) (string, error) {
	if k == "" || subtle.ConstantTimeCompare([]byte(k), []byte(token)) != 1 {
		return "", ErrInvalidToken
	}
	return "api-key", nil
}

// Bearer creates middleware that requires an "Authorization: Bearer <token>"
// header accepted by v and adds the caller to the request context.
func Bearer(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}
			caller, err := v.ValidateToken(token)
			if err != nil {
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token; the scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="recruiter"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// Caller returns the authenticated caller from the request context.
func Caller(r *http.Request) (string, bool) {
	caller, ok := r.Context().Value(callerKey).(string)
	return caller, ok
}
