// Package auth decides whether a caller is privileged. The portal is public;
// a valid API key only lifts the restriction on restricted-source rows.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// HeaderAPIKey is the alternative to a bearer token.
const HeaderAPIKey = "X-API-Key"

type ctxKey struct{}

// WithPrivileged marks ctx as belonging to a privileged caller.
func WithPrivileged(ctx context.Context, privileged bool) context.Context {
	return context.WithValue(ctx, ctxKey{}, privileged)
}

// Privileged reports whether ctx belongs to a privileged caller.
func Privileged(ctx context.Context) bool {
	p, _ := ctx.Value(ctxKey{}).(bool)
	return p
}

// Middleware marks requests carrying one of apiKeys as privileged, either as
// "Authorization: Bearer <key>" or in the X-API-Key header. Requests without
// a key pass through unprivileged; a key that does not match is rejected
// with 401. With no keys configured nobody is privileged.
func Middleware(apiKeys []string) func(http.Handler) http.Handler {
	var keys [][]byte
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, present := credential(r)
			if !present {
				next.ServeHTTP(w, r.WithContext(WithPrivileged(r.Context(), false)))
				return
			}
			if !valid(keys, key) {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrivileged(r.Context(), true)))
		})
	}
}

func credential(r *http.Request) (string, bool) {
	if k := r.Header.Get(HeaderAPIKey); k != "" {
		return k, true
	}
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", true
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func valid(keys [][]byte, key string) bool {
	if key == "" {
		return false
	}
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  http.StatusText(status),
		"status": status,
		"detail": msg,
	})
}
