package state

import (
	"context"
	"net/http"
)

type ctxKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by [Middleware], or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// Middleware attaches the caller's session to the request context, creating
// one (and setting its cookie) when the request carries no live session.
func (r *Registry) Middleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			var id string
			if c, err := req.Cookie(CookieName); err == nil {
				id = c.Value
			}
			s, created := r.GetOrCreate(id)
			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    s.ID(),
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, req.WithContext(WithSession(req.Context(), s)))
		})
	}
}
