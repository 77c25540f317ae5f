package auth

import (
	"net/http"
	"strings"
)

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// Middleware provides HTTP middleware for bearer-token validation. Requests
// without an Authorization header pass through anonymously when AllowAnonymous
// matches; handlers then decide whether the operation needs an identity.
type Middleware struct {
	Config         Config
	Skipper        Skipper
	AllowAnonymous func(r *http.Request) bool
}

// NewMiddleware constructs a middleware.
func NewMiddleware(cfg Config, skipper Skipper, allowAnonymous func(r *http.Request) bool) Middleware {
	return Middleware{Config: cfg, Skipper: skipper, AllowAnonymous: allowAnonymous}
}

// Wrap wraps an http.Handler with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") == "" && m.AllowAnonymous != nil && m.AllowAnonymous(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	return Parse(strings.TrimSpace(header[len("Bearer "):]), m.Config)
}
