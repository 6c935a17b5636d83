package auth

import (
	"net/http"
	"strings"
)

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// PublicPaths are served without a bearer token. The OAuth callback is
// reached by the browser redirect and is correlated through its state value.
var PublicPaths = map[string]struct{}{
	"/healthz":            {},
	"/metrics":            {},
	"/v1/strava/callback": {},
}

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	config  Config
	skipper Skipper
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config) Middleware {
	skipper := func(r *http.Request) bool {
		_, ok := PublicPaths[r.URL.Path]
		return ok
	}
	return Middleware{config: cfg, skipper: skipper}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper != nil && m.skipper(r) {
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
	return ParseClaims(header[len("Bearer "):], m.config)
}
