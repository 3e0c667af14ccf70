package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/chicogong/ytagents/pkg/config"
)

type contextKey struct{}

// Principal is the authenticated caller
type Principal struct {
	UserID string
	Email  string
	Role   string

	// Method is "jwt" or "apikey"
	Method string
}

// FromContext returns the caller set by the middleware
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok
}

// WithPrincipal stores p on ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// Middleware authenticates requests by bearer token or X-API-Key
type Middleware struct {
	jwt      *JWTManager
	keys     *APIKeyManager
	optional bool
}

// NewMiddleware builds the middleware. jwt may be nil when only API keys are used.
// With optional set, unauthenticated requests pass through without a principal.
func NewMiddleware(jwt *JWTManager, keys *APIKeyManager, optional bool) *Middleware {
	if keys == nil {
		keys = NewAPIKeyManager()
	}
	return &Middleware{jwt: jwt, keys: keys, optional: optional}
}

// FromConfig registers the configured static keys, each as user "apikey-<n>"
func FromConfig(cfg config.AuthConfig) (*Middleware, *JWTManager) {
	var jm *JWTManager
	if cfg.JWTSecret != "" {
		jm = NewJWTManager(cfg.JWTSecret, cfg.TokenTTL.Duration)
	}
	keys := NewAPIKeyManager()
	for i, k := range cfg.APIKeys {
		keys.Register(k, fmt.Sprintf("apikey-%d", i+1), "configured", nil)
	}
	return NewMiddleware(jm, keys, !cfg.Required), jm
}

// Handler wraps next
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			if m.jwt == nil {
				writeError(w, http.StatusUnauthorized, "bearer tokens are not accepted")
				return
			}
			claims, err := m.jwt.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			p := &Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role, Method: "jwt"}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		if key := r.Header.Get("X-API-Key"); key != "" {
			info, err := m.keys.Verify(key)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			p := &Principal{UserID: info.UserID, Method: "apikey"}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		if m.optional {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "no valid authentication provided")
	})
}

// RequireRole rejects callers whose token does not carry role
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok || p.Role != role {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   strings.ToLower(http.StatusText(status)),
		"message": msg,
		"code":    status,
	})
}
