package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/truesplit/tsauth"
)

// Authenticator resolves a session token. *tsauth.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*tsauth.Principal, error)
}

var _ Authenticator = (*tsauth.Engine)(nil)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [Gate], if any.
func PrincipalFromContext(ctx context.Context) (*tsauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*tsauth.Principal)
	return p, ok && p != nil
}

// WithPrincipal stores p in ctx the way [Gate] does.
func WithPrincipal(ctx context.Context, p *tsauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Option customizes [Gate].
type Option func(*gate)

// WithLogger sets the logger used for backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

type gate struct {
	auth    Authenticator
	cookies CookieConfig
	logger  *slog.Logger
}

// Gate authenticates every request that carries a token and never rejects
// one that does not.
func Gate(auth Authenticator, cookies CookieConfig, opts ...Option) func(http.Handler) http.Handler {
	g := &gate{
		auth:    auth,
		cookies: cookies,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := g.token(r)
			if token == "" || g.auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := g.auth.Authenticate(r.Context(), token)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
			case errors.Is(err, tsauth.ErrStaleSession):
				http.SetCookie(w, g.cookies.ExpiredCookie())
				writeError(w, http.StatusUnauthorized, "User deleted")
			case errors.Is(err, tsauth.ErrUserStoreUnavailable):
				g.logger.ErrorContext(r.Context(), "session lookup failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "service unavailable")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// token prefers the session cookie over the Authorization header.
func (g *gate) token(r *http.Request) string {
	if c, err := r.Cookie(g.cookies.name()); err == nil && c.Value != "" {
		return c.Value
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

// RequireAuth rejects requests that [Gate] did not authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
