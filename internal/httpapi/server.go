package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/truesplit/tsauth"
	"github.com/truesplit/tsauth/middleware"
)

// Engine is the subset of *tsauth.Engine the handlers use.
type Engine interface {
	RequestCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (bool, error)
	Signup(ctx context.Context, req tsauth.SignupRequest) (string, error)
	Login(ctx context.Context, identifier, password string) (string, error)
	ProvisionExternal(ctx context.Context, identity tsauth.ExternalIdentity) (string, error)
	Authenticate(ctx context.Context, token string) (*tsauth.Principal, error)
	RecordLogout(ctx context.Context, subject string)
	Health(ctx context.Context) tsauth.HealthStatus
}

var _ Engine = (*tsauth.Engine)(nil)

// OAuthProvider runs the external sign-in redirect and callback.
type OAuthProvider interface {
	Begin() (authURL string, cookieValue string)
	Complete(ctx context.Context, cookieValue, state, code string) (tsauth.ExternalIdentity, error)
}

// Options wires the server. OAuth and Metrics are optional.
type Options struct {
	Engine      Engine
	OAuth       OAuthProvider
	Metrics     http.Handler
	Cookies     middleware.CookieConfig
	FrontendURL string
	Logger      *slog.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	engine      Engine
	oauth       OAuthProvider
	metrics     http.Handler
	cookies     middleware.CookieConfig
	frontendURL string
	logger      *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:      opts.Engine,
		oauth:       opts.OAuth,
		metrics:     opts.Metrics,
		cookies:     opts.Cookies,
		frontendURL: opts.FrontendURL,
		logger:      logger.With(slog.String("component", "http")),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(s.frontendURL))
	r.Use(auditContext)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Gate(s.engine, s.cookies, middleware.WithLogger(s.logger)))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/request-otp", s.requestOTP)
			r.Post("/verify-otp", s.verifyOTP)
			r.Post("/signup", s.signup)
			r.Post("/login", s.login)
			r.Post("/logout", s.logout)
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/me", s.me)
			r.Get("/protected", s.protected)
		})

		r.Get("/oauth2/authorization/google", s.oauthStart)
		r.Get("/login/oauth2/code/google", s.oauthCallback)
	})

	return r
}

// NewHTTPServer wraps handler with the timeouts used in production.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
