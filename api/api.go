// Package api exposes the token protocol over HTTP: account registration,
// login, session introspection and logout, plus API documentation and
// metrics endpoints.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/tgrimes/keygate/password"
	"github.com/tgrimes/keygate/storage"
	"github.com/tgrimes/keygate/token"
	"github.com/tgrimes/keygate/transport"
)

// tokenName is the session name the HTTP surface issues tokens under.
const tokenName = "api"

//go:embed openapi.yaml
var openapiSpec []byte

// API holds the dependencies needed by the REST handlers.
type API struct {
	protocol      *token.Protocol
	accounts      *accountRegistry
	policy        transport.Policy
	passwordCost  password.Params
	tokenTTL      time.Duration
	requireHeader bool
	log           *slog.Logger
	metrics       *metrics
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger. If not set, a default text logger
// writing to stderr is used.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) { a.log = log }
}

// WithCookiePolicy overrides the cookie flags applied to issued tokens.
func WithCookiePolicy(policy transport.Policy) Option {
	return func(a *API) { a.policy = policy }
}

// WithPasswordParams overrides the Argon2id cost parameters.
func WithPasswordParams(params password.Params) Option {
	return func(a *API) { a.passwordCost = params }
}

// WithTokenTTL overrides the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *API) { a.tokenTTL = ttl }
}

// WithRequiredHeader makes validation demand the header nonce in addition
// to the two cookies.
func WithRequiredHeader() Option {
	return func(a *API) { a.requireHeader = true }
}

// New creates a new API instance over the token protocol and the account
// repository.
func New(protocol *token.Protocol, repo storage.Repository, opts ...Option) *API {
	a := &API{
		protocol:     protocol,
		accounts:     newAccountRegistry(repo),
		policy:       transport.DefaultPolicy(),
		passwordCost: password.DefaultParams(),
		tokenTTL:     24 * time.Hour,
		metrics:      newMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(a.RequestID)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/auth/register", a.Register)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.With(a.AuthMiddleware).Get("/auth/session", a.Session)

	return r
}
