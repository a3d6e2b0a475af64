// Package api provides the HTTP API view clients use: the read families and writes of a
// session's App as JSON, sign-in, the event stream and the mobile OAuth relay.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mymapsapp/mymaps-server/internal/app"
	"github.com/mymapsapp/mymaps-server/internal/auth"
	"github.com/mymapsapp/mymaps-server/internal/ratelimit"
	"github.com/mymapsapp/mymaps-server/internal/sse"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// OAuthConfig configures the ID-token sign-in flow.
type OAuthConfig struct {
	GoogleClientID string
	RedirectURI    string
	// MobileDeepLink is the app URL the mobile relay redirects to.
	MobileDeepLink string
	// SessionTTL is the lifetime of the session cookie.
	SessionTTL time.Duration
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// Deps are the collaborators of the Server.
type Deps struct {
	Registry *app.Registry
	Auth     *auth.Manager
	// Push is optional; without it the event stream is not served.
	Push *sse.Manager
	// Heartbeat overrides the event stream heartbeat interval.
	Heartbeat   time.Duration
	Limiter     *ratelimit.KeyedRateLimiter
	OAuth       OAuthConfig
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	registry *app.Registry
	auth     *auth.Manager
	push     *sse.Manager
	events   *sse.Handler
	limiter  *ratelimit.KeyedRateLimiter
	oauth    OAuthConfig
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger
	started  time.Time
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps Deps) *Server {
	s := &Server{
		registry: deps.Registry,
		auth:     deps.Auth,
		push:     deps.Push,
		limiter:  deps.Limiter,
		oauth:    deps.OAuth,
		router:   chi.NewRouter(),
		logger:   deps.Logger,
		started:  time.Now(),
	}

	if deps.Push != nil {
		s.events = sse.NewHandler(deps.Push, streamSession, deps.Registry.Touch, deps.Logger)
		if deps.Heartbeat > 0 {
			s.events = s.events.WithHeartbeat(deps.Heartbeat)
		}
	}

	s.setupMiddleware(deps.CORSOrigins)

	humaConfig := huma.DefaultConfig("MyMaps API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
		"cookie": {
			Type: "apiKey",
			In:   "cookie",
			Name: SessionCookie,
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerPostRoutes()
	s.registerUserRoutes()
	s.registerSearchRoutes()
	s.registerPlaceRoutes()
	s.registerWebRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, e.g. for exporting the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(traceRequests)
	s.router.Use(requestLogger(s.logger))

	if len(origins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.logger))
	}
	s.router.Use(sessionMiddleware(s.auth))
}
