// Package api exposes the registry over HTTP.
//
// Routes:
//
//	POST /register      register or replace an agent (202)
//	GET  /lookup        discover agents from query parameters
//	POST /lookup        discover agents from {"params": {...}} or a bare object
//	GET  /did/:id       resolve a did:ans identifier
//	POST /verify        check a signed attestation
//	POST /deregister    remove an agent
//	GET  /events        live registry events (SSE)
//	GET  /events/ws     live registry events (WebSocket)
//	GET  /healthz       liveness
//
// The POST routes that change or check signed state are throttled per
// client address when a limiter is configured.
//
// Failures are answered as {"success": false, "message": "..."} with the
// status derived from the error code.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/vinayprograms/ans/attestation"
	"github.com/vinayprograms/ans/discovery"
	"github.com/vinayprograms/ans/logging"
	"github.com/vinayprograms/ans/ratelimit"
	"github.com/vinayprograms/ans/registration"
	"github.com/vinayprograms/ans/resolver"
	"github.com/vinayprograms/ans/stream"
)

// Services are the operations the API serves. Events may be nil, in which
// case the event routes are not mounted.
type Services struct {
	Registration *registration.Service
	Discovery    *discovery.Engine
	Resolver     *resolver.Resolver
	Attestation  *attestation.Service
	Events       *stream.Handler
}

// Config configures the HTTP layer.
type Config struct {
	// MaxBodyBytes bounds request bodies. Default: 1 MiB
	MaxBodyBytes int64

	// AllowedOrigins for CORS. Default: all origins
	AllowedOrigins []string

	// Limiter throttles the write routes per client address. Nil disables
	// throttling.
	Limiter *ratelimit.Limiter
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// Server holds the router and its dependencies.
type Server struct {
	svc    Services
	config Config
	log    *logging.Logger
	router *gin.Engine
}

// NewServer builds the router.
func NewServer(svc Services, cfg Config, log *logging.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultConfig().AllowedOrigins
	}
	if log == nil {
		log = logging.Nop()
	}

	s := &Server{
		svc:    svc,
		config: cfg,
		log:    log.WithComponent("api"),
		router: gin.New(),
	}
	s.router.Use(s.requestLogger(), gin.CustomRecovery(s.recoverPanic), s.limitBody())
	s.SetupRoutes()
	return s
}

// Router returns the gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler returns the router wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Traceparent", "Tracestate"},
	}).Handler(s.router)
}

// SetupRoutes mounts every endpoint.
func (s *Server) SetupRoutes() {
	r := s.router
	r.GET("/healthz", s.healthz)
	r.GET("/lookup", s.lookupQuery)
	r.POST("/lookup", s.lookupBody)
	r.GET("/did/:id", s.resolveDID)

	writes := r.Group("/", s.rateLimit())
	writes.POST("/register", s.register)
	writes.POST("/verify", s.verify)
	writes.POST("/deregister", s.deregister)

	if s.svc.Events != nil {
		r.GET("/events", gin.WrapF(s.svc.Events.ServeSSE))
		r.GET("/events/ws", gin.WrapF(s.svc.Events.ServeWebSocket))
	}
}
