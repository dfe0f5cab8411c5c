package http

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/BBbrighton/qr-suite/internal/auth"
	"github.com/BBbrighton/qr-suite/internal/core"
	"github.com/BBbrighton/qr-suite/internal/http/middleware"
	"github.com/BBbrighton/qr-suite/internal/rate"
)

type Options struct {
	Records     RecordWriter
	RateLimiter *rate.Limiter // GET /qr and POST /api/links; nil disables
	Auth        *auth.Authenticator
	AdminRoles  []string // required for every /api route except minting
	Logger      logrus.FieldLogger
}

// NewRouter sets up all routes and middleware.
func NewRouter(svc *core.Service, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := gin.New()
	// Treat all upstreams as untrusted.
	if err := r.SetTrustedProxies(nil); err != nil {
		log.WithError(err).Warn("SetTrustedProxies")
	}
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recover(log))

	h := NewHandlers(svc, opts.Records, log)
	limit := middleware.RateLimit(opts.RateLimiter)

	r.GET("/health", h.Health)

	// Front door. Scanners without valid credentials still resolve as Guest.
	r.GET("/qr", middleware.Authenticate(opts.Auth, false), limit, h.Scan)

	api := r.Group("/api", middleware.Authenticate(opts.Auth, true))
	// Who may mint is decided per target type by the service's policy.
	api.POST("/links", limit, h.Mint)

	admin := api.Group("", middleware.RequireRole(opts.AdminRoles...))
	admin.GET("/links/:id", h.GetLink)
	admin.GET("/links/:id/scans", h.ListScans)
	admin.POST("/links/:id/revoke", h.Revoke)
	admin.PUT("/records/:type/:name", h.PutRecord)

	return r
}
