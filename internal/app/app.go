package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/BBbrighton/qr-suite/internal/auth"
	"github.com/BBbrighton/qr-suite/internal/config"
	"github.com/BBbrighton/qr-suite/internal/core"
	"github.com/BBbrighton/qr-suite/internal/hook"
	httpapi "github.com/BBbrighton/qr-suite/internal/http"
	"github.com/BBbrighton/qr-suite/internal/id"
	"github.com/BBbrighton/qr-suite/internal/logging"
	"github.com/BBbrighton/qr-suite/internal/rate"
	"github.com/BBbrighton/qr-suite/internal/store"
)

// App wires config, storage, core service, rate limiter, and the HTTP router.
type App struct {
	Cfg     config.Config
	Log     *logrus.Logger
	Store   store.Backend
	Service *core.Service
	Auth    *auth.Authenticator
	Policy  *auth.Policy
	Limiter *rate.Limiter
	Router  *gin.Engine
}

// New builds a fully-wired application instance.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return NewWithLogger(ctx, cfg, log)
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.DB.Driver,
		Path:        cfg.DB.Path,
		DatabaseURL: cfg.DB.URL,
	})
	if err != nil {
		return nil, err
	}

	policy := auth.NewPolicy(cfg.Permissions.Doctypes, cfg.Permissions.Roles)
	opts := core.Options{
		BaseURL:     cfg.BaseURL,
		Templates:   cfg.TemplateSet(),
		Permission:  policy.CanGenerate,
		HookTimeout: cfg.HookTimeout,
		Logger:      log,
	}
	if cfg.Hook.URL != "" {
		// The resolver enforces the deadline; the client timeout is a backstop.
		opts.Hook = hook.New(cfg.Hook.URL, &http.Client{Timeout: cfg.HookTimeout + time.Second})
	}
	svc := core.NewService(st, st, id.NewGenerator(cfg.TokenBytes), opts)

	authn := auth.NewAuthenticator(cfg.JWT.Secret)
	if !authn.Enabled() {
		log.Warn("JWT_SECRET not set: every request acts as Guest and the admin API is closed")
	}
	limiter := rate.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	router := httpapi.NewRouter(svc, httpapi.Options{
		Records:     st,
		RateLimiter: limiter,
		Auth:        authn,
		AdminRoles:  cfg.Permissions.Roles,
		Logger:      log,
	})

	return &App{
		Cfg:     cfg,
		Log:     log,
		Store:   st,
		Service: svc,
		Auth:    authn,
		Policy:  policy,
		Limiter: limiter,
		Router:  router,
	}, nil
}

// Addr returns the HTTP listen address, e.g. ":8080".
func (a *App) Addr() string {
	return fmt.Sprintf(":%d", a.Cfg.Port)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Addr(),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", srv.Addr).WithField("base_url", a.Cfg.BaseURL).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases resources.
func (a *App) Close() error {
	return a.Store.Close()
}
