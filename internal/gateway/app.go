// Package gateway wires the security pipeline in front of the storefront
// origin and exposes the operational surface.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi"

	"github.com/scaroll/pgclosets-store-sub011/internal/security"
	"github.com/scaroll/pgclosets-store-sub011/internal/security/config"
)

// Application holds the gateway components.
type Application struct {
	Config   *config.Config
	Pipeline *security.Pipeline
	Adaptive *security.AdaptiveLimiter

	metrics *security.Metrics
	audit   *security.AuditEmitter
	logger  security.Logger
	handler http.Handler
	srv     *http.Server
	ready   atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewApplication validates configuration and wires the gateway. A nil
// logger falls back to JSON lines on stdout.
func NewApplication(cfg *config.Config, logger security.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.ListenAddr == "" {
		return nil, errors.New("listen address is required")
	}
	if cfg.EnableAuth && cfg.AdminToken == "" {
		return nil, errors.New("admin token is required")
	}
	if cfg.RateLimitWindow < 0 || cfg.BlockDuration < 0 || cfg.CSRFTokenExpiry < 0 || cfg.SweepInterval < 0 {
		return nil, errors.New("durations must be positive")
	}
	if logger == nil {
		logger = security.NewStdLogger(os.Stdout)
	}

	metrics := security.NewMetrics()
	audit := security.NewAuditEmitter(security.AuditOptions{
		Endpoint:      cfg.AuditEndpoint,
		Level:         cfg.AuditLevel,
		EmitPerSecond: cfg.AuditEmitPerSecond,
		EmitBurst:     cfg.AuditEmitBurst,
		Logger:        logger,
	})
	adaptive := security.NewAdaptiveLimiter()
	blocks := security.NewIPBlockGuard(nil)
	pipeline := security.NewPipeline(security.PipelineOptions{
		RateGuard: security.NewRateGuard(security.RateGuardOptions{
			Requests:           cfg.RateLimitRequests,
			Window:             cfg.RateLimitWindow,
			BlockDuration:      cfg.BlockDuration,
			BurstLimit:         cfg.BurstLimit,
			SustainedThreshold: cfg.SustainedThreshold,
			DDoSWindow:         cfg.DDoSWindow,
			DDoSBlockDuration:  cfg.DDoSBlockDuration,
			Presets:            presetTable(cfg),
			Adaptive:           adaptive,
		}),
		IPBlocks:  blocks,
		Validator: security.NewPatternValidator(cfg.MaxFieldLength),
		CSRF: security.NewCSRFGuard(security.CSRFGuardOptions{
			TokenExpiry:  cfg.CSRFTokenExpiry,
			SafePrefixes: cfg.CSRFSafePrefixes,
		}),
		Tracker: security.NewSuspiciousActivityTracker(blocks, security.TrackerOptions{
			Threshold:     int(cfg.SuspiciousThreshold),
			BlockDuration: cfg.SuspiciousBlock,
		}),
		Audit:   audit,
		Metrics: metrics,
		Logger:  logger,
		Headers: security.HeaderOptions{
			CSP:               cfg.ContentSecurityPolicy,
			FrameOptions:      cfg.FrameOptions,
			ReferrerPolicy:    cfg.ReferrerPolicy,
			PermissionsPolicy: cfg.PermissionsPolicy,
			HSTS:              cfg.EnableHSTS,
			Production:        cfg.Production(),
		},
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	app := &Application{
		Config:   cfg,
		Pipeline: pipeline,
		Adaptive: adaptive,
		metrics:  metrics,
		audit:    audit,
		logger:   logger,
	}

	upstream, err := app.upstreamHandler()
	if err != nil {
		return nil, err
	}
	app.handler = app.routes(pipeline.Middleware(upstream))
	return app, nil
}

// presetTable maps configured route presets onto the resolver, keeping
// the built-in route table when none are configured. The general preset
// always comes from the top-level rate settings.
func presetTable(cfg *config.Config) *security.PresetTable {
	routes := security.DefaultPresets()
	if len(cfg.RoutePresets) > 0 {
		routes = make([]security.RoutePreset, 0, len(cfg.RoutePresets))
		for _, p := range cfg.RoutePresets {
			name := p.Name
			if name == "" {
				name = p.Prefix
			}
			routes = append(routes, security.RoutePreset{
				Prefix: p.Prefix,
				Preset: security.Preset{
					Name:        name,
					Window:      p.Window,
					MaxRequests: p.MaxRequests,
				},
			})
		}
	}
	return security.NewPresetTable(routes, security.Preset{
		Name:        "general",
		Window:      cfg.RateLimitWindow,
		MaxRequests: cfg.RateLimitRequests,
	})
}

// upstreamHandler proxies storefront traffic to the configured origin.
// Without an origin the gateway still serves its operational surface.
func (app *Application) upstreamHandler() (http.Handler, error) {
	if app.Config.UpstreamURL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusBadGateway, "upstream not configured")
		}), nil
	}
	target, err := url.Parse(app.Config.UpstreamURL)
	if err != nil {
		return nil, errors.New("invalid upstream url")
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.New("upstream url must be absolute")
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		app.logger.Error("upstream request failed", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy, nil
}

func (app *Application) routes(storefront http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", app.handleHealth)
	r.Get("/readyz", app.handleReady)
	r.Method(http.MethodGet, "/metrics", app.metrics.Handler())
	r.Post("/v1/security/csrf-token", app.handleCSRFToken)
	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(app.requireAdmin)
		r.Get("/blocklist", app.handleBlocklist)
		r.Post("/blocklist", app.handleBlockIP)
		r.Get("/suspicious", app.handleSuspicious)
		r.Post("/load", app.handleLoad)
		r.Delete("/load", app.handleLoadReset)
	})
	r.Handle("/*", storefront)
	return r
}

// Handler returns the root handler for testing.
func (app *Application) Handler() http.Handler {
	if app == nil {
		return nil
	}
	return app.handler
}

// Ready reports whether the application has completed startup.
func (app *Application) Ready() bool {
	if app == nil {
		return false
	}
	return app.ready.Load()
}

// Start begins serving and launches the store sweep loop.
func (app *Application) Start(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	app.srv = &http.Server{
		Addr:         app.Config.ListenAddr,
		Handler:      app.handler,
		ReadTimeout:  app.Config.HTTPReadTimeout,
		WriteTimeout: app.Config.HTTPWriteTimeout,
		IdleTimeout:  app.Config.HTTPIdleTimeout,
	}
	listener, err := net.Listen("tcp", app.srv.Addr)
	if err != nil {
		return err
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("http server failed", map[string]any{"error": err.Error()})
		}
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.sweepLoop(ctx)
	}()

	app.ready.Store(true)
	app.logger.Info("gateway started", map[string]any{
		"addr":        app.Config.ListenAddr,
		"upstream":    app.Config.UpstreamURL,
		"environment": app.Config.Environment,
	})
	return nil
}

// sweepLoop periodically reclaims expired store entries.
func (app *Application) sweepLoop(ctx context.Context) {
	interval := app.Config.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := app.Pipeline.Sweep(now)
			if removed > 0 {
				app.logger.Info("store sweep", map[string]any{"removed": removed})
			}
		}
	}
}

// Shutdown stops the server and background work.
func (app *Application) Shutdown(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	app.ready.Store(false)
	app.logger.Info("gateway shutdown", map[string]any{"addr": app.Config.ListenAddr})

	var srvErr error
	if app.srv != nil {
		shutdownCtx := ctx
		if app.Config.DrainTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, app.Config.DrainTimeout)
			defer cancel()
		}
		srvErr = app.srv.Shutdown(shutdownCtx)
	}
	if app.cancel != nil {
		app.cancel()
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	app.audit.Close()
	return srvErr
}
