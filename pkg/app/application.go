package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyreg/pkg/config"
	"studyreg/pkg/contracts"
	"studyreg/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

// Application owns the HTTP server and the background workers of the
// request middleware. Other long-lived components register themselves with
// OnShutdown and are stopped in reverse order after the server drains.
type Application struct {
	cfg              *config.Config
	store            Pinger
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.RateLimiter
	loginLimiter     *middleware.RateLimiter
	healthHandler    http.Handler
	appHttpHandler   http.Handler
	closers          []closer
	unbuffered       []string
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func NewApplication(cfg *config.Config, store Pinger) *Application {
	return &Application{
		cfg:              cfg,
		store:            store,
		idempotencyStore: middleware.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL),
		rateLimiter: middleware.NewRateLimiter(
			cfg.RateLimitRequests,
			cfg.RateLimitWindow,
			middleware.ClientIP,
			cfg.Log,
		),
		loginLimiter: middleware.NewRateLimiter(loginAttempts, loginWindow, middleware.ClientIP, cfg.Log),
	}
}

// Confirm wraps a route so a retried request carrying the same
// Idempotency-Key replays the first successful response.
func (a *Application) Confirm() func(httprouter.Handle) httprouter.Handle {
	return middleware.Adapt(middleware.Idempotency(a.idempotencyStore, middleware.IdempotencyHeader))
}

// LoginLimit throttles access code guesses per client.
func (a *Application) LoginLimit() func(httprouter.Handle) httprouter.Handle {
	return middleware.Adapt(middleware.RateLimit(a.loginLimiter))
}

// Unbuffered exempts long-lived routes, such as event streams, from the
// request timeout.
func (a *Application) Unbuffered(paths ...string) {
	a.unbuffered = append(a.unbuffered, paths...)
}

func (a *Application) OnShutdown(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *Application) SetApp(handlers ...contracts.Handler) {
	a.setHealthHandler()
	a.setAppHandler(handlers)
	a.setAppServer()
}

// Handler is the fully wrapped mux the server runs.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	NewHealthHandler(a.store, a.cfg.Log).RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(handlers []contracts.Handler) {
	appRouter := httprouter.New()
	for _, h := range handlers {
		h.RegisterRoutes(appRouter)
	}

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = a.bounded(appHttpHandler)
	appHttpHandler = middleware.RateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack", "handlers", len(handlers))
}

// bounded applies the request timeout to everything except the unbuffered
// paths.
func (a *Application) bounded(next http.Handler) http.Handler {
	timed := middleware.RequestTimeout(a.cfg.RequestTimeout)(next)
	if len(a.unbuffered) == 0 {
		return timed
	}
	skip := make(map[string]bool, len(a.unbuffered))
	for _, p := range a.unbuffered {
		skip[p] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		timed.ServeHTTP(w, r)
	})
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Fatal("HTTP server failed", "error", err)
		}

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.Stop(ctx)
	a.cfg.Log.Info("Server stopped gracefully")
}

// Stop halts the middleware workers and runs the shutdown hooks, last
// registered first.
func (a *Application) Stop(ctx context.Context) {
	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	a.loginLimiter.Stop()

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.cfg.Log.Error("Shutdown hook failed", "component", c.name, "error", err)
			continue
		}
		a.cfg.Log.Info("Component stopped", "component", c.name)
	}
	a.cfg.Log.Info("Background workers stopped")
}
