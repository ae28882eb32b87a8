// ABOUTME: Gateway orchestrator that wires storage, conversation core and HTTP server
// ABOUTME: Manages component lifecycle including graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuideme/care-gateway/internal/ai"
	"github.com/cuideme/care-gateway/internal/alert"
	"github.com/cuideme/care-gateway/internal/auth"
	"github.com/cuideme/care-gateway/internal/autoreply"
	"github.com/cuideme/care-gateway/internal/config"
	"github.com/cuideme/care-gateway/internal/conversation"
	"github.com/cuideme/care-gateway/internal/reminder"
	"github.com/cuideme/care-gateway/internal/store"
	"github.com/cuideme/care-gateway/internal/whatsapp"
)

// Gateway orchestrates the care-gateway server components. It owns the
// store, the conversation service and the HTTP server, and manages their
// lifecycle.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	service    *conversation.Service
	authn      *auth.Authenticator
	verifier   *auth.JWTVerifier
	reminders  *reminder.Scheduler
	sweeper    *reminder.Runner
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates the SQLite store from config and environment.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CARE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	detector := alert.NewDetector(cfg.Alerts.Keywords)

	sender := whatsapp.NewClient(whatsapp.Config{
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		APIBase:       cfg.WhatsApp.APIBase,
		Timeout:       cfg.WhatsApp.Timeout,
	}, logger)

	aiClient := ai.NewClient(ai.Config{
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}, logger)

	// A nil *ai.Client must stay a nil interface so the disabled paths
	// trigger, hence the explicit guards.
	var classifier autoreply.Classifier
	var summarizer conversation.Summarizer
	if aiClient != nil {
		classifier = aiClient
		summarizer = aiClient
	} else {
		logger.Warn("ai capability disabled - no api key configured")
	}

	policy := autoreply.New(classifier, logger)
	registry := conversation.NewRegistry(logger)
	service := conversation.New(s, registry, detector, sender, policy, summarizer, logger)

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	authn := auth.NewAuthenticator(s, verifier, 0, logger)

	gw := &Gateway{
		config:   cfg,
		store:    s,
		service:  service,
		authn:    authn,
		verifier: verifier,
		logger:   logger.With("component", "gateway"),
	}

	gw.sweeper = reminder.NewRunner(s, sender, cfg.Reminders.Message, logger)
	if cfg.Reminders.Enabled {
		scheduler, err := reminder.NewScheduler(cfg.Reminders.Schedule, gw.sweeper, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		gw.reminders = scheduler
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// buildHandler assembles the route table and middleware stack.
func (g *Gateway) buildHandler() http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated surface: liveness, the messaging-platform webhook
	// (it authenticates with its own verify-token handshake) and the
	// cron trigger (guarded by X-Cron-Secret).
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/webhook", g.handleWebhook)
	mux.HandleFunc("/trigger-daily-task", g.handleTriggerDailyTask)
	mux.HandleFunc("/api/auth/login", g.handleLogin)

	if g.config.Metrics.Enabled {
		path := g.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.Handler())
	}

	// Panel API - JWT required
	authMiddleware := auth.Middleware(g.verifier)
	mux.Handle("/api/patients", authMiddleware(http.HandlerFunc(g.handleListPatients)))
	mux.Handle("/api/patients/", authMiddleware(http.HandlerFunc(g.handlePatientRoutes)))

	return corsMiddleware(g.config.CORS.AllowedOrigins)(mux)
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.reminders != nil {
		g.reminders.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the gateway and releases resources. Live SSE
// viewers are disconnected by closing the registry.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	// Closing the registry first ends the long-lived SSE handlers so the
	// HTTP shutdown below can complete within its deadline.
	g.service.Registry().Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.reminders != nil {
		g.reminders.Stop()
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
