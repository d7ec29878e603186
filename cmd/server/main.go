// Package main provides the entry point for the portero server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/portero/internal/bot"
	"github.com/codeGROOVE-dev/portero/internal/config"
	"github.com/codeGROOVE-dev/portero/internal/dialog"
	"github.com/codeGROOVE-dev/portero/internal/perm"
	"github.com/codeGROOVE-dev/portero/internal/rules"
	"github.com/codeGROOVE-dev/portero/internal/schedule"
	"github.com/codeGROOVE-dev/portero/internal/state"
	"github.com/codeGROOVE-dev/portero/internal/telegram"
	"github.com/codeGROOVE-dev/portero/internal/vote"
)

const (
	serverReadTimeout  = 15 * time.Second
	serverWriteTimeout = 15 * time.Second
)

func main() {
	// Setup structured logging. The level is adjustable so run can raise
	// it once the configuration is loaded.
	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Warn("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	exitCode := run(ctx, cancel, logLevel)
	cancel() // Ensure cleanup before exit
	os.Exit(exitCode)
}

func run(ctx context.Context, cancel context.CancelFunc, logLevel *slog.LevelVar) int {
	// Load server configuration from environment; missing required
	// settings are fatal here and only here.
	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}
	logLevel.Set(logLevelFor(cfg.Debug))

	slog.Info("configuration loaded",
		"has_telegram_token", cfg.TelegramToken != "",
		"admin_user_id", cfg.AdminUserID,
		"poll_duration", cfg.PollDuration,
		"rules_path", cfg.RulesPath)

	// Create Telegram client
	client, err := telegram.New(cfg.TelegramToken)
	if err != nil {
		slog.Error("failed to create Telegram client", "error", err)
		return 1
	}

	// Create job store using fido; fall back to memory when the backend
	// is unavailable (polls then stay open across a restart, announced
	// in the log rather than silently).
	store := newJobStore(ctx)
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()

	rulesStore := rules.New(cfg.RulesPath, slog.Default())
	checker := perm.New(cfg.AdminUserID, client, slog.Default())

	// The registry's closer is bound to the manager after both exist.
	var votes *vote.Manager
	registry := schedule.New(store, func(ctx context.Context, job state.PollJob) {
		votes.ClosePoll(ctx, job)
	}, slog.Default())

	votes = vote.NewManager(vote.ManagerConfig{
		Messenger: client,
		Checker:   checker,
		Scheduler: registry,
		Logger:    slog.Default(),
		Window:    cfg.PollDuration,
	})

	machine := dialog.NewMachine(checker, rulesStore, slog.Default())

	router := bot.NewRouter(bot.RouterConfig{
		Client: client,
		Votes:  votes,
		Dialog: machine,
		Rules:  rulesStore,
		Logger: slog.Default(),
	})
	router.Register()

	// Re-arm closures persisted by a previous process.
	registry.Restore(ctx)

	// Create HTTP router
	httpRouter := mux.NewRouter()
	httpRouter.Use(securityHeadersMiddleware)

	// Health endpoints
	httpRouter.HandleFunc("/", healthHandler).Methods("GET")
	httpRouter.HandleFunc("/health", healthHandler).Methods("GET")
	httpRouter.HandleFunc("/healthz", makeHealthzHandler(registry)).Methods("GET")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpRouter,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start services
	eg, ctx := errgroup.WithContext(ctx)

	// HTTP server
	eg.Go(func() error {
		slog.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 250*time.Millisecond)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	// Telegram update loop
	eg.Go(func() error {
		slog.Info("starting Telegram poller")
		client.Start()
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		slog.Info("stopping Telegram poller")
		client.Stop()
		registry.Stop()
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		cancel()
		return 1
	}

	slog.Info("shutdown complete")
	return 0
}

// logLevelFor maps the debug flag to a handler level.
func logLevelFor(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// newJobStore prefers the persistent fido store so scheduled closures
// survive restarts.
func newJobStore(ctx context.Context) state.Store {
	store, err := state.NewFidoStore(ctx)
	if err != nil {
		slog.Warn("persistent job store unavailable, scheduled closures will not survive restarts",
			"error", err)
		return state.NewMemoryStore()
	}
	return store
}

// jobLister exposes the registry surface the healthz handler needs.
type jobLister interface {
	Jobs() []state.PollJob
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		slog.Debug("health write error", "error", err)
	}
}

func makeHealthzHandler(registry jobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		jobs := registry.Jobs()
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, "ok - %d active votes\n", len(jobs)); err != nil {
			slog.Debug("healthz write error", "error", err)
		}
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}
