package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "github.com/lib/pq"

	"tongbuying/internal/config"
	"tongbuying/internal/member"
	"tongbuying/internal/storage"
	"tongbuying/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	backend, mirrored, cleanup, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	svc, err := member.NewService(ctx, backend, mirrored)
	if err != nil {
		return fmt.Errorf("initialize member store: %w", err)
	}

	handler := member.NewHandler(svc)

	router := chi.NewRouter()
	router.Use(member.RequestLogger)
	handler.Routes(router)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("member service starting", "addr", cfg.ListenAddr, "storage_mode", cfg.Storage.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	// One final synchronous persist of the mirror before exit.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Flush(flushCtx); err != nil {
		slog.Error("failed to persist members on shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	slog.Info("member service exited")
	return nil
}

// newBackend builds the persistence backend selected by configuration. The
// local file backend is the only mirrored one; the remote backends are read
// on every operation so their version tokens stay fresh.
func newBackend(ctx context.Context, cfg *config.Config) (member.Backend, bool, func(), error) {
	noop := func() {}

	switch cfg.Storage.Mode {
	case "file":
		return storage.NewFileBackend(cfg.Storage.File.Path), true, noop, nil

	case "github":
		gh := cfg.Storage.GitHub
		if gh.Token == "" {
			slog.Warn("GITHUB_TOKEN is not set; remote calls will fail authentication")
		}
		return storage.NewGitHubBackend(gh.APIURL, gh.Repo, gh.Path, gh.Token), false, noop, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, false, nil, fmt.Errorf("open database: %w", err)
		}
		backend := storage.NewPostgresBackend(db)
		if err := backend.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, false, nil, err
		}
		return backend, false, func() { db.Close() }, nil

	default:
		return nil, false, nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
}
