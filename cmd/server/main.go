package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"helpdesk/internal/audit"
	"helpdesk/internal/audit/handler"
	"helpdesk/internal/audit/metrics"
	"helpdesk/internal/audit/middleware"
	"helpdesk/internal/audit/reporter"
	"helpdesk/internal/audit/session"
	"helpdesk/internal/audit/store/memory"
	pgstore "helpdesk/internal/audit/store/postgres"
	"helpdesk/internal/audit/writer"
	"helpdesk/internal/platform/config"
	"helpdesk/internal/platform/httpserver"
	"helpdesk/internal/platform/kafka"
	"helpdesk/internal/platform/logger"
	"helpdesk/internal/platform/postgres"
	"helpdesk/internal/platform/redis"
)

// main wires configuration, the audit pipeline, and the reporting API, then
// runs the HTTP server until interrupted. Business handlers mount inside the
// /api group so every mutating request flows through the capture chain.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()
	m := metrics.New()

	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	tracker, closeTracker, err := openTracker(cfg, log)
	if err != nil {
		return err
	}
	defer closeTracker()

	writerOpts := []writer.Option{
		writer.WithLogger(log),
		writer.WithMetrics(m),
		writer.WithTracker(tracker),
		writer.WithQueueSize(cfg.Audit.QueueSize),
		writer.WithWorkers(cfg.Audit.Workers),
		writer.WithSlowThreshold(cfg.Audit.SlowThresholdMs),
		writer.WithReadAuditing(cfg.Audit.AuditAllReads, cfg.Audit.ReadAuditTypes...),
	}

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		writerOpts = append(writerOpts, writer.WithSink(writer.NewKafkaSink(producer, log, m)))
		log.Info("audit kafka sink enabled", "topic", cfg.Kafka.Topic)
	}

	auditWriter := writer.New(store, writerOpts...)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	reportService := reporter.NewService(store, reporter.WithLogger(log))
	auditHandler := handler.New(reportService, log)

	router := chi.NewRouter()
	router.Get("/healthz", handleHealthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/admin/audit", auditHandler.Register)

	router.Route("/api", func(api chi.Router) {
		api.Use(middleware.TraceCorrelation)
		api.Use(middleware.ClientMetadata)
		api.Use(middleware.ActorFromJWT([]byte(cfg.Server.JWTSigningKey), log))
		api.Use(middleware.Capture(auditWriter, cfg.Audit.MaxBodyCapture))

		// Business CRUD handlers mount here and inherit the capture chain.
		// The password-reset endpoint lives with the audit subsystem because
		// its response must not reveal whether an account exists; the internal
		// branch is visible only in the audit trail.
		api.Post("/auth/password-reset", handlePasswordReset(auditWriter))
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting helpdesk server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Deferred writer.Close drains the audit queue after the listener stops.
	return nil
}

// openStore picks PostgreSQL when configured and falls back to the in-memory
// store for local development.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (audit.Store, *sql.DB, error) {
	if cfg.Postgres.URL == "" {
		log.Warn("DATABASE_URL not set, audit entries are kept in memory only")
		return memory.New(), nil, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	store := pgstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("audit store ready", "backend", "postgres")
	return store, db, nil
}

// openTracker picks Redis when configured and falls back to the in-memory
// tracker for single-instance deployments.
func openTracker(cfg config.Config, log *slog.Logger) (session.Tracker, func(), error) {
	if cfg.Redis.URL == "" {
		log.Info("session tracker ready", "backend", "memory")
		return session.NewMemoryTracker(cfg.Session.MaxActivities, cfg.Session.TTL), func() {}, nil
	}

	client, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.Info("session tracker ready", "backend", "redis")
	tracker := session.NewRedisTracker(client.Client, cfg.Session.MaxActivities, cfg.Session.TTL)
	return tracker, func() { _ = client.Close() }, nil
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handlePasswordReset always answers the same way; whether a reset was
// actually initiated is recorded in the audit trail via Emit.
func handlePasswordReset(auditWriter *writer.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		auditWriter.Emit(r.Context(), "auth.password_reset_request",
			audit.Target{Type: "auth"}, "reset requested for submitted address")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message": "If the account exists, a reset link has been sent.",
		})
	}
}
