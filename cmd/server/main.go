/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Hearthplan planner engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize structured logging
  3. Open SQLite store
  4. Connect Redis cache (optional) and the OpenAI-backed model client
  5. Wire strategies, plan applier, and HTTP handler
  6. Start the background cache refresher
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: planner.db)
              Use ":memory:" for an in-memory database
  -dev        Development logging (human-readable, debug level)
  -daily-cap  Override the per-child daily minute cap (0 = built-in default)

ENVIRONMENT:
  OPENAI_API_KEY   Enables the AI strategies; without it the planner
                   endpoints return 502 and everything else still works.
  OPENAI_MODEL     Overrides the default chat model.
  REDIS_ADDR       Enables the Redis gap cache; empty falls back to the
                   in-process cache.
  LOG_LEVEL        "debug" switches to development logging.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/planner.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/api"
	"github.com/hearthplan/planner-engine/llm"
	"github.com/hearthplan/planner-engine/planning"
	"github.com/hearthplan/planner-engine/store/sqlite"
	"github.com/hearthplan/planner-engine/strategy"
	"github.com/hearthplan/planner-engine/telemetry"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "planner.db", "SQLite database path (use ':memory:' for in-memory)")
	dev := flag.Bool("dev", false, "development logging")
	dailyCap := flag.Int("daily-cap", 0, "per-child daily minute cap override (0 = built-in default)")
	flag.Parse()

	log, err := telemetry.NewLogger(*dev || os.Getenv("LOG_LEVEL") == "debug")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log, *port, *dbPath, *dailyCap); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(log *zap.Logger, port int, dbPath string, dailyCap int) error {
	db, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	log.Info("store ready", zap.String("path", dbPath))

	// Gap cache: Redis when configured, in-process otherwise.
	var gaps telemetry.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		gaps = telemetry.NewRedisCache(redis.NewClient(&redis.Options{Addr: addr}))
		log.Info("redis cache enabled", zap.String("addr", addr))
	} else {
		gaps = telemetry.NewMemoryCache()
	}

	// Model client. A missing key disables the AI strategies but the
	// rest of the API keeps working.
	var client strategy.ProposalClient
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := os.Getenv("OPENAI_MODEL")
		c, err := llm.NewOpenAI(key, model, llm.WithLogger(log))
		if err != nil {
			return fmt.Errorf("model client: %w", err)
		}
		client = c
		log.Info("model client ready")
	} else {
		log.Warn("OPENAI_API_KEY not set; AI strategies disabled")
	}

	metrics := telemetry.NewPrometheusSink(prometheus.DefaultRegisterer)

	deps := strategy.Deps{
		Builder: &planning.ContextBuilder{
			Calendar: db,
			Events:   db,
			Insights: db,
			Gaps:     gaps,
			Log:      log,
		},
		Validator: planning.DailyCapValidator{MaxMinutesPerDay: dailyCap},
		Calendar:  db,
		Events:    db,
		Plans:     db,
		TaskRuns:  db,
		Client:    client,
		Metrics:   metrics,
		Log:       log,
		Locks:     planning.NewFamilyLocks(),
	}

	applier := &planning.PlanApplier{
		Plans:     db,
		Events:    db,
		Refresher: db,
		Log:       log,
	}

	handler := api.NewHandler(deps, applier, db, db, log)
	router := api.NewRouter(handler, api.MetricsHandler())

	// Heal cache drift in the background; per-apply refreshes cover the
	// common path.
	sched := api.NewRefreshScheduler(db, db, log)
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
