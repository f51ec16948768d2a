package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scriptstudio/backend/internal/agent"
	"github.com/scriptstudio/backend/internal/auth"
	"github.com/scriptstudio/backend/internal/config"
	"github.com/scriptstudio/backend/internal/execution"
	"github.com/scriptstudio/backend/internal/handlers"
	"github.com/scriptstudio/backend/internal/jobs"
	"github.com/scriptstudio/backend/internal/ledger"
	"github.com/scriptstudio/backend/internal/migrations"
	"github.com/scriptstudio/backend/internal/orchestrator"
	"github.com/scriptstudio/backend/internal/poller"
	"github.com/scriptstudio/backend/internal/router"
	"github.com/scriptstudio/backend/internal/services"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "scriptstudio",
		Short: "Script studio API server",
		Long: `Serves the credit-gated content operations (reference analysis,
script generation, daily trends) backed by an external agent API.

Running without a subcommand is the same as "serve".`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Apply migrations, then run the HTTP API and the run workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the application schema and River migrations, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), configPath)
		},
	})
	return cmd
}

// bootstrap loads config, installs the default logger and opens a pinged pool.
func bootstrap(ctx context.Context, configPath string) (*config.Config, *slog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("cannot reach PostgreSQL: %w", err)
	}
	logger.Info("connected to PostgreSQL")
	return cfg, logger, pool, nil
}

func migrate(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, logger, pool, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer pool.Close()
	return migrations.Apply(ctx, pool, logger)
}

func serve(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, pool, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool, logger); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := orchestrator.NewMetrics(registry)

	// Ledger
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), logger)

	// Agent API, poller and the orchestrator on top of them
	if cfg.Agent.APIKey == "" {
		logger.Warn("AGENT_API_KEY is empty; agent calls will be rejected")
	}
	agentClient := agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.APIKey,
		agent.WithRequestTimeout(cfg.Agent.RequestTimeout),
		agent.WithLogger(logger),
	)
	taskPoller := poller.New(agentClient,
		poller.WithMaxAttempts(cfg.Poll.MaxAttempts),
		poller.WithInterval(cfg.Poll.Interval),
		poller.WithLogger(logger),
		poller.WithAttemptHook(func(int, poller.State) { metrics.PollAttempt() }),
	)
	validator, err := services.NewValidator()
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	orch := orchestrator.NewService(ledgerSvc, orchestrator.NewTaskRepository(pool), agentClient, taskPoller, validator, orchestrator.Settings{
		ProfileAnalyze: cfg.Agent.Profiles.Analyze,
		ProfileScript:  cfg.Agent.Profiles.Script,
		ProfileTrends:  cfg.Agent.Profiles.Trends,
		Locale:         cfg.Agent.Locale,
	}, metrics, logger)

	// Runs: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn jobs.InsertRunOperationTxFunc
	insertRunOperation := func(ctx context.Context, tx pgx.Tx, args execution.RunOperationArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("river insert not wired")
		}
		return fn(ctx, tx, args)
	}
	runsSvc := jobs.NewService(jobs.NewRepository(pool), validator, ledgerSvc, insertRunOperation, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewRunOperationWorker(runsSvc, orch, cfg.Worker.JobTimeout, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Logger: logger,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Worker.MaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args execution.RunOperationArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Auth & HTTP
	authSvc := auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret, cfg.Credits.StartingBalance)

	apiV1Router := router.New(router.Handlers{
		Auth:       auth.NewHandler(authSvc, logger),
		Operations: handlers.NewOperationHandler(orch, logger),
		Credits:    handlers.NewCreditHandler(ledgerSvc, logger),
		Runs:       jobs.NewHandler(runsSvc, logger),
	}, authSvc)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiV1Router)
	registerOpsRoutes(mux, pool, registry)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr, "poll_budget", cfg.Poll.Budget())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := riverClient.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("river stop: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
