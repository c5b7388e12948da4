package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"profile-enrichment/internal/config"
	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/domain/ports/adapter"
	ghAdapter "profile-enrichment/internal/infra/adapters/github"
	liAdapter "profile-enrichment/internal/infra/adapters/linkedin"
	"profile-enrichment/internal/infra/adapters/resolver"
	pg "profile-enrichment/internal/infra/db/postgres"
	"profile-enrichment/internal/infra/logging"
	"profile-enrichment/internal/infra/metrics"
	"profile-enrichment/internal/infra/notify"
	"profile-enrichment/internal/infra/queue"
	red "profile-enrichment/internal/infra/redis"
	"profile-enrichment/internal/infra/sched"
	"profile-enrichment/internal/infra/web"
	"profile-enrichment/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop notifier)")
	runWorkers := flag.Bool("workers", true, "run queue workers in-process")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	// ---- Repositories ----
	sessionRepo := pg.NewSessionRepo(pool)

	// ---- Queue ----
	broker := queue.NewBroker(redisClient, logger)
	manager := queue.NewManager(broker, cfg.Queue, logger)

	// ---- Repository resolver (OpenAI-compatible -> Gemini) ----
	var providers []adapter.RepositoryResolver
	if cfg.Resolver.OpenAIKey != "" {
		p, err := resolver.NewOpenAIResolver(cfg.Resolver.OpenAIKey, cfg.Resolver.OpenAIBaseURL, cfg.Resolver.Model)
		if err != nil {
			log.Fatalf("openai resolver: %v", err)
		}
		providers = append(providers, p)
		logger.Info().Str("model", cfg.Resolver.Model).Msg("resolver provider: openai")
	}
	if cfg.Resolver.GeminiKey != "" {
		p, err := resolver.NewGeminiResolver(ctx, cfg.Resolver.GeminiKey, cfg.Resolver.GeminiURL, cfg.Resolver.Model)
		if err != nil {
			log.Fatalf("gemini resolver: %v", err)
		}
		providers = append(providers, p)
		logger.Info().Msg("resolver provider: gemini")
	}
	if len(providers) == 0 {
		log.Fatalf("no resolver provider configured: set resolver.openai_key or resolver.gemini_key in %s", *cfgPath)
	}
	repoResolver := resolver.NewMultiResolver(providers...)

	// ---- Stage adapters ----
	codehost := ghAdapter.NewAdapter(cfg.GitHub)
	social, err := liAdapter.NewAdapter(cfg.LinkedIn)
	if err != nil {
		log.Fatalf("linkedin adapter: %v", err)
	}

	// ---- Notifier ----
	var notifier adapter.CompletionNotifier
	if cfg.Notify.TelegramToken != "" && !cfg.Runtime.Dev {
		notifier, err = notify.NewTelegramNotifier(cfg.Notify, logger)
		if err != nil {
			log.Fatalf("telegram notifier: %v", err)
		}
	} else {
		notifier = notify.NewNoopNotifier(logger)
	}

	// ---- Workflow engine ----
	engine := usecase.NewWorkflowEngine(
		sessionRepo, repoResolver, codehost, social, notifier, manager,
		cfg.Workflow, logger,
		usecase.LoggingInterceptor(logger), usecase.MetricsInterceptor(),
	)

	// ---- Workers ----
	if *runWorkers {
		registry := queue.NewRegistry()
		engine.RegisterTask(registry)
		lane, _ := model.ParsePriority(cfg.Queue.Lane)
		for i := 0; i < cfg.Queue.Workers; i++ {
			w := queue.NewWorker(lane, broker, registry, cfg.Queue.PollInterval, logger)
			go func() { _ = w.Run(ctx) }()
		}
		logger.Info().Int("workers", cfg.Queue.Workers).Str("lane", cfg.Queue.Lane).Msg("queue workers started")
	}

	// ---- Queue monitor ----
	monitor := queue.NewMonitor(broker, cfg.Queue.MonitorInterval, cfg.Queue.JobTimeout, logger)
	go func() { _ = monitor.Run(ctx) }()

	// ---- Retention worker (hourly) ----
	retention := sched.NewRetentionWorker(1*time.Hour, cfg.Queue.RetentionDays, sessionRepo, manager, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SecureCookie, cfg.Admin.SessionTTL)
	srv := web.NewServer(engine, manager, auth, cfg.Server, cfg.Admin, cfg.Workflow, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
