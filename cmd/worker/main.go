package main

import (
	"context"
	"flag"
	"log"
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
	"profile-enrichment/internal/infra/notify"
	"profile-enrichment/internal/infra/queue"
	red "profile-enrichment/internal/infra/redis"
	"profile-enrichment/internal/usecase"
)

// Standalone worker process: consumes one lane, no HTTP surface.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	lane := flag.String("lane", "", "lane to consume (overrides queue.lane)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *lane != "" {
		cfg.Queue.Lane = *lane
	}
	priority, err := model.ParsePriority(cfg.Queue.Lane)
	if err != nil {
		log.Fatalf("lane %q: must be high|default|low", cfg.Queue.Lane)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	sessionRepo := pg.NewSessionRepo(pool)
	broker := queue.NewBroker(redisClient, logger)
	manager := queue.NewManager(broker, cfg.Queue, logger)

	var providers []adapter.RepositoryResolver
	if cfg.Resolver.OpenAIKey != "" {
		p, err := resolver.NewOpenAIResolver(cfg.Resolver.OpenAIKey, cfg.Resolver.OpenAIBaseURL, cfg.Resolver.Model)
		if err != nil {
			log.Fatalf("openai resolver: %v", err)
		}
		providers = append(providers, p)
	}
	if cfg.Resolver.GeminiKey != "" {
		p, err := resolver.NewGeminiResolver(ctx, cfg.Resolver.GeminiKey, cfg.Resolver.GeminiURL, cfg.Resolver.Model)
		if err != nil {
			log.Fatalf("gemini resolver: %v", err)
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		log.Fatalf("no resolver provider configured")
	}

	codehost := ghAdapter.NewAdapter(cfg.GitHub)
	social, err := liAdapter.NewAdapter(cfg.LinkedIn)
	if err != nil {
		log.Fatalf("linkedin adapter: %v", err)
	}

	var notifier adapter.CompletionNotifier
	if cfg.Notify.TelegramToken != "" && !cfg.Runtime.Dev {
		notifier, err = notify.NewTelegramNotifier(cfg.Notify, logger)
		if err != nil {
			log.Fatalf("telegram notifier: %v", err)
		}
	} else {
		notifier = notify.NewNoopNotifier(logger)
	}

	engine := usecase.NewWorkflowEngine(
		sessionRepo, resolver.NewMultiResolver(providers...), codehost, social, notifier, manager,
		cfg.Workflow, logger,
		usecase.LoggingInterceptor(logger), usecase.MetricsInterceptor(),
	)

	registry := queue.NewRegistry()
	engine.RegisterTask(registry)
	for i := 0; i < cfg.Queue.Workers; i++ {
		w := queue.NewWorker(priority, broker, registry, cfg.Queue.PollInterval, logger)
		go func() { _ = w.Run(ctx) }()
	}
	logger.Info().Int("workers", cfg.Queue.Workers).Str("lane", cfg.Queue.Lane).Msg("queue workers started")

	monitor := queue.NewMonitor(broker, cfg.Queue.MonitorInterval, cfg.Queue.JobTimeout, logger)
	go func() { _ = monitor.Run(ctx) }()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	// Give worker loops a beat to deregister.
	time.Sleep(500 * time.Millisecond)
}
