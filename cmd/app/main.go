package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenant-ai-agents/internal/config"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/adapter"
	aiAdapters "tenant-ai-agents/internal/infra/adapters/ai"
	"tenant-ai-agents/internal/infra/adapters/notify"
	"tenant-ai-agents/internal/infra/api"
	pg "tenant-ai-agents/internal/infra/db/postgres"
	"tenant-ai-agents/internal/infra/detectors"
	"tenant-ai-agents/internal/infra/logging"
	"tenant-ai-agents/internal/infra/metrics"
	red "tenant-ai-agents/internal/infra/redis"
	"tenant-ai-agents/internal/infra/tools"
	"tenant-ai-agents/internal/infra/worker"
	"tenant-ai-agents/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
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
	pool, err := pg.NewPgxPool(ctx, &cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient, cfg.RateLimit)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	taskRepo := pg.NewTaskRepo(pool)
	agentRepo := pg.NewAgentRepo(pool)
	convoRepo := pg.NewConversationRepo(pool)
	procRepo := pg.NewProcedureRepo(pool)
	flagRepo := pg.NewFlagRepo(pool)
	pricingRepo := pg.NewModelPricingRepoCacheDecorator(pg.NewModelPricingRepo(pool), redisClient)
	billingRepo := pg.NewBillingRepo(pool, tm)

	// ---- Provider adapters ----
	providers := adapter.ProviderSet{}
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter init failed")
		}
		providers[model.ProviderOpenAI] = aiAdapters.NewLimitedProvider(oa, cfg.AI.ConcurrentLimit)
	}
	if cfg.AI.GeminiKey != "" {
		ga, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter init failed")
		}
		providers[model.ProviderGemini] = aiAdapters.NewLimitedProvider(ga, cfg.AI.ConcurrentLimit)
	}

	// ---- Tools ----
	registry := usecase.NewToolRegistry(nil, logger)
	host := tools.NewHostClient(cfg.Tools.HostAPIBase, cfg.Tools.HostAPIKey)
	if err := tools.RegisterBuiltin(registry, host); err != nil {
		logger.Fatal().Err(err).Msg("builtin tool registration failed")
	}

	// ---- Use cases ----
	costs := usecase.NewCostTracker(pricingRepo, billingRepo, cfg.Billing.MarkupPct, "", logger)
	orch := usecase.NewOrchestrator(
		taskRepo, agentRepo, convoRepo, procRepo, flagRepo,
		providers, registry, costs,
		detectors.NewKeywordSentimentDetector(), detectors.NewClaimCheckDetector(),
		logger,
	)

	// ---- Dead-letter notifier ----
	var dead adapter.DeadLetterNotifier = notify.NoopNotifier{}
	if cfg.Notify.TelegramToken != "" {
		tn, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier init failed")
		}
		dead = tn
	}

	// ---- Queue and schedulers ----
	queue := worker.NewQueue(worker.Config{
		Workers:     cfg.Queue.Workers,
		BaseBackoff: cfg.Queue.BaseBackoff,
		MaxBackoff:  cfg.Queue.MaxBackoff,
		JobTimeout:  cfg.Queue.JobTimeout,
	}, taskRepo, orch, rateLimiter, dead, logger)
	queue.Start(ctx)
	defer queue.Stop()

	cronSched := worker.NewCronScheduler(taskRepo, queue, logger)
	cronSched.Start()
	defer cronSched.Stop()
	if err := cronSched.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("cron trigger restore failed")
	}

	poller := worker.NewSchedulePoller(cfg.Queue.PollInterval, taskRepo, queue, locker, logger)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("schedule poller exited")
		}
	}()

	// ---- Workflow bridge ----
	bridge := usecase.NewWorkflowBridge(taskRepo, agentRepo, queue, logger)

	// ---- Ops and ingestion server ----
	opsSrv := api.NewServer(&cfg.Ops, queue, taskRepo, cronSched, orch, bridge, billingRepo, logger)
	go func() {
		if err := opsSrv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	logger.Info().Msg("agent engine started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown failed")
	}
	cancel()
}
