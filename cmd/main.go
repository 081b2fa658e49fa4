package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"marzbot/internal/bootstrap"
	"marzbot/internal/bot"
	"marzbot/internal/catalog"
	"marzbot/internal/config"
	cronpkg "marzbot/internal/cron"
	"marzbot/internal/middleware"
	"marzbot/internal/notify"
	"marzbot/internal/panel"
	"marzbot/internal/repository"
	"marzbot/internal/router"
	"marzbot/internal/state"
	"marzbot/internal/workflow"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	// --- Catalog ---
	cat, err := catalog.Load(cfg.Catalog.PlansFile, cfg.Catalog.PaymentMethodsFile)
	if err != nil {
		logger.Fatal("Failed to load plan catalog", zap.Error(err))
	}
	logger.Info("Catalog loaded", zap.Int("plans", len(cat.Plans())))

	// --- Panel client ---
	panelClient := panel.NewMarzbanClient(
		cfg.Panel.BaseURL,
		cfg.Panel.Username,
		cfg.Panel.Password,
		cfg.Panel.TokenLifetime,
		cfg.Panel.Timeout,
		logger,
	)
	authCtx, cancelAuth := context.WithTimeout(context.Background(), cfg.Panel.Timeout)
	if err := panelClient.Authenticate(authCtx); err != nil {
		// The panel may simply be down at boot; keep going and let calls
		// re-authenticate.
		logger.Warn("Initial panel authentication failed", zap.Error(err))
	}
	cancelAuth()

	// --- Conversation state store (Redis when configured) ---
	var states state.Store = state.NewMemoryStore(cfg.Bot.StateTTL)
	var sweeper cronpkg.Sweeper = states.(*state.MemoryStore)
	if cfg.Redis.Addr != "" {
		redisStore, err := state.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB, cfg.Bot.StateTTL, logger)
		if err != nil {
			logger.Warn("Redis unavailable for conversation state, using in-memory fallback", zap.Error(err))
		} else {
			states = redisStore
			sweeper = nil // Redis expires keys itself
		}
	}

	// --- Update dedup (Redis when available, in-memory otherwise) ---
	var seen middleware.Seen = middleware.NewMemorySeen()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Pass,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis unavailable for update dedup, using in-memory fallback", zap.Error(err))
		} else {
			seen = middleware.NewRedisSeen(rdb, logger)
		}
		cancelPing()
	}

	// --- Repositories ---
	accountRepo := repository.NewAccountRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// --- Bot + engines ---
	teleBot, err := bot.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}
	notifier := notify.NewTelegramNotifier(teleBot.Telebot(), cfg.Bot.AdminIDs, logger)

	payments := workflow.NewPaymentEngine(accountRepo, paymentRepo, panelClient, states, notifier, cat, logger)
	registration := workflow.NewRegistrationEngine(accountRepo, panelClient, states, notifier, cfg.Registration, cfg.Panel.BaseURL, logger)

	teleBot.Wire(bot.Deps{
		Payments:     payments,
		Registration: registration,
		Accounts:     accountRepo,
		Claims:       paymentRepo,
		Stats:        statsRepo,
		Panel:        panelClient,
		Catalog:      cat,
		Dedup:        middleware.Dedup(seen),
	})

	// --- Echo ---
	e := echo.New()
	router.Setup(e, statsRepo, cfg.API.Key, teleBot.WebhookHandler(), logger)

	// --- Cron scheduler ---
	scheduler := cronpkg.New(accountRepo, panelClient, sweeper, logger)
	scheduler.Start()

	// --- Start server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	go teleBot.Start()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	teleBot.Stop()
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
