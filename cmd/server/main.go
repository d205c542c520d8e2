package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/api"
	"github.com/qs3c/rizz_server/internal/api/handler"
	"github.com/qs3c/rizz_server/internal/database"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
	"github.com/qs3c/rizz_server/internal/pkg/cron"
	"github.com/qs3c/rizz_server/internal/pkg/gemini"
	"github.com/qs3c/rizz_server/internal/pkg/kv"
	"github.com/qs3c/rizz_server/internal/pkg/logging"
	"github.com/qs3c/rizz_server/internal/pkg/pubsub"
	"github.com/qs3c/rizz_server/internal/pkg/ws"
	"github.com/qs3c/rizz_server/internal/repository"
	"github.com/qs3c/rizz_server/internal/service"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		fatal("failed to connect database", err)
	}
	if err := database.Migrate(db); err != nil {
		fatal("failed to migrate database", err)
	}
	logger.Info("database connected", "driver", cfg.Database.Driver)

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		fatal("failed to connect redis", err)
	}
	defer rdb.Close()
	logger.Info("redis connected")

	clk := clock.Real()
	guests := kv.NewStore(rdb, cfg.Guest.KeyPrefix, time.Duration(cfg.Guest.TTLHours)*time.Hour)

	// 初始化 Gemini
	generator, err := gemini.NewClient(ctx, cfg.Gemini, logger)
	if err != nil {
		fatal("failed to create gemini client", err)
	}
	defer generator.Close()

	// 初始化 WebSocket Hub 与广告桥
	hub := ws.NewHub(logger)
	bridge := ws.NewAdBridge(hub, time.Duration(cfg.Ads.AckTimeoutSeconds)*time.Second)

	// 初始化 Repository
	profileRepo := repository.NewProfileRepository(db)
	savedItemRepo := repository.NewSavedItemRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	// 初始化 Service
	credits := service.NewCreditStore(profileRepo, guests, clk, cfg, logger)
	sessions := service.NewSessionManager(credits, clk, cfg, func(sessionID string) service.AdSDK {
		return bridge.ForSession(sessionID)
	}, hub, pubsub.NewPublisher(rdb), logger)
	generationService := service.NewGenerationService(credits, generator, clk, cfg, logger)
	savedItemService := service.NewSavedItemService(savedItemRepo, guests, clk)
	authService := service.NewAuthService(profileRepo, credits, cfg, logger)
	subscriptionService := service.NewSubscriptionService(db, subscriptionRepo, profileRepo, clk, cfg, logger)

	// 跨实例会话替换
	go func() {
		if err := sessions.Run(ctx, pubsub.NewSubscriber(rdb)); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session subscriber stopped", "error", err)
		}
	}()

	// 定时任务：每日补满、订阅到期
	cronService := cron.NewService(credits, subscriptionService, clk, time.Hour, logger)
	cronService.Start()
	defer cronService.Stop()

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService)
	sessionHandler := handler.NewSessionHandler(sessions, credits)
	generationHandler := handler.NewGenerationHandler(generationService)
	savedItemHandler := handler.NewSavedItemHandler(savedItemService)
	adsHandler := handler.NewAdsHandler()
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, sessions, credits, hub, logger)
	pricingHandler := handler.NewPricingHandler(cfg)
	websocketHandler := handler.NewWebSocketHandler(hub, bridge, sessions, logger)
	healthHandler := handler.NewHealthHandler(db, rdb, sessions, hub)

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		sessionHandler,
		generationHandler,
		savedItemHandler,
		adsHandler,
		subscriptionHandler,
		pricingHandler,
		websocketHandler,
		healthHandler,
		sessions,
		cfg,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 启动服务器
	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("failed to start server", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	sessions.Shutdown()
}
