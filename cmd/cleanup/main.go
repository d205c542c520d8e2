package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/database"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
	"github.com/qs3c/rizz_server/internal/pkg/cron"
	"github.com/qs3c/rizz_server/internal/pkg/logging"
	"github.com/qs3c/rizz_server/internal/repository"
	"github.com/qs3c/rizz_server/internal/service"
)

var (
	resetCredits = flag.Bool("reset-credits", true, "Refill daily credits for profiles not reset today")
	expireSubs   = flag.Bool("expire-subscriptions", true, "Expire subscriptions past their end date")
)

// 手动执行一次定时任务，用于补跑或运维排查。访客额度在读取时重置，这里只处理数据库账户
func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	clk := clock.Real()
	profileRepo := repository.NewProfileRepository(db)

	var resetter cron.CreditResetter
	if *resetCredits {
		resetter = service.NewCreditStore(profileRepo, nil, clk, cfg, logger)
	}
	var expirer cron.SubscriptionExpirer
	if *expireSubs {
		expirer = service.NewSubscriptionService(db, repository.NewSubscriptionRepository(db), profileRepo, clk, cfg, logger)
	}

	reset, expired := cron.NewService(resetter, expirer, clk, 0, logger).RunNow()
	logger.Info("cleanup finished", "profiles_reset", reset, "subscriptions_expired", expired)
}
