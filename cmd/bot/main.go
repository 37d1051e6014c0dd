package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"shop-assistant/internal/assistant"
	"shop-assistant/internal/config"
	"shop-assistant/internal/scheduler"
	"shop-assistant/internal/session"
	"shop-assistant/internal/storage"
	"shop-assistant/internal/telegram"
	"shop-assistant/internal/usage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	usageRepo, err := usage.NewFileRepository(cfg.UsageFilePath)
	if err != nil {
		log.Fatalf("failed to init usage repository: %v", err)
	}
	store, err := usage.NewStore(usageRepo, usage.Limits{
		DailyMessages:   cfg.DailyMessageLimit,
		MonthlyMessages: cfg.MonthlyMessageLimit,
		MonthlyTokens:   cfg.MonthlyTokenLimit,
	})
	if err != nil {
		log.Fatalf("failed to init usage store: %v", err)
	}

	var rec storage.Recorder
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			log.Printf("failed to init file recorder: %v", err)
		} else {
			rec = fr
		}
	}

	client := assistant.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIAssistantID)
	sessions := session.NewRegistry(client)
	driver := assistant.NewDriver(client, cfg.RunPollInterval, cfg.RunMaxWait)

	bot, err := telegram.New(
		cfg.TelegramBotToken,
		sessions,
		driver,
		usage.NewPolicy(store),
		store,
		rec,
		cfg.AdminUserID,
	)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	sched := scheduler.New(bot.SendDailyReport)
	if err := sched.Start(); err != nil {
		log.Printf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("store assistant bot started")
	bot.Start(ctx)
}
