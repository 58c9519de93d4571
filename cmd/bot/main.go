package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/DoseLine/internal/ai"
	"github.com/hray3182/DoseLine/internal/bot"
	"github.com/hray3182/DoseLine/internal/bot/handlers"
	"github.com/hray3182/DoseLine/internal/config"
	"github.com/hray3182/DoseLine/internal/database"
	"github.com/hray3182/DoseLine/internal/dose"
	"github.com/hray3182/DoseLine/internal/materializer"
	"github.com/hray3182/DoseLine/internal/notifier"
	"github.com/hray3182/DoseLine/internal/projector"
	"github.com/hray3182/DoseLine/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.DatabaseURI == "" {
		log.Fatal("DATABASE_URI is required")
	}
	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Initialize AI client (optional)
	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		log.Printf("AI client initialized (model: %s)", cfg.AIModel)
	} else {
		log.Println("AI client not configured, natural language capture disabled")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("Failed to create Telegram API: %v", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	medRepo := repository.NewMedicationRepository(db)
	schedRepo := repository.NewScheduleRepository(db)
	logRepo := repository.NewDoseLogRepository(db)

	// Core engine
	store := notifier.NewStore()
	mat := materializer.New(schedRepo, logRepo)
	doseSvc := dose.New(logRepo, medRepo)
	proj := projector.New(store, medRepo, doseSvc)

	// Returning users keep their reminder authorization across restarts
	users, err := userRepo.GetAll(ctx)
	if err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}
	for _, user := range users {
		store.Authorize(user.ChatID)
	}

	// Materialize today and rebuild reminders on startup
	if created, err := mat.MaterializeToday(ctx); err != nil {
		log.Printf("Failed to materialize today: %v", err)
	} else if created > 0 {
		log.Printf("Materialized %d dose logs for today", created)
	}
	schedules, err := schedRepo.GetActive(ctx)
	if err != nil {
		log.Fatalf("Failed to load schedules: %v", err)
	}
	if err := proj.RescheduleAll(ctx, schedules); err != nil {
		log.Printf("Reminder rebuild finished with error: %v", err)
	}

	// Delivery worker
	resolver := projector.NewFireResolver(schedRepo, logRepo, mat)
	worker := notifier.NewWorker(store, bot.NewReminderSender(api, cfg.SnoozeMinutes), resolver)
	worker.SetOnRollover(func(ctx context.Context) {
		if _, err := mat.MaterializeToday(ctx); err != nil {
			log.Printf("Failed to materialize new day: %v", err)
			return
		}
		schedules, err := schedRepo.GetActive(ctx)
		if err != nil {
			log.Printf("Failed to load schedules for rollover: %v", err)
			return
		}
		if err := proj.RescheduleAll(ctx, schedules); err != nil {
			log.Printf("Rollover reminder rebuild finished with error: %v", err)
		}
	})
	go worker.Start(ctx)

	// Bot surface
	h := handlers.New(api, &handlers.Repositories{
		User:       userRepo,
		Medication: medRepo,
		Schedule:   schedRepo,
		DoseLog:    logRepo,
	}, doseSvc, proj, mat, store, aiClient)
	b := bot.New(api, h)

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	log.Println("Starting bot...")
	if err := b.Start(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Bot error: %v", err)
	}
}
