package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroom_reminder_bot/internal/app"
	"classroom_reminder_bot/internal/infra/config"
	idb "classroom_reminder_bot/internal/infra/database"
	"classroom_reminder_bot/internal/infra/logger"
	"classroom_reminder_bot/internal/infra/scheduler"
	"classroom_reminder_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	log := logger.Get()
	log.Infof("Configuration loaded. LogLevel: %s, Environment: %s, ReminderSpec: %s", cfg.LogLevel, cfg.Environment, cfg.CronSpecReminder)

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully.")

	// Initialize Repositories
	examRepo := idb.NewPostgresExamRepository(db)
	rosterRepo := idb.NewPostgresRosterRepository(db)
	reminderRepo := idb.NewPostgresReminderRepository(db)
	auditRepo := idb.NewPostgresAuditRepository(db)
	log.Info("Repositories initialized.")

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			log.Errorf("telebot: %v", err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				log.Errorf("telebot context: Message: %s, Sender: %d, Chat: %d", c.Text(), c.Sender().ID, c.Chat().ID)
			}
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.Fatalf("FATAL: Could not create Telegram bot: %v", err)
	}
	telegramClient := telegram.NewTelebotAdapter(bot)

	// Initialize ReminderService
	reminderService := app.NewReminderServiceImpl(
		examRepo,
		rosterRepo,
		reminderRepo,
		auditRepo,
		telegramClient,
		log,
		app.ReminderConfig{
			ExamMinAge:         cfg.ExamMinAge,
			SendDelay:          cfg.SendDelay,
			SendTimeout:        cfg.SendTimeout,
			MaxConcurrentSends: cfg.MaxConcurrentSends,
		},
	)
	log.Info("Reminder service initialized.")

	// Initialize ReminderScheduler
	reminderScheduler := scheduler.NewReminderScheduler(
		reminderService,
		log,
		cfg.CronSpecReminder,
		cfg.CycleErrorBackoff,
	)
	if err := reminderScheduler.Start(); err != nil {
		log.Fatalf("FATAL: Could not start reminder scheduler: %v", err)
	}

	log.Info("Application setup complete. Bot and scheduler are starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received

	log.Info("Shutting down application...")
	reminderScheduler.Stop()
	bot.Stop()
	log.Info("Application shut down gracefully.")
}
