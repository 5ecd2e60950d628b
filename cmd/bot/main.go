package main

import (
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Focusniks/ipmkn-bot/internal/bot"
	"github.com/Focusniks/ipmkn-bot/internal/broadcast"
	"github.com/Focusniks/ipmkn-bot/internal/database"
	"github.com/Focusniks/ipmkn-bot/internal/handlers"
	"github.com/Focusniks/ipmkn-bot/internal/session"
	"github.com/Focusniks/ipmkn-bot/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	// Logger config from env (LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT)
	loggerConfig := &logger.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
		Output: getEnv("LOG_OUTPUT", "stdout"),
	}
	zapLogger, err := logger.New(loggerConfig, logger.DefaultServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		zap.L().Fatal("BOT_TOKEN is required")
	}

	tutorCode := os.Getenv("TUTOR_CODE")
	if tutorCode == "" {
		zap.L().Fatal("TUTOR_CODE is required")
	}

	dbConfig := database.Config{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}

	db, err := database.New(dbConfig)
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	zap.L().Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		zap.L().Fatal("Failed to run migrations", zap.Error(err))
	}

	b, err := bot.New(botToken)
	if err != nil {
		zap.L().Fatal("Failed to create bot", zap.Error(err))
	}

	broadcaster := broadcast.New(b, db)
	h := handlers.New(b, db, session.NewStore(), broadcaster, tutorCode)

	zap.L().Info("Bot started successfully")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.API.GetUpdatesChan(u)

	for update := range updates {
		if update.Message != nil {
			if !update.Message.Chat.IsPrivate() {
				continue
			}
			if update.Message.IsCommand() {
				switch update.Message.Command() {
				case "start":
					h.HandleStart(update.Message)
				case "menu":
					h.HandleMenu(update.Message)
				case "code":
					h.HandleCode(update.Message)
				case "stats":
					h.HandleStats(update.Message)
				case "setpoints":
					h.HandleSetPoints(update.Message)
				case "setrole":
					h.HandleSetRole(update.Message)
				case "info":
					h.HandleInfo(update.Message)
				case "cancel":
					h.HandleCancel(update.Message)
				default:
					b.SendMessage(update.Message.Chat.ID,
						"❌ Такой команды нет. Напишите /menu для возврата в главное меню.", nil)
				}
			} else {
				h.HandleMessage(update.Message)
			}
		} else if update.CallbackQuery != nil {
			h.HandleCallbackQuery(update.CallbackQuery)
		}
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
