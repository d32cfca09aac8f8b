package main

import (
	"time"

	"github.com/solenne-labs/serene-bot/internal/actions"
	"github.com/solenne-labs/serene-bot/internal/bot"
	"github.com/solenne-labs/serene-bot/internal/conversation"
	"github.com/solenne-labs/serene-bot/internal/genai"
	"github.com/solenne-labs/serene-bot/internal/insight"
	"github.com/solenne-labs/serene-bot/internal/storage"
	"github.com/solenne-labs/serene-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.Database.Backend {
	case "memory":
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	case "postgres":
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	default:
		logger.Info("Using SQLite storage", zap.String("path", cfg.Database.Path))
		store, err = storage.NewSQLiteStorage(cfg.Database.Path)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the text generation client
	generator := genai.NewOpenAIGenerator(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		logger,
	)

	// Conversation pipeline
	window := conversation.NewWindowBuilder(
		conversation.CharCountEstimator{},
		cfg.Conversation.TokenBudget,
		cfg.Conversation.MinRecentTurns,
	)
	orchestrator := conversation.NewOrchestrator(store, generator, window, cfg.Conversation.RetrievalLimit, logger)

	// Insight cache
	insights := insight.NewCache(store, generator, insight.Config{
		RefreshAfter:    time.Duration(cfg.Insights.RefreshHours) * time.Hour,
		MoodWindowDays:  cfg.Insights.MoodWindowDays,
		ConvWindowDays:  cfg.Insights.ConvWindowDays,
		HistoryLimit:    cfg.Insights.HistoryLimit,
		MaxExcerpts:     cfg.Insights.MaxExcerpts,
		ExcerptMaxChars: cfg.Insights.ExcerptMaxChars,
		MaxNotes:        cfg.Insights.MaxNotes,
	}, logger)

	// Action proposal pipeline
	workflow := actions.NewWorkflow(store, logger)
	extractor := actions.NewGenerativeExtractor(generator, logger)
	suggester := actions.NewSuggester(store, generator, workflow, logger)

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, store, orchestrator, insights, workflow, extractor, suggester, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
