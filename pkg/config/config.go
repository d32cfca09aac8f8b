package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Database     DatabaseConfig     `mapstructure:"database"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Insights     InsightsConfig     `mapstructure:"insights"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type DatabaseConfig struct {
	// Backend selects the storage implementation: sqlite, postgres, or
	// memory.
	Backend string `mapstructure:"backend"`
	// Path is the SQLite database file (sqlite backend only).
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type ConversationConfig struct {
	// TokenBudget is the soft ceiling on the estimated size of one
	// generation window.
	TokenBudget int `mapstructure:"token_budget"`
	// MinRecentTurns is the floor of recent turns always kept in the
	// window, budget notwithstanding.
	MinRecentTurns int `mapstructure:"min_recent_turns"`
	// RetrievalLimit caps how many turns are read back from storage.
	RetrievalLimit int `mapstructure:"retrieval_limit"`
}

type InsightsConfig struct {
	RefreshHours    int `mapstructure:"refresh_hours"`
	MoodWindowDays  int `mapstructure:"mood_window_days"`
	ConvWindowDays  int `mapstructure:"conv_window_days"`
	HistoryLimit    int `mapstructure:"history_limit"`
	MaxExcerpts     int `mapstructure:"max_excerpts"`
	ExcerptMaxChars int `mapstructure:"excerpt_max_chars"`
	MaxNotes        int `mapstructure:"max_notes"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Backend:  "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.backend", "sqlite")
	v.SetDefault("database.path", "serene.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("conversation.token_budget", 180000)
	v.SetDefault("conversation.min_recent_turns", 10)
	v.SetDefault("conversation.retrieval_limit", 50)
	v.SetDefault("insights.refresh_hours", 24)
	v.SetDefault("insights.mood_window_days", 30)
	v.SetDefault("insights.conv_window_days", 30)
	v.SetDefault("insights.history_limit", 10)
	v.SetDefault("insights.max_excerpts", 5)
	v.SetDefault("insights.excerpt_max_chars", 200)
	v.SetDefault("insights.max_notes", 3)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	return &config, nil
}
