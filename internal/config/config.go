package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CAITLYN"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	EmbeddingProviderAPI    = "api"
	EmbeddingProviderOllama = "ollama"

	DefaultModel               = "llama3.1"
	DefaultMaxTokens           = 1024
	DefaultChatTimeoutMs       = 60000
	DefaultEmbeddingModel      = "nomic-embed-text"
	DefaultEmbeddingDimension  = 768
	DefaultEmbeddingTimeoutMs  = 10000
	DefaultGiphyBaseURL        = "https://api.giphy.com"
	DefaultGiphyTag            = "birthday"
	DefaultGiphyTimeoutMs      = 5000
	DefaultRecentCount         = 5
	DefaultSimilarCount        = 3
	DefaultSimilarityThreshold = 0.75
	DefaultRetentionDays       = 30
	DefaultRetentionCron       = "0 30 4 * * *"
	DefaultNotifyHour          = 10
	DefaultNotifyMinute        = 0
	DefaultBufSize             = 100
	DefaultLogLevel            = "info"
	DefaultSystemPrompt        = "You are Caitlyn, a friendly member of this Discord server. Keep replies short. Reply with NOTHING when no reply is needed."
)

type Config struct {
	Discord   DiscordConfig   `json:"discord" envconfig:"DISCORD"`
	Telegram  TelegramConfig  `json:"telegram" envconfig:"TELEGRAM"`
	Database  DatabaseConfig  `json:"database" envconfig:"DB"`
	Giphy     GiphyConfig     `json:"giphy" envconfig:"GIPHY"`
	AI        AIConfig        `json:"ai" envconfig:"AI"`
	Embedding EmbeddingConfig `json:"embedding" envconfig:"EMBEDDING"`
	Context   ContextConfig   `json:"context" envconfig:"CONTEXT"`
	Birthday  BirthdayConfig  `json:"birthday" envconfig:"BIRTHDAY"`
	Log       LogConfig       `json:"log" envconfig:"LOG"`
}

type DiscordConfig struct {
	Enabled          bool   `json:"enabled" envconfig:"ENABLED"`
	Token            string `json:"token" envconfig:"TOKEN"`
	AppID            string `json:"appId" envconfig:"APP_ID"`
	GuildID          string `json:"guildId" envconfig:"GUILD_ID"`
	GeneralChannelID string `json:"generalChannelId" envconfig:"GENERAL_CHANNEL_ID"`
}

type TelegramConfig struct {
	Enabled      bool     `json:"enabled" envconfig:"ENABLED"`
	Token        string   `json:"token" envconfig:"TOKEN"`
	AllowFrom    []string `json:"allowFrom" envconfig:"ALLOW_FROM"`
	Proxy        string   `json:"proxy,omitempty" envconfig:"PROXY"`
	NotifyChatID string   `json:"notifyChatId,omitempty" envconfig:"NOTIFY_CHAT_ID"`
}

type DatabaseConfig struct {
	Driver string `json:"driver" envconfig:"DRIVER"`
	Path   string `json:"path,omitempty" envconfig:"PATH"`
	DSN    string `json:"dsn,omitempty" envconfig:"DSN"`
}

type GiphyConfig struct {
	APIKey    string `json:"apiKey" envconfig:"API_KEY"`
	BaseURL   string `json:"baseUrl,omitempty" envconfig:"BASE_URL"`
	Tag       string `json:"tag,omitempty" envconfig:"TAG"`
	TimeoutMs int    `json:"timeoutMs,omitempty" envconfig:"TIMEOUT_MS"`
}

type AIConfig struct {
	Enabled      bool           `json:"enabled" envconfig:"ENABLED"`
	Provider     ProviderConfig `json:"provider" envconfig:"PROVIDER"`
	Model        string         `json:"model" envconfig:"MODEL"`
	MaxTokens    int            `json:"maxTokens" envconfig:"MAX_TOKENS"`
	SystemPrompt string         `json:"systemPrompt,omitempty" envconfig:"SYSTEM_PROMPT"`
	TimeoutMs    int            `json:"timeoutMs,omitempty" envconfig:"TIMEOUT_MS"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty" envconfig:"TYPE"` // "openai" (default) or "anthropic"
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	BaseURL string `json:"baseUrl,omitempty" envconfig:"BASE_URL"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider,omitempty" envconfig:"PROVIDER"`
	BaseURL   string `json:"baseUrl,omitempty" envconfig:"BASE_URL"`
	APIKey    string `json:"apiKey,omitempty" envconfig:"API_KEY"`
	Model     string `json:"model,omitempty" envconfig:"MODEL"`
	Dimension int    `json:"dimension,omitempty" envconfig:"DIMENSION"`
	TimeoutMs int    `json:"timeoutMs,omitempty" envconfig:"TIMEOUT_MS"`
}

type ContextConfig struct {
	RecentCount         int     `json:"recentCount" envconfig:"RECENT_COUNT"`
	SimilarCount        int     `json:"similarCount" envconfig:"SIMILAR_COUNT"`
	SimilarityThreshold float64 `json:"similarityThreshold" envconfig:"SIMILARITY_THRESHOLD"`
	RetentionDays       int     `json:"retentionDays" envconfig:"RETENTION_DAYS"`
	RetentionCron       string  `json:"retentionCron,omitempty" envconfig:"RETENTION_CRON"`
}

type BirthdayConfig struct {
	NotifyHour   int    `json:"notifyHour" envconfig:"NOTIFY_HOUR"`
	NotifyMinute int    `json:"notifyMinute" envconfig:"NOTIFY_MINUTE"`
	Timezone     string `json:"timezone,omitempty" envconfig:"TIMEZONE"`
}

type LogConfig struct {
	Level  string `json:"level" envconfig:"LEVEL"`
	Pretty bool   `json:"pretty" envconfig:"PRETTY"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join(ConfigDir(), "data", "caitlyn.db"),
		},
		Giphy: GiphyConfig{
			BaseURL:   DefaultGiphyBaseURL,
			Tag:       DefaultGiphyTag,
			TimeoutMs: DefaultGiphyTimeoutMs,
		},
		AI: AIConfig{
			Model:        DefaultModel,
			MaxTokens:    DefaultMaxTokens,
			SystemPrompt: DefaultSystemPrompt,
			TimeoutMs:    DefaultChatTimeoutMs,
		},
		Embedding: EmbeddingConfig{
			Provider:  EmbeddingProviderOllama,
			Model:     DefaultEmbeddingModel,
			Dimension: DefaultEmbeddingDimension,
			TimeoutMs: DefaultEmbeddingTimeoutMs,
		},
		Context: ContextConfig{
			RecentCount:         DefaultRecentCount,
			SimilarCount:        DefaultSimilarCount,
			SimilarityThreshold: DefaultSimilarityThreshold,
			RetentionDays:       DefaultRetentionDays,
			RetentionCron:       DefaultRetentionCron,
		},
		Birthday: BirthdayConfig{
			NotifyHour:   DefaultNotifyHour,
			NotifyMinute: DefaultNotifyMinute,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".caitlyn")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// LoadConfig reads the JSON config file (if any) and then applies CAITLYN_*
// environment overrides. Only variables that are present override the file.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if strings.TrimSpace(c.Database.Driver) == "" {
		c.Database.Driver = def.Database.Driver
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == DriverSQLite && strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Giphy.BaseURL == "" {
		c.Giphy.BaseURL = def.Giphy.BaseURL
	}
	if c.Giphy.Tag == "" {
		c.Giphy.Tag = def.Giphy.Tag
	}
	if c.Giphy.TimeoutMs <= 0 {
		c.Giphy.TimeoutMs = def.Giphy.TimeoutMs
	}
	if c.AI.Model == "" {
		c.AI.Model = def.AI.Model
	}
	if c.AI.MaxTokens <= 0 {
		c.AI.MaxTokens = def.AI.MaxTokens
	}
	if strings.TrimSpace(c.AI.SystemPrompt) == "" {
		c.AI.SystemPrompt = def.AI.SystemPrompt
	}
	if c.AI.TimeoutMs <= 0 {
		c.AI.TimeoutMs = def.AI.TimeoutMs
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = def.Embedding.Provider
	}
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	if c.Embedding.Model == "" {
		c.Embedding.Model = def.Embedding.Model
	}
	if c.Embedding.TimeoutMs <= 0 {
		c.Embedding.TimeoutMs = def.Embedding.TimeoutMs
	}
	if c.Context.RetentionCron == "" {
		c.Context.RetentionCron = def.Context.RetentionCron
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate rejects values that cannot produce a working process.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config: postgres driver requires a dsn")
		}
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Embedding.Provider {
	case EmbeddingProviderAPI, EmbeddingProviderOllama:
	default:
		return fmt.Errorf("config: unsupported embedding provider %q", c.Embedding.Provider)
	}
	if c.Birthday.NotifyHour < 0 || c.Birthday.NotifyHour > 23 {
		return fmt.Errorf("config: birthday notify hour %d out of range 0-23", c.Birthday.NotifyHour)
	}
	if c.Birthday.NotifyMinute < 0 || c.Birthday.NotifyMinute > 59 {
		return fmt.Errorf("config: birthday notify minute %d out of range 0-59", c.Birthday.NotifyMinute)
	}
	if c.Context.RecentCount < 0 || c.Context.SimilarCount < 0 {
		return fmt.Errorf("config: context counts must not be negative")
	}
	if c.Context.SimilarityThreshold < 0 || c.Context.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarity threshold %.2f out of range 0-1", c.Context.SimilarityThreshold)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("config: embedding dimension must not be negative")
	}
	return nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}
