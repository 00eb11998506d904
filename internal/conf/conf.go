package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/usecase"
)

// History sources
const (
	HistorySourceFeishu     = "feishu"
	HistorySourceTranscript = "transcript"
)

// Config represents application configuration
type Config struct {
	Feishu       FeishuConfig
	Oracle       OracleConfig
	Coalescer    CoalescerConfig
	Cache        CacheConfig
	Conversation ConversationConfig
	Transcript   TranscriptConfig
	Log          LogConfig

	// BotName is how the assistant is addressed in chats and prompts
	BotName string

	// HistorySource selects where recent turns come from: feishu or transcript
	HistorySource string

	// HTTPAddr is the listen address for the inspection API and /metrics; empty disables it
	HTTPAddr string

	// Progressive runs the cheap checks before any model call on inbound messages
	Progressive bool

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// OracleConfig contains the OpenAI-compatible model configuration (optional)
type OracleConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerSecond float64
	Burst             int
}

// CoalescerConfig contains fragment coalescing configuration
type CoalescerConfig struct {
	SettleMS     int
	MaxFragments int
}

// CacheConfig contains analysis cache configuration
type CacheConfig struct {
	Capacity   int
	TTLSeconds int
}

// ConversationConfig contains conversation tracking configuration
type ConversationConfig struct {
	TimeoutSeconds int
}

// TranscriptConfig contains the local transcript store configuration
type TranscriptConfig struct {
	DBPath        string
	RetentionDays int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	transcriptPath := os.Getenv("TRANSCRIPT_DB_PATH")
	if transcriptPath == "" {
		homeDir, _ := os.UserHomeDir()
		transcriptPath = filepath.Join(homeDir, ".chat-intent-bridge", "transcript.db")
	}

	historySource := strings.ToLower(os.Getenv("HISTORY_SOURCE"))
	if historySource == "" {
		historySource = HistorySourceFeishu
	}

	prompts, err := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))
	if err != nil {
		return nil, err
	}

	coalescerDefaults := usecase.DefaultCoalescerConfig()
	cacheDefaults := usecase.DefaultCacheConfig()

	cfg := &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		Oracle: OracleConfig{
			APIKey:            os.Getenv("ORACLE_API_KEY"),
			BaseURL:           os.Getenv("ORACLE_BASE_URL"),
			Model:             os.Getenv("ORACLE_MODEL"),
			RequestsPerSecond: envFloat("ORACLE_RPS", 5),
			Burst:             envInt("ORACLE_BURST", 5),
		},
		Coalescer: CoalescerConfig{
			SettleMS:     envInt("COALESCE_SETTLE_MS", int(coalescerDefaults.SettleDelay/time.Millisecond)),
			MaxFragments: envInt("COALESCE_MAX_FRAGMENTS", coalescerDefaults.MaxFragments),
		},
		Cache: CacheConfig{
			Capacity:   envInt("CACHE_CAPACITY", cacheDefaults.Capacity),
			TTLSeconds: envInt("CACHE_TTL_SECONDS", int(cacheDefaults.TTL/time.Second)),
		},
		Conversation: ConversationConfig{
			TimeoutSeconds: envInt("CONVERSATION_TIMEOUT_SECONDS", int(usecase.DefaultConversationTimeout/time.Second)),
		},
		Transcript: TranscriptConfig{
			DBPath:        transcriptPath,
			RetentionDays: envInt("TRANSCRIPT_RETENTION_DAYS", 7),
		},
		Log: LogConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
		BotName:       os.Getenv("BOT_NAME"),
		HistorySource: historySource,
		HTTPAddr:      os.Getenv("HTTP_ADDR"),
		Progressive:   envBool("CLASSIFY_PROGRESSIVE", false),
		Prompts:       prompts,
	}
	return cfg, nil
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// ToCoalescerConfig converts to coalescer configuration
func (c *Config) ToCoalescerConfig() usecase.CoalescerConfig {
	return usecase.CoalescerConfig{
		SettleDelay:  time.Duration(c.Coalescer.SettleMS) * time.Millisecond,
		MaxFragments: c.Coalescer.MaxFragments,
	}
}

// ToCacheConfig converts to analysis cache configuration
func (c *Config) ToCacheConfig() usecase.CacheConfig {
	cfg := usecase.DefaultCacheConfig()
	cfg.Capacity = c.Cache.Capacity
	cfg.TTL = time.Duration(c.Cache.TTLSeconds) * time.Second
	return cfg
}

// ConversationTimeout returns the engagement timeout
func (c *Config) ConversationTimeout() time.Duration {
	return time.Duration(c.Conversation.TimeoutSeconds) * time.Second
}

// ToPromptConfig converts to classifier prompt configuration
func (c *Config) ToPromptConfig() usecase.PromptConfig {
	p := c.Prompts
	if p == nil {
		p = DefaultPromptsConfig()
	}
	return usecase.PromptConfig{
		Stage1SystemPrompt: p.Classifier.Stage1SystemPrompt,
		Stage2SystemPrompt: p.Classifier.Stage2SystemPrompt,
		HistoryMarker:      p.Classifier.HistoryMarker,
		CurrentMarker:      p.Classifier.CurrentMarker,
		RosterHeader:       p.Classifier.RosterHeader,
		SignalsHeader:      p.Classifier.SignalsHeader,
		BotName:            c.BotName,
		MaxHistoryTurns:    p.History.MaxTurns,
	}
}

// ToGroupContextConfig converts to group context configuration
func (c *Config) ToGroupContextConfig() usecase.GroupContextConfig {
	cfg := usecase.DefaultGroupContextConfig()
	cfg.SummaryTranscriptMax = 200
	if c.Prompts != nil {
		cfg.SummaryPrompt = c.Prompts.Summary.SystemPrompt
	}
	return cfg
}

// ToPrefilterConfig converts to pre-filter configuration
func (c *Config) ToPrefilterConfig() usecase.PrefilterConfig {
	cfg := usecase.DefaultPrefilterConfig()
	if c.BotName != "" {
		cfg.AssistantAliases = []string{c.BotName}
	}
	return cfg
}

// HistoryFetch returns how many turns to fetch per message
func (c *Config) HistoryFetch() int {
	if c.Prompts == nil {
		return DefaultPromptsConfig().History.Fetch
	}
	return c.Prompts.History.Fetch
}

// Validate validates the configuration needed by the serve command
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	return c.ValidateCore()
}

// ValidateCore validates settings shared by every command
func (c *Config) ValidateCore() error {
	switch c.HistorySource {
	case HistorySourceFeishu, HistorySourceTranscript:
	default:
		return &ConfigError{Field: "HISTORY_SOURCE", Message: "must be feishu or transcript"}
	}
	if c.Coalescer.SettleMS <= 0 {
		return &ConfigError{Field: "COALESCE_SETTLE_MS", Message: "must be positive"}
	}
	if c.Coalescer.MaxFragments <= 0 {
		return &ConfigError{Field: "COALESCE_MAX_FRAGMENTS", Message: "must be positive"}
	}
	if c.Cache.Capacity <= 0 || c.Cache.TTLSeconds <= 0 {
		return &ConfigError{Field: "CACHE_CAPACITY/CACHE_TTL_SECONDS", Message: "must be positive"}
	}
	if c.Conversation.TimeoutSeconds <= 0 {
		return &ConfigError{Field: "CONVERSATION_TIMEOUT_SECONDS", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
