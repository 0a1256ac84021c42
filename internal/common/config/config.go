package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Channels   ChannelsConfig   `mapstructure:"channels"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	Completion CompletionConfig `mapstructure:"completion"`
	API        APIConfig        `mapstructure:"api"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ChannelsConfig controls channel registry lifecycle behavior.
type ChannelsConfig struct {
	SweepInterval    int `mapstructure:"sweep_interval"`    // milliseconds
	IdleTimeout      int `mapstructure:"idle_timeout"`      // milliseconds
	SubscribeTimeout int `mapstructure:"subscribe_timeout"` // milliseconds
}

// PresenceConfig controls typing/presence expiry windows. Chat typing and
// keyboard chord sequences are distinct timeout domains.
type PresenceConfig struct {
	TypingTimeout      int `mapstructure:"typing_timeout"`      // milliseconds
	ChordTimeout       int `mapstructure:"chord_timeout"`       // milliseconds
	SuggestionDebounce int `mapstructure:"suggestion_debounce"` // milliseconds
}

type CompletionConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// APIConfig points at the persistence/API boundary (message create/update,
// conversation assignment).
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// PipelineConfig holds organization-level defaults for the response pipeline.
// Per-invocation options override these.
type PipelineConfig struct {
	MaxProcessingTime   int     `mapstructure:"max_processing_time"` // milliseconds
	MaxTokensBypass     int     `mapstructure:"max_tokens_bypass"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	TypoProbability     float64 `mapstructure:"typo_probability"`
}

type MetricsConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
