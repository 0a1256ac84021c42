package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like COMPLETION_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, ignored when absent
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Completion.APIKey == "" {
		if val := os.Getenv("COMPLETION_API_KEY"); val != "" {
			cfg.Completion.APIKey = val
		}
	}
	if cfg.API.APIKey == "" {
		if val := os.Getenv("API_KEY"); val != "" {
			cfg.API.APIKey = val
		}
	}
	if cfg.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Channels.SweepInterval == 0 {
		cfg.Channels.SweepInterval = 30000
	}
	if cfg.Channels.IdleTimeout == 0 {
		cfg.Channels.IdleTimeout = 300000
	}
	if cfg.Channels.SubscribeTimeout == 0 {
		cfg.Channels.SubscribeTimeout = 5000
	}

	if cfg.Presence.TypingTimeout == 0 {
		cfg.Presence.TypingTimeout = 3000
	}
	if cfg.Presence.ChordTimeout == 0 {
		cfg.Presence.ChordTimeout = 1500
	}
	if cfg.Presence.SuggestionDebounce == 0 {
		cfg.Presence.SuggestionDebounce = 1000
	}

	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = 60000
	}
	if cfg.Completion.MaxRetries == 0 {
		cfg.Completion.MaxRetries = 2
	}
	if cfg.Completion.MaxTokens == 0 {
		cfg.Completion.MaxTokens = 500
	}
	if cfg.Completion.Temperature == 0 {
		cfg.Completion.Temperature = 0.7
	}

	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 10000
	}

	if cfg.Pipeline.MaxProcessingTime == 0 {
		cfg.Pipeline.MaxProcessingTime = 10000
	}
	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = 0.6
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = ":9090"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}
	if cfg.Completion.BaseURL == "" {
		return fmt.Errorf("completion.base_url is required")
	}
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if cfg.Pipeline.TypoProbability < 0 || cfg.Pipeline.TypoProbability > 1 {
		return fmt.Errorf("pipeline.typo_probability must be in [0,1]")
	}
	return nil
}
