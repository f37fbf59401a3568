package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment variables read by viper
const EnvPrefix = "GITRANKER"

// Config holds all configuration settings
type Config struct {
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	GitHub  GitHubConfig  `mapstructure:"github" yaml:"github"`
	Batch   BatchConfig   `mapstructure:"batch" yaml:"batch"`
	Ranking RankingConfig `mapstructure:"ranking" yaml:"ranking"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Jobs    JobsConfig    `mapstructure:"jobs" yaml:"jobs"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

type StorageConfig struct {
	Type        string `mapstructure:"type" yaml:"type"`     // "postgres", "sqlite"
	Driver      string `mapstructure:"driver" yaml:"driver"` // "pgx", "postgres"
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	LocalPath   string `mapstructure:"local_path" yaml:"local_path"`
}

type GitHubConfig struct {
	Tokens      []string      `mapstructure:"tokens" yaml:"tokens"`
	Threshold   int           `mapstructure:"threshold" yaml:"threshold"`
	GraphQLURL  string        `mapstructure:"graphql_url" yaml:"graphql_url"`
	RestURL     string        `mapstructure:"rest_url" yaml:"rest_url"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	UseKeyring  bool          `mapstructure:"use_keyring" yaml:"use_keyring"`
}

type BatchConfig struct {
	ChunkSize      int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	RetryLimit     int           `mapstructure:"retry_limit" yaml:"retry_limit"`
	SkipLimit      int           `mapstructure:"skip_limit" yaml:"skip_limit"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	ProgressStep   float64       `mapstructure:"progress_step" yaml:"progress_step"` // Percent
}

type RankingConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	PageSize int           `mapstructure:"page_size" yaml:"page_size"`
}

type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"` // Empty disables the cache
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type JobsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "auto", "json", "text"
	File   string `mapstructure:"file" yaml:"file"`
}

// HomeDir is ~/.gitranker
func HomeDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".gitranker")
}

// Default returns default configuration
func Default() *Config {
	home := HomeDir()
	return &Config{
		Storage: StorageConfig{
			Type:      "sqlite",
			Driver:    "pgx",
			LocalPath: filepath.Join(home, "gitranker.db"),
		},
		GitHub: GitHubConfig{
			Threshold:   100,
			GraphQLURL:  "https://api.github.com/graphql",
			RateLimit:   10, // 10 requests per second
			Timeout:     20 * time.Second,
			Concurrency: 5,
			UseKeyring:  true,
		},
		Batch: BatchConfig{
			ChunkSize:      100,
			RetryLimit:     3,
			SkipLimit:      100,
			BackoffInitial: 100 * time.Millisecond,
			BackoffMax:     30 * time.Second,
			ProgressStep:   10,
		},
		Ranking: RankingConfig{
			Debounce: 5 * time.Minute,
			PageSize: 20,
		},
		Cache: CacheConfig{
			TTL: 15 * time.Minute,
		},
		Jobs: JobsConfig{
			Path: filepath.Join(home, "jobs.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// setDefaults flattens cfg into viper keys so that AutomaticEnv can
// override nested values.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.postgres_dsn", cfg.Storage.PostgresDSN)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)

	v.SetDefault("github.tokens", cfg.GitHub.Tokens)
	v.SetDefault("github.threshold", cfg.GitHub.Threshold)
	v.SetDefault("github.graphql_url", cfg.GitHub.GraphQLURL)
	v.SetDefault("github.rest_url", cfg.GitHub.RestURL)
	v.SetDefault("github.rate_limit", cfg.GitHub.RateLimit)
	v.SetDefault("github.timeout", cfg.GitHub.Timeout)
	v.SetDefault("github.concurrency", cfg.GitHub.Concurrency)
	v.SetDefault("github.use_keyring", cfg.GitHub.UseKeyring)

	v.SetDefault("batch.chunk_size", cfg.Batch.ChunkSize)
	v.SetDefault("batch.retry_limit", cfg.Batch.RetryLimit)
	v.SetDefault("batch.skip_limit", cfg.Batch.SkipLimit)
	v.SetDefault("batch.backoff_initial", cfg.Batch.BackoffInitial)
	v.SetDefault("batch.backoff_max", cfg.Batch.BackoffMax)
	v.SetDefault("batch.progress_step", cfg.Batch.ProgressStep)

	v.SetDefault("ranking.debounce", cfg.Ranking.Debounce)
	v.SetDefault("ranking.page_size", cfg.Ranking.PageSize)

	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", cfg.Cache.RedisPassword)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)

	v.SetDefault("jobs.path", cfg.Jobs.Path)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	// GITRANKER_GITHUB_RATE_LIMIT -> github.rate_limit
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".gitranker")
		v.AddConfigPath(".")
		v.AddConfigPath(HomeDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)
	cfg.Jobs.Path = expandPath(cfg.Jobs.Path)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	if len(cfg.GitHub.Tokens) == 0 && cfg.GitHub.UseKeyring {
		km := NewKeyringManager(nil)
		if km.IsAvailable() {
			if tokens, err := km.GetGitHubTokens(); err == nil {
				cfg.GitHub.Tokens = tokens
			}
		}
	}

	return cfg, nil
}

// applyEnvOverrides applies the conventional unprefixed variables
func applyEnvOverrides(cfg *Config) {
	// GitHub configuration
	if tokens := GetString("GITHUB_TOKENS", os.Getenv("GITHUB_TOKEN")); tokens != "" {
		cfg.GitHub.Tokens = SplitList(tokens)
	}
	cfg.GitHub.RateLimit = GetFloat("GITHUB_RATE_LIMIT", cfg.GitHub.RateLimit)

	// Storage configuration
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Storage.Type = "postgres"
		cfg.Storage.PostgresDSN = dsn
	}
	cfg.Storage.Type = GetString("STORAGE_TYPE", cfg.Storage.Type)
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = expandPath(path)
	}

	// Cache configuration
	cfg.Cache.RedisAddr = GetString("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = GetString("REDIS_PASSWORD", cfg.Cache.RedisPassword)

	// Logging configuration
	cfg.Logging.Level = GetString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = GetString("LOG_FORMAT", cfg.Logging.Format)
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Masked returns a copy safe to print: tokens and secrets are masked.
func (c *Config) Masked() *Config {
	out := *c
	out.GitHub.Tokens = make([]string, len(c.GitHub.Tokens))
	for i, t := range c.GitHub.Tokens {
		out.GitHub.Tokens[i] = MaskSecret(t)
	}
	if c.Storage.PostgresDSN != "" {
		out.Storage.PostgresDSN = MaskSecret(c.Storage.PostgresDSN)
	}
	if c.Cache.RedisPassword != "" {
		out.Cache.RedisPassword = MaskSecret(c.Cache.RedisPassword)
	}
	return &out
}
