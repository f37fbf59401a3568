package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextRun - batch jobs need storage and GitHub tokens
	ValidationContextRun ValidationContext = "run"
	// ValidationContextRegister - register and refresh need storage and GitHub tokens
	ValidationContextRegister ValidationContext = "register"
	// ValidationContextRead - leaderboard, jobs and failures only read storage
	ValidationContextRead ValidationContext = "read"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  ❌ %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠️  %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateStorage(result)
	switch ctx {
	case ValidationContextRun:
		c.validateGitHub(result, true)
		c.validateBatch(result)
		c.validateRanking(result)
		c.validateCache(result)
	case ValidationContextRegister:
		c.validateGitHub(result, true)
		c.validateRanking(result)
		c.validateCache(result)
	case ValidationContextRead:
		c.validateRanking(result)
		c.validateCache(result)
	case ValidationContextAll:
		c.validateGitHub(result, false)
		c.validateBatch(result)
		c.validateRanking(result)
		c.validateCache(result)
		c.validateLogging(result)
	}

	return result
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("storage.postgres_dsn (or DATABASE_URL) is required for postgres storage")
		}
		if c.Storage.Driver != "pgx" && c.Storage.Driver != "postgres" {
			result.AddError("storage.driver must be pgx or postgres, got %q", c.Storage.Driver)
		}
	case "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for sqlite storage")
		}
	default:
		result.AddError("storage.type must be postgres or sqlite, got %q", c.Storage.Type)
	}
}

func (c *Config) validateGitHub(result *ValidationResult, required bool) {
	if len(c.GitHub.Tokens) == 0 {
		if required {
			result.AddError("at least one GitHub token is required (GITHUB_TOKENS or `ranker token set`)")
		} else {
			result.AddWarning("no GitHub tokens configured")
		}
	} else if len(c.GitHub.Tokens) == 1 {
		result.AddWarning("a single GitHub token gives 5000 points per hour; add more to rotate")
	}

	if c.GitHub.Threshold < 0 {
		result.AddError("github.threshold must not be negative")
	}
	if c.GitHub.RateLimit <= 0 {
		result.AddError("github.rate_limit must be positive")
	}
	if c.GitHub.Concurrency <= 0 {
		result.AddError("github.concurrency must be positive")
	}
	if c.GitHub.Timeout <= 0 {
		result.AddError("github.timeout must be positive")
	}
	for name, raw := range map[string]string{"github.graphql_url": c.GitHub.GraphQLURL, "github.rest_url": c.GitHub.RestURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			result.AddError("%s is not a valid URL: %q", name, raw)
		}
	}
}

func (c *Config) validateBatch(result *ValidationResult) {
	b := c.Batch
	if b.ChunkSize <= 0 {
		result.AddError("batch.chunk_size must be positive")
	}
	if b.RetryLimit <= 0 {
		result.AddError("batch.retry_limit must be positive")
	}
	if b.SkipLimit < 0 {
		result.AddError("batch.skip_limit must not be negative")
	}
	if b.BackoffInitial <= 0 || b.BackoffMax < b.BackoffInitial {
		result.AddError("batch backoff must satisfy 0 < backoff_initial <= backoff_max")
	}
	if b.ProgressStep <= 0 || b.ProgressStep > 100 {
		result.AddError("batch.progress_step must be in (0, 100]")
	}
}

func (c *Config) validateRanking(result *ValidationResult) {
	if c.Ranking.Debounce < 0 {
		result.AddError("ranking.debounce must not be negative")
	}
	if c.Ranking.PageSize <= 0 {
		result.AddError("ranking.page_size must be positive")
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	if c.Cache.RedisAddr == "" {
		result.AddWarning("cache.redis_addr not set; ranking pages will not be cached")
		return
	}
	if c.Cache.TTL <= 0 {
		result.AddError("cache.ttl must be positive")
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "json", "text":
	default:
		result.AddError("logging.format must be auto, json or text, got %q", c.Logging.Format)
	}
}
