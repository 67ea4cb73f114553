// Package config loads inkpad configuration from environment variables and
// CLI flag values, validates required fields, and provides defaults.
//
// CLI flags select which services run locally (--no-llm, --ephemeral).
// Environment variables provide secrets and service configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/inkpad/internal/assistant"
	"github.com/kuitang/inkpad/internal/autosave"
	"github.com/kuitang/inkpad/internal/conversation"
	"github.com/kuitang/inkpad/internal/logutil"
	"github.com/kuitang/inkpad/internal/ratelimit"
	"github.com/kuitang/inkpad/internal/s3client"
)

const (
	defaultDataDir   = "./data"
	defaultRegion    = "auto"
	defaultS3Prefix  = "inkpad"
	defaultLLMModel  = "gpt-5-mini"
	defaultMCPAddr   = ":8080"
	defaultRetries   = 2
	masterKeyHexSize = 64
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Flags are the values cobra parses. They are not read from the environment.
type Flags struct {
	NoLLM     bool // --no-llm: replies come from the local echo generator
	Ephemeral bool // --ephemeral: keep state in memory only
	Verbose   bool // --verbose: debug logging
}

// Config holds all application configuration.
type Config struct {
	Flags

	// Storage and encryption
	DataDir        string // INKPAD_DATA_DIR
	MasterKey      string // 64 hex characters (32 bytes)
	StorageBackend string // STORAGE_BACKEND: sqlite or s3

	// S3-compatible storage (used when StorageBackend is s3)
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	S3Prefix           string // S3_PREFIX

	// Language model
	LLMBaseURL    string // LLM_BASE_URL; empty means api.openai.com
	LLMAPIKey     string // LLM_API_KEY, falling back to OPENAI_API_KEY
	LLMModel      string
	LLMAPI        string // LLM_API: responses, chat, or empty for automatic
	LLMTimeout    time.Duration
	LLMRPS        float64
	LLMBurst      int
	LLMMaxRetries int

	// Conversation and editor
	ContextWindow int
	AutosaveDelay time.Duration

	// MCP over HTTP
	MCPListenAddr string  // MCP_LISTEN_ADDR
	MCPRateRPS    float64 // MCP_RATE_RPS; 0 disables limiting
	MCPRateBurst  int     // MCP_RATE_BURST
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads configuration from the environment, applies flag values, and
// validates the result.
func Load(flags Flags) (*Config, error) {
	cfg := &Config{Flags: flags}

	// Storage and encryption
	cfg.DataDir = getEnvOrDefault("INKPAD_DATA_DIR", defaultDataDir)
	cfg.MasterKey = strings.TrimSpace(os.Getenv("MASTER_KEY"))
	cfg.StorageBackend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", BackendSQLite))

	// S3-compatible storage
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))
	cfg.S3Prefix = getEnvOrDefault("S3_PREFIX", defaultS3Prefix)

	// Language model
	cfg.LLMBaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	cfg.LLMAPIKey = getEnvOrDefault("LLM_API_KEY", strings.TrimSpace(os.Getenv("OPENAI_API_KEY")))
	cfg.LLMModel = getEnvOrDefault("LLM_MODEL", defaultLLMModel)
	cfg.LLMAPI = strings.ToLower(strings.TrimSpace(os.Getenv("LLM_API")))
	cfg.LLMTimeout = parseDurationOrDefault("LLM_TIMEOUT", assistant.DefaultConfig.Timeout)
	cfg.LLMRPS = parseFloat64OrDefault("LLM_RPS", assistant.DefaultConfig.RPS)
	cfg.LLMBurst = parseIntOrDefault("LLM_BURST", assistant.DefaultConfig.Burst)
	cfg.LLMMaxRetries = parseIntOrDefault("LLM_MAX_RETRIES", defaultRetries)

	// Conversation and editor
	cfg.ContextWindow = parseIntOrDefault("CONTEXT_WINDOW", conversation.DefaultWindow)
	cfg.AutosaveDelay = parseDurationOrDefault("AUTOSAVE_DELAY", autosave.DefaultDelay)

	cfg.MCPListenAddr = getEnvOrDefault("MCP_LISTEN_ADDR", defaultMCPAddr)
	cfg.MCPRateRPS = parseFloat64OrDefault("MCP_RATE_RPS", ratelimit.DefaultConfig.RPS)
	cfg.MCPRateBurst = parseIntOrDefault("MCP_RATE_BURST", ratelimit.DefaultConfig.Burst)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// Services that run locally (--ephemeral, --no-llm) need no secrets.
func (c *Config) Validate() error {
	var errs []string

	// MasterKey: required for anything that touches disk or a bucket
	if !c.Ephemeral {
		if c.MasterKey == "" {
			errs = append(errs, "MASTER_KEY is required (generate with: openssl rand -hex 32, or use --ephemeral)")
		} else if len(c.MasterKey) != masterKeyHexSize {
			errs = append(errs, "MASTER_KEY must be 64 hex characters (32 bytes)")
		}

		switch c.StorageBackend {
		case BackendSQLite:
			if c.DataDir == "" {
				errs = append(errs, "INKPAD_DATA_DIR must not be empty")
			}
		case BackendS3:
			if c.AWSBucketName == "" {
				errs = append(errs, "BUCKET_NAME is required when STORAGE_BACKEND=s3")
			}
			if c.AWSAccessKeyID == "" {
				errs = append(errs, "AWS_ACCESS_KEY_ID is required when STORAGE_BACKEND=s3")
			}
			if c.AWSSecretAccessKey == "" {
				errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when STORAGE_BACKEND=s3")
			}
		default:
			errs = append(errs, fmt.Sprintf("STORAGE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendS3, c.StorageBackend))
		}
	}

	// LLM: require a key unless --no-llm
	if !c.NoLLM {
		if c.LLMAPIKey == "" {
			errs = append(errs, "LLM_API_KEY is required (set env var or use --no-llm)")
		}
		if c.LLMModel == "" {
			errs = append(errs, "LLM_MODEL must not be empty")
		}
		switch assistant.API(c.LLMAPI) {
		case "", assistant.APIResponses, assistant.APIChat:
		default:
			errs = append(errs, fmt.Sprintf("LLM_API must be %q or %q, got %q", assistant.APIResponses, assistant.APIChat, c.LLMAPI))
		}
	}

	if c.LLMTimeout < 0 {
		errs = append(errs, "LLM_TIMEOUT must not be negative")
	}
	if c.LLMBurst <= 0 {
		errs = append(errs, "LLM_BURST must be positive")
	}
	if c.LLMMaxRetries < 0 {
		errs = append(errs, "LLM_MAX_RETRIES must not be negative")
	}
	if c.ContextWindow < 0 {
		errs = append(errs, "CONTEXT_WINDOW must not be negative (0 sends the whole thread)")
	}
	if c.AutosaveDelay <= 0 {
		errs = append(errs, "AUTOSAVE_DELAY must be positive")
	}
	if c.MCPRateRPS < 0 {
		errs = append(errs, "MCP_RATE_RPS must not be negative")
	}
	if c.MCPRateBurst <= 0 {
		errs = append(errs, "MCP_RATE_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// AssistantConfig returns the orchestrator tuning.
func (c *Config) AssistantConfig() assistant.Config {
	return assistant.Config{
		Window:  c.ContextWindow,
		RPS:     c.LLMRPS,
		Burst:   c.LLMBurst,
		Timeout: c.LLMTimeout,
	}
}

// OpenAIConfig returns the generator settings.
func (c *Config) OpenAIConfig() assistant.OpenAIConfig {
	return assistant.OpenAIConfig{
		APIKey:     c.LLMAPIKey,
		BaseURL:    c.LLMBaseURL,
		Model:      c.LLMModel,
		API:        assistant.API(c.LLMAPI),
		MaxRetries: c.LLMMaxRetries,
	}
}

// S3Config returns the bucket client settings. A custom endpoint implies
// path-style addressing, which MinIO and similar servers need.
func (c *Config) S3Config() s3client.Config {
	return s3client.Config{
		Endpoint:        c.AWSEndpointS3,
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		BucketName:      c.AWSBucketName,
		Prefix:          c.S3Prefix,
		UsePathStyle:    c.AWSEndpointS3 != "",
	}
}

// RateLimitConfig returns the per-client limits for the MCP HTTP endpoint.
func (c *Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		RPS:             c.MCPRateRPS,
		Burst:           c.MCPRateBurst,
		CleanupInterval: ratelimit.DefaultConfig.CleanupInterval,
	}
}

// PrintStartupSummary writes a human-readable summary of the configuration.
// Secrets are redacted.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "inkpad starting...")

	switch {
	case c.Ephemeral:
		fmt.Fprintln(w, "  Storage: In-memory (--ephemeral)")
	case c.StorageBackend == BackendS3:
		fmt.Fprintf(w, "  Storage: S3 (bucket: %s, prefix: %s, endpoint: %s)\n", c.AWSBucketName, c.S3Prefix, c.AWSEndpointS3)
	default:
		fmt.Fprintf(w, "  Storage: SQLCipher (dir: %s)\n", c.DataDir)
	}
	if !c.Ephemeral {
		fmt.Fprintf(w, "  Master:  %s\n", logutil.RedactValue("MASTER_KEY", c.MasterKey))
	}

	if c.NoLLM {
		fmt.Fprintln(w, "  LLM:     Echo (--no-llm)")
	} else {
		base := c.LLMBaseURL
		if base == "" {
			base = "default"
		}
		fmt.Fprintf(w, "  LLM:     %s (base: %s, key: %s)\n", c.LLMModel, base, logutil.RedactValue("LLM_API_KEY", c.LLMAPIKey))
	}
	fmt.Fprintf(w, "  Context: %d messages, autosave %s\n", c.ContextWindow, c.AutosaveDelay)
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Problems returns the individual validation messages of err, or nil when err
// is not a ValidationError.
func Problems(err error) []string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Errors
	}
	return nil
}
