package config

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kuitang/inkpad/internal/assistant"
	"github.com/kuitang/inkpad/internal/ratelimit"
	"pgregory.net/rapid"
)

func validTestConfig() Config {
	return Config{
		DataDir:        "./data",
		MasterKey:      strings.Repeat("a", 64),
		StorageBackend: BackendSQLite,
		LLMAPIKey:      "sk-test",
		LLMModel:       "gpt-5-mini",
		LLMTimeout:     time.Minute,
		LLMRPS:         1,
		LLMBurst:       3,
		LLMMaxRetries:  2,
		ContextWindow:  4,
		AutosaveDelay:  500 * time.Millisecond,
		MCPRateRPS:     10,
		MCPRateBurst:   20,
	}
}

func TestValidate_MinimalConfigPasses(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_LocalModesNeedNoSecrets(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.Ephemeral = true
	cfg.NoLLM = true
	cfg.MasterKey = ""
	cfg.LLMAPIKey = ""
	cfg.StorageBackend = "bogus"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected local-mode config to pass, got: %v", err)
	}
}

func TestValidate_RequiresSecretsWhenNotLocal(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.MasterKey = ""
	cfg.LLMAPIKey = ""
	cfg.StorageBackend = BackendS3

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error without secrets")
	}
	msg := err.Error()
	for _, expected := range []string{
		"MASTER_KEY",
		"LLM_API_KEY",
		"BUCKET_NAME",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
	} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
	if got := len(Problems(err)); got != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", got, Problems(err))
	}
}

func TestValidate_RejectsUnknownEnums(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.StorageBackend = "dynamo"
	cfg.LLMAPI = "completions"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for unknown backend and api")
	}
	for _, token := range []string{"STORAGE_BACKEND", "LLM_API"} {
		if !strings.Contains(err.Error(), token) {
			t.Fatalf("expected error mentioning %q, got: %v", token, err)
		}
	}
}

func TestValidate_RejectsNegativeWindow(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.ContextWindow = -1
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "CONTEXT_WINDOW") {
		t.Fatalf("expected CONTEXT_WINDOW error, got: %v", err)
	}

	cfg.ContextWindow = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero window should be valid (whole thread), got: %v", err)
	}
}

func testValidate_RejectsBadMasterKeyLength(t *rapid.T) {
	cfg := validTestConfig()
	n := rapid.IntRange(1, 128).Filter(func(n int) bool { return n != 64 }).Draw(t, "master_key_len")
	cfg.MasterKey = strings.Repeat("a", n)

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for bad key length")
	}
	if !strings.Contains(err.Error(), "MASTER_KEY") {
		t.Fatalf("expected key-length error mentioning MASTER_KEY, got: %v", err)
	}
}

func TestValidate_RejectsBadMasterKeyLength(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsBadMasterKeyLength)
}

func FuzzValidate_RejectsBadMasterKeyLength(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testValidate_RejectsBadMasterKeyLength))
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("MASTER_KEY", strings.Repeat("b", 64))
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("BUCKET_NAME", "notes")
	t.Setenv("AWS_ACCESS_KEY_ID", "id")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_ENDPOINT_URL_S3", "http://localhost:9000")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/")
	t.Setenv("LLM_API", "chat")
	t.Setenv("CONTEXT_WINDOW", "10")
	t.Setenv("AUTOSAVE_DELAY", "250ms")
	t.Setenv("MCP_RATE_RPS", "0")
	for _, unset := range []string{"LLM_MODEL", "LLM_MAX_RETRIES", "LLM_BURST", "S3_PREFIX", "MCP_RATE_BURST"} {
		t.Setenv(unset, "")
	}

	cfg, err := Load(Flags{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageBackend != BackendS3 {
		t.Fatalf("backend = %q, want s3", cfg.StorageBackend)
	}
	if cfg.LLMAPIKey != "sk-fallback" {
		t.Fatalf("expected OPENAI_API_KEY fallback, got %q", cfg.LLMAPIKey)
	}
	if cfg.ContextWindow != 10 || cfg.AutosaveDelay != 250*time.Millisecond {
		t.Fatalf("window/delay = %d/%s", cfg.ContextWindow, cfg.AutosaveDelay)
	}

	s3cfg := cfg.S3Config()
	if s3cfg.BucketName != "notes" || s3cfg.Prefix != "inkpad" || !s3cfg.UsePathStyle {
		t.Fatalf("unexpected s3 config: %+v", s3cfg)
	}
	oa := cfg.OpenAIConfig()
	if oa.API != assistant.APIChat || oa.Model != "gpt-5-mini" || oa.MaxRetries != 2 {
		t.Fatalf("unexpected openai config: %+v", oa)
	}
	ac := cfg.AssistantConfig()
	if ac.Window != 10 || ac.Burst != assistant.DefaultConfig.Burst {
		t.Fatalf("unexpected assistant config: %+v", ac)
	}
	rl := cfg.RateLimitConfig()
	if rl.RPS != 0 || rl.Burst != ratelimit.DefaultConfig.Burst {
		t.Fatalf("unexpected rate limit config: %+v", rl)
	}
}

func TestValidate_RejectsBadRateLimits(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.MCPRateRPS = -1
	cfg.MCPRateBurst = 0
	problems := Problems(cfg.Validate())
	if len(problems) != 2 {
		t.Fatalf("expected 2 problems, got %v", problems)
	}
}

func TestLoad_EphemeralNoLLMWithEmptyEnvironment(t *testing.T) {
	t.Setenv("MASTER_KEY", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(Flags{Ephemeral: true, NoLLM: true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Ephemeral || !cfg.NoLLM {
		t.Fatalf("flags not applied: %+v", cfg.Flags)
	}
}

func TestPrintStartupSummary_RedactsSecrets(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	var buf bytes.Buffer
	cfg.PrintStartupSummary(&buf)
	out := buf.String()
	if strings.Contains(out, cfg.MasterKey) || strings.Contains(out, cfg.LLMAPIKey) {
		t.Fatalf("summary leaked a secret:\n%s", out)
	}
	if !strings.Contains(out, "[REDACTED]") || !strings.Contains(out, "SQLCipher") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestHelperParsers_DefaultOnBadInput(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-an-int")
	t.Setenv("CFG_TEST_FLOAT", "not-a-float")
	t.Setenv("CFG_TEST_DUR", "not-a-duration")
	if got := parseIntOrDefault("CFG_TEST_INT", 7); got != 7 {
		t.Fatalf("parseIntOrDefault fallback mismatch: got=%d want=7", got)
	}
	if got := parseFloat64OrDefault("CFG_TEST_FLOAT", 3.5); got != 3.5 {
		t.Fatalf("parseFloat64OrDefault fallback mismatch: got=%v want=3.5", got)
	}
	if got := parseDurationOrDefault("CFG_TEST_DUR", 2*time.Minute); got != 2*time.Minute {
		t.Fatalf("parseDurationOrDefault fallback mismatch: got=%v want=%v", got, 2*time.Minute)
	}
}

func TestGetEnvOrDefault_TrimsWhitespace(t *testing.T) {
	key := "CFG_TEST_STR_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Setenv(key, "   value   "); err != nil {
		t.Fatalf("Setenv failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	if got := getEnvOrDefault(key, "fallback"); got != "value" {
		t.Fatalf("getEnvOrDefault trim mismatch: got=%q want=%q", got, "value")
	}
}
