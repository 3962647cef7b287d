package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout %v, got %v", defaultReadTimeout, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Errorf("expected default write timeout %v, got %v", defaultWriteTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Server.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("expected default shutdown timeout %v, got %v", defaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.OpenAI.Model != defaultOpenAIModel {
		t.Errorf("expected default model %q, got %q", defaultOpenAIModel, cfg.OpenAI.Model)
	}
	if cfg.OpenAI.Temperature != 0.2 {
		t.Errorf("expected default temperature 0.2, got %v", cfg.OpenAI.Temperature)
	}
	if cfg.OpenAI.MaxTokens != defaultOpenAIMaxTokens {
		t.Errorf("expected default max tokens %d, got %d", defaultOpenAIMaxTokens, cfg.OpenAI.MaxTokens)
	}
	if cfg.OpenAI.Timeout != defaultOpenAITimeout {
		t.Errorf("expected default OpenAI timeout %v, got %v", defaultOpenAITimeout, cfg.OpenAI.Timeout)
	}
	if cfg.Shopify.APIVersion != defaultShopifyAPIVersion {
		t.Errorf("expected default Shopify API version %q, got %q", defaultShopifyAPIVersion, cfg.Shopify.APIVersion)
	}
	if cfg.Shopify.RequestsPerSecond != defaultShopifyRPS || cfg.Shopify.Burst != defaultShopifyBurst {
		t.Errorf("unexpected Shopify rate limit %v/%d", cfg.Shopify.RequestsPerSecond, cfg.Shopify.Burst)
	}
	if cfg.Scrape.MaxBodyBytes != defaultScrapeMaxBodyBytes {
		t.Errorf("expected default body limit %d, got %d", defaultScrapeMaxBodyBytes, cfg.Scrape.MaxBodyBytes)
	}
	if cfg.Scrape.CacheSize != defaultScrapeCacheSize || cfg.Scrape.CacheTTL != defaultScrapeCacheTTL {
		t.Errorf("unexpected scrape cache %d/%v", cfg.Scrape.CacheSize, cfg.Scrape.CacheTTL)
	}
	if cfg.Database.URL != "" {
		t.Errorf("expected no database URL, got %q", cfg.Database.URL)
	}
}

func TestLoadPrefersPort(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Port != "7000" {
		t.Errorf("expected PORT to win, got %q", cfg.Server.Port)
	}
}

func TestLoadDomainSettings(t *testing.T) {
	clearConfigEnv(t)
	overrides := map[string]string{
		"OPENAI_API_KEY":              "sk-test",
		"OPENAI_MODEL":                "gpt-4o",
		"OPENAI_TEMPERATURE":          "0.5",
		"OPENAI_MAX_TOKENS":           "2000",
		"OPENAI_TIMEOUT_SECONDS":      "60",
		"SHOPIFY_SHOP_DOMAIN":         "https://Camera-Store.myshopify.com/",
		"SHOPIFY_ACCESS_TOKEN":        "shpat_test",
		"SHOPIFY_API_SECRET":          "secret",
		"SHOPIFY_REQUESTS_PER_SECOND": "4.5",
		"SCRAPE_CACHE_SIZE":           "0",
		"SCRAPE_CACHE_TTL_MINUTES":    "30",
		"DATABASE_URL":                "postgres://localhost/productbridge",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.OpenAI.APIKey != "sk-test" || cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("unexpected OpenAI config %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.Temperature != 0.5 || cfg.OpenAI.MaxTokens != 2000 || cfg.OpenAI.Timeout != time.Minute {
		t.Errorf("unexpected OpenAI tuning %+v", cfg.OpenAI)
	}
	if cfg.Shopify.ShopDomain != "camera-store.myshopify.com" {
		t.Errorf("expected normalized shop domain, got %q", cfg.Shopify.ShopDomain)
	}
	if cfg.Shopify.RequestsPerSecond != 4.5 {
		t.Errorf("expected 4.5 rps, got %v", cfg.Shopify.RequestsPerSecond)
	}
	if cfg.Scrape.CacheSize != 0 || cfg.Scrape.CacheTTL != 30*time.Minute {
		t.Errorf("unexpected scrape cache %d/%v", cfg.Scrape.CacheSize, cfg.Scrape.CacheTTL)
	}
	if cfg.Database.URL != overrides["DATABASE_URL"] {
		t.Errorf("unexpected database URL %q", cfg.Database.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() returned error: %v", err)
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "productbridge.yaml")
	content := "openai_model: gpt-4.1-mini\nserver_port: \"7070\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PRODUCTBRIDGE_CONFIG", path)
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from file, got %q", cfg.Server.Port)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("expected environment to win over file, got %q", cfg.OpenAI.Model)
	}
}

func TestValidateReportsMissingSettings(t *testing.T) {
	err := Config{}.Validate()
	if err == nil {
		t.Fatal("expected error for empty config")
	}
	for _, key := range []string{"OPENAI_API_KEY", "SHOPIFY_SHOP_DOMAIN", "SHOPIFY_ACCESS_TOKEN"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestNormalizeShopDomain(t *testing.T) {
	tests := map[string]string{
		"":                                    "",
		"camera-store":                        "camera-store.myshopify.com",
		"camera-store.myshopify.com":          "camera-store.myshopify.com",
		"https://camera-store.myshopify.com/": "camera-store.myshopify.com",
	}
	for input, expected := range tests {
		if got := normalizeShopDomain(input); got != expected {
			t.Errorf("normalizeShopDomain(%q) = %q, want %q", input, got, expected)
		}
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":                     "9090",
		"SERVER_READ_TIMEOUT_SECONDS":     "30",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "45",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "15",
		"LOG_LEVEL":                       "debug",
		"LOG_FORMAT":                      "text",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != overrides["SERVER_PORT"] {
		t.Errorf("expected overridden port %q, got %q", overrides["SERVER_PORT"], cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout %v, got %v", 30*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 45*time.Second {
		t.Errorf("expected write timeout %v, got %v", 45*time.Second, cfg.Server.WriteTimeout)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected shutdown timeout %v, got %v", 15*time.Second, cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.Logging.Format != overrides["LOG_FORMAT"] {
		t.Errorf("expected log format %q, got %q", overrides["LOG_FORMAT"], cfg.Logging.Format)
	}
}

func TestLoadPartialOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected overridden read timeout %v, got %v", 5*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Errorf("expected default write timeout %v, got %v", defaultWriteTimeout, cfg.Server.WriteTimeout)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS":     "-1",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "abc",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "3.5",
		"LOG_LEVEL":                       "verbose",
		"LOG_FORMAT":                      "xml",
		"OPENAI_TEMPERATURE":              "hot",
		"OPENAI_MAX_TOKENS":               "-5",
		"OPENAI_TIMEOUT_SECONDS":          "soon",
		"SHOPIFY_REQUESTS_PER_SECOND":     "0",
		"SHOPIFY_BURST":                   "0",
		"SCRAPE_MAX_BODY_BYTES":           "lots",
		"SCRAPE_CACHE_SIZE":               "-1",
		"SCRAPE_CACHE_TTL_MINUTES":        "1.5",
		"PRODUCTBRIDGE_CONFIG":            "/nonexistent/productbridge.yaml",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestParseSecondsRejectsInvalidInput(t *testing.T) {
	cases := []string{"-1", "abc"}

	for _, input := range cases {
		if _, err := parseSeconds(input); err == nil {
			t.Fatalf("expected error for input %q", input)
		}
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "5")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("SERVER_READ_TIMEOUT_SECONDS"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout after reset, got %v", cfg.Server.ReadTimeout)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"PRODUCTBRIDGE_CONFIG",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"OPENAI_TEMPERATURE",
		"OPENAI_MAX_TOKENS",
		"OPENAI_TIMEOUT_SECONDS",
		"SHOPIFY_SHOP_DOMAIN",
		"SHOPIFY_ACCESS_TOKEN",
		"SHOPIFY_API_VERSION",
		"SHOPIFY_API_KEY",
		"SHOPIFY_API_SECRET",
		"SHOPIFY_REQUESTS_PER_SECOND",
		"SHOPIFY_BURST",
		"SCRAPE_USER_AGENT",
		"SCRAPE_MAX_BODY_BYTES",
		"SCRAPE_CACHE_SIZE",
		"SCRAPE_CACHE_TTL_MINUTES",
		"DATABASE_URL",
		"INSTANCE_CONNECTION_NAME",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadCloudSQLSettings(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("INSTANCE_CONNECTION_NAME", "project:region:instance")
	t.Setenv("DB_USER", "bridge")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "productbridge")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	db := cfg.Database
	if db.URL != "" || db.InstanceConnectionName != "project:region:instance" || db.User != "bridge" || db.Password != "secret" || db.Name != "productbridge" {
		t.Errorf("unexpected database config: %+v", db)
	}
}
