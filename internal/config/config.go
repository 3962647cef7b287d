package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	OpenAI   OpenAIConfig
	Shopify  ShopifyConfig
	Scrape   ScrapeConfig
	Database DatabaseConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// OpenAIConfig configures the extraction model.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// ShopifyConfig configures the Admin API client and session-token checks.
type ShopifyConfig struct {
	ShopDomain        string
	AccessToken       string
	APIVersion        string
	APIKey            string
	APISecret         string
	RequestsPerSecond float64
	Burst             int
}

// ScrapeConfig configures outbound page fetches and the result cache.
type ScrapeConfig struct {
	UserAgent    string
	MaxBodyBytes int64
	CacheSize    int
	CacheTTL     time.Duration
}

// DatabaseConfig configures the optional inference log store. URL wins;
// otherwise InstanceConnectionName selects a Cloud SQL unix socket.
type DatabaseConfig struct {
	URL                    string
	InstanceConnectionName string
	User                   string
	Password               string
	Name                   string
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 180 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultLogFormat = "json"

	defaultOpenAIModel       = "gpt-4o-mini"
	defaultOpenAITemperature = 0.2
	defaultOpenAIMaxTokens   = 4000
	defaultOpenAITimeout     = 120 * time.Second

	defaultShopifyAPIVersion = "2024-10"
	defaultShopifyRPS        = 2.0
	defaultShopifyBurst      = 4

	defaultScrapeMaxBodyBytes = 5 * 1024 * 1024
	defaultScrapeCacheSize    = 128
	defaultScrapeCacheTTL     = 15 * time.Minute
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. Malformed values are reported rather than ignored.
// When PRODUCTBRIDGE_CONFIG names a file, its keys (same names as the
// environment variables, lower case) fill in anything the environment leaves
// unset.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("productbridge_config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := v.GetString("port")
	if port == "" {
		port = v.GetString("server_port")
	}

	cfg := Config{
		Server: ServerConfig{
			Port: port,
		},
		Logging: LoggingConfig{
			Level: slog.LevelInfo,
		},
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("openai_api_key"),
			BaseURL: v.GetString("openai_base_url"),
			Model:   v.GetString("openai_model"),
		},
		Shopify: ShopifyConfig{
			ShopDomain:  normalizeShopDomain(v.GetString("shopify_shop_domain")),
			AccessToken: v.GetString("shopify_access_token"),
			APIVersion:  v.GetString("shopify_api_version"),
			APIKey:      v.GetString("shopify_api_key"),
			APISecret:   v.GetString("shopify_api_secret"),
		},
		Scrape: ScrapeConfig{
			UserAgent: v.GetString("scrape_user_agent"),
		},
		Database: DatabaseConfig{
			URL:                    v.GetString("database_url"),
			InstanceConnectionName: v.GetString("instance_connection_name"),
			User:                   v.GetString("db_user"),
			Password:               v.GetString("db_password"),
			Name:                   v.GetString("db_name"),
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = secondsValue(v, "SERVER_READ_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}
	if cfg.Server.WriteTimeout, err = secondsValue(v, "SERVER_WRITE_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}
	if cfg.Server.ShutdownTimeout, err = secondsValue(v, "SERVER_SHUTDOWN_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}
	if cfg.OpenAI.Timeout, err = secondsValue(v, "OPENAI_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}

	if raw := v.GetString("log_level"); raw != "" {
		level, err := parseLogLevel(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	switch format := v.GetString("log_format"); format {
	case "json", "text":
		cfg.Logging.Format = format
	default:
		return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
	}

	temperature, err := strconv.ParseFloat(v.GetString("openai_temperature"), 32)
	if err != nil || temperature < 0 || temperature > 2 {
		return Config{}, fmt.Errorf("invalid OPENAI_TEMPERATURE: must be a number between 0 and 2")
	}
	cfg.OpenAI.Temperature = float32(temperature)

	if cfg.OpenAI.MaxTokens, err = intValue(v, "OPENAI_MAX_TOKENS"); err != nil {
		return Config{}, err
	}

	rps, err := strconv.ParseFloat(v.GetString("shopify_requests_per_second"), 64)
	if err != nil || rps <= 0 {
		return Config{}, fmt.Errorf("invalid SHOPIFY_REQUESTS_PER_SECOND: must be a positive number")
	}
	cfg.Shopify.RequestsPerSecond = rps

	if cfg.Shopify.Burst, err = intValue(v, "SHOPIFY_BURST"); err != nil {
		return Config{}, err
	}
	if cfg.Shopify.Burst == 0 {
		return Config{}, errors.New("invalid SHOPIFY_BURST: must be at least 1")
	}

	maxBody, err := intValue(v, "SCRAPE_MAX_BODY_BYTES")
	if err != nil {
		return Config{}, err
	}
	if maxBody == 0 {
		return Config{}, errors.New("invalid SCRAPE_MAX_BODY_BYTES: must be at least 1")
	}
	cfg.Scrape.MaxBodyBytes = int64(maxBody)

	if cfg.Scrape.CacheSize, err = intValue(v, "SCRAPE_CACHE_SIZE"); err != nil {
		return Config{}, err
	}

	ttlMinutes, err := intValue(v, "SCRAPE_CACHE_TTL_MINUTES")
	if err != nil {
		return Config{}, err
	}
	cfg.Scrape.CacheTTL = time.Duration(ttlMinutes) * time.Minute

	return cfg, nil
}

// Validate reports settings required by the HTTP server.
func (c Config) Validate() error {
	var missing []string
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Shopify.ShopDomain == "" {
		missing = append(missing, "SHOPIFY_SHOP_DOMAIN")
	}
	if c.Shopify.AccessToken == "" {
		missing = append(missing, "SHOPIFY_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", defaultPort)
	v.SetDefault("server_read_timeout_seconds", strconv.Itoa(int(defaultReadTimeout/time.Second)))
	v.SetDefault("server_write_timeout_seconds", strconv.Itoa(int(defaultWriteTimeout/time.Second)))
	v.SetDefault("server_shutdown_timeout_seconds", strconv.Itoa(int(defaultShutdownTimeout/time.Second)))

	v.SetDefault("log_format", defaultLogFormat)

	v.SetDefault("openai_model", defaultOpenAIModel)
	v.SetDefault("openai_temperature", strconv.FormatFloat(defaultOpenAITemperature, 'f', -1, 64))
	v.SetDefault("openai_max_tokens", strconv.Itoa(defaultOpenAIMaxTokens))
	v.SetDefault("openai_timeout_seconds", strconv.Itoa(int(defaultOpenAITimeout/time.Second)))

	v.SetDefault("shopify_api_version", defaultShopifyAPIVersion)
	v.SetDefault("shopify_requests_per_second", strconv.FormatFloat(defaultShopifyRPS, 'f', -1, 64))
	v.SetDefault("shopify_burst", strconv.Itoa(defaultShopifyBurst))

	v.SetDefault("scrape_max_body_bytes", strconv.Itoa(defaultScrapeMaxBodyBytes))
	v.SetDefault("scrape_cache_size", strconv.Itoa(defaultScrapeCacheSize))
	v.SetDefault("scrape_cache_ttl_minutes", strconv.Itoa(int(defaultScrapeCacheTTL/time.Minute)))
}

func secondsValue(v *viper.Viper, key string) (time.Duration, error) {
	d, err := parseSeconds(v.GetString(strings.ToLower(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intValue(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(v.GetString(strings.ToLower(key)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

// normalizeShopDomain accepts "shop", "shop.myshopify.com" or a full URL.
func normalizeShopDomain(raw string) string {
	domain := strings.ToLower(strings.TrimSpace(raw))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")
	if domain != "" && !strings.Contains(domain, ".") {
		domain += ".myshopify.com"
	}
	return domain
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
