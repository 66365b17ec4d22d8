package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	Lipsync   LipsyncConfig
	Captions  CaptionsConfig
	SendGrid  SendGridConfig
	R2        R2Config
	Pipeline  PipelineConfig
	OTel      OTelConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	PublicURL string // externally reachable base for provider callbacks
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	JobsPerHour int
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

type LipsyncConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	WebhookSecret string
	Timeout       int // seconds
}

type CaptionsConfig struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
	Timeout       int // seconds
}

type SendGridConfig struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
	Timeout   int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PresignTTL      int // minutes
}

type PipelineConfig struct {
	AsyncSideEffects bool
	ChainMaxRetry    int
	NotifyMaxRetry   int
	NotifySubject    string
	Concurrency      int
}

type OTelConfig struct {
	Enabled     bool
	Endpoint    string
	Headers     string // comma-separated key=value pairs
	Insecure    bool
	SampleRatio float64
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("LIPSYNC_API_KEY")
	readSecret("LIPSYNC_WEBHOOK_SECRET")
	readSecret("CAPTIONS_API_KEY")
	readSecret("CAPTIONS_WEBHOOK_SECRET")
	readSecret("SENDGRID_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.public_url", "PUBLIC_URL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = viper.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("lipsync.api_key", "LIPSYNC_API_KEY")
	_ = viper.BindEnv("lipsync.base_url", "LIPSYNC_BASE_URL")
	_ = viper.BindEnv("lipsync.model", "LIPSYNC_MODEL")
	_ = viper.BindEnv("lipsync.webhook_secret", "LIPSYNC_WEBHOOK_SECRET")
	_ = viper.BindEnv("lipsync.timeout", "LIPSYNC_TIMEOUT")
	_ = viper.BindEnv("captions.api_key", "CAPTIONS_API_KEY")
	_ = viper.BindEnv("captions.base_url", "CAPTIONS_BASE_URL")
	_ = viper.BindEnv("captions.webhook_secret", "CAPTIONS_WEBHOOK_SECRET")
	_ = viper.BindEnv("captions.timeout", "CAPTIONS_TIMEOUT")
	_ = viper.BindEnv("sendgrid.api_key", "SENDGRID_API_KEY")
	_ = viper.BindEnv("sendgrid.base_url", "SENDGRID_BASE_URL")
	_ = viper.BindEnv("sendgrid.from_email", "SENDGRID_FROM_EMAIL")
	_ = viper.BindEnv("sendgrid.from_name", "SENDGRID_FROM_NAME")
	_ = viper.BindEnv("sendgrid.timeout", "SENDGRID_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.presign_ttl", "R2_PRESIGN_TTL")
	_ = viper.BindEnv("pipeline.async_side_effects", "PIPELINE_ASYNC_SIDE_EFFECTS")
	_ = viper.BindEnv("pipeline.chain_max_retry", "PIPELINE_CHAIN_MAX_RETRY")
	_ = viper.BindEnv("pipeline.notify_max_retry", "PIPELINE_NOTIFY_MAX_RETRY")
	_ = viper.BindEnv("pipeline.notify_subject", "PIPELINE_NOTIFY_SUBJECT")
	_ = viper.BindEnv("pipeline.concurrency", "PIPELINE_CONCURRENCY")
	_ = viper.BindEnv("otel.enabled", "OTEL_ENABLED")
	_ = viper.BindEnv("otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = viper.BindEnv("otel.headers", "OTEL_EXPORTER_OTLP_HEADERS")
	_ = viper.BindEnv("otel.insecure", "OTEL_EXPORTER_OTLP_INSECURE")
	_ = viper.BindEnv("otel.sample_ratio", "OTEL_SAMPLER_RATIO")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.public_url", "http://localhost:8000")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("ratelimit.jobs_per_hour", 20)
	viper.SetDefault("gateway.enabled", false)

	// Renderer defaults
	viper.SetDefault("lipsync.base_url", "https://api.sync.so")
	viper.SetDefault("lipsync.model", "lipsync-2")
	viper.SetDefault("lipsync.timeout", 60)
	viper.SetDefault("captions.base_url", "https://api.submagic.co")
	viper.SetDefault("captions.timeout", 60)

	// Notification defaults
	viper.SetDefault("sendgrid.base_url", "https://api.sendgrid.com")
	viper.SetDefault("sendgrid.from_name", "Make-Singer")
	viper.SetDefault("sendgrid.timeout", 30)

	viper.SetDefault("r2.presign_ttl", 360)

	// Pipeline defaults
	viper.SetDefault("pipeline.async_side_effects", true)
	viper.SetDefault("pipeline.chain_max_retry", 5)
	viper.SetDefault("pipeline.notify_max_retry", 3)
	viper.SetDefault("pipeline.notify_subject", "Your video is ready")
	viper.SetDefault("pipeline.concurrency", 10)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.sample_ratio", 0.1)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			PublicURL: strings.TrimRight(viper.GetString("server.public_url"), "/"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour: viper.GetInt("ratelimit.jobs_per_hour"),
		},
		Zitadel: ZitadelConfig{
			Domain:   viper.GetString("zitadel.domain"),
			ClientID: viper.GetString("zitadel.client_id"),
			Issuer:   viper.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Lipsync: LipsyncConfig{
			APIKey:        viper.GetString("lipsync.api_key"),
			BaseURL:       viper.GetString("lipsync.base_url"),
			Model:         viper.GetString("lipsync.model"),
			WebhookSecret: viper.GetString("lipsync.webhook_secret"),
			Timeout:       viper.GetInt("lipsync.timeout"),
		},
		Captions: CaptionsConfig{
			APIKey:        viper.GetString("captions.api_key"),
			BaseURL:       viper.GetString("captions.base_url"),
			WebhookSecret: viper.GetString("captions.webhook_secret"),
			Timeout:       viper.GetInt("captions.timeout"),
		},
		SendGrid: SendGridConfig{
			APIKey:    viper.GetString("sendgrid.api_key"),
			BaseURL:   viper.GetString("sendgrid.base_url"),
			FromEmail: viper.GetString("sendgrid.from_email"),
			FromName:  viper.GetString("sendgrid.from_name"),
			Timeout:   viper.GetInt("sendgrid.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PresignTTL:      viper.GetInt("r2.presign_ttl"),
		},
		Pipeline: PipelineConfig{
			AsyncSideEffects: viper.GetBool("pipeline.async_side_effects"),
			ChainMaxRetry:    viper.GetInt("pipeline.chain_max_retry"),
			NotifyMaxRetry:   viper.GetInt("pipeline.notify_max_retry"),
			NotifySubject:    viper.GetString("pipeline.notify_subject"),
			Concurrency:      viper.GetInt("pipeline.concurrency"),
		},
		OTel: OTelConfig{
			Enabled:     viper.GetBool("otel.enabled"),
			Endpoint:    viper.GetString("otel.endpoint"),
			Headers:     viper.GetString("otel.headers"),
			Insecure:    viper.GetBool("otel.insecure"),
			SampleRatio: viper.GetFloat64("otel.sample_ratio"),
		},
	}

	return cfg, nil
}
