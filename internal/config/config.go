package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	Storage       StorageConfig
	Tracing       TracingConfig `mapstructure:"tracing"`
	Redis         RedisConfig
	AI            AIConfig
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Credits       CreditsConfig       `mapstructure:"credits"`
	Stripe        StripeConfig        `mapstructure:"stripe"`
	Mail          MailConfig          `mapstructure:"mail"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`

	// runtime flags, set from the command line
	ForceMigrate bool   `mapstructure:"-"`
	MigrateOnly  bool   `mapstructure:"-"`
	SeedFile     string `mapstructure:"-"`
	ConfigFile   string `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
	// FeedbackPerMinute limits LLM-backed submissions per client.
	FeedbackPerMinute int `mapstructure:"feedback_per_minute"`
}

// AIConfig selects and configures the completion backend. UseLocalModel is read
// once at startup.
type AIConfig struct {
	UseLocalModel     bool          `mapstructure:"use_local_model"`
	Timeout           time.Duration `mapstructure:"timeout_seconds"`
	FallbackFeedback  string        `mapstructure:"fallback_feedback"`
	SketchPlaceholder string        `mapstructure:"sketch_placeholder"`
	OpenAI            OpenAIConfig  `mapstructure:"openai"`
	Local             LocalAIConfig `mapstructure:"local"`
}

type OpenAIConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	VisionModel string  `mapstructure:"vision_model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type LocalAIConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	NumPredict  int     `mapstructure:"num_predict"`
}

type TranscriptionConfig struct {
	Provider       string `mapstructure:"provider"`
	Language       string `mapstructure:"language"`
	Model          string `mapstructure:"model"`
	Prompt         string `mapstructure:"prompt"`
	NormalizeAudio bool   `mapstructure:"normalize_audio"`
	MaxUploadMB    int64  `mapstructure:"max_upload_mb"`
	// GCPCredentials is a service account file path or inline JSON.
	GCPCredentials string `mapstructure:"gcp_credentials"`
}

type CreditPackage struct {
	Credits int    `mapstructure:"credits" json:"credits"`
	PriceID string `mapstructure:"price_id" json:"priceId"`
}

type CreditsConfig struct {
	SignupBonus int             `mapstructure:"signup_bonus"`
	CaseCost    int             `mapstructure:"case_cost"`
	Packages    []CreditPackage `mapstructure:"packages"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

type MailConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	SendgridAPIKey string `mapstructure:"sendgrid_api_key"`
	AppName        string `mapstructure:"app_name"`
	FromEmail      string `mapstructure:"from_email"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	// Path is used by the sqlite driver.
	Path string
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioSecure   bool   `mapstructure:"minio_secure"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CASEPREP")
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// AI
	v.BindEnv("ai.use_local_model", "USE_LOCAL_MODEL")
	v.BindEnv("ai.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("ai.openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("ai.local.base_url", "OLLAMA_BASE_URL")

	// Stripe
	v.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	v.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")

	// Mail
	v.BindEnv("mail.sendgrid_api_key", "SENDGRID_API_KEY")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Transcription
	v.BindEnv("transcription.provider", "TRANSCRIPTION_PROVIDER")
	v.BindEnv("transcription.gcp_credentials", "GOOGLE_APPLICATION_CREDENTIALS")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.AI.Timeout = cfg.AI.Timeout * time.Second
	cfg.Catalog.CacheTTL = cfg.Catalog.CacheTTL * time.Minute

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.fallback_feedback", "We could not generate feedback right now. Please try again.")
	v.SetDefault("ai.sketch_placeholder", "The sketch could not be analysed.")
	v.SetDefault("ai.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4")
	v.SetDefault("ai.openai.vision_model", "gpt-4o")
	v.SetDefault("ai.openai.temperature", 0.7)
	v.SetDefault("ai.openai.max_tokens", 1000)
	v.SetDefault("ai.local.base_url", "http://localhost:11434")
	v.SetDefault("ai.local.model", "phi3:latest")
	v.SetDefault("ai.local.temperature", 0.7)
	v.SetDefault("ai.local.num_predict", 1000)
	v.SetDefault("transcription.provider", "openai")
	v.SetDefault("transcription.language", "sv")
	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("transcription.max_upload_mb", 25)
	v.SetDefault("credits.signup_bonus", 3)
	v.SetDefault("credits.case_cost", 1)
	v.SetDefault("catalog.cache_ttl_minutes", 10)
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("rate_limit.feedback_per_minute", 20)
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Server.Mode == "release" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
		}
		if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("stripe webhook secret is required in release mode")
		}
	}
	if c.Credits.SignupBonus < 0 || c.Credits.CaseCost < 0 {
		return fmt.Errorf("credit amounts must not be negative")
	}
	for _, p := range c.Credits.Packages {
		if p.Credits <= 0 || p.PriceID == "" {
			return fmt.Errorf("invalid credit package %+v", p)
		}
	}
	return nil
}
