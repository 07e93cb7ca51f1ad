package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxUploadCeiling is the hard upper bound for a single media upload.
const MaxUploadCeiling int64 = 1 << 30

// ConfigPath is the default config file location. CONFIG_PATH overrides it.
var ConfigPath = envOr("CONFIG_PATH", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                   string   `yaml:"port"`
	DatabaseURL            string   `yaml:"databaseURL"`
	LogLevel               string   `yaml:"logLevel"`
	RedisAddr              string   `yaml:"redisAddr"`
	RedisPassword          string   `yaml:"redisPassword"`
	AuthJWKSURL            string   `yaml:"authJwksURL"`
	JWTIssuer              string   `yaml:"jwtIssuer"`
	JWTAudience            string   `yaml:"jwtAudience"`
	JWTLeeway              string   `yaml:"jwtLeeway"`
	MinioEndpoint          string   `yaml:"minioEndpoint"`
	MinioAccessKey         string   `yaml:"minioAccessKey"`
	MinioSecretKey         string   `yaml:"minioSecretKey"`
	MinioBucket            string   `yaml:"minioBucket"`
	MinioUseSSL            bool     `yaml:"minioUseSSL"`
	MinioPublicBaseURL     string   `yaml:"minioPublicBaseURL"`
	MaxUploadBytes         int64    `yaml:"maxUploadBytes"`
	GeneratorProvider      string   `yaml:"generatorProvider"`
	GeneratorModel         string   `yaml:"generatorModel"`
	GeneratorAPIKey        string   `yaml:"generatorAPIKey"`
	GeneratorBaseURL       string   `yaml:"generatorBaseURL"`
	QuizRateLimitPerMinute int      `yaml:"quizRateLimitPerMinute"`
	TrustedProxies         []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to ConfigPath). A .env file in the
// working directory is loaded first when present.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.RedisPassword, "REDIS_PASSWORD")
	overrideString(&cfg.AuthJWKSURL, "AUTH_JWKS_URL")
	overrideString(&cfg.JWTIssuer, "JWT_ISSUER")
	overrideString(&cfg.JWTAudience, "JWT_AUDIENCE")
	overrideString(&cfg.JWTLeeway, "JWT_LEEWAY")
	overrideString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	overrideString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	overrideString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	overrideString(&cfg.MinioBucket, "MINIO_BUCKET")
	overrideString(&cfg.MinioPublicBaseURL, "MINIO_PUBLIC_BASE_URL")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		cfg.MinioUseSSL = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("LEARNING_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	overrideString(&cfg.GeneratorProvider, "GENERATOR_PROVIDER")
	overrideString(&cfg.GeneratorModel, "GENERATOR_MODEL")
	overrideString(&cfg.GeneratorAPIKey, "GEMINI_API_KEY")
	overrideString(&cfg.GeneratorAPIKey, "GENERATOR_API_KEY")
	overrideString(&cfg.GeneratorBaseURL, "GENERATOR_BASE_URL")
	if v := os.Getenv("LEARNING_QUIZ_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QuizRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = strings.Split(v, ",")
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = MaxUploadCeiling
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for token revocation and rate limits")
	}
	if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		return errors.New("config: authJwksURL is required (set AUTH_JWKS_URL)")
	}
	if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
		return errors.New("config: minioEndpoint and minioBucket are required")
	}
	if strings.TrimSpace(cfg.MinioPublicBaseURL) == "" {
		return errors.New("config: minioPublicBaseURL is required so stored media links do not expire (set MINIO_PUBLIC_BASE_URL)")
	}
	if cfg.MaxUploadBytes < 0 || cfg.MaxUploadBytes > MaxUploadCeiling {
		return fmt.Errorf("config: maxUploadBytes must be between 1 and %d", MaxUploadCeiling)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.GeneratorProvider)) {
	case "", "gemini":
		if strings.TrimSpace(cfg.GeneratorAPIKey) == "" {
			return errors.New("config: generatorAPIKey is required for gemini (set GEMINI_API_KEY)")
		}
	case "openai-compat":
		if strings.TrimSpace(cfg.GeneratorBaseURL) == "" {
			return errors.New("config: generatorBaseURL is required for openai-compat")
		}
	default:
		return fmt.Errorf("config: unknown generatorProvider %q", cfg.GeneratorProvider)
	}
	if cfg.QuizRateLimitPerMinute < 0 {
		return errors.New("config: quizRateLimitPerMinute must be >= 0")
	}
	return nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
