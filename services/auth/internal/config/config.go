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

// ConfigPath is the default config file location. CONFIG_PATH overrides it.
var ConfigPath = envOr("CONFIG_PATH", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	DatabaseURL                string   `yaml:"databaseURL"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	SessionTTL                 string   `yaml:"sessionTTL"`
	LogLevel                   string   `yaml:"logLevel"`
	JWTPrivateKeyPath          string   `yaml:"jwtPrivateKeyPath"`
	JWTPublicKeyPath           string   `yaml:"jwtPublicKeyPath"`
	JWTKeyID                   string   `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys        string   `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer                  string   `yaml:"jwtIssuer"`
	JWTAudience                string   `yaml:"jwtAudience"`
	JWTLeeway                  string   `yaml:"jwtLeeway"`
	OTPTTL                     string   `yaml:"otpTTL"`
	OTPStore                   string   `yaml:"otpStore"`
	SendGridAPIKey             string   `yaml:"sendgridAPIKey"`
	MailFrom                   string   `yaml:"mailFrom"`
	MailFromName               string   `yaml:"mailFromName"`
	TrustedProxies             []string `yaml:"trustedProxies"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	VerifyRateLimitPerMinute   int      `yaml:"verifyRateLimitPerMinute"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	PasswordRateLimitPerMinute int      `yaml:"passwordRateLimitPerMinute"`
}

// Load reads config from path (defaults to ConfigPath). A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
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
	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.RedisPassword, "REDIS_PASSWORD")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.SessionTTL, "AUTH_SESSION_TTL")
	overrideString(&cfg.JWTPrivateKeyPath, "JWT_PRIVATE_KEY_PATH")
	overrideString(&cfg.JWTPublicKeyPath, "JWT_PUBLIC_KEY_PATH")
	overrideString(&cfg.JWTKeyID, "JWT_KEY_ID")
	overrideString(&cfg.JWTVerifyPublicKeys, "JWT_VERIFY_PUBLIC_KEYS")
	overrideString(&cfg.JWTIssuer, "JWT_ISSUER")
	overrideString(&cfg.JWTAudience, "JWT_AUDIENCE")
	overrideString(&cfg.JWTLeeway, "JWT_LEEWAY")
	overrideString(&cfg.OTPTTL, "AUTH_OTP_TTL")
	overrideString(&cfg.OTPStore, "AUTH_OTP_STORE")
	overrideString(&cfg.SendGridAPIKey, "SENDGRID_API_KEY")
	overrideString(&cfg.MailFrom, "MAIL_FROM")
	overrideString(&cfg.MailFromName, "MAIL_FROM_NAME")
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = strings.Split(v, ",")
	}
	overrideInt(&cfg.RegisterRateLimitPerMinute, "AUTH_REGISTER_RATE_LIMIT_PER_MINUTE")
	overrideInt(&cfg.VerifyRateLimitPerMinute, "AUTH_VERIFY_RATE_LIMIT_PER_MINUTE")
	overrideInt(&cfg.LoginRateLimitPerMinute, "AUTH_LOGIN_RATE_LIMIT_PER_MINUTE")
	overrideInt(&cfg.PasswordRateLimitPerMinute, "AUTH_PASSWORD_RATE_LIMIT_PER_MINUTE")
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
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set JWT_PRIVATE_KEY_PATH)")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.OTPStore)) {
	case "", "redis", "memory":
	default:
		return fmt.Errorf("config: otpStore must be redis or memory, got %q", cfg.OTPStore)
	}
	if cfg.SendGridAPIKey != "" && strings.TrimSpace(cfg.MailFrom) == "" {
		return errors.New("config: mailFrom is required when sendgridAPIKey is set (set MAIL_FROM)")
	}
	if cfg.RegisterRateLimitPerMinute < 0 || cfg.VerifyRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.PasswordRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

// ParseSessionTTL parses optional session TTL duration string.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	return parseOptionalDuration("sessionTTL", ttlStr)
}

// ParseOTPTTL parses optional OTP lifetime duration string.
func ParseOTPTTL(ttlStr string) (time.Duration, error) {
	return parseOptionalDuration("otpTTL", ttlStr)
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	return parseOptionalDuration("jwtLeeway", leewayStr)
}

// ParseVerifyPublicKeys parses "kid=path,kid2=path2" into a map.
func ParseVerifyPublicKeys(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	pairs := strings.Split(raw, ",")
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kid, path, ok := strings.Cut(pair, "=")
		kid = strings.TrimSpace(kid)
		path = strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("invalid jwtVerifyPublicKeys entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func parseOptionalDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
