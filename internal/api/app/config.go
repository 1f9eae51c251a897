package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aussiebroadwan/starter/internal/api/domain"
	"github.com/aussiebroadwan/starter/internal/api/identity"
	"github.com/aussiebroadwan/starter/pkg/cryptox"
	"github.com/ilyakaznacheev/cleanenv"
)

const EnvProd = "prod"

// Config is read from an optional YAML file (CONFIG_PATH) with environment
// variables layered on top.
type Config struct {
	ProjectName string `yaml:"project_name" env:"PROJECT_NAME" env-default:"starter-api"`
	Env         string `yaml:"env" env:"PROJECT_ENV" env-default:"local"` // local, staging, prod
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	Port        int    `yaml:"port" env:"PORT" env-default:"8000"`

	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period" env:"SHUTDOWN_GRACE_PERIOD" env-default:"10s"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval" env:"HOUSEKEEPING_INTERVAL" env-default:"1m"`

	// DatabaseURL selects the driver by scheme: sqlite://path or postgres://...
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-default:"sqlite://starter.db"`

	// RedisURL is optional. When set, rate limiting and the refresh denylist
	// are shared across replicas.
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`

	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`

	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type AuthConfig struct {
	// TokenSecret keys the token envelopes. Required in prod; elsewhere an
	// ephemeral one is generated at startup.
	TokenSecret   string `yaml:"token_secret" env:"AUTH_TOKEN_SECRET"`
	KeyDerivation string `yaml:"key_derivation" env:"AUTH_KEY_DERIVATION" env-default:"hkdf"`
	Issuer        string `yaml:"issuer" env:"AUTH_ISSUER" env-default:"starter-api"`

	AccessTTL  time.Duration `yaml:"access_ttl" env:"AUTH_ACCESS_TTL" env-default:"1h"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"AUTH_REFRESH_TTL" env-default:"168h"`

	RotateRefresh         bool `yaml:"rotate_refresh" env:"AUTH_ROTATE_REFRESH" env-default:"true"`
	RefreshProfileOnLogin bool `yaml:"refresh_profile_on_login" env:"AUTH_REFRESH_PROFILE_ON_LOGIN" env-default:"false"`

	IdentityTimeout time.Duration `yaml:"identity_timeout" env:"IDENTITY_TIMEOUT" env-default:"5s"`

	// Userinfo endpoint overrides, for staging stubs and tests.
	GoogleUserinfoURL   string `yaml:"google_userinfo_url" env:"IDENTITY_GOOGLE_URL"`
	GitHubUserinfoURL   string `yaml:"github_userinfo_url" env:"IDENTITY_GITHUB_URL"`
	FacebookUserinfoURL string `yaml:"facebook_userinfo_url" env:"IDENTITY_FACEBOOK_URL"`
}

// identityOptions builds the verifier options for this configuration.
func (c AuthConfig) identityOptions() []identity.Option {
	opts := []identity.Option{identity.WithTimeout(c.IdentityTimeout)}
	for provider, url := range map[domain.Provider]string{
		domain.ProviderGoogle:   c.GoogleUserinfoURL,
		domain.ProviderGitHub:   c.GitHubUserinfoURL,
		domain.ProviderFacebook: c.FacebookUserinfoURL,
	} {
		if url != "" {
			opts = append(opts, identity.WithEndpoint(provider, url))
		}
	}
	return opts
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests" env:"RATELIMIT_REQUESTS" env-default:"100"`
	Window   time.Duration `yaml:"window" env:"RATELIMIT_WINDOW" env-default:"60s"`
}

type TelemetryConfig struct {
	// OTLPEndpoint enables trace export when set (host:port, gRPC).
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

// LoadConfig reads CONFIG_PATH when set, then the environment.
func LoadConfig() (Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == EnvProd }

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Env {
	case "local", "staging", EnvProd:
	default:
		errs = append(errs, fmt.Errorf("PROJECT_ENV must be local, staging or prod, got %q", c.Env))
	}

	if c.IsProd() && c.Auth.TokenSecret == "" {
		errs = append(errs, errors.New("AUTH_TOKEN_SECRET is required in prod"))
	}

	switch cryptox.KeyDerivation(c.Auth.KeyDerivation) {
	case cryptox.DeriveHKDF, cryptox.DeriveLegacy:
	default:
		errs = append(errs, fmt.Errorf("AUTH_KEY_DERIVATION must be hkdf or legacy, got %q", c.Auth.KeyDerivation))
	}

	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.Auth.IdentityTimeout <= 0 {
		errs = append(errs, errors.New("IDENTITY_TIMEOUT must be positive"))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}

	return errors.Join(errs...)
}
