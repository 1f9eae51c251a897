package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	ProjectName string `yaml:"project_name" env:"PROJECT_NAME" env-default:"starter-worker"`
	Env         string `yaml:"env" env:"PROJECT_ENV" env-default:"local"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	Port        int    `yaml:"port" env:"PORT" env-default:"8001"`

	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period" env:"SHUTDOWN_GRACE_PERIOD" env-default:"30s"`

	Workers   int `yaml:"workers" env:"WORKER_CONCURRENCY" env-default:"4"`
	QueueSize int `yaml:"queue_size" env:"WORKER_QUEUE_SIZE" env-default:"100"`

	RetryAttempts int           `yaml:"retry_attempts" env:"WORKER_RETRY_ATTEMPTS" env-default:"3"`
	RetryMinWait  time.Duration `yaml:"retry_min_wait" env:"WORKER_RETRY_MIN_WAIT" env-default:"2s"`
	RetryMaxWait  time.Duration `yaml:"retry_max_wait" env:"WORKER_RETRY_MAX_WAIT" env-default:"10s"`
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

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if c.QueueSize < 1 {
		errs = append(errs, errors.New("WORKER_QUEUE_SIZE must be at least 1"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("WORKER_RETRY_ATTEMPTS must be at least 1"))
	}
	if c.RetryMinWait <= 0 || c.RetryMaxWait < c.RetryMinWait {
		errs = append(errs, errors.New("retry waits must be positive with max >= min"))
	}
	return errors.Join(errs...)
}
