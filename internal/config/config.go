package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"log"
)

type Config struct {
	AppEnv           string        `env:"APP_ENV,notEmpty"`
	APIAddr          string        `env:"API_ADDR,notEmpty"`
	PostgresDSN      string        `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr        string        `env:"REDIS_ADDR,notEmpty"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RetryBackoff     time.Duration `env:"RETRY_BACKOFF" envDefault:"30s"`
	MaxDrainJobs     int           `env:"MAX_DRAIN_JOBS" envDefault:"1000"`
	StuckThreshold   time.Duration `env:"STUCK_THRESHOLD" envDefault:"10m"`
	SMSTimeout       time.Duration `env:"SMS_TIMEOUT" envDefault:"15s"`
	SettingsCacheTTL time.Duration `env:"SETTINGS_CACHE_TTL" envDefault:"5m"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}
