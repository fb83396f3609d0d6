package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// Presence tuning. Defaults cover a page refresh (short), a laptop
	// sleep cycle (long) and a burst of join/leave churn (debounce).
	DebounceWindow       time.Duration `mapstructure:"debounce_window"`
	ResumeShortWindow    time.Duration `mapstructure:"resume_short_window"`
	ResumeLongWindow     time.Duration `mapstructure:"resume_long_window"`
	DepartureGrace       time.Duration `mapstructure:"departure_grace"`
	PersistCooldown      time.Duration `mapstructure:"persist_cooldown"`
	AdmissionRetryWindow time.Duration `mapstructure:"admission_retry_window"`

	Redis RedisConfig `mapstructure:"redis"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("debounce_window", "50ms")
	v.SetDefault("resume_short_window", "3s")
	v.SetDefault("resume_long_window", "2h")
	v.SetDefault("departure_grace", "10s")
	v.SetDefault("persist_cooldown", "10s")
	v.SetDefault("admission_retry_window", "15s")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d\n", cfg.Mode, cfg.Port)
	return &cfg, nil
}
