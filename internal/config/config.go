// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл .yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Blacklist BlacklistConfig `yaml:"blacklist"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig — сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов и сессий.
// JWTSecret обязателен: без него процесс не стартует.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	// MaxTokenAge — абсолютный потолок возраста access-токена, независимый
	// от exp. Защита от рассинхронизации часов и ошибочно выпущенных
	// долгоживущих токенов.
	MaxTokenAge time.Duration `yaml:"max_token_age" env:"MAX_TOKEN_AGE" env-default:"24h"`
	SessionTTL  time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"12h"`
	Issuer      string        `yaml:"issuer"   env:"ISSUER" env-default:"lingua-news"`
	Audience    []string      `yaml:"audience" env:"AUDIENCE" env-default:"lingua-news-api"`
	// RevokeOnReuse — при повторном предъявлении уже ротированного
	// refresh-токена отзывать все refresh-токены пользователя и гасить
	// сессию, которой принадлежал токен.
	RevokeOnReuse bool `yaml:"revoke_on_reuse" env:"REVOKE_ON_REUSE" env-default:"false"`
}

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — настройки подключения к Redis (rate limiter).
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL" env-default:""`
}

// Бэкенды реестра отозванных токенов.
const (
	BlacklistBackendMemory   = "memory"
	BlacklistBackendPostgres = "postgres"
)

// BlacklistConfig выбирает реализацию реестра отозванных токенов.
// memory годится только для одиночного инстанса.
type BlacklistConfig struct {
	Backend string `yaml:"backend" env:"BLACKLIST_BACKEND" env-default:"postgres"`
}

// RateLimitConfig — бюджеты и окна двух независимых лимитеров.
type RateLimitConfig struct {
	SuccessLimit  int           `yaml:"success_limit" env:"RL_SUCCESS_LIMIT" env-default:"100"`
	SuccessWindow time.Duration `yaml:"success_window" env:"RL_SUCCESS_WINDOW" env-default:"1m"`
	FailureLimit  int           `yaml:"failure_limit" env:"RL_FAILURE_LIMIT" env-default:"5"`
	FailureWindow time.Duration `yaml:"failure_window" env:"RL_FAILURE_WINDOW" env-default:"15m"`
	FailureBlock  time.Duration `yaml:"failure_block" env:"RL_FAILURE_BLOCK" env-default:"1h"`
}

// CleanupConfig — независимые интервалы фоновой очистки.
type CleanupConfig struct {
	BlacklistInterval time.Duration `yaml:"blacklist_interval" env:"CLEANUP_BLACKLIST_INTERVAL" env-default:"15m"`
	RefreshInterval   time.Duration `yaml:"refresh_interval" env:"CLEANUP_REFRESH_INTERVAL" env-default:"30m"`
	SessionInterval   time.Duration `yaml:"session_interval" env:"CLEANUP_SESSION_INTERVAL" env-default:"1h"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
