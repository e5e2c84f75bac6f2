package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Окружения, влияющие на строгость CORS-политики
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config — корневая структура конфигурации шлюза.
type Config struct {
	Environment string       `mapstructure:"environment"`
	Server      ServerConfig `mapstructure:"server"`
	CORS        CORSConfig   `mapstructure:"cors"`
	Bridge      BridgeConfig `mapstructure:"bridge"`
	Cache       CacheConfig  `mapstructure:"cache"`
	Redis       RedisConfig  `mapstructure:"redis"`
	Audit       AuditConfig  `mapstructure:"audit"`
	Logger      LoggerConfig `mapstructure:"logger"`
	Limits      LimitsConfig `mapstructure:"limits"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CORSConfig — allowlist'ы политики. Wildcard "*" в Origins означает
// «любой синтаксически корректный origin», но без credentials.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// BridgeConfig — настройки вызова внешнего inference-сервиса.
type BridgeConfig struct {
	UpstreamURL string        `mapstructure:"upstream_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// Mock-режим: вместо реального бэкенда отвечает встроенная заглушка
	Mock bool `mapstructure:"mock"`
}

// CacheConfig — настройки дедупликационного кэша.
type CacheConfig struct {
	// Store: "memory" (per-instance, по умолчанию) или "redis" (shared, best-effort)
	Store string        `mapstructure:"store"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// RedisConfig описывает подключение к Redis (нужен только при cache.store=redis).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuditConfig — настройки асинхронного трейла запросов.
type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// DatabaseURL пустой — события идут только в лог (dev-режим)
	DatabaseURL string `mapstructure:"database_url"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LimitsConfig — защитные пределы ответа.
type LimitsConfig struct {
	MaxResponseBytes int `mapstructure:"max_response_bytes"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// Конструируется один раз в main и передается по ссылке — внутри обработчиков
// окружение повторно не читается.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: BRIDGE_TIMEOUT=2s перекроет bridge.timeout
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Fail-fast валидация: ConfigurationError фатальна на старте,
	// а не в момент обработки запроса
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Дефолт объявляется для каждого ключа: без него AutomaticEnv
	// не увидит ENV-переменную при Unmarshal
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-User-Id", "X-Request-Id"})
	v.SetDefault("bridge.upstream_url", "")
	v.SetDefault("bridge.timeout", 8000*time.Millisecond)
	v.SetDefault("bridge.mock", false)
	v.SetDefault("cache.store", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("audit.buffer_size", 10000)
	v.SetDefault("audit.flush_interval", 500*time.Millisecond)
	v.SetDefault("audit.database_url", "")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("limits.max_response_bytes", 10<<20) // 10 MiB
}

// Validate проверяет конфигурацию целиком до старта сервера.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		return errors.New("cors.allowed_origins must not be empty")
	}
	if len(c.CORS.AllowedMethods) == 0 {
		return errors.New("cors.allowed_methods must not be empty")
	}

	if !c.Bridge.Mock && c.Bridge.UpstreamURL == "" {
		return errors.New("bridge.upstream_url is required unless bridge.mock=true")
	}
	if c.Bridge.Timeout <= 0 {
		return errors.New("bridge.timeout must be positive")
	}

	switch c.Cache.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache.store %q (expected memory or redis)", c.Cache.Store)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}

	if c.Limits.MaxResponseBytes <= 0 {
		return errors.New("limits.max_response_bytes must be positive")
	}
	return nil
}
