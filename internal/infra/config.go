package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации шлюза.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // запросов в секунду; 0 — без лимита
	RateBurst    int           `mapstructure:"rate_burst"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
// Пустой URL включает in-memory журнал (dev-режим).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis для kill-switch.
// Пустой Addr отключает kill-switch.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ExecutionConfig задает режим исполнения и ограничения реестра.
type ExecutionConfig struct {
	Mode           string   `mapstructure:"mode"`            // open | governed
	AllowedActions []string `mapstructure:"allowed_actions"` // пустой список — без ограничения
}

// ApprovalConfig описывает схему проверки артефактов одобрения.
type ApprovalConfig struct {
	Scheme         string        `mapstructure:"scheme"` // ed25519 | hmac
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	SharedSecret   string        `mapstructure:"shared_secret"`
	ExpectedTenant string        `mapstructure:"expected_tenant"`
	RequiredIssuer string        `mapstructure:"required_issuer"`
	MaxArtifactAge time.Duration `mapstructure:"max_artifact_age"`
	AuthorityURL   string        `mapstructure:"authority_url"`
	PublicKey      []byte
}

// AuthConfig содержит ключи RS256 для токенов вызывающих сторон.
// Пустой публичный ключ отключает аутентификацию на /execute.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для выдачи токенов
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`

	// Единственный оператор шлюза; bcrypt-хеш пароля лежит в конфиге,
	// таблицы пользователей у шлюза нет
	OperatorUser string `mapstructure:"operator_user"`
	OperatorHash string `mapstructure:"operator_hash"`

	PublicKey  []byte
	PrivateKey []byte
}

// AuditConfig настраивает асинхронный аудит-трейл.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Переменные окружения перекрывают файл:
	// EXECUTION_MODE=governed перекроет execution.mode
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
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

	// 6. Ключевой материал: из файла по пути или напрямую из ENV (Docker/K8s)
	cfg.Approval.PublicKey = loadKeyResource(cfg.Approval.PublicKeyPath, "APPROVAL_PUBLIC_KEY_DATA")
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 100.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("execution.mode", "open")
	v.SetDefault("approval.scheme", "ed25519")
	v.SetDefault("approval.max_artifact_age", 300*time.Second)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("logger.level", "info")
}

// loadKeyResource — универсальный хелпер для ключевого материала
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (PEM целиком)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
