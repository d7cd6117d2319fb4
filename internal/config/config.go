package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const (
	envPrefix     = "SECCORE_"
	configFileEnv = "SECCORE_CONFIG_FILE"
)

type Config struct {
	Primary    Primary          `koanf:"primary"`
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Kafka      KafkaConfig      `koanf:"kafka"`
	Vault      VaultConfig      `koanf:"vault"`
	Fraud      FraudConfig      `koanf:"fraud"`
	Geo        GeoConfig        `koanf:"geo"`
	Retry      RetryConfig      `koanf:"retry"`
	ThreeDS    ThreeDSConfig    `koanf:"threeds"`
	Processors ProcessorsConfig `koanf:"processors"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Logger     LoggerConfig     `koanf:"logger"`
	Worker     WorkerConfig     `koanf:"worker"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type KafkaConfig struct {
	Enabled bool   `koanf:"enabled"`
	Brokers string `koanf:"brokers" validate:"required_with=Enabled"`
	Topic   string `koanf:"topic" validate:"required"`
}

// BrokerList splits the comma separated broker string.
func (c KafkaConfig) BrokerList() []string {
	return splitList(c.Brokers)
}

type VaultConfig struct {
	// FingerprintKey keys the HMAC used for card deduplication. Rotating it
	// breaks deduplication against previously stored cards.
	FingerprintKey string `koanf:"fingerprint_key" validate:"required,min=32"`
	// EncryptionKey is a hex encoded 32 byte AES key for billing addresses.
	EncryptionKey string `koanf:"encryption_key" validate:"required,len=64,hexadecimal"`
}

type FraudConfig struct {
	HighRiskCountries string        `koanf:"high_risk_countries"`
	Timeout           time.Duration `koanf:"timeout" validate:"required"`
}

// HighRiskCountryList returns the configured list, upper-cased.
func (c FraudConfig) HighRiskCountryList() []string {
	items := splitList(c.HighRiskCountries)
	for i := range items {
		items[i] = strings.ToUpper(items[i])
	}
	return items
}

type GeoConfig struct {
	BaseURL  string        `koanf:"base_url" validate:"required,url"`
	Timeout  time.Duration `koanf:"timeout" validate:"required"`
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"required"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxRetries int32         `koanf:"max_retries"`
}

type ThreeDSConfig struct {
	Timeout      time.Duration `koanf:"timeout" validate:"required"`
	AbandonAfter time.Duration `koanf:"abandon_after" validate:"required"`
	MerchantName string        `koanf:"merchant_name" validate:"required"`
	P12Path      string        `koanf:"p12_path"`
	P12Password  string        `koanf:"p12_password"`

	VisaURL       string `koanf:"visa_url" validate:"omitempty,url"`
	MastercardURL string `koanf:"mastercard_url" validate:"omitempty,url"`
	AmexURL       string `koanf:"amex_url" validate:"omitempty,url"`
	JCBURL        string `koanf:"jcb_url" validate:"omitempty,url"`
	DiscoverURL   string `koanf:"discover_url" validate:"omitempty,url"`
}

type ProcessorEndpoint struct {
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
	APIKey  string `koanf:"api_key"`
}

type ProcessorsConfig struct {
	Timeout  time.Duration     `koanf:"timeout" validate:"required"`
	Stripe   ProcessorEndpoint `koanf:"stripe"`
	PayPal   ProcessorEndpoint `koanf:"paypal"`
	Plaid    ProcessorEndpoint `koanf:"plaid"`
	Coinbase ProcessorEndpoint `koanf:"coinbase"`
}

type TracingConfig struct {
	Enabled        bool   `koanf:"enabled"`
	ServiceName    string `koanf:"service_name"`
	JaegerEndpoint string `koanf:"jaeger_endpoint" validate:"required_with=Enabled"`
}

type WorkerConfig struct {
	Interval  time.Duration `koanf:"interval" validate:"required"`
	BatchSize int           `koanf:"batch_size" validate:"required"`
}

func defaults() map[string]any {
	return map[string]any{
		"primary.env":                 "development",
		"server.port":                 "8090",
		"server.read_timeout":         "10s",
		"server.write_timeout":        "10s",
		"server.idle_timeout":         "60s",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     10,
		"database.max_idle_conns":     2,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"kafka.topic":                 "payment-security-events",
		"fraud.high_risk_countries":   "KP,IR,SY,CU,RU,VE,MM,AF",
		"fraud.timeout":               "2s",
		"geo.timeout":                 "2s",
		"geo.cache_ttl":               "24h",
		"retry.base_delay":            "200ms",
		"retry.max_retries":           3,
		"threeds.timeout":             "10s",
		"threeds.abandon_after":       "30m",
		"processors.timeout":          "15s",
		"tracing.service_name":        "payment-security-core",
		"logger.level":                "info",
		"logger.format":               "text",
		"worker.interval":             "1m",
		"worker.batch_size":           100,
	}
}

// LoadConfig layers defaults, an optional YAML file named by SECCORE_CONFIG_FILE
// and SECCORE_* environment variables, in that order.
func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		logger.Error("failed to load defaults", "error", err)
		return nil, err
	}

	if path := os.Getenv(configFileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			logger.Error("failed to load config file", "path", path, "error", err)
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		if s == configFileEnv {
			return ""
		}
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
