package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port     string `mapstructure:"port"`
		Env      string `mapstructure:"env"`
		LogLevel string `mapstructure:"logLevel"`
	} `mapstructure:"app"`
	Database struct {
		DSN     string `mapstructure:"dsn"`
		Migrate bool   `mapstructure:"migrate"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers      []string `mapstructure:"brokers"`
		Driver       string   `mapstructure:"driver"`
		EnsureTopics bool     `mapstructure:"ensureTopics"`
	} `mapstructure:"kafka"`
	Solana struct {
		RPCURL         string `mapstructure:"rpcUrl"`
		MerchantWallet string `mapstructure:"merchantWallet"`
		Commitment     string `mapstructure:"commitment"`
	} `mapstructure:"solana"`
	Rates struct {
		URL        string        `mapstructure:"url"`
		CoinID     string        `mapstructure:"coinId"`
		VsCurrency string        `mapstructure:"vsCurrency"`
		TTL        time.Duration `mapstructure:"ttl"`
		Fallback   float64       `mapstructure:"fallback"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"rates"`
	Monitor struct {
		ReferenceInterval time.Duration `mapstructure:"referenceInterval"`
		ScanInterval      time.Duration `mapstructure:"scanInterval"`
		ErrorBackoff      time.Duration `mapstructure:"errorBackoff"`
		Timeout           time.Duration `mapstructure:"timeout"`
		ScanLimit         int           `mapstructure:"scanLimit"`
		ConfirmTimeout    time.Duration `mapstructure:"confirmTimeout"`
	} `mapstructure:"monitor"`
	Reconcile struct {
		MaxAttempts int           `mapstructure:"maxAttempts"`
		BackoffStep time.Duration `mapstructure:"backoffStep"`
	} `mapstructure:"reconcile"`
	GRPC struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"grpc"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.logLevel", "info")

	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.driver", "segmentio")
	v.SetDefault("kafka.ensureTopics", true)

	v.SetDefault("solana.rpcUrl", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.commitment", "confirmed")

	v.SetDefault("rates.url", "https://api.coingecko.com/api/v3/simple/price")
	v.SetDefault("rates.coinId", "solana")
	v.SetDefault("rates.vsCurrency", "eur")
	v.SetDefault("rates.ttl", 60*time.Second)
	v.SetDefault("rates.fallback", 180.0)
	v.SetDefault("rates.timeout", 10*time.Second)

	v.SetDefault("monitor.referenceInterval", 2*time.Second)
	v.SetDefault("monitor.scanInterval", 3*time.Second)
	v.SetDefault("monitor.errorBackoff", 5*time.Second)
	v.SetDefault("monitor.timeout", 5*time.Minute)
	v.SetDefault("monitor.scanLimit", 10)
	v.SetDefault("monitor.confirmTimeout", 60*time.Second)

	v.SetDefault("reconcile.maxAttempts", 3)
	v.SetDefault("reconcile.backoffStep", time.Second)

	v.SetDefault("grpc.port", "9090")
	v.SetDefault("metrics.enabled", true)
}

// LoadConfig загружает конфигурацию из config.yml в каталоге dir и переменных окружения.
// Файл .env подхватывается, если он есть; в production он не читается.
// Переменные окружения имеют вид SECTION_KEY, например SOLANA_MERCHANTWALLET.
func LoadConfig(dir string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Чтение переменных окружения

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate проверяет значения, без которых сервис не может принимать платежи.
func (c *Config) Validate() error {
	if c.Monitor.Timeout <= 0 {
		return errors.New("config: monitor.timeout must be positive")
	}
	if c.Monitor.ScanLimit <= 0 {
		return errors.New("config: monitor.scanLimit must be positive")
	}
	if c.Rates.Fallback <= 0 {
		return errors.New("config: rates.fallback must be positive")
	}
	if c.Reconcile.MaxAttempts < 1 {
		return errors.New("config: reconcile.maxAttempts must be at least 1")
	}
	return nil
}
