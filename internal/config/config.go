package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	ServerPort      string        `mapstructure:"SERVER_PORT"`
	StoreDriver     string        `mapstructure:"STORE_DRIVER"`
	MongoURI        string        `mapstructure:"MONGO_URI"`
	MongoDatabase   string        `mapstructure:"MONGO_DATABASE"`
	DBHost          string        `mapstructure:"DB_HOST"`
	DBPort          string        `mapstructure:"DB_PORT"`
	DBUser          string        `mapstructure:"DB_USER"`
	DBPassword      string        `mapstructure:"DB_PASSWORD"`
	DBName          string        `mapstructure:"DB_NAME"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	AllowedOrigins  []string      `mapstructure:"ALLOWED_ORIGINS"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT"`
	TypingTTL       time.Duration `mapstructure:"TYPING_TTL"`
	HistoryDefault  int           `mapstructure:"HISTORY_DEFAULT_LIMIT"`
	HistoryMax      int           `mapstructure:"HISTORY_MAX_LIMIT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVER_PORT":           "8080",
	"STORE_DRIVER":          StoreMongo,
	"MONGO_URI":             "mongodb://localhost:27017",
	"MONGO_DATABASE":        "pulseboard",
	"DB_HOST":               "localhost",
	"DB_PORT":               "5432",
	"DB_USER":               "pulse",
	"DB_PASSWORD":           "pulse_dev_password",
	"DB_NAME":               "pulse",
	"REDIS_URL":             "",
	"JWT_SECRET":            "dev-secret-change-me",
	"ALLOWED_ORIGINS":       "http://localhost:3000",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "json",
	"TYPING_TTL":            "2s",
	"HISTORY_DEFAULT_LIMIT": 50,
	"HISTORY_MAX_LIMIT":     100,
	"SHUTDOWN_TIMEOUT":      "10s",
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, is loaded first and never overrides real variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostgresDSN builds the connection string for pgx.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMongo, StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.HistoryDefault <= 0 || c.HistoryMax < c.HistoryDefault {
		return fmt.Errorf("invalid history limits %d/%d", c.HistoryDefault, c.HistoryMax)
	}
	return nil
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
