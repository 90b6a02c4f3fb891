package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"example.com/abtest/internal/storage"
)

type Config struct {
	AppName  string
	AppEnv   string
	LogLevel string
	Port     string

	StoreDriver string
	PostgresDSN string
	MongoURI    string
	MongoDBName string

	RedisURL           string
	AssignmentCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	QueueMaxSize int
	BatchMaxSize int
	BatchMaxWait time.Duration

	MaxBodyBytes          int64
	RateLimitReportPerMin int
	APIKeys               map[string]struct{}

	CatalogPath string

	CookieName   string
	CookieMaxAge time.Duration
	CookieSecure bool
}

var ErrMissingConnection = errors.New("missing persistence connection setting")

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "abtest-api")
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("APP_LOG_LEVEL", "INFO")
	v.SetDefault("PORT", "4000")
	v.SetDefault("STORE_DRIVER", storage.DriverPostgres)
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DB_NAME", "ABTest")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("ASSIGNMENT_CACHE_TTL_SECONDS", 86400)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "abtest.facts")
	v.SetDefault("DISPATCH_QUEUE_SIZE", 10_000)
	v.SetDefault("DISPATCH_BATCH_SIZE", 100)
	v.SetDefault("DISPATCH_BATCH_WAIT_MS", 200)
	v.SetDefault("MAX_BODY_BYTES", 65_536)
	v.SetDefault("RATE_LIMIT_REPORT_PER_MIN", 60)
	v.SetDefault("API_KEYS", "")
	v.SetDefault("CATALOG_PATH", "")
	v.SetDefault("COOKIE_NAME", "userId")
	v.SetDefault("COOKIE_MAX_AGE_DAYS", 365)
	v.SetDefault("COOKIE_SECURE", false)
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return FromViper(v)
}

// FromViper builds a Config and checks that the selected store driver has
// its connection setting.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName:               v.GetString("APP_NAME"),
		AppEnv:                v.GetString("APP_ENV"),
		LogLevel:              v.GetString("APP_LOG_LEVEL"),
		Port:                  v.GetString("PORT"),
		StoreDriver:           strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		PostgresDSN:           strings.TrimSpace(v.GetString("POSTGRES_DSN")),
		MongoURI:              strings.TrimSpace(v.GetString("MONGO_URI")),
		MongoDBName:           v.GetString("MONGO_DB_NAME"),
		RedisURL:              strings.TrimSpace(v.GetString("REDIS_URL")),
		AssignmentCacheTTL:    time.Duration(v.GetInt("ASSIGNMENT_CACHE_TTL_SECONDS")) * time.Second,
		KafkaBrokers:          splitCSV(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:            v.GetString("KAFKA_TOPIC"),
		QueueMaxSize:          v.GetInt("DISPATCH_QUEUE_SIZE"),
		BatchMaxSize:          v.GetInt("DISPATCH_BATCH_SIZE"),
		BatchMaxWait:          time.Duration(v.GetInt("DISPATCH_BATCH_WAIT_MS")) * time.Millisecond,
		MaxBodyBytes:          v.GetInt64("MAX_BODY_BYTES"),
		RateLimitReportPerMin: v.GetInt("RATE_LIMIT_REPORT_PER_MIN"),
		APIKeys:               parseKeys(v.GetString("API_KEYS")),
		CatalogPath:           strings.TrimSpace(v.GetString("CATALOG_PATH")),
		CookieName:            v.GetString("COOKIE_NAME"),
		CookieMaxAge:          time.Duration(v.GetInt("COOKIE_MAX_AGE_DAYS")) * 24 * time.Hour,
		CookieSecure:          v.GetBool("COOKIE_SECURE"),
	}

	switch cfg.StoreDriver {
	case storage.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return cfg, fmt.Errorf("%w: POSTGRES_DSN is required for driver %q", ErrMissingConnection, cfg.StoreDriver)
		}
	case storage.DriverMongo:
		if cfg.MongoURI == "" {
			return cfg, fmt.Errorf("%w: MONGO_URI is required for driver %q", ErrMissingConnection, cfg.StoreDriver)
		}
	case storage.DriverMemory:
	default:
		return cfg, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

func (c Config) Addr() string { return ":" + c.Port }

func parseKeys(csv string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, k := range splitCSV(csv) {
		m[k] = struct{}{}
	}
	return m
}

func splitCSV(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
