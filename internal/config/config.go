package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	Store struct {
		Driver     string // memory | sql | dynamo
		MaxRetries int
	}

	DB struct {
		Driver   string // mysql | sqlite
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Dynamo struct {
		Region      string
		Endpoint    string
		TablePrefix string
	}

	Redis struct {
		Addr      string
		Password  string
		DB        int
		EventsKey string
		EventsCap int64
	}

	S3 struct {
		Bucket    string
		Region    string
		URLExpiry time.Duration
	}

	HTTP struct {
		Host           string
		Port           string
		AllowedOrigins []string
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
	}

	GRPC struct {
		Host string
		Port string
	}

	RateLimit struct {
		RPS   int
		Burst int
	}

	Matching struct {
		Cost            int64
		SignupBonus     int64
		WaitTTL         time.Duration
		AutoProcessCron string
	}
}

func New() *Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "matchmaker")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Store
	cfg.Store.Driver = getEnvDefault("STORE_DRIVER", "sql")
	cfg.Store.MaxRetries = getEnvInt("STORE_MAX_RETRIES", 5)

	// Database
	cfg.DB.Driver = getEnvDefault("DB_DRIVER", "mysql")
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.Driver == "sqlite" {
		cfg.DB.DSN = getEnvDefault("SQLITE_DSN", "file:matchmaker.db?cache=shared")
	}
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "matchmaker")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// DynamoDB
	cfg.Dynamo.Region = getEnvDefault("AWS_REGION", "ap-northeast-2")
	cfg.Dynamo.Endpoint = os.Getenv("DYNAMO_ENDPOINT")
	cfg.Dynamo.TablePrefix = getEnvDefault("DYNAMO_TABLE_PREFIX", "")

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.EventsKey = getEnvDefault("REDIS_EVENTS_KEY", "matching:events")
	cfg.Redis.EventsCap = int64(getEnvInt("REDIS_EVENTS_CAP", 10000))

	// S3 (photo URLs)
	cfg.S3.Bucket = os.Getenv("PHOTO_BUCKET")
	cfg.S3.Region = getEnvDefault("PHOTO_BUCKET_REGION", cfg.Dynamo.Region)
	cfg.S3.URLExpiry = getEnvDuration("PHOTO_URL_EXPIRY", 15*time.Minute)

	// HTTP
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "0.0.0.0")
	cfg.HTTP.Port = getEnvDefault("PORT", "8080")
	cfg.HTTP.AllowedOrigins = strings.Split(getEnvDefault("CORS_ALLOWED_ORIGINS", "*"), ",")
	cfg.HTTP.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTP.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second)

	// gRPC (health + reflection only)
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	cfg.RateLimit.RPS = getEnvInt("RATE_LIMIT_RPS", 20)
	cfg.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", 40)

	// Matching
	cfg.Matching.Cost = int64(getEnvInt("MATCH_COST", 100))
	cfg.Matching.SignupBonus = int64(getEnvInt("SIGNUP_BONUS", 100))
	cfg.Matching.WaitTTL = getEnvDuration("MATCH_WAIT_TTL", 14*24*time.Hour)
	cfg.Matching.AutoProcessCron = getEnvDefault("AUTO_PROCESS_CRON", "0 */10 * * * *")

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if n, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return n
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return d
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
