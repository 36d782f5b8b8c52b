package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWTSecret signs access tokens. The process refuses to start without it.
	JWTSecret           string
	JWTAccessTTLMinutes int
	RefreshTTLDays      int
	MaxRefreshTokens    int

	BcryptCost int

	AllowedOrigins []string
	MaxBodyBytes   int64

	// fixed-window limit for the credential endpoints, per client IP
	AuthRateLimit  int
	AuthRateWindow time.Duration

	SweepInterval time.Duration

	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminRole     string

	OTelEndpoint string
}

func Load() (Config, error) {
	// best effort; real env vars win over .env
	_ = godotenv.Load()

	cfg := Config{
		Env:                 getEnv("APP_ENV", "dev"),
		Port:                getEnvInt("PORT", 8080),
		DBURL:               buildDBURL(),
		RedisAddr:           getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 15),
		RefreshTTLDays:      getEnvInt("REFRESH_TTL_DAYS", 7),
		MaxRefreshTokens:    getEnvInt("MAX_REFRESH_TOKENS", 5),
		BcryptCost:          getEnvInt("BCRYPT_COST", 10),
		AllowedOrigins:      splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		MaxBodyBytes:        int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		AuthRateLimit:       getEnvInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow:      time.Duration(getEnvInt("AUTH_RATE_WINDOW_SECONDS", 60)) * time.Second,
		SweepInterval:       time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
		AdminEmail:          getEnv("ADMIN_EMAIL", ""),
		AdminPassword:       getEnv("ADMIN_PASSWORD", ""),
		AdminName:           getEnv("ADMIN_NAME", "Admin"),
		AdminRole:           getEnv("ADMIN_ROLE", "admin"),
		OTelEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "deliveryhub")
	pass := getEnv("DB_PASSWORD", "deliveryhub")
	name := getEnv("DB_NAME", "deliveryhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
