package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	JWTSecret          string
	RefreshTokenSecret string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration

	// Redis holds refresh tokens when configured; empty falls back to postgres.
	RedisURL string

	// LLM
	GeminiAPIKey string
	GeminiModel  string

	// Email: "SMTP" or "SES"; empty disables delivery.
	EmailService string
	EmailFrom    string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	AWSRegion    string

	// FrontendURL is used to build password-reset and invite links.
	FrontendURL string
	CORSOrigin  string

	// Renderer
	BrowserExecPath string

	// Image byte storage: "inline" (byte column) or "s3".
	ImageStore     string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() Config {
	return Config{
		Addr:          ":" + getenv("PORT", "8080"),
		DatabaseURL:   databaseURL(),
		MigrationsDir: getenv("WISHLANE_MIGRATIONS_DIR", "./db/migrations"),

		JWTSecret:          getenv("JWT_SECRET", "wishlane-dev-secret"),
		RefreshTokenSecret: getenv("REFRESH_TOKEN_SECRET", "wishlane-dev-refresh-secret"),
		AccessTTL:          time.Duration(getenvInt("ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL:         time.Duration(getenvInt("REFRESH_TTL_SECONDS", 2592000)) * time.Second,

		RedisURL: getenv("REDIS_URL", ""),

		GeminiAPIKey: getenv("GEMINI_API_KEY", ""),
		GeminiModel:  getenv("GEMINI_MODEL", "gemini-2.0-flash"),

		EmailService: getenv("EMAIL_SERVICE", ""),
		EmailFrom:    getenv("EMAIL_FROM", ""),
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		AWSRegion:    getenv("AWS_REGION", "us-east-1"),

		FrontendURL: getenv("FRONTEND_URL", "http://localhost:3000"),
		CORSOrigin:  getenv("CORS_ORIGIN", "*"),

		BrowserExecPath: getenv("BROWSER_EXEC_PATH", ""),

		ImageStore:     getenv("IMAGE_STORE", "inline"),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "wishlane-images"),
		MinioUseSSL:    getenv("MINIO_USE_SSL", "false") == "true",
	}
}

// databaseURL assembles a postgres URL from the DB_* variables, or takes
// DATABASE_URL verbatim when set.
func databaseURL() string {
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		return raw
	}
	host := getenv("DB_HOST", "localhost")
	port := getenv("DB_PORT", "5432")
	user := getenv("DB_USER", "wishlane")
	password := getenv("DB_PASSWORD", "wishlane")
	name := getenv("DB_NAME", "wishlane")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(user), url.QueryEscape(password), host, port, name)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
