package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	ServerPort string
	AppEnv     string

	StoreDriver  string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	DBMaxRetries int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	StartingBalance decimal.Decimal

	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginBlock       time.Duration

	RequireVerification bool
	CORSAllowedOrigins  []string
	TrustedProxies      []string

	SeedEmployeeUsername  string
	SeedEmployeePassword  string
	RecipientRegistryFile string
}

// Load reads .env when present and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		AppEnv:     getEnv("APP_ENV", "development"),

		StoreDriver:  getEnv("STORE_DRIVER", "postgres"),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "password"),
		DBName:       getEnv("DB_NAME", "payments"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DBMaxRetries: getEnvInt("DB_MAX_RETRIES", 3),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
		JWTIssuer: getEnv("JWT_ISSUER", "bank-payments"),
		JWTTTL:    getEnvDuration("JWT_TTL", time.Hour),

		StartingBalance: getEnvDecimal("STARTING_BALANCE", decimal.NewFromInt(10000)),

		LoginMaxAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 10),
		LoginWindow:      getEnvDuration("LOGIN_WINDOW", 15*time.Minute),
		LoginBlock:       getEnvDuration("LOGIN_BLOCK", 15*time.Minute),

		RequireVerification: getEnvBool("REQUIRE_VERIFICATION", true),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies:      getEnvList("TRUSTED_PROXIES", nil),

		SeedEmployeeUsername:  getEnv("SEED_EMPLOYEE_USERNAME", ""),
		SeedEmployeePassword:  getEnv("SEED_EMPLOYEE_PASSWORD", ""),
		RecipientRegistryFile: getEnv("RECIPIENT_REGISTRY_FILE", ""),
	}
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// getEnv fetches environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if v, err := decimal.NewFromString(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
