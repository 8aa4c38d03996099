package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DBUrl              string
	DBMaxConns         int32
	DBMinConns         int32
	JWTSecret          string
	AppEnv             string
	StorageDriver      string
	UploadDir          string
	PublicBaseURL      string
	SupabaseURL        string
	SupabaseBucket     string
	SupabaseServiceKey string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DBUrl:              getEnv("DB_URL", ""),
		DBMaxConns:         getEnvInt32("DB_MAX_CONNS", 0),
		DBMinConns:         getEnvInt32("DB_MIN_CONNS", 0),
		JWTSecret:          jwtSecret,
		AppEnv:             normalizeEnv(getEnv("APP_ENV", "production")),
		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
		UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "/uploads"),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
	}

	if cfg.StorageDriver != "local" && cfg.StorageDriver != "supabase" {
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.StorageDriver == "supabase" &&
		(cfg.SupabaseURL == "" || cfg.SupabaseBucket == "" || cfg.SupabaseServiceKey == "") {
		return nil, fmt.Errorf("supabase storage requires SUPABASE_URL, SUPABASE_BUCKET and SUPABASE_SERVICE_KEY")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt32 falls back when the variable is unset, empty or not a
// positive integer; the pool layer applies its own defaults for zero.
func getEnvInt32(key string, fallback int32) int32 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil || value <= 0 {
		return fallback
	}
	return int32(value)
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
