package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	CORSOrigin        string
	InternalSecretKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StagingTTL    time.Duration

	MidtransServerKey string
	MidtransBaseURL   string
	MidtransSnapURL   string
	MidtransFinishURL string

	TrackingAPIKey      string
	TrackingBaseURL     string
	TrackingFallbackURL string
	TrackingCouriers    []string

	ShippingOriginPostal string

	// Coupons maps an upper-cased coupon code to its percent discount.
	Coupons map[string]int64

	RecoveryBaseDelay   time.Duration
	RecoveryMaxAttempts int
	RecoveryFreshness   time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    getEnv("APP_PORT", "8080"),
		AppEnv:     os.Getenv("APP_ENV"),
		JWTSecret:  os.Getenv("JWT_SECRET"),

		CORSOrigin:        getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		StagingTTL:    getDuration("STAGING_TTL", 24*time.Hour),

		MidtransServerKey: os.Getenv("MIDTRANS_SERVER_KEY"),
		MidtransBaseURL:   getEnv("MIDTRANS_BASE_URL", "https://api.sandbox.midtrans.com"),
		MidtransSnapURL:   getEnv("MIDTRANS_SNAP_URL", "https://app.sandbox.midtrans.com"),
		MidtransFinishURL: os.Getenv("MIDTRANS_FINISH_URL"),

		TrackingAPIKey:      os.Getenv("TRACKING_API_KEY"),
		TrackingBaseURL:     getEnv("TRACKING_BASE_URL", "https://api.binderbyte.com"),
		TrackingFallbackURL: os.Getenv("TRACKING_FALLBACK_URL"),
		TrackingCouriers:    getList("TRACKING_COURIERS", []string{"jne", "jnt", "sicepat", "anteraja", "pos"}),

		ShippingOriginPostal: getEnv("SHIPPING_ORIGIN_POSTAL", "40111"),

		Coupons: parseCoupons(getEnv("COUPONS", "NPC10=10")),

		RecoveryBaseDelay:   getDuration("RECOVERY_BASE_DELAY", time.Second),
		RecoveryMaxAttempts: getInt("RECOVERY_MAX_ATTEMPTS", 5),
		RecoveryFreshness:   getDuration("RECOVERY_FRESHNESS", 5*time.Minute),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseCoupons reads "CODE=PERCENT,CODE2=PERCENT" and skips malformed pairs.
func parseCoupons(raw string) map[string]int64 {
	coupons := make(map[string]int64)
	for _, pair := range strings.Split(raw, ",") {
		code, pct, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || code == "" {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(pct), 10, 64)
		if err != nil || n <= 0 || n > 100 {
			continue
		}
		coupons[strings.ToUpper(strings.TrimSpace(code))] = n
	}
	return coupons
}
