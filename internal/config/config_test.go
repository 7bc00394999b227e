package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5432")
		t.Setenv("APP_PORT", "9090")
		t.Setenv("APP_ENV", "test")
		t.Setenv("MIDTRANS_SERVER_KEY", "SB-Mid-server-xxx")
		t.Setenv("REDIS_DB", "2")
		t.Setenv("RECOVERY_BASE_DELAY", "500ms")
		t.Setenv("RECOVERY_MAX_ATTEMPTS", "3")
		t.Setenv("TRACKING_COURIERS", "jne, sicepat")
		t.Setenv("COUPONS", "npc10=10,HEMAT25=25")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "9090", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "SB-Mid-server-xxx", cfg.MidtransServerKey)
		assert.Equal(t, 2, cfg.RedisDB)
		assert.Equal(t, 500*time.Millisecond, cfg.RecoveryBaseDelay)
		assert.Equal(t, 3, cfg.RecoveryMaxAttempts)
		assert.Equal(t, []string{"jne", "sicepat"}, cfg.TrackingCouriers)
		assert.Equal(t, map[string]int64{"NPC10": 10, "HEMAT25": 25}, cfg.Coupons)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("APP_PORT", "")
		t.Setenv("COUPONS", "")
		t.Setenv("RECOVERY_MAX_ATTEMPTS", "not-a-number")

		cfg := LoadConfig()

		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, 5, cfg.RecoveryMaxAttempts)
		assert.Equal(t, time.Second, cfg.RecoveryBaseDelay)
		assert.Equal(t, 5*time.Minute, cfg.RecoveryFreshness)
		assert.Equal(t, int64(10), cfg.Coupons["NPC10"])
		assert.Equal(t, "http://localhost:3000", cfg.CORSOrigin)
	})
}

func TestParseCoupons(t *testing.T) {
	coupons := parseCoupons("A=5, b=150,=3,C=x,D")
	assert.Equal(t, map[string]int64{"A": 5}, coupons)
}
