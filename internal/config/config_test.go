package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CODE_TTL", "")
	t.Setenv("DB_DRIVER", "")
	cfg := Load()
	assert.Equal(t, 10*time.Minute, cfg.CodeTTL)
	assert.Equal(t, 4*time.Hour, cfg.MaxCodeTTL)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.CloudinaryEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CODE_TTL", "90s")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("SUBMIT_RATE_LIMIT_PER_MIN", "5")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("TIMEZONE", "Africa/Algiers")
	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.CodeTTL)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, 5, cfg.SubmitRatePerMin)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, "Africa/Algiers", cfg.Location().String())
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_INT", "many")
	t.Setenv("X_BOOL", "maybe")
	assert.Equal(t, time.Minute, durationEnv("X_DUR", time.Minute))
	assert.Equal(t, 7, intEnv("X_INT", 7))
	assert.True(t, boolEnv("X_BOOL", true))
}
