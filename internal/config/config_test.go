package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLOT_TIMES", "")
	t.Setenv("PRACTICE_TZ", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, []string{"09:00", "10:00", "17:00", "18:00", "19:00", "20:00"}, cfg.SlotTimes)
	assert.Equal(t, 24*time.Hour, cfg.FullRefundWindow)
	assert.Equal(t, 50, cfg.PartialRefundPercent)
	assert.Equal(t, 30*24*time.Hour, cfg.ProcessedEventRetention)
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLOT_TIMES", " 08:00, ,11:30 ")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("ALLOW_FAKE_PAYMENTS", "true")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")
	t.Setenv("PRACTICE_TZ", "Not/AZone")

	cfg := Load()

	assert.Equal(t, []string{"08:00", "11:30"}, cfg.SlotTimes)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.True(t, cfg.AllowFakePayments)
	assert.Equal(t, 2.5, cfg.RateLimitPerSecond)
	assert.Equal(t, time.UTC, cfg.Location())
}
