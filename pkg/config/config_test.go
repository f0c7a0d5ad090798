package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 90.0, cfg.Tuition.MonthlyBaseUnit)
	assert.Equal(t, 5*time.Minute, cfg.Grades.CacheTTL)
	assert.Equal(t, "@every 1m", cfg.Promotions.RedispatchSchedule)
	assert.Equal(t, 10, cfg.Promotions.MaxForwardAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Promotions.ForwardLease)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("TUITION_MONTHLY_BASE", -5)
	v.Set("BACKEND_BASE_URL", "https://school.example/")
	v.Set("GRADES_CACHE_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := fromViper(v)

	assert.Equal(t, 90.0, cfg.Tuition.MonthlyBaseUnit)
	assert.Equal(t, "https://school.example", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.Grades.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
