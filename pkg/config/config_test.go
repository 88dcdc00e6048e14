package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 4, cfg.Allocator.Workers)
	assert.Equal(t, 5000, cfg.Allocator.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Allocator.ProposalTTL)
	assert.Equal(t, 5*time.Minute, cfg.Allocator.RunTimeout)
	assert.Equal(t, 10, cfg.Allocator.DemandRounds)
	assert.Equal(t, "Grade 12", cfg.Allocator.LevelTwoGrade)
	assert.Equal(t, "Research", cfg.Allocator.ResearchType)
	assert.Equal(t, 24*time.Hour, cfg.Exports.SignedURLTTL)
	assert.Equal(t, time.Hour, cfg.Runs.CacheTTL)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ALLOCATOR_WORKERS", "0")
	t.Setenv("ALLOCATOR_SEED", "42")
	t.Setenv("ALLOCATOR_RUN_TIMEOUT", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, 1, cfg.Allocator.Workers, "workers never drop below one")
	assert.Equal(t, int64(42), cfg.Allocator.Seed)
	assert.Equal(t, 5*time.Minute, cfg.Allocator.RunTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}
