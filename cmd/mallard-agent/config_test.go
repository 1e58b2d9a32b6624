package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAgentConfig(t *testing.T) {
	t.Run("requires_token", func(t *testing.T) {
		t.Setenv("MALLARD_AGENT_TOKEN", "")
		_, err := loadAgentConfig()
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("MALLARD_AGENT_TOKEN", "secret")
		cfg, err := loadAgentConfig()
		require.NoError(t, err)
		assert.Equal(t, ":9443", cfg.ListenAddr)
		assert.Empty(t, cfg.DatabasePath)
		assert.Zero(t, cfg.RateLimitRPS)
	})

	t.Run("rate_limit_burst_default", func(t *testing.T) {
		t.Setenv("MALLARD_AGENT_TOKEN", "secret")
		t.Setenv("MALLARD_AGENT_RATE_LIMIT_RPS", "10")
		cfg, err := loadAgentConfig()
		require.NoError(t, err)
		assert.Equal(t, 10.0, cfg.RateLimitRPS)
		assert.Equal(t, 11, cfg.RateLimitBurst)
	})

	t.Run("invalid_numbers", func(t *testing.T) {
		t.Setenv("MALLARD_AGENT_TOKEN", "secret")
		t.Setenv("MALLARD_AGENT_MAX_MEMORY_GB", "lots")
		_, err := loadAgentConfig()
		require.Error(t, err)
	})
}
