package main

import (
	"fmt"
	"os"
	"strconv"
)

// AgentConfig holds configuration for the agent binary, loaded from
// environment variables.
type AgentConfig struct {
	AgentToken   string
	ListenAddr   string
	DatabasePath string
	MaxMemoryGB  int

	RateLimitRPS   float64
	RateLimitBurst int
}

func loadAgentConfig() (*AgentConfig, error) {
	cfg := &AgentConfig{
		AgentToken:   os.Getenv("MALLARD_AGENT_TOKEN"),
		ListenAddr:   os.Getenv("MALLARD_AGENT_ADDR"),
		DatabasePath: os.Getenv("MALLARD_AGENT_DB"),
	}
	if v := os.Getenv("MALLARD_AGENT_MAX_MEMORY_GB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MALLARD_AGENT_MAX_MEMORY_GB: %w", err)
		}
		cfg.MaxMemoryGB = n
	}
	if v := os.Getenv("MALLARD_AGENT_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MALLARD_AGENT_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = f
	}
	if v := os.Getenv("MALLARD_AGENT_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MALLARD_AGENT_RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = n
	}

	if cfg.AgentToken == "" {
		return nil, fmt.Errorf("MALLARD_AGENT_TOKEN is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9443"
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = int(cfg.RateLimitRPS) + 1
	}
	return cfg, nil
}
