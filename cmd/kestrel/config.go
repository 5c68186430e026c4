package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the optional YAML config file:
//
//	nameservers:
//	  - 8.8.8.8:53
//	doh: false
//	max_depth: 3
//	cache_ttl: 5m
type fileConfig struct {
	Nameservers []string      `yaml:"nameservers"`
	DoH         bool          `yaml:"doh"`
	MaxDepth    int           `yaml:"max_depth"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// loadConfig reads the config file at path, returning defaults when no
// path is given.
func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
