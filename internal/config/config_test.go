package config

import (
	"testing"
)

func validConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.ApplyDefaults()
	return c
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()

	if c.Embedding.Provider != "local" {
		t.Errorf("Provider = %q, want local", c.Embedding.Provider)
	}
	if c.Embedding.Model != "hash-v1" {
		t.Errorf("Model = %q", c.Embedding.Model)
	}
	if c.Embedding.Dimensions != 384 {
		t.Errorf("Dimensions = %d", c.Embedding.Dimensions)
	}
	if c.Search.DefaultTopK != 10 || c.Search.MaxTopK != 100 {
		t.Errorf("topK defaults = %d/%d", c.Search.DefaultTopK, c.Search.MaxTopK)
	}
	if c.Search.OverfetchFactor != 3 || c.Search.FilterMargin != 20 {
		t.Errorf("overfetch defaults = %d/%d", c.Search.OverfetchFactor, c.Search.FilterMargin)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, true},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }, true},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }, true},
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }, true},
		{"openai with key", func(c *Config) {
			c.Embedding.Provider = "openai"
			c.Embedding.APIKey = "sk-test"
		}, false},
		{"dimensions too large", func(c *Config) { c.Embedding.Dimensions = 9000 }, true},
		{"threshold out of range", func(c *Config) { c.Search.SimilarityThreshold = 1.5 }, true},
		{"default topK above max", func(c *Config) { c.Search.DefaultTopK = 200 }, true},
		{"overfetch below one", func(c *Config) { c.Search.OverfetchFactor = 0 }, true},
		{"summarizer without key", func(c *Config) { c.Summarizer.Model = "gpt-4o-mini" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GW_TEST_PORT", "9090")

	got := string(expandEnvVars([]byte("port: ${GW_TEST_PORT}")))
	if got != "port: 9090" {
		t.Errorf("expanded = %q", got)
	}

	got = string(expandEnvVars([]byte("dir: ${GW_TEST_UNSET:-/tmp/data}")))
	if got != "dir: /tmp/data" {
		t.Errorf("expanded = %q", got)
	}

	got = string(expandEnvVars([]byte("key: ${GW_TEST_UNSET}")))
	if got != "key: " {
		t.Errorf("expanded = %q", got)
	}
}
