// Package config loads factgraph configuration from an optional YAML file
// with environment-variable overrides. Configuration is constructor-supplied
// to components; there is no process-wide configuration singleton.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the server and the research CLI.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Staging  StagingConfig  `yaml:"staging"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Research ResearchConfig `yaml:"research"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Port string `yaml:"port"`
}

// StagingConfig configures the local staging store.
type StagingConfig struct {
	Path          string `yaml:"path"`
	MaxRetries    int    `yaml:"max_retries"`
	BackoffBaseMS int    `yaml:"backoff_base_ms"`
}

// BackoffBase returns the initial retry delay as a duration.
func (s StagingConfig) BackoffBase() time.Duration {
	return time.Duration(s.BackoffBaseMS) * time.Millisecond
}

// Neo4jConfig configures the remote graph connection.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// ResearchConfig configures the agent pipeline's external collaborators.
type ResearchConfig struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	TavilyAPIKey    string `yaml:"tavily_api_key"`
	// EdgarIdentity is the contact string SEC EDGAR requires in the
	// User-Agent header, e.g. "Jane Doe jane@example.com".
	EdgarIdentity string `yaml:"edgar_identity"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Port: "8080"},
		Staging: StagingConfig{
			Path:          "factgraph.db",
			MaxRetries:    3,
			BackoffBaseMS: 100,
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Password: "password",
			Database: "neo4j",
		},
	}
}

// Load reads configuration from path (may be empty to skip the file), then
// applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	c.Staging.Path = getEnv("FACTGRAPH_DB", c.Staging.Path)
	c.Neo4j.URI = getEnv("NEO4J_URI", c.Neo4j.URI)
	c.Neo4j.Username = getEnv("NEO4J_USER", c.Neo4j.Username)
	c.Neo4j.Password = getEnv("NEO4J_PASSWORD", c.Neo4j.Password)
	c.Neo4j.Database = getEnv("NEO4J_DATABASE", c.Neo4j.Database)
	c.Research.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.Research.AnthropicAPIKey)
	c.Research.AnthropicModel = getEnv("ANTHROPIC_MODEL", c.Research.AnthropicModel)
	c.Research.TavilyAPIKey = getEnv("TAVILY_API_KEY", c.Research.TavilyAPIKey)
	c.Research.EdgarIdentity = getEnv("EDGAR_IDENTITY", c.Research.EdgarIdentity)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
