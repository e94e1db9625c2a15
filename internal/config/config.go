// Package config loads layered JSON configuration: compiled-in defaults,
// then the global ~/.conductor/config.json, then the project-local
// .conductor/config.json. Later layers override earlier ones key by key.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crewlab/conductor/internal/log"
)

// Config is the merged runtime configuration.
type Config struct {
	// Backend is the LLM backend used by role workers.
	Backend BackendConfig `json:"backend"`

	// Knowledge configures the knowledge-base sink. Empty URL disables it.
	Knowledge KnowledgeConfig `json:"knowledge"`

	// Server is the HTTP admin API listen address.
	Server ServerConfig `json:"server"`

	// Database is the SQLite snapshot path.
	Database DatabaseConfig `json:"database"`

	// RoleMapping overrides task-type to role routing. Entries merge over
	// the built-in mapping.
	RoleMapping map[string]string `json:"role_mapping,omitempty"`

	// Concurrency bounds parallel task execution per drain pass.
	Concurrency int `json:"concurrency"`

	// TemplateFile points at an optional YAML workflow template catalog.
	TemplateFile string `json:"template_file,omitempty"`
}

type BackendConfig struct {
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
}

type KnowledgeConfig struct {
	URL    string `json:"url,omitempty"`
	APIKey string `json:"api_key,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Endpoint: "http://localhost:11434",
			Model:    "llama3.1",
		},
		Server:      ServerConfig{Addr: ":8090"},
		Database:    DatabaseConfig{Path: ".conductor/conductor.db"},
		Concurrency: 4,
	}
}

// Load builds the configuration by merging the global and project layers
// over the defaults. Missing files are skipped silently; malformed files
// are a warning, not an error.
func Load(projectDir string) *Config {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		applyFile(cfg, filepath.Join(home, ".conductor", "config.json"))
	}
	if projectDir != "" {
		applyFile(cfg, filepath.Join(projectDir, ".conductor", "config.json"))
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg
}

// applyFile merges one JSON layer into cfg if the file exists.
func applyFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Get().Warnf("unreadable config %s: %v", path, err)
		}
		return
	}

	var layer Config
	if err := json.Unmarshal(data, &layer); err != nil {
		log.Get().Warnf("malformed config %s: %v", path, err)
		return
	}
	merge(cfg, &layer)
	log.Get().Debugf("applied config layer %s", path)
}

func merge(dst, src *Config) {
	if src.Backend.Endpoint != "" {
		dst.Backend.Endpoint = src.Backend.Endpoint
	}
	if src.Backend.Model != "" {
		dst.Backend.Model = src.Backend.Model
	}
	if src.Knowledge.URL != "" {
		dst.Knowledge.URL = src.Knowledge.URL
	}
	if src.Knowledge.APIKey != "" {
		dst.Knowledge.APIKey = src.Knowledge.APIKey
	}
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Database.Path != "" {
		dst.Database.Path = src.Database.Path
	}
	if src.Concurrency > 0 {
		dst.Concurrency = src.Concurrency
	}
	if src.TemplateFile != "" {
		dst.TemplateFile = src.TemplateFile
	}
	if len(src.RoleMapping) > 0 {
		if dst.RoleMapping == nil {
			dst.RoleMapping = make(map[string]string, len(src.RoleMapping))
		}
		for taskType, role := range src.RoleMapping {
			dst.RoleMapping[taskType] = role
		}
	}
}

// Validate checks invariants the merge cannot guarantee.
func (c *Config) Validate() error {
	if c.Backend.Endpoint == "" {
		return fmt.Errorf("backend endpoint must not be empty")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr must not be empty")
	}
	return nil
}
