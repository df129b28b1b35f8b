// Package config handles domveil configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domveil/veil/internal/classify"
	"github.com/hazyhaar/domveil/veil/internal/monitor"
)

// Config is the top-level domveil configuration.
type Config struct {
	Browser    BrowserConfig       `yaml:"browser"`
	Monitor    monitor.Config      `yaml:"monitor"`
	Navigation monitor.NavConfig   `yaml:"navigation"`
	Thresholds classify.Thresholds `yaml:"thresholds"`
	// Protect lists CSS selectors of regions that are never hidden.
	Protect []string     `yaml:"protect"`
	Store   StoreConfig  `yaml:"store"`
	HTTP    HTTPConfig   `yaml:"http"`
	Fetch   FetchConfig  `yaml:"fetch"`
	Pages   []PageConfig `yaml:"pages"`
}

// BrowserConfig controls Chrome lifecycle for live sessions.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	Stealth          bool          `yaml:"stealth"`
	Headful          bool          `yaml:"headful"`
	ResourceBlocking []string      `yaml:"resource_blocking"` // image | font | media | stylesheet
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// StoreConfig selects the keyword store backend.
type StoreConfig struct {
	Type string `yaml:"type"` // sqlite | file | memory
	Path string `yaml:"path"`
	// Keywords seeds the memory store.
	Keywords []string `yaml:"keywords"`
}

// HTTPConfig controls the command API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// Rate is requests per second allowed per client IP; 0 disables
	// limiting. Burst defaults to twice the rate.
	Rate    float64 `yaml:"rate"`
	Burst   int     `yaml:"burst"`
	MaxBody int64   `yaml:"max_body"`
}

// FetchConfig controls HTTP-only page acquisition.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	// Rate is the number of requests per second allowed per fetcher.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
	// BlockPrivate refuses pages on loopback and private addresses.
	BlockPrivate bool `yaml:"block_private"`
}

// PageConfig scopes keywords to locations matching a glob.
type PageConfig struct {
	Match string `yaml:"match"`
	// Keywords are added to the stored keywords on matching locations.
	Keywords []string `yaml:"keywords"`
	// Disable makes the engine inert on matching locations.
	Disable bool `yaml:"disable"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	c.Monitor.Defaults()
	c.Navigation.Defaults()
	c.Thresholds.Defaults()
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.Path == "" {
		switch c.Store.Type {
		case "sqlite":
			c.Store.Path = "domveil.db"
		case "file":
			c.Store.Path = "keywords.yaml"
		}
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8087"
	}
	if c.HTTP.Rate > 0 && c.HTTP.Burst <= 0 {
		c.HTTP.Burst = int(2 * c.HTTP.Rate)
	}
	if c.HTTP.MaxBody <= 0 {
		c.HTTP.MaxBody = 1 << 20
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "Mozilla/5.0 (compatible; domveil/1.0)"
	}
	if c.Fetch.Rate <= 0 {
		c.Fetch.Rate = 1
	}
	if c.Fetch.Burst <= 0 {
		c.Fetch.Burst = 1
	}
}
