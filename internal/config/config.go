package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models veritrack.yml.
type Config struct {
	Tenant struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"tenant"`
	Verification struct {
		ReviewWindowDays int  `yaml:"review_window_days"`
		WarnUnverified   bool `yaml:"warn_unverified"`
	} `yaml:"verification"`
	Roles struct {
		Catalog map[string]RoleConfig `yaml:"catalog"`
	} `yaml:"roles"`
	Notifications struct {
		Hooks []NotificationHook `yaml:"hooks"`
	} `yaml:"notifications"`
}

type RoleConfig struct {
	Description string `yaml:"description"`
}

// NotificationHook is an outbound fire-and-forget delivery target for
// committed events.
type NotificationHook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// ReviewWindowDays returns the configured review window, defaulting to 7.
func (c *Config) ReviewWindowDays() int {
	if c == nil || c.Verification.ReviewWindowDays <= 0 {
		return 7
	}
	return c.Verification.ReviewWindowDays
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with vt config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Tenant.ID == "" {
		return fmt.Errorf("config.tenant.id is required")
	}
	if c.Verification.ReviewWindowDays < 0 {
		return fmt.Errorf("config.verification.review_window_days must not be negative")
	}
	for roleID := range c.Roles.Catalog {
		if roleID == "" {
			return fmt.Errorf("config.roles.catalog contains empty role id")
		}
	}
	for i, hook := range c.Notifications.Hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if hook.URL == "" {
			return fmt.Errorf("notification hook %d has no url", i)
		}
		for _, evt := range hook.Events {
			if evt == "" {
				return fmt.Errorf("notification hook %d has empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "veritrack.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(tenantID string) string {
	return fmt.Sprintf(defaultTemplate, tenantID)
}

// Default returns the default Config struct for a tenant.
func Default(tenantID string) *Config {
	var cfg Config
	cfg.Tenant.ID = tenantID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, tenantID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `tenant:
  id: %s

verification:
  review_window_days: 7
  warn_unverified: true

roles:
  catalog:
    programme_manager:
      description: "Runs the programme and reviews entrepreneur submissions"
    portfolio_lead:
      description: "Owns a portfolio; second-level verifier for success indicators"
    cluster_lead:
      description: "Owns a cluster; second-level verifier for compliance indicators"
    compliance_officer:
      description: "First-level verifier for compliance indicators"

notifications:
  hooks: []
`
