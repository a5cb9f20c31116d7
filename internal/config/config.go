package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models vitefait.yml.
type Config struct {
	Payments struct {
		Currencies      []string `yaml:"currencies"`
		DefaultCurrency string   `yaml:"default_currency"`
		// CommissionBps is the platform cut in basis points, applied at completion.
		CommissionBps int `yaml:"commission_bps"`
	} `yaml:"payments"`
	Gateway struct {
		BaseURL string `yaml:"base_url"`
		// SecretKeyEnv names the environment variable holding the gateway API key.
		SecretKeyEnv     string `yaml:"secret_key_env"`
		WebhookSecretEnv string `yaml:"webhook_secret_env"`
		TimeoutSeconds   int    `yaml:"timeout_seconds"`
	} `yaml:"gateway"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound event subscription.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Payments.Currencies) == 0 {
		return fmt.Errorf("config.payments.currencies is required")
	}
	if c.Payments.DefaultCurrency == "" {
		return fmt.Errorf("config.payments.default_currency is required")
	}
	found := false
	for _, cur := range c.Payments.Currencies {
		if cur == "" {
			return fmt.Errorf("config.payments.currencies contains empty code")
		}
		if cur == c.Payments.DefaultCurrency {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("default currency %s not in payments.currencies", c.Payments.DefaultCurrency)
	}
	if c.Payments.CommissionBps < 0 || c.Payments.CommissionBps > 10000 {
		return fmt.Errorf("config.payments.commission_bps must be within [0,10000]")
	}
	if c.Gateway.TimeoutSeconds < 0 {
		return fmt.Errorf("config.gateway.timeout_seconds must not be negative")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// SupportsCurrency reports whether the currency is enabled for this deployment.
func (c *Config) SupportsCurrency(code string) bool {
	for _, cur := range c.Payments.Currencies {
		if cur == code {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "vitefait.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
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

const defaultTemplate = `payments:
  currencies: [EUR, USD, GBP, CHF]
  default_currency: EUR
  commission_bps: 0

gateway:
  base_url: https://api.stripe.com
  secret_key_env: VITEFAIT_GATEWAY_SECRET
  webhook_secret_env: VITEFAIT_WEBHOOK_SECRET
  timeout_seconds: 10
`
