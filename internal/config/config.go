package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads Go duration strings ("10m", "24h")
// from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config models prepcal.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Google    struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			RedirectURL  string `yaml:"redirect_url"`
		} `yaml:"google"`
	} `yaml:"auth"`
	Workflow struct {
		WebhookURL      string   `yaml:"webhook_url"`
		APIKey          string   `yaml:"api_key"`
		NotifySecret    string   `yaml:"notify_secret"`
		ResponseTimeout Duration `yaml:"response_timeout"`
	} `yaml:"workflow"`
	Retention struct {
		ReplyTTL Duration `yaml:"reply_ttl"`
	} `yaml:"retention"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one from the default template", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "prepcal.yml")
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Workflow.WebhookURL == "" {
		return fmt.Errorf("config.workflow.webhook_url is required")
	}
	if c.Workflow.ResponseTimeout < 0 {
		return fmt.Errorf("config.workflow.response_timeout must not be negative")
	}
	if c.Retention.ReplyTTL < 0 {
		return fmt.Errorf("config.retention.reply_ttl must not be negative")
	}
	return nil
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the baseline Config.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v0"
	cfg.Workflow.WebhookURL = "https://example.invalid/webhook/input"
	cfg.Workflow.ResponseTimeout = Duration(10 * time.Minute)
	cfg.Retention.ReplyTTL = Duration(24 * time.Hour)
	return &cfg
}

// GenerateDefault returns the default config YAML template.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt_secret: ""
  google:
    client_id: ""
    client_secret: ""
    redirect_url: http://localhost:8080/v0/auth/google/callback

workflow:
  webhook_url: https://example.invalid/webhook/input
  api_key: ""
  notify_secret: ""
  response_timeout: 10m

retention:
  reply_ttl: 24h
`
