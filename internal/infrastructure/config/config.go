// Package config loads and validates the sync tool's YAML configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration of a sync run.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace" json:"workspace"`
	Orders    OrdersConfig    `yaml:"orders" json:"orders"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
}

// WorkspaceConfig addresses the workspace system's REST API.
type WorkspaceConfig struct {
	BaseURL string     `yaml:"base_url" json:"base_url"`
	Auth    AuthConfig `yaml:"auth" json:"auth"`
}

// AuthConfig holds the assertion-grant credentials for the workspace API.
type AuthConfig struct {
	URL            string `yaml:"url" json:"url"`
	Issuer         string `yaml:"issuer" json:"issuer"`
	Scope          string `yaml:"scope" json:"scope"`
	ClientID       string `yaml:"client_id" json:"client_id"`
	PrivateKeyFile string `yaml:"private_key_file" json:"private_key_file"`
}

// OrdersConfig addresses the order system's SOAP API.
type OrdersConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SyncConfig tunes the reconciliation itself.
type SyncConfig struct {
	TempDir              string              `yaml:"temp_dir" json:"temp_dir"`
	WorkspaceTemplate    string              `yaml:"workspace_template" json:"workspace_template"`
	SalesRepRole         string              `yaml:"sales_rep_role" json:"sales_rep_role"`
	ProjectManagerRole   string              `yaml:"project_manager_role" json:"project_manager_role"`
	ReportTimeoutSeconds int                 `yaml:"report_timeout_seconds" json:"report_timeout_seconds"`
	ReportSpanYears      int                 `yaml:"report_span_years" json:"report_span_years"`
	TasklistTemplates    map[string][]string `yaml:"tasklist_templates" json:"tasklist_templates"`
	LedgerDir            string              `yaml:"ledger_dir" json:"ledger_dir"`
	LedgerFile           string              `yaml:"ledger_file" json:"ledger_file"`
}

const configSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["workspace", "orders", "sync"],
  "properties": {
    "workspace": {
      "type": "object",
      "required": ["base_url", "auth"],
      "properties": {
        "base_url": { "type": "string", "minLength": 1 },
        "auth": {
          "type": "object",
          "required": ["url", "issuer", "client_id", "private_key_file"],
          "properties": {
            "url": { "type": "string", "minLength": 1 },
            "issuer": { "type": "string", "minLength": 1 },
            "scope": { "type": "string" },
            "client_id": { "type": "string", "minLength": 1 },
            "private_key_file": { "type": "string", "minLength": 1 }
          }
        }
      }
    },
    "orders": {
      "type": "object",
      "required": ["endpoint", "username", "password"],
      "properties": {
        "endpoint": { "type": "string", "minLength": 1 },
        "username": { "type": "string", "minLength": 1 },
        "password": { "type": "string", "minLength": 1 }
      }
    },
    "sync": {
      "type": "object",
      "required": ["workspace_template"],
      "properties": {
        "workspace_template": { "type": "string", "minLength": 1 },
        "sales_rep_role": { "type": "string" },
        "project_manager_role": { "type": "string" },
        "report_timeout_seconds": { "type": "integer", "minimum": 1 },
        "report_span_years": { "type": "integer", "minimum": 1 },
        "tasklist_templates": {
          "type": "object",
          "additionalProperties": {
            "type": "array",
            "items": { "type": "string" }
          }
        },
        "temp_dir": { "type": "string" },
        "ledger_dir": { "type": "string" },
        "ledger_file": { "type": "string" }
      }
    }
  }
}`

var configSchemaLoader = gojsonschema.NewStringLoader(configSchemaJSON)

// Load reads, validates and defaults a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Validate the document shape before binding it to the struct, so a
	// typo fails with a field-level message instead of a zero value.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}
	result, err := gojsonschema.Validate(configSchemaLoader, gojsonschema.NewBytesLoader(rawJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.TempDir == "" {
		c.Sync.TempDir = os.TempDir()
	}
	if c.Sync.ReportTimeoutSeconds <= 0 {
		c.Sync.ReportTimeoutSeconds = 300
	}
	if c.Sync.ReportSpanYears <= 0 {
		c.Sync.ReportSpanYears = 2
	}
	if c.Sync.LedgerDir == "" {
		c.Sync.LedgerDir = "."
	}
	if c.Sync.LedgerFile == "" {
		c.Sync.LedgerFile = "sync.state"
	}
}

// PrivateKey reads the PEM key the auth config points at.
func (c *Config) PrivateKey() ([]byte, error) {
	key, err := os.ReadFile(c.Workspace.Auth.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return key, nil
}
