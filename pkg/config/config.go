package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	App       AppConfig                 `json:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways"`
	Providers map[string]ProviderConfig `json:"providers"`
	Memory    MemoryConfig              `json:"memory"`
	Wizard    WizardConfig              `json:"wizard"`
}

type AppConfig struct {
	Name     string `json:"name"`
	PlansDir string `json:"plans_dir"`
}

type GatewayConfig struct {
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// WizardConfig tunes the planning flow.
type WizardConfig struct {
	PromptsDir      string `json:"prompts_dir"`
	DishLibraryPath string `json:"dish_library_path"`
	HistoryWindow   int    `json:"history_window"`
	AgentTimeoutSec int    `json:"agent_timeout_sec"`
	ReminderPollSec int    `json:"reminder_poll_sec"`
}

func LoadConfig(path string) *Config {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.PlansDir == "" {
		c.App.PlansDir = "plans"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "fete.db"
	}
	if c.Wizard.PromptsDir == "" {
		c.Wizard.PromptsDir = "./prompts"
	}
	if c.Wizard.HistoryWindow == 0 {
		c.Wizard.HistoryWindow = 20
	}
	if c.Wizard.AgentTimeoutSec == 0 {
		c.Wizard.AgentTimeoutSec = 45
	}
	if c.Wizard.ReminderPollSec == 0 {
		c.Wizard.ReminderPollSec = 60
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns the named gateway config if enabled
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled {
		return gw, true
	}
	return GatewayConfig{}, false
}
