package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// PluginDefinition describes a plugin to register at startup.
type PluginDefinition struct {
	Name            string   `json:"name" validate:"required,max=128"`
	Endpoint        string   `json:"endpoint" validate:"required,http_url"`
	SubscribedKinds []string `json:"subscribed_kinds" validate:"required,min=1,unique,dive,required"`
}

// PluginConfig holds the plugins registered from PLUGIN_CONFIG_PATH.
type PluginConfig struct {
	Plugins []PluginDefinition `json:"plugins" validate:"required,min=1,dive"`
}

// LoadPluginConfig reads a JSON plugin config file and validates it.
// Event kind names are checked by the plugin registry, not here.
func LoadPluginConfig(path string) (*PluginConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin config: %w", err)
	}

	var cfg PluginConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse plugin config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("plugin config: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		if seen[p.Name] {
			return nil, fmt.Errorf("plugin config: duplicate plugin name %q", p.Name)
		}
		seen[p.Name] = true
	}

	return &cfg, nil
}
