package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig describes one allow-listed command exposed as a brick.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	// Page marks the command as needing the page context.
	Page bool `yaml:"page" json:"page"`
}

// ConfigFile is the layout of a bricks.yaml file.
type ConfigFile struct {
	Bricks []ProcessConfig `yaml:"bricks" json:"bricks"`
}

// LoadConfig reads a YAML or JSON config. A missing file yields no bricks.
func LoadConfig(path string) ([]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read process config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	configs := make([]ProcessConfig, 0, len(cfg.Bricks))
	for _, b := range cfg.Bricks {
		if b.Name == "" || b.Command == "" {
			continue
		}
		configs = append(configs, b)
	}
	return configs, nil
}
