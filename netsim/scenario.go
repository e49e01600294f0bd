package netsim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadScenario reads a YAML scenario file. Keys missing from the file keep
// their default values.
func LoadScenario(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read scenario: %w", err)
	}

	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario onto the default configuration and
// validates the result.
func ParseScenario(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse scenario: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return cfg, nil
}
