package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MatchingConfig controls which match classes are returned and which places count as nearby.
//
// Example file:
//
//	include_partial: true
//	include_nearby: true
//	proximity_groups:
//	  - [Kigali, Nyarugenge, Kicukiro, Gasabo]
//	  - [Gisenyi, Rubavu]
type MatchingConfig struct {
	IncludePartial  bool       `yaml:"include_partial"`
	IncludeNearby   bool       `yaml:"include_nearby"`
	ProximityGroups [][]string `yaml:"proximity_groups"`
}

func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{IncludePartial: true, IncludeNearby: true}
}

// LoadMatchingConfig reads a YAML file; an empty path yields the defaults.
func LoadMatchingConfig(path string) (MatchingConfig, error) {
	cfg := DefaultMatchingConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read matching config: %w", err)
	}
	return ParseMatchingConfig(raw)
}

// ParseMatchingConfig decodes YAML on top of the defaults.
func ParseMatchingConfig(raw []byte) (MatchingConfig, error) {
	cfg := DefaultMatchingConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse matching config: %w", err)
	}
	return cfg, nil
}
