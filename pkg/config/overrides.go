package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/plamolinux/pkgbuild/pkg/category"
	"gopkg.in/yaml.v3"
)

// LoadOverrides reads an override table file. The file may be JSON or
// YAML; keys are package and category names and are kept as written.
func LoadOverrides(path string) (*category.OverrideSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}

	var set category.OverrideSet

	// Try JSON first
	if err := json.Unmarshal(data, &set); err == nil {
		return &set, nil
	}

	set = category.OverrideSet{}
	if err := yaml.Unmarshal(data, &set); err == nil {
		return &set, nil
	}

	return nil, fmt.Errorf("%w: %s is neither JSON nor YAML", ErrInvalidConfig, path)
}
