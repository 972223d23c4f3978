package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// applyFile overlays values from a YAML config file onto cfg. Only fields
// present in the file are changed; the zero value is indistinguishable from
// "absent", so the file is decoded into a copy pre-seeded with the current
// values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	overlay := *cfg
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	*cfg = overlay
	return nil
}
