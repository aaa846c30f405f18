package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Save writes a configuration to a YAML file. Used by `stratum config init`
// to produce an editable template.
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal config")
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write config file")
	}

	return nil
}
