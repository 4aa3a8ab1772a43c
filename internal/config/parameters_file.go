package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/elys-network/votesnap/internal/types"
	"gopkg.in/yaml.v3"
)

// LoadParametersFile reads protocol parameters from a YAML or TOML file, chosen by extension
// (.toml for TOML, anything else for YAML). Fields missing from the file keep their
// DefaultProtocolParameters value. The result is validated.
func LoadParametersFile(path string) (types.ProtocolParameters, error) {
	params := DefaultProtocolParameters

	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read parameters file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &params)
	} else {
		err = yaml.Unmarshal(data, &params)
	}
	if err != nil {
		return params, fmt.Errorf("failed to parse parameters file %s: %w", path, err)
	}

	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("parameters file %s: %w", path, err)
	}
	return params, nil
}
