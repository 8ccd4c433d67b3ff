package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ensemble-run/ensemble/pkg/errors"
)

// Load reads and parses a workflow config from path. The format is chosen
// by file extension: .json is parsed as JSON, everything else as YAML.
// Load performs syntactic parsing only; call Validate for semantic checks.
func Load(path string) (*WorkflowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Reason: fmt.Sprintf("cannot read config file %s", path),
			Cause:  err,
		}
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return Parse(data)
}

// Parse parses a workflow config from YAML bytes.
func Parse(data []byte) (*WorkflowConfig, error) {
	var cfg WorkflowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &errors.ConfigError{
			Reason: "malformed YAML",
			Cause:  err,
		}
	}
	return &cfg, nil
}

// ParseJSON parses a workflow config from JSON bytes.
// YAML and JSON configs are 1:1 convertible.
func ParseJSON(data []byte) (*WorkflowConfig, error) {
	var cfg WorkflowConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &errors.ConfigError{
			Reason: "malformed JSON",
			Cause:  err,
		}
	}
	return &cfg, nil
}

// MarshalYAML serializes a config back to YAML.
func MarshalYAML(cfg *WorkflowConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "serializing config to YAML")
	}
	return data, nil
}

// MarshalJSON serializes a config back to JSON.
func MarshalJSON(cfg *WorkflowConfig) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "serializing config to JSON")
	}
	return data, nil
}
