package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadGraphFile reads a graph request from a JSON or YAML file.
func LoadGraphFile(path string) (GraphRequest, error) {
	var req GraphRequest
	if err := decodeFile(path, &req); err != nil {
		return GraphRequest{}, err
	}
	return req, nil
}

// LoadVulnerabilitiesFile reads a list of vulnerabilities from a JSON or YAML file.
func LoadVulnerabilitiesFile(path string) ([]VulnerabilityDTO, error) {
	var dtos []VulnerabilityDTO
	if err := decodeFile(path, &dtos); err != nil {
		return nil, err
	}
	return dtos, nil
}

// WriteGraphFile writes req as indented JSON, or YAML for .yaml/.yml paths.
func WriteGraphFile(path string, req GraphRequest) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(req)
	} else {
		data, err = json.MarshalIndent(req, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0644)
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
