package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrBatchFormat is returned when a batch file has no features mapping.
var ErrBatchFormat = errors.New("invalid batch format: expected 'features' mapping")

// BatchFeature is one named prompt from a multi-feature file.
type BatchFeature struct {
	Name   string
	Prompt string
}

// LoadBatch reads a multi-feature YAML file, keeping document order:
//
//	features:
//	  double_jump: "Let the player jump twice"
//	  inventory: "Grid inventory with drag and drop"
func LoadBatch(path string) ([]BatchFeature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return ParseBatch(data)
}

// ParseBatch parses batch YAML. An empty document yields no features.
func ParseBatch(data []byte) ([]BatchFeature, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, ErrBatchFormat
	}

	var features *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "features" {
			features = root.Content[i+1]
			break
		}
	}
	if features == nil {
		return nil, nil
	}
	if features.Kind != yaml.MappingNode {
		return nil, ErrBatchFormat
	}

	var out []BatchFeature
	for i := 0; i+1 < len(features.Content); i += 2 {
		name := features.Content[i].Value
		val := features.Content[i+1]

		prompt := val.Value
		if val.Kind != yaml.ScalarNode {
			var v any
			if err := val.Decode(&v); err != nil {
				return nil, fmt.Errorf("feature %s: %w", name, err)
			}
			prompt = fmt.Sprint(v)
		}
		out = append(out, BatchFeature{Name: name, Prompt: strings.TrimSpace(prompt)})
	}
	return out, nil
}
