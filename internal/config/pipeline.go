package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pipeline steps toggled from pipeline_config.yaml.
const (
	StepBuild   = "build"
	StepPublish = "publish"
	StepQC      = "qc"
)

// Pipeline is the contents of pipeline_config.yaml.
type Pipeline struct {
	Steps  map[string]bool `yaml:"steps"`
	Agents []string        `yaml:"agents"`
}

// DefaultPipeline enables every step and leaves agent selection to the planner.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Steps:  map[string]bool{StepBuild: true, StepPublish: true, StepQC: true},
		Agents: []string{},
	}
}

// Enabled reports whether a step is on. Unknown steps are on.
func (p Pipeline) Enabled(step string) bool {
	on, ok := p.Steps[step]
	return !ok || on
}

// LoadPipeline reads pipeline_config.yaml over the defaults. A missing file yields the defaults.
func LoadPipeline(path string) (Pipeline, error) {
	cfg := DefaultPipeline()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read pipeline config: %w", err)
	}

	var raw struct {
		Steps  map[string]any `yaml:"steps"`
		Agents []string       `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse pipeline config: %w", err)
	}

	for k, v := range raw.Steps {
		cfg.Steps[k] = truthy(v)
	}
	if raw.Agents != nil {
		cfg.Agents = raw.Agents
	}
	return cfg, nil
}

// SetAgents rewrites the agents list in place, keeping every other key and its order.
// A missing file is left alone.
func SetAgents(path string, agents []string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read pipeline config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse pipeline config: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return errors.New("pipeline config is not a mapping")
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, a := range agents {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: a})
	}

	root := doc.Content[0]
	replaced := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "agents" {
			root.Content[i+1] = seq
			replaced = true
			break
		}
	}
	if !replaced {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "agents"}, seq)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode pipeline config: %w", err)
	}
	return os.WriteFile(path, out, 0644)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != "" && t != "false" && t != "0" && t != "no"
	default:
		return v != nil
	}
}
