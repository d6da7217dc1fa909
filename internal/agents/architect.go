package agents

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/philjestin/studiomode/internal/memory"
)

// Layout chosen by the architect for generated features.
const (
	FeaturesDir       = "Assets/Scripts/Features"
	FeaturesNamespace = "MyProject.Features"
	FeaturesAsmdef    = "MyProject.Features.asmdef"
	ScenesDir         = "Assets/Scenes/Generated"
)

const sceneHeader = "%YAML 1.0\n%TAG !u! tag:unity3d.com,2011:\n"

// ArchitectAgent picks the script path, namespace and assembly for a feature.
type ArchitectAgent struct {
	Memory *memory.Store
}

// Name implements Agent.
func (a *ArchitectAgent) Name() string { return Architect }

// Run resolves the feature from feature, task or tasks[0].feature.
func (a *ArchitectAgent) Run(_ context.Context, in Input) (Output, error) {
	feature := FeatureOf(in)
	out := Output{
		"feature":   feature,
		"task":      in["task"],
		"path":      FeaturesDir + "/" + strings.ReplaceAll(feature, " ", "") + ".cs",
		"namespace": FeaturesNamespace,
		"asmdef":    FeaturesAsmdef,
	}
	if a.Memory != nil {
		if err := a.Memory.Write("architecture", out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FeatureOf extracts the feature name the way upstream stages pass it along.
func FeatureOf(in Input) string {
	if s := in.String("feature"); s != "" {
		return s
	}
	switch t := in["task"].(type) {
	case string:
		if t != "" {
			return t
		}
	case map[string]any:
		if s, ok := t["feature"].(string); ok {
			return s
		}
	}
	switch tasks := in["tasks"].(type) {
	case []map[string]any:
		if len(tasks) > 0 {
			s, _ := tasks[0]["feature"].(string)
			return s
		}
	case []any:
		if len(tasks) > 0 {
			if m, ok := tasks[0].(map[string]any); ok {
				s, _ := m["feature"].(string)
				return s
			}
		}
	}
	return ""
}

// SceneBuilderAgent writes a test scene for the generated script.
type SceneBuilderAgent struct {
	// Root is the engine project directory scenes are written under.
	Root string

	Memory *memory.Store
}

// Name implements Agent.
func (a *SceneBuilderAgent) Name() string { return SceneBuilder }

type sceneObject struct {
	GameObject struct {
		Name       string              `yaml:"m_Name"`
		Components []map[string]string `yaml:"m_Component"`
	} `yaml:"GameObject"`
}

// Run writes <Stem>_Test.unity. With attach_to_scene the scene holds a GameObject
// carrying the component; otherwise it is an empty scene.
func (a *SceneBuilderAgent) Run(_ context.Context, in Input) (Output, error) {
	if in.String("path") == "" && a.Memory != nil {
		var arch map[string]any
		if ok, err := a.Memory.Read("architecture", &arch); err == nil && ok {
			in = in.Merge(Output(arch))
		}
	}

	script := in.String("path")
	if script == "" {
		script = "Generated/Helper.cs"
	}
	base := path.Base(strings.ReplaceAll(script, `\`, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))

	content, err := SceneContent(stem, in.Bool("attach_to_scene"))
	if err != nil {
		return nil, err
	}

	rel := ScenesDir + "/" + stem + "_Test.unity"
	dst := filepath.Join(a.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("create scene dir: %w", err)
	}
	if err := os.WriteFile(dst, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("write scene: %w", err)
	}

	out := Output{"scene_path": rel}
	if a.Memory != nil {
		if err := a.Memory.Write("scene", out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SceneContent renders the scene file for a component.
func SceneContent(component string, attach bool) (string, error) {
	if !attach {
		return sceneHeader, nil
	}

	var obj sceneObject
	obj.GameObject.Name = "Feature_" + component
	obj.GameObject.Components = []map[string]string{{"component": component}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(obj); err != nil {
		return "", fmt.Errorf("encode scene: %w", err)
	}
	enc.Close()
	return sceneHeader + "--- !u!1 &1\n" + buf.String(), nil
}
