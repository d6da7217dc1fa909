// Package testgen writes NUnit EditMode smoke tests for generated C# classes.
package testgen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"text/template"
)

// Dir is where generated tests live, relative to the engine project.
const Dir = "Assets/Tests/Generated"

// AsmdefName is the generated test assembly.
const AsmdefName = "GeneratedTests"

var (
	namespaceRe = regexp.MustCompile(`\bnamespace\s+([\w.]+)`)
	staticRe    = regexp.MustCompile(`\bstatic\b`)
	abstractRe  = regexp.MustCompile(`\babstract\b`)
	monoRe      = regexp.MustCompile(`\bMonoBehaviour\b`)
	classRe     = regexp.MustCompile(`(?m)^\s*(?:public\s+|internal\s+)?((?:static\s+|abstract\s+|sealed\s+|partial\s+)*)class\s+(\w+)(?:\s*:\s*([\w.,\s<>]+?))?\s*(?:\{|$|where)`)
)

// Kind of generated class.
type Kind int

const (
	KindPlain Kind = iota
	KindMonoBehaviour
	KindStatic
	KindAbstract
)

// Class is a class found in generated source.
type Class struct {
	Name      string
	Namespace string
	Kind      Kind
}

// Scan finds top-level classes in C# source.
func Scan(source string) []Class {
	ns := ""
	if m := namespaceRe.FindStringSubmatch(source); m != nil {
		ns = m[1]
	}

	var out []Class
	for _, m := range classRe.FindAllStringSubmatch(source, -1) {
		c := Class{Name: m[2], Namespace: ns}
		switch {
		case staticRe.MatchString(m[1]):
			c.Kind = KindStatic
		case abstractRe.MatchString(m[1]):
			c.Kind = KindAbstract
		case monoRe.MatchString(m[3]):
			c.Kind = KindMonoBehaviour
		}
		out = append(out, c)
	}
	return out
}

var testTemplate = template.Must(template.New("test").Parse(`// Auto-generated test
using NUnit.Framework;
using UnityEngine;
{{- if .Namespace}}
using {{.Namespace}};
{{- end}}

namespace GeneratedTests
{
    public class {{.Name}}Tests
    {
        [Test]
{{- if eq .Kind 1}}
        public void {{.Name}}_CanBeAddedAsComponent()
        {
            var go = new GameObject("{{.Name}}_Test");
            var component = go.AddComponent<{{.Name}}>();
            Assert.IsNotNull(component);
            Object.DestroyImmediate(go);
        }
{{- else if eq .Kind 2}}
        public void {{.Name}}_IsAccessible()
        {
            Assert.IsNotNull(typeof({{.Name}}));
        }
{{- else if eq .Kind 3}}
        public void {{.Name}}_TypeExists()
        {
            Assert.IsTrue(typeof({{.Name}}).IsAbstract);
        }
{{- else}}
        public void {{.Name}}_CanBeInstantiated()
        {
            var instance = new {{.Name}}();
            Assert.IsNotNull(instance);
        }
{{- end}}
    }
}
`))

// Render returns the test source for c.
func Render(c Class) (string, error) {
	var buf bytes.Buffer
	if err := testTemplate.Execute(&buf, c); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Generate writes one test file per class found in sources and ensures the asmdef.
// sources maps a script path to its content. Written paths are relative to root.
func Generate(root string, sources map[string]string, references []string) ([]string, error) {
	dir := filepath.Join(root, filepath.FromSlash(Dir))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var written []string
	seen := map[string]bool{}
	for _, path := range sortedKeys(sources) {
		for _, c := range Scan(sources[path]) {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true

			src, err := Render(c)
			if err != nil {
				return written, fmt.Errorf("render %s: %w", c.Name, err)
			}
			rel := Dir + "/" + c.Name + "Tests.cs"
			if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(src), 0644); err != nil {
				return written, err
			}
			written = append(written, rel)
		}
	}

	created, err := EnsureAsmdef(root, references)
	if err != nil {
		return written, err
	}
	if created != "" {
		written = append(written, created)
	}
	return written, nil
}

// EnsureAsmdef creates GeneratedTests.asmdef when missing and returns its relative path.
func EnsureAsmdef(root string, references []string) (string, error) {
	rel := Dir + "/" + AsmdefName + ".asmdef"
	path := filepath.Join(root, filepath.FromSlash(rel))
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	refs := append([]string{}, references...)
	refs = append(refs, "UnityEngine.TestRunner", "UnityEditor.TestRunner")
	asmdef := map[string]any{
		"name":                  AsmdefName,
		"references":            refs,
		"includePlatforms":      []string{"Editor"},
		"excludePlatforms":      []string{},
		"allowUnsafeCode":       false,
		"overrideReferences":    true,
		"precompiledReferences": []string{"nunit.framework.dll"},
		"autoReferenced":        false,
		"defineConstraints":     []string{"UNITY_INCLUDE_TESTS"},
		"versionDefines":        []string{},
		"noEngineReferences":    false,
	}
	data, err := json.MarshalIndent(asmdef, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return rel, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
