// Package patch parses, validates and applies the JSON file patches produced by the coder model.
package patch

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	pathpkg "path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/philjestin/studiomode/internal/gitutil"
)

// ActionOverwrite is the only supported modification action.
const ActionOverwrite = "overwrite"

// CommitMessage is used when an applied patch lands inside a git work tree.
const CommitMessage = "feat: apply AI patch"

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid patch")

	// ErrNoJSON is returned when a response carries no JSON object.
	ErrNoJSON = errors.New("no JSON block")
)

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)(\{.*\})`)
	contentStr = regexp.MustCompile(`(?s)"content"\s*:\s*"(.*?)"\s*([,}])`)
)

// Modification is one file write.
type Modification struct {
	Path     string `json:"path"`
	Action   string `json:"action"`
	Encoding string `json:"encoding,omitempty"`
	Content  string `json:"content"`
}

// Patch is a set of file writes.
type Patch struct {
	Modifications []Modification `json:"modifications"`
}

// Paths lists the modified paths in order.
func (p *Patch) Paths() []string {
	out := make([]string, 0, len(p.Modifications))
	for _, m := range p.Modifications {
		out = append(out, m.Path)
	}
	return out
}

// Extract finds the patch JSON in a model response: the first fenced block, else the outermost braces.
func Extract(text string) (*Patch, error) {
	var raw string
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if m := bareJSON.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else {
		return nil, ErrNoJSON
	}

	var p Patch
	err := json.Unmarshal([]byte(raw), &p)
	if err == nil {
		return &p, nil
	}

	repaired := repairContent(raw)
	if err2 := json.Unmarshal([]byte(repaired), &p); err2 != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}
	return &p, nil
}

// repairContent escapes raw control characters inside "content" strings.
func repairContent(raw string) string {
	return contentStr.ReplaceAllStringFunc(raw, func(match string) string {
		sub := contentStr.FindStringSubmatch(match)
		body := strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`).Replace(sub[1])
		return `"content":"` + body + `"` + sub[2]
	})
}

// Validate checks the patch shape and that every path stays under the project.
func Validate(p *Patch) error {
	if p == nil || len(p.Modifications) == 0 {
		return fmt.Errorf("%w: no modifications", ErrInvalid)
	}
	for _, m := range p.Modifications {
		path := slashPath(m.Path)
		if !strings.HasSuffix(path, ".cs") {
			return fmt.Errorf("%w: only .cs files allowed: %s", ErrInvalid, m.Path)
		}
		if m.Action != ActionOverwrite {
			return fmt.Errorf("%w: action must be overwrite: %s", ErrInvalid, m.Path)
		}
		if filepath.IsAbs(m.Path) || strings.HasPrefix(path, "/") || hasVolume(path) {
			return fmt.Errorf("%w: absolute path: %s", ErrInvalid, m.Path)
		}
		if escapes(pathpkg.Clean(path)) {
			return fmt.Errorf("%w: path escapes project: %s", ErrInvalid, m.Path)
		}
	}
	return nil
}

// slashPath treats backslashes as separators so Windows-style paths are checked
// the same way on every platform.
func slashPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func escapes(clean string) bool {
	return clean == ".." || strings.HasPrefix(clean, "../")
}

func hasVolume(p string) bool {
	return len(p) >= 2 && p[1] == ':'
}

// Decode turns base64 contents into text in place.
// Literal \n and \t sequences become real characters and a trailing newline is ensured.
func Decode(p *Patch) error {
	for i := range p.Modifications {
		m := &p.Modifications[i]
		if m.Encoding != "base64" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(m.Content))
		if err != nil {
			return fmt.Errorf("%w: %s: bad base64: %v", ErrInvalid, m.Path, err)
		}
		text := strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(string(data))
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		m.Content = text
		m.Encoding = ""
	}
	return nil
}

// ApplyResult describes what Apply wrote.
type ApplyResult struct {
	Files     []string
	Committed bool
}

// Apply writes every modification under root. Inside a git work tree the files
// are staged and committed.
func Apply(p *Patch, root string) (ApplyResult, error) {
	var res ApplyResult
	for _, m := range p.Modifications {
		if m.Action != ActionOverwrite {
			return res, fmt.Errorf("%w: unsupported action %q", ErrInvalid, m.Action)
		}
		dst := filepath.Join(root, filepath.FromSlash(slashPath(m.Path)))
		if rel, err := filepath.Rel(root, dst); err != nil || escapes(filepath.ToSlash(rel)) {
			return res, fmt.Errorf("%w: path escapes project: %s", ErrInvalid, m.Path)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return res, fmt.Errorf("create dir for %s: %w", m.Path, err)
		}
		if err := os.WriteFile(dst, []byte(m.Content), 0644); err != nil {
			return res, fmt.Errorf("write %s: %w", m.Path, err)
		}
		res.Files = append(res.Files, dst)
	}

	if len(res.Files) == 0 || !gitutil.IsWorkTree(root) {
		return res, nil
	}
	if err := gitutil.Add(root, res.Files...); err != nil {
		return res, err
	}
	committed, err := gitutil.Commit(root, CommitMessage)
	if err != nil {
		return res, err
	}
	res.Committed = committed
	return res, nil
}

// Diff renders unified diffs of each modification against the files under root.
func Diff(p *Patch, root string) (string, error) {
	var sb strings.Builder
	for _, m := range p.Modifications {
		before := ""
		if data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(slashPath(m.Path)))); err == nil {
			before = string(data)
		}
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(before),
			B:        difflib.SplitLines(m.Content),
			FromFile: "before/" + m.Path,
			ToFile:   "after/" + m.Path,
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("diff %s: %w", m.Path, err)
		}
		sb.WriteString(diff)
	}
	return sb.String(), nil
}

// Load reads a patch file.
func Load(path string) (*Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &p, nil
}

// Save writes p as indented JSON.
func Save(p *Patch, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
