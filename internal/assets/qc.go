// Package assets checks art assets against budget and catalogs them.
package assets

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bitfield/script"
)

// Budgets.
const (
	MaxTexture  = 2048
	MaxPolygons = 5000
)

// QCReport is the file RunQC writes.
const QCReport = "asset_qc.json"

// IssuePivot is reported for meshes whose first vertex is off the origin.
const IssuePivot = "pivot not at origin"

var (
	faceLine   = regexp.MustCompile(`^f `)
	vertexLine = regexp.MustCompile(`^v `)
)

// Issue is one QC failure.
type Issue struct {
	Asset string `json:"asset"`
	Issue string `json:"issue"`
}

// QC holds the limits used by Run.
type QC struct {
	MaxTexture  int
	MaxPolygons int
}

// DefaultQC uses the standard budgets.
func DefaultQC() QC {
	return QC{MaxTexture: MaxTexture, MaxPolygons: MaxPolygons}
}

// Run walks dir and returns every issue found. A missing dir has no issues.
func (q QC) Run(dir string) ([]Issue, error) {
	issues := []Issue{}
	err := walkFiles(dir, func(path string, _ fs.FileInfo) error {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".png", ".jpg", ".jpeg":
			w, h, err := TextureSize(path)
			if err != nil {
				issues = append(issues, Issue{path, fmt.Sprintf("unreadable texture: %v", err)})
				return nil
			}
			if w > q.MaxTexture || h > q.MaxTexture {
				issues = append(issues, Issue{path, fmt.Sprintf("texture %dx%d exceeds %d", w, h, q.MaxTexture)})
			}
		case ".obj":
			polys, err := Polygons(path)
			if err != nil {
				return err
			}
			if polys > q.MaxPolygons {
				issues = append(issues, Issue{path, fmt.Sprintf("polycount %d exceeds %d", polys, q.MaxPolygons)})
			}
			if !ZeroPivot(path) {
				issues = append(issues, Issue{path, IssuePivot})
			}
		}
		return nil
	})
	return issues, err
}

// RunQC runs the default QC over dir and writes asset_qc.json into outDir.
func RunQC(dir, outDir string) ([]Issue, error) {
	issues, err := DefaultQC().Run(dir)
	if err != nil {
		return nil, fmt.Errorf("asset qc: %w", err)
	}
	return issues, writeJSON(filepath.Join(outDir, QCReport), issues)
}

// LoadIssues reads asset_qc.json grouped by asset. A missing file is empty.
func LoadIssues(path string) (map[string][]string, error) {
	out := map[string][]string{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	var issues []Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, i := range issues {
		out[i.Asset] = append(out[i.Asset], i.Issue)
	}
	return out, nil
}

// TextureSize reads image dimensions without decoding pixels.
func TextureSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// Polygons counts face lines in an OBJ file.
func Polygons(path string) (int, error) {
	return script.File(path).MatchRegexp(faceLine).CountLines()
}

// ZeroPivot reports whether the first vertex of an OBJ file sits at the origin.
func ZeroPivot(path string) bool {
	first, err := script.File(path).MatchRegexp(vertexLine).First(1).String()
	if err != nil {
		return false
	}
	parts := strings.Fields(first)
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts[1:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || math.Abs(v) >= 1e-6 {
			return false
		}
	}
	return true
}

func walkFiles(dir string, fn func(string, fs.FileInfo) error) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return fn(path, info)
	})
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
