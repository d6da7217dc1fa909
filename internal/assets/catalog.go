package assets

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// ManifestName is the file Catalog writes.
const ManifestName = "asset_manifest.json"

// Entry is one cataloged asset.
type Entry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Manifest is the asset_manifest.json document.
type Manifest struct {
	Assets []Entry `json:"assets"`
}

// Scan lists every file under dir with its size and lowercased extension.
func Scan(dir string) ([]Entry, error) {
	entries := []Entry{}
	err := walkFiles(dir, func(path string, info fs.FileInfo) error {
		entries = append(entries, Entry{
			Path: filepath.ToSlash(path),
			Size: info.Size(),
			Type: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		})
		return nil
	})
	return entries, err
}

// Catalog scans dir and writes asset_manifest.json into outDir.
func Catalog(dir, outDir string) ([]Entry, error) {
	entries, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	return entries, writeJSON(filepath.Join(outDir, ManifestName), Manifest{Assets: entries})
}
