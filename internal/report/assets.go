package report

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/philjestin/studiomode/internal/assets"
)

// AssetRow is one line of the assets report.
type AssetRow struct {
	Name     string
	Path     string
	Polygons string
	Texture  string
	Status   string
}

// AssetsReport writes assets_report.html for assetDir. Assets listed in the
// QC file under qcPath are marked Error.
func AssetsReport(assetDir, qcPath, outDir string, meta Meta) (string, error) {
	issues, err := assets.LoadIssues(qcPath)
	if err != nil {
		return "", err
	}
	entries, err := assets.Scan(assetDir)
	if err != nil {
		return "", err
	}

	rows := make([]AssetRow, 0, len(entries))
	for _, e := range entries {
		row := AssetRow{
			Name:     filepath.Base(e.Path),
			Path:     e.Path,
			Polygons: "-",
			Texture:  "-",
			Status:   "OK",
		}
		local := filepath.FromSlash(e.Path)
		switch strings.ToLower(filepath.Ext(local)) {
		case ".obj":
			if n, err := assets.Polygons(local); err == nil {
				row.Polygons = strconv.Itoa(n)
			}
		case ".png", ".jpg", ".jpeg":
			if w, h, err := assets.TextureSize(local); err == nil {
				row.Texture = fmt.Sprintf("%dx%d", w, h)
			}
		}
		if _, bad := issues[local]; bad {
			row.Status = "Error"
		}
		rows = append(rows, row)
	}

	return writeHTML(outDir, AssetsReportName, struct {
		Assets []AssetRow
		Meta   Meta
	}{rows, meta})
}
