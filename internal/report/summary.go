package report

import (
	"os"
	"path/filepath"
	"time"
)

// SummaryData feeds summary.html.
type SummaryData struct {
	Feature   string
	Artifacts []string
	Results   map[string]string
	Changelog string
	Meta      Meta
}

// Summary writes summary.html into outDir. An assets report in outDir is linked
// as an extra artifact.
func Summary(outDir string, data SummaryData) (string, error) {
	artifacts := append([]string{}, data.Artifacts...)
	if _, err := os.Stat(filepath.Join(outDir, AssetsReportName)); err == nil {
		artifacts = append(artifacts, filepath.ToSlash(filepath.Join(outDir, AssetsReportName)))
	}
	return writeHTML(outDir, SummaryName, struct {
		Feature   string
		Artifacts []string
		Results   []Pair
		Changelog string
		Meta      Meta
	}{data.Feature, artifacts, Pairs(data.Results), data.Changelog, data.Meta})
}

// Feature result statuses.
const (
	FeatureSuccess = "success"
	FeatureError   = "error"
)

// FeatureResult is one row of the multi-feature summary.
type FeatureResult struct {
	Name    string  `json:"name"`
	Status  string  `json:"status"`
	Time    float64 `json:"time"`
	Summary string  `json:"summary"`
}

// MultiFeature writes multifeature_summary.html into outDir.
func MultiFeature(outDir string, results []FeatureResult, total time.Duration) (string, error) {
	data := struct {
		Results   []FeatureResult
		Count     int
		Success   int
		Errors    int
		TotalTime float64
		Date      string
	}{
		Results:   results,
		Count:     len(results),
		TotalTime: total.Seconds(),
		Date:      time.Now().UTC().Format(time.RFC3339),
	}
	for _, r := range results {
		switch r.Status {
		case FeatureSuccess:
			data.Success++
		case FeatureError:
			data.Errors++
		}
	}
	return writeHTML(outDir, MultiSummaryName, data)
}
