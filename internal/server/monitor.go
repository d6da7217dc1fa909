package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/philjestin/studiomode/internal/publish"
	"github.com/philjestin/studiomode/internal/report"
	"github.com/philjestin/studiomode/internal/status"
)

// Monitor serves the pipeline state read from disk.
type Monitor struct {
	StatusPath    string
	ReportsDir    string
	ChangelogPath string
}

// CIFeature is one row of /ci-status.
type CIFeature struct {
	Feature  string       `json:"feature"`
	Status   status.State `json:"status"`
	Started  *time.Time   `json:"started"`
	Ended    *time.Time   `json:"ended"`
	Duration float64      `json:"duration"`
	Summary  string       `json:"summary"`
	Multi    bool         `json:"multi"`
}

// Reports is the /reports payload.
type Reports struct {
	Artifacts []string `json:"artifacts"`
	Summary   string   `json:"summary"`
	Changelog string   `json:"changelog"`
}

// Handler routes GET /status, /reports and /ci-status.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", m.handleStatus)
	mux.HandleFunc("GET /reports", m.handleReports)
	mux.HandleFunc("GET /ci-status", m.handleCIStatus)
	return mux
}

// handleStatus echoes the status file, or {status: idle} without a valid one.
func (m *Monitor) handleStatus(w http.ResponseWriter, _ *http.Request) {
	data, err := os.ReadFile(m.StatusPath)
	if err == nil && json.Valid(data) {
		writeJSON(w, json.RawMessage(data))
		return
	}
	writeJSON(w, map[string]string{"status": "idle"})
}

func (m *Monitor) handleReports(w http.ResponseWriter, _ *http.Request) {
	artifacts, _ := publish.Artifacts(m.ReportsDir)
	if artifacts == nil {
		artifacts = []string{}
	}
	var changelog string
	if data, err := os.ReadFile(m.ChangelogPath); err == nil {
		changelog = string(data)
	}
	writeJSON(w, Reports{
		Artifacts: artifacts,
		Summary:   filepath.Join(m.ReportsDir, report.SummaryName),
		Changelog: changelog,
	})
}

func (m *Monitor) handleCIStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string][]CIFeature{"features": CIStatus(status.Load(m.StatusPath))})
}

// CIStatus flattens the status document into rows sorted by feature name.
func CIStatus(doc status.Document) []CIFeature {
	out := []CIFeature{}
	for _, name := range doc.Names() {
		fs := doc.Features[name]
		out = append(out, CIFeature{
			Feature:  name,
			Status:   fs.Status,
			Started:  fs.Started,
			Ended:    fs.Ended,
			Duration: fs.Duration,
			Summary:  fs.SummaryPath,
			Multi:    fs.IsMulti,
		})
	}
	return out
}
