// Package report renders the HTML and Markdown artifacts of a pipeline run.
package report

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/philjestin/studiomode/internal/gitutil"
)

// Report file names.
const (
	SummaryName      = "summary.html"
	MultiSummaryName = "multifeature_summary.html"
	AgentStatsName   = "agent_stats.html"
	OverviewName     = "ci_overview.html"
	AssetsReportName = "assets_report.html"
	ChangelogName    = "CHANGELOG.md"
	FinalSummaryName = "final_summary.md"
	MetaInsightsName = "meta_insights.md"

	AgentScoresName    = "agent_scores.html"
	LearningReportName = "learning_report.html"
	TraceReportName    = "trace_report.html"
	SelfMonitorName    = "self_monitor_report.md"
)

//go:embed templates
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	mdTemplates   = template.Must(template.New("md").Funcs(template.FuncMap{
		"percent": func(r float64) float64 { return r * 100 },
	}).ParseFS(templateFS, "templates/*.md.tmpl"))
)

// Meta is the provenance footer shared by reports.
type Meta struct {
	Date   string
	Commit string
	User   string
}

// NewMeta stamps the current time, the HEAD commit of repo and $USER.
func NewMeta(repo string) Meta {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	return Meta{
		Date:   time.Now().UTC().Format(time.RFC3339),
		Commit: gitutil.Head(repo),
		User:   user,
	}
}

// Pair is one ordered key/value row.
type Pair struct {
	Name  string
	Value string
}

// Pairs sorts a map into rows.
func Pairs(m map[string]string) []Pair {
	out := make([]Pair, 0, len(m))
	for k, v := range m {
		out = append(out, Pair{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func writeHTML(outDir, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return write(filepath.Join(outDir, name), buf.Bytes())
}

func renderMarkdown(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := mdTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func write(path string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// Render formats markdown for the terminal.
func Render(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}

// RenderFile formats a markdown file for the terminal.
func RenderFile(path string, width int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Render(string(data), width)
}
