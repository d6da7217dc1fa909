package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/llm"
	"github.com/philjestin/studiomode/internal/logger"
)

// StubFeature is used when the request text is empty.
const StubFeature = "stub feature"

// Lore verdicts.
const (
	LorePass     = "LorePass"
	LoreMismatch = "Mismatch"
)

// GameDesignerAgent turns a request into a feature statement.
type GameDesignerAgent struct {
	// LLM expands the request when set.
	LLM llm.Generator
}

// Name implements Agent.
func (a *GameDesignerAgent) Name() string { return GameDesigner }

// Run maps {text} to {feature}.
func (a *GameDesignerAgent) Run(ctx context.Context, in Input) (Output, error) {
	text := strings.TrimSpace(in.String("text"))
	if text == "" {
		return Output{"feature": StubFeature}, nil
	}
	if a.LLM == nil {
		return Output{"feature": text}, nil
	}

	prompt := "Rewrite this game feature request as one short, concrete feature statement. " +
		"Reply with the statement only.\n\n" + text
	resp, err := a.LLM.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("feature expansion failed, using request text", "error", err)
		return Output{"feature": text}, nil
	}
	if resp = strings.TrimSpace(resp); resp == "" {
		resp = text
	}
	return Output{"feature": resp, "text": text}, nil
}

// ProjectManagerAgent splits a feature into tasks.
type ProjectManagerAgent struct{}

// Name implements Agent.
func (a *ProjectManagerAgent) Name() string { return ProjectManager }

// Run maps {feature} to a single task with the default acceptance criteria.
func (a *ProjectManagerAgent) Run(_ context.Context, in Input) (Output, error) {
	acceptance := in.Strings("acceptance")
	if len(acceptance) == 0 {
		acceptance = []string{"Compiles"}
	}
	task := map[string]any{"feature": in.String("feature"), "acceptance": acceptance}
	return Output{"tasks": []map[string]any{task}}, nil
}

var loreToken = regexp.MustCompile(`\p{L}+`)

// LoreValidatorAgent checks that descriptions only use terms known to the lore base.
type LoreValidatorAgent struct {
	// LoreDir holds free-text lore files.
	LoreDir string

	// Lorebook is a JSON file of lore entries.
	Lorebook string

	// OutDir receives lore_validation.md unless the input sets out_dir.
	OutDir string

	Journal *journal.Journal
}

// Name implements Agent.
func (a *LoreValidatorAgent) Name() string { return LoreValidator }

// Run compares {description, dialogues, assets} against the lore and writes a report.
func (a *LoreValidatorAgent) Run(_ context.Context, in Input) (Output, error) {
	feature := in.String("feature")
	if feature == "" {
		feature = "unknown"
	}
	outDir := in.String("out_dir")
	if outDir == "" {
		outDir = a.OutDir
	}

	known := Tokens(a.loreText())
	text := in.String("description") + " " + in.String("dialogues") + " " + strings.Join(in.Strings("assets"), " ")

	var missing []string
	for tok := range Tokens(text) {
		if !known[tok] {
			missing = append(missing, tok)
		}
	}
	sort.Strings(missing)

	status := LorePass
	mark := "✅"
	if len(missing) > 0 {
		status, mark = LoreMismatch, "⚠️"
	}

	lines := []string{
		"# Lore Validation",
		"**Feature:** " + feature,
		"**Status:** " + status + " " + mark,
		"",
	}
	if len(missing) > 0 {
		lines = append(lines, "## Unknown terms")
		for _, m := range missing {
			lines = append(lines, "- "+m)
		}
	} else {
		lines = append(lines, "All terms are present in the lore base.")
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	report := filepath.Join(outDir, "lore_validation.md")
	if err := os.WriteFile(report, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return nil, fmt.Errorf("write lore report: %w", err)
	}

	note(a.Journal, LoreValidator, fmt.Sprintf("%s %s (%d unknown)", feature, status, len(missing)))
	if missing == nil {
		missing = []string{}
	}
	return Output{"status": status, "report": report, "missing": missing}, nil
}

func (a *LoreValidatorAgent) loreText() string {
	var sb strings.Builder
	if a.LoreDir != "" {
		entries, _ := os.ReadDir(a.LoreDir)
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(a.LoreDir, e.Name()))
			if err != nil {
				continue
			}
			sb.Write(data)
			sb.WriteString("\n")
		}
	}

	if a.Lorebook != "" {
		if data, err := os.ReadFile(a.Lorebook); err == nil {
			var book any
			if err := json.Unmarshal(data, &book); err != nil {
				sb.Write(data)
			} else if m, ok := book.(map[string]any); ok {
				for _, v := range m {
					sb.WriteString(learning.Normalize(v))
					sb.WriteString(" \n")
				}
			} else {
				sb.Write(data)
			}
		}
	}
	return sb.String()
}

// Tokens returns the lowercased letter runs of text longer than two characters.
func Tokens(text string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range loreToken.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(tok) > 2 {
			out[tok] = true
		}
	}
	return out
}
