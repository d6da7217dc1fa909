// Package learning records agent interactions and suggests hints from past successes.
package learning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/store"
)

// HintThreshold is the similarity a past input must exceed to produce a hint.
const HintThreshold = 0.7

// Recorder writes the learning log and answers hint queries.
type Recorder struct {
	log     store.LearningLog
	journal *journal.Journal
	runID   string
}

// NewRecorder returns a recorder. j may be nil.
func NewRecorder(log store.LearningLog, j *journal.Journal) *Recorder {
	return &Recorder{log: log, journal: j}
}

// WithRun tags subsequent records with a run id.
func (r *Recorder) WithRun(runID string) *Recorder {
	return &Recorder{log: r.log, journal: r.journal, runID: runID}
}

// Normalize renders v as text. Strings pass through; anything else becomes JSON with sorted keys.
func Normalize(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Hash is the hex sha256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Similarity is the difflib ratio between two strings, compared by character.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// Record stores one interaction.
func (r *Recorder) Record(ctx context.Context, agent string, input, output any, result string) error {
	in := Normalize(input)
	err := r.log.RecordInteraction(ctx, store.Interaction{
		RunID:  r.runID,
		Agent:  agent,
		Hash:   Hash(in),
		Input:  in,
		Output: Normalize(output),
		Result: result,
	})
	if err != nil {
		return err
	}
	r.note(fmt.Sprintf("record %s %s", agent, result))
	return nil
}

// Hint returns the output of the most similar successful input when it is similar enough.
func (r *Recorder) Hint(ctx context.Context, agent string, input any) (string, error) {
	entries, err := r.log.Interactions(ctx, agent)
	if err != nil {
		return "", err
	}

	target := Normalize(input)
	best, hint := 0.0, ""
	for _, e := range entries {
		if e.Result != store.ResultSuccess {
			continue
		}
		if ratio := Similarity(target, e.Input); ratio > best {
			best, hint = ratio, e.Output
		}
	}
	if best <= HintThreshold {
		return "", nil
	}

	logger.Debug("learning hint", "agent", agent, "ratio", best)
	r.note(fmt.Sprintf("hint %s %.2f", agent, best))
	return hint, nil
}

// Log returns the learning log grouped by agent.
func (r *Recorder) Log(ctx context.Context) (map[string][]store.Interaction, error) {
	return r.log.InteractionsByAgent(ctx)
}

func (r *Recorder) note(action string) {
	if r.journal != nil {
		r.journal.Log("Learning", action)
	}
}
