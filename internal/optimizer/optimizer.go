// Package optimizer suggests stages that can be skipped because they are fast,
// reliable and keep seeing the same input.
package optimizer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/store"
)

const (
	// Window is how many recent traces and learning entries are considered.
	Window = 10

	// FastThreshold is the average duration at or below which a stage is cheap to skip.
	FastThreshold = 5 * time.Second

	// RepeatThreshold is how often one input hash must recur to justify a skip.
	RepeatThreshold = 3

	skipPrefix = "--skip="
)

// Suggestion is the optimizer verdict.
type Suggestion struct {
	// Skip lists flags for stages that can be skipped.
	Skip []string `json:"skip_flags"`

	// Warn lists fast, reliable stages without repeated input.
	Warn []string `json:"warn_flags"`

	// Saved is the estimated time saved by honouring Skip.
	Saved time.Duration `json:"-"`

	Notes string `json:"opt_notes"`
}

// Suggest inspects traces and learning entries grouped by agent.
func Suggest(traces map[string][]journal.TraceEntry, log map[string][]store.Interaction) Suggestion {
	var s Suggestion

	agentNames := make([]string, 0, len(traces))
	for a := range traces {
		agentNames = append(agentNames, a)
	}
	sort.Strings(agentNames)

	for _, agent := range agentNames {
		recent := lastTraces(traces[agent], Window)
		if !allSuccess(recent) {
			continue
		}
		avg := averageDuration(recent)
		if avg > FastThreshold {
			continue
		}

		flag := Flag(agent)
		if repeated(lastInteractions(log[agent], Window)) {
			s.Skip = append(s.Skip, flag)
			s.Saved += avg
		} else {
			s.Warn = append(s.Warn, flag)
		}
	}

	if len(s.Skip) > 0 {
		names := make([]string, 0, len(s.Skip))
		for _, f := range s.Skip {
			names = append(names, strings.TrimPrefix(f, skipPrefix))
		}
		s.Notes = fmt.Sprintf("⚡ Up to %d s saved by skipping: %s", int(s.Saved.Seconds()), strings.Join(names, ", "))
	}
	return s
}

// Flag is the skip flag for an agent: CoderAgent becomes --skip=coder.
func Flag(agent string) string {
	return skipPrefix + strings.ToLower(strings.ReplaceAll(agent, "Agent", ""))
}

// ApplySkip removes the agents named by flags from agents, keeping order.
func ApplySkip(agents []string, flags []string) []string {
	skip := map[string]bool{}
	for _, f := range flags {
		skip[strings.ToLower(strings.TrimPrefix(f, skipPrefix))] = true
	}

	out := make([]string, 0, len(agents))
	for _, a := range agents {
		if skip[strings.TrimPrefix(Flag(a), skipPrefix)] {
			continue
		}
		out = append(out, a)
	}
	return out
}

func lastTraces(entries []journal.TraceEntry, n int) []journal.TraceEntry {
	if len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

func lastInteractions(entries []store.Interaction, n int) []store.Interaction {
	if len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

// allSuccess requires at least one status and every status to be success.
func allSuccess(entries []journal.TraceEntry) bool {
	seen := false
	for _, e := range entries {
		if e.Status == "" {
			continue
		}
		if e.Status != "success" {
			return false
		}
		seen = true
	}
	return seen
}

func averageDuration(entries []journal.TraceEntry) time.Duration {
	var total time.Duration
	n := 0
	for _, e := range entries {
		if e.StartTime.IsZero() || e.EndTime.IsZero() {
			continue
		}
		total += e.Duration()
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

func repeated(entries []store.Interaction) bool {
	count := map[string]int{}
	for _, e := range entries {
		if e.Hash == "" {
			continue
		}
		count[e.Hash]++
		if count[e.Hash] >= RepeatThreshold {
			return true
		}
	}
	return false
}
