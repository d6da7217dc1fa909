// Package usage tracks LLM token usage per agent.
package usage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Usage is the token count of one or more LLM calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	Calls            int `json:"calls"`
}

// Add combines two Usage records.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		Calls:            u.Calls + other.Calls,
	}
}

// Total is prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Tracker aggregates usage per agent.
type Tracker struct {
	agents map[string]Usage
	mu     sync.Mutex
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{agents: make(map[string]Usage)}
}

// Add records one call for agent. A nil tracker ignores calls.
func (t *Tracker) Add(agent string, prompt, completion int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents[agent] = t.agents[agent].Add(Usage{PromptTokens: prompt, CompletionTokens: completion, Calls: 1})
}

// Agent returns the usage recorded for agent.
func (t *Tracker) Agent(agent string) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agents[agent]
}

// Total returns usage across all agents.
func (t *Tracker) Total() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total Usage
	for _, u := range t.agents {
		total = total.Add(u)
	}
	return total
}

// Summary returns a formatted table sorted by agent name, or "" when empty.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.agents) == 0 {
		return ""
	}

	names := make([]string, 0, len(t.agents))
	for n := range t.agents {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("\n   🔢 TOKEN USAGE\n")
	sb.WriteString("   ───────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("   %-24s %6s %10s %10s\n", "Agent", "Calls", "Prompt", "Output"))
	sb.WriteString("   ───────────────────────────────────────────────────────────\n")

	var total Usage
	for _, n := range names {
		u := t.agents[n]
		sb.WriteString(fmt.Sprintf("   %-24s %6d %10s %10s\n",
			truncate(n, 24), u.Calls, formatTokens(u.PromptTokens), formatTokens(u.CompletionTokens)))
		total = total.Add(u)
	}

	sb.WriteString("   ───────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("   %-24s %6d %10s %10s\n",
		"TOTAL", total.Calls, formatTokens(total.PromptTokens), formatTokens(total.CompletionTokens)))
	return sb.String()
}

func formatTokens(n int) string {
	if n == 0 {
		return "-"
	}
	return formatWithCommas(n)
}

func formatWithCommas(n int) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var out strings.Builder
	lead := len(str) % 3
	if lead > 0 {
		out.WriteString(str[:lead])
	}
	for i := lead; i < len(str); i += 3 {
		if out.Len() > 0 {
			out.WriteString(",")
		}
		out.WriteString(str[i : i+3])
	}
	return out.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
