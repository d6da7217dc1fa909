package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/llm"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/patch"
	"github.com/philjestin/studiomode/internal/store"
	"github.com/philjestin/studiomode/internal/testgen"
)

// CoderAttempts is how many model answers are tried before giving up.
const CoderAttempts = 3

const coderSystem = "You are a concise, precise code-generation assistant."

const coderPrompt = "You are Unity-AI-Coder. Return ONE JSON block only:\n" +
	"\n" +
	"```\n" +
	"{\n" +
	"  \"modifications\": [\n" +
	"    {\n" +
	"      \"path\": \"<relative/path/File.cs>\",\n" +
	"      \"action\": \"overwrite\",\n" +
	"      \"encoding\": \"base64\",\n" +
	"      \"content\": \"<BASE64 STRING>\"\n" +
	"    }\n" +
	"  ]\n" +
	"}\n" +
	"```\n" +
	"\n" +
	"Encode full C# file to Base64 (UTF-8).\n" +
	"NO extra text outside the triple-backtick block.\n"

// ErrNoFeature is returned when the coder gets nothing to build.
var ErrNoFeature = errors.New("no feature to implement")

// CoderAgent asks the coder model for a patch and applies it to the scripts root.
type CoderAgent struct {
	Chat llm.Chatter

	// ScriptsRoot receives the patch files.
	ScriptsRoot string

	// ProjectRoot receives generated tests. Empty skips test generation.
	ProjectRoot string

	// TestReferences are added to the generated test assembly.
	TestReferences []string

	Learning *learning.Recorder
	Journal  *journal.Journal

	// Delay between invalid answers.
	Delay time.Duration
}

// Name implements Agent.
func (a *CoderAgent) Name() string { return Coder }

// Prompt builds the user message for a feature.
func Prompt(feature string, acceptance []string, hint, errText string) string {
	var sb strings.Builder
	sb.WriteString(coderPrompt)
	sb.WriteString("\n# Feature\n")
	sb.WriteString(feature)
	sb.WriteString("\n\n# Acceptance\n")
	for _, a := range acceptance {
		sb.WriteString("- " + a + "\n")
	}
	if hint != "" {
		sb.WriteString("\n# Similar accepted answer\n")
		sb.WriteString(hint)
		sb.WriteString("\n")
	}
	if errText != "" {
		sb.WriteString("\n# Error to fix\n")
		sb.WriteString(errText)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Run generates, validates and applies a patch. With dry_run the patch is only returned.
//
// Output keys: modifications ([]patch.Modification), files, tests.
func (a *CoderAgent) Run(ctx context.Context, in Input) (Output, error) {
	feature := FeatureOf(in)
	if feature == "" {
		return nil, ErrNoFeature
	}
	acceptance := acceptanceOf(in)
	spec := map[string]any{"feature": feature, "acceptance": acceptance}

	var hint string
	if a.Learning != nil {
		h, err := a.Learning.Hint(ctx, Coder, spec)
		if err != nil {
			logger.Warn("learning hint unavailable", "error", err)
		}
		hint = h
	}

	p, err := a.generate(ctx, Prompt(feature, acceptance, hint, in.String("error")))
	if err != nil {
		a.record(ctx, spec, err.Error(), store.ResultError)
		return nil, err
	}
	a.record(ctx, spec, p, store.ResultSuccess)

	out := Output{"modifications": p.Modifications, "files": p.Paths()}
	if in.Bool("dry_run") {
		return out, nil
	}

	res, err := patch.Apply(p, a.ScriptsRoot)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}
	note(a.Journal, Coder, fmt.Sprintf("applied %d file(s) for %s", len(res.Files), feature))

	tests := []string{}
	if a.ProjectRoot != "" {
		sources := map[string]string{}
		for _, m := range p.Modifications {
			sources[m.Path] = m.Content
		}
		written, err := testgen.Generate(a.ProjectRoot, sources, a.TestReferences)
		if err != nil {
			return nil, fmt.Errorf("generate tests: %w", err)
		}
		tests = written
	}
	out["tests"] = tests
	return out, nil
}

func (a *CoderAgent) generate(ctx context.Context, prompt string) (*patch.Patch, error) {
	if a.Chat == nil {
		return nil, errors.New("coder model not configured")
	}

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: coderSystem}}
	var lastErr error
	for attempt := 1; attempt <= CoderAttempts; attempt++ {
		fmt.Printf("   ⏳ Coder attempt %d/%d …\n", attempt, CoderAttempts)

		call := append(append([]llm.Message{}, msgs...), llm.Message{Role: llm.RoleUser, Content: prompt})
		resp, err := a.Chat.Chat(ctx, call, 0)
		if err == nil {
			var p *patch.Patch
			if p, err = parsePatch(resp); err == nil {
				return p, nil
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		fmt.Printf("   ⚠️  Attempt %d failed: %v\n", attempt, err)

		if attempt == CoderAttempts {
			break
		}
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf("Previous answer invalid (%v). Return VALID JSON only.", err),
		})
		if a.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.Delay):
			}
		}
	}
	return nil, fmt.Errorf("coder gave no valid patch after %d attempts: %w", CoderAttempts, lastErr)
}

func parsePatch(resp string) (*patch.Patch, error) {
	p, err := patch.Extract(resp)
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(p); err != nil {
		return nil, err
	}
	if err := patch.Decode(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (a *CoderAgent) record(ctx context.Context, spec map[string]any, output any, result string) {
	if a.Learning == nil {
		return
	}
	if err := a.Learning.Record(ctx, Coder, spec, output, result); err != nil {
		logger.Warn("learning record failed", "error", err)
	}
}

func acceptanceOf(in Input) []string {
	if acc := in.Strings("acceptance"); len(acc) > 0 {
		return acc
	}
	var first any
	switch tasks := in["tasks"].(type) {
	case []map[string]any:
		if len(tasks) > 0 {
			first = tasks[0]
		}
	case []any:
		if len(tasks) > 0 {
			first = tasks[0]
		}
	}
	if m, ok := first.(map[string]any); ok {
		if acc := Input(m).Strings("acceptance"); len(acc) > 0 {
			return acc
		}
	}
	return []string{"Compiles"}
}
