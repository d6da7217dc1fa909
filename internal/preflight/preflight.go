// Package preflight validates project_map.json before the pipeline trusts it.
// It checks the map against the project tree so stale entries surface before
// agents plan on top of them.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/philjestin/studiomode/internal/index"
)

// Feature statuses accepted in the map.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
	StatusTodo   = "todo"
)

// ValidationResult contains the outcome of pre-flight checks.
type ValidationResult struct {
	Valid    bool
	Warnings []Warning
	Errors   []ValidationError
	// ValidatedFiles are files confirmed to exist
	ValidatedFiles []string
	// MissingFiles are files referenced but not found
	MissingFiles []string
}

// Warning is a non-blocking issue.
type Warning struct {
	Code    string
	Message string
	Feature string
	File    string
}

// ValidationError is a blocking issue.
type ValidationError struct {
	Code    string
	Message string
	Feature string
	File    string
}

// Validator checks a project map against the project tree.
type Validator struct {
	projectPath string
	pm          *index.ProjectMap
}

// New creates a validator for the map pm of the project rooted at projectPath.
func New(projectPath string, pm *index.ProjectMap) *Validator {
	return &Validator{projectPath: projectPath, pm: pm}
}

// Validate loads the map and runs every check. A missing map is created empty.
// Only I/O failures are returned as errors; problems in the map land in the result.
func (v *Validator) Validate(ctx context.Context) (*ValidationResult, error) {
	result := &ValidationResult{
		Valid:          true,
		Warnings:       []Warning{},
		Errors:         []ValidationError{},
		ValidatedFiles: []string{},
		MissingFiles:   []string{},
	}

	if err := v.pm.Ensure(); err != nil {
		return nil, fmt.Errorf("create project map: %w", err)
	}
	m, err := v.pm.Load()
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Code:    "PARSE_ERROR",
			Message: err.Error(),
			File:    v.pm.Path(),
		})
		result.Valid = false
		return result, nil
	}

	// 1. Schema version
	if m.SchemaVersion != index.SchemaVersion {
		result.Errors = append(result.Errors, ValidationError{
			Code:    "SCHEMA_VERSION",
			Message: fmt.Sprintf("Unsupported schema_version %d, expected %d", m.SchemaVersion, index.SchemaVersion),
		})
	}

	ids := make([]string, 0, len(m.Features))
	for id := range m.Features {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := m.Features[id]

		// 2. Names and statuses
		v.validateEntry(id, f, result)

		// 3. Files exist under the project
		if !f.Deleted {
			v.validateFiles(id, f, result)
		}
	}

	// 4. Dependencies
	v.validateDependencies(m, ids, result)

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// validateEntry checks the name and status of one feature.
func (v *Validator) validateEntry(id string, f index.MapFeature, result *ValidationResult) {
	if strings.TrimSpace(f.Name) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Code:    "MISSING_NAME",
			Message: fmt.Sprintf("Feature %s has no name", id),
			Feature: id,
		})
	} else if f.Name != id {
		result.Warnings = append(result.Warnings, Warning{
			Code:    "NAME_MISMATCH",
			Message: fmt.Sprintf("Feature %s is named %s", id, f.Name),
			Feature: id,
		})
	}

	switch f.Status {
	case StatusDone, StatusFailed, StatusTodo:
	case "":
		result.Warnings = append(result.Warnings, Warning{
			Code:    "NO_STATUS",
			Message: fmt.Sprintf("Feature %s has no status", id),
			Feature: id,
		})
	default:
		result.Errors = append(result.Errors, ValidationError{
			Code:    "INVALID_STATUS",
			Message: fmt.Sprintf("Feature %s has status %q, expected done, failed or todo", id, f.Status),
			Feature: id,
		})
	}

	if f.Tested && f.Status == StatusFailed {
		result.Warnings = append(result.Warnings, Warning{
			Code:    "TESTED_BUT_FAILED",
			Message: fmt.Sprintf("Feature %s is marked tested but failed", id),
			Feature: id,
		})
	}
}

// validateFiles checks that the files of a feature exist inside the project.
// Missing files block done features and only warn otherwise.
func (v *Validator) validateFiles(id string, f index.MapFeature, result *ValidationResult) {
	for _, file := range f.Files {
		clean := filepath.Clean(filepath.FromSlash(file))
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			result.Errors = append(result.Errors, ValidationError{
				Code:    "OUTSIDE_PROJECT",
				Message: fmt.Sprintf("File of %s is outside the project: %s", id, file),
				Feature: id,
				File:    file,
			})
			continue
		}

		if _, err := os.Stat(filepath.Join(v.projectPath, clean)); err != nil {
			result.MissingFiles = append(result.MissingFiles, file)
			msg := fmt.Sprintf("File of %s does not exist: %s", id, file)
			if f.Status == StatusDone {
				result.Errors = append(result.Errors, ValidationError{Code: "FILE_NOT_FOUND", Message: msg, Feature: id, File: file})
			} else {
				result.Warnings = append(result.Warnings, Warning{Code: "FILE_NOT_FOUND", Message: msg, Feature: id, File: file})
			}
			continue
		}
		result.ValidatedFiles = append(result.ValidatedFiles, file)
	}
}

// validateDependencies checks depends_on references and looks for cycles.
func (v *Validator) validateDependencies(m index.Map, ids []string, result *ValidationResult) {
	var edges []toposort.Edge
	for _, id := range ids {
		f := m.Features[id]
		for _, dep := range f.DependsOn {
			target, ok := m.Features[dep]
			switch {
			case !ok:
				result.Errors = append(result.Errors, ValidationError{
					Code:    "UNKNOWN_DEPENDENCY",
					Message: fmt.Sprintf("Feature %s depends on unknown feature %s", id, dep),
					Feature: id,
				})
				continue
			case dep == id:
				result.Errors = append(result.Errors, ValidationError{
					Code:    "SELF_DEPENDENCY",
					Message: fmt.Sprintf("Feature %s depends on itself", id),
					Feature: id,
				})
				continue
			case target.Deleted && !f.Deleted:
				result.Warnings = append(result.Warnings, Warning{
					Code:    "DELETED_DEPENDENCY",
					Message: fmt.Sprintf("Feature %s depends on deleted feature %s", id, dep),
					Feature: id,
				})
			}
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	if len(edges) == 0 {
		return
	}
	if _, err := toposort.Toposort(edges); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Code:    "DEPENDENCY_CYCLE",
			Message: fmt.Sprintf("Feature dependencies form a cycle: %v", err),
		})
	}
}

// Sync copies every live map feature with a valid status into the feature index.
// It returns the number of rows written.
func Sync(pm *index.ProjectMap, idx *index.FeatureIndex) (int, error) {
	m, err := pm.Load()
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(m.Features))
	for id := range m.Features {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := 0
	for _, id := range ids {
		f := m.Features[id]
		if f.Deleted {
			continue
		}
		switch f.Status {
		case StatusDone, StatusFailed, StatusTodo:
		default:
			continue
		}
		name := f.Name
		if name == "" {
			name = id
		}
		if err := idx.Update(id, name, f.Status); err != nil {
			return n, fmt.Errorf("sync %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

// Format returns a human-readable report of the result.
func (r *ValidationResult) Format() string {
	var sb strings.Builder
	sb.WriteString("# Project Map Validation\n\n")

	if r.Valid {
		sb.WriteString("✅ **VALID** - project_map.json is consistent\n\n")
	} else {
		sb.WriteString("❌ **INVALID** - fix the errors below\n\n")
	}

	if len(r.Errors) > 0 {
		sb.WriteString("## Errors\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", e.Code, e.Message))
		}
		sb.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("## Warnings\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", w.Code, w.Message))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("%d file(s) verified, %d missing\n", len(r.ValidatedFiles), len(r.MissingFiles)))
	return sb.String()
}

// Concise returns a one-line summary.
func (r *ValidationResult) Concise() string {
	if r.Valid {
		return fmt.Sprintf("✅ Valid (%d files verified, %d warnings)",
			len(r.ValidatedFiles), len(r.Warnings))
	}
	return fmt.Sprintf("❌ Invalid (%d errors, %d warnings)",
		len(r.Errors), len(r.Warnings))
}
