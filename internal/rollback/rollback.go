// Package rollback keeps the last good workspace per feature and applies
// emergency patches on top of it.
package rollback

import (
	"errors"
	"os"

	"github.com/philjestin/studiomode/internal/backup"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/patch"
)

// PatchFile is the team-lead patch looked for in the reports dir.
const PatchFile = "teamlead_patch.json"

// Manager saves success states and applies emergency patches.
type Manager struct {
	Backups *backup.Manager

	// Workspace is restored before an emergency patch is applied.
	Workspace string

	// ScriptsRoot is where patch paths are resolved.
	ScriptsRoot string

	Journal *journal.Journal
}

// SaveSuccessState snapshots source for feature.
func (m *Manager) SaveSuccessState(feature, source string) (backup.Snapshot, error) {
	return m.Backups.Save(feature, source)
}

// ApplyEmergencyPatch restores the last state of feature and applies the patch in
// patchFile. A missing or unreadable patch returns false. A failed restore is
// logged and the patch is still applied.
func (m *Manager) ApplyEmergencyPatch(feature, patchFile string) (bool, error) {
	p, err := patch.Load(patchFile)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		logger.Warn("invalid emergency patch", "path", patchFile, "error", err)
		return false, nil
	}

	if err := patch.Validate(p); err != nil {
		logger.Warn("rejected emergency patch", "path", patchFile, "error", err)
		return false, nil
	}

	if _, err := m.Backups.Restore(feature, m.Workspace); err != nil {
		logger.Warn("restore before emergency patch failed", "feature", feature, "error", err)
	}

	if _, err := patch.Apply(p, m.ScriptsRoot); err != nil {
		return false, err
	}
	if m.Journal != nil {
		m.Journal.Log("CI", "Emergency Patch")
	}
	return true, nil
}
