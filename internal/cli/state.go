package cli

import (
	"context"
	"fmt"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/store/sqlite"
)

// state is the workspace bookkeeping needed by commands that do not drive the engine.
type state struct {
	cfg      *config.Config
	db       *sqlite.Store
	journal  *journal.Journal
	tracer   *journal.Tracer
	learning *learning.Recorder
}

func openState(ctx context.Context) (*state, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	db, err := sqlite.OpenMigrated(ctx, cfg.Paths.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	j := journal.New(cfg.Paths.Journal)
	return &state{
		cfg:      cfg,
		db:       db,
		journal:  j,
		tracer:   journal.NewTracer(cfg.Paths.Trace),
		learning: learning.NewRecorder(db, j),
	}, nil
}

func (s *state) Close() error {
	return s.db.Close()
}
