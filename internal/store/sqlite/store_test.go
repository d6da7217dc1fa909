package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philjestin/studiomode/internal/store"
)

func TestInteractionsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	for _, res := range []string{store.ResultError, store.ResultSuccess, store.ResultError} {
		require.NoError(t, s.RecordInteraction(ctx, store.Interaction{
			Agent:  "CoderAgent",
			Hash:   "h1",
			Input:  "make jump",
			Output: res + " output",
			Result: res,
		}))
	}
	require.NoError(t, s.RecordInteraction(ctx, store.Interaction{Agent: "TesterAgent", Hash: "h2", Result: store.ResultSuccess}))

	got, err := s.Interactions(ctx, "CoderAgent")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "error output", got[0].Output)
	assert.Equal(t, store.ResultSuccess, got[1].Result)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	byAgent, err := s.InteractionsByAgent(ctx)
	require.NoError(t, err)
	assert.Len(t, byAgent["CoderAgent"], 3)
	assert.Len(t, byAgent["TesterAgent"], 1)

	agents, err := s.Agents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CoderAgent", "TesterAgent"}, agents)
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	first := uuid.NewString()
	second := uuid.NewString()
	now := time.Now().UTC()
	require.NoError(t, s.StartRun(ctx, store.Run{ID: first, Feature: "jump", StartedAt: now.Add(-time.Minute)}))
	require.NoError(t, s.StartRun(ctx, store.Run{ID: second, Feature: "inventory", StartedAt: now}))
	require.NoError(t, s.FinishRun(ctx, first, "passed", "ci_reports/summary.html"))

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, "running", runs[0].Status)
	assert.Nil(t, runs[0].EndedAt)
	assert.Equal(t, "passed", runs[1].Status)
	assert.NotNil(t, runs[1].EndedAt)

	limited, err := s.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.Error(t, s.FinishRun(ctx, "missing", "failed", ""))
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "studio.db")

	s, err := OpenMigrated(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.RecordInteraction(ctx, store.Interaction{Agent: "A", Result: store.ResultSuccess}))
	require.NoError(t, s.Close())

	s, err = OpenMigrated(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Interactions(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		t.Fatalf("migrate store: %v", err)
	}
	return s
}
