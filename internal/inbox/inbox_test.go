package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/philjestin/studiomode/internal/config"
)

func TestParse(t *testing.T) {
	dir := t.TempDir()
	feature := filepath.Join(dir, "double_jump.md")
	os.WriteFile(feature, []byte("  Let the player jump twice\n"), 0644)
	batch := filepath.Join(dir, "sprint.yaml")
	os.WriteFile(batch, []byte("features:\n  dash: Quick dash\n  inventory: Grid inventory\n"), 0644)
	other := filepath.Join(dir, "notes.json")
	os.WriteFile(other, []byte("{}"), 0644)

	req, err := Parse(feature)
	require.NoError(t, err)
	assert.Equal(t, "double_jump", req.Feature)
	assert.Equal(t, "Let the player jump twice", req.Prompt)
	assert.False(t, req.IsBatch())

	req, err = Parse(batch)
	require.NoError(t, err)
	assert.True(t, req.IsBatch())
	want := []config.BatchFeature{{Name: "dash", Prompt: "Quick dash"}, {Name: "inventory", Prompt: "Grid inventory"}}
	if diff := cmp.Diff(want, req.Batch); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}

	_, err = Parse(other)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("second"), 0644)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("first"), 0644)
	os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("features: [1, 2]"), 0644)
	os.WriteFile(filepath.Join(dir, "readme.json"), []byte("{}"), 0644)

	var got []string
	w := New(dir, func(_ context.Context, req Request) error {
		got = append(got, req.Feature)
		if req.Feature == "b" {
			return errors.New("run failed")
		}
		return nil
	})
	require.NoError(t, w.Scan(context.Background()))

	assert.Equal(t, []string{"a", "b"}, got)
	for _, name := range []string{"a.txt", "b.txt", "bad.yaml"} {
		assert.FileExists(t, filepath.Join(dir, ProcessedDir, name))
		assert.NoFileExists(t, filepath.Join(dir, name))
	}
	assert.FileExists(t, filepath.Join(dir, "readme.json"))
}

func TestArchiveClash(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, nil)
	os.MkdirAll(filepath.Join(dir, ProcessedDir), 0755)
	os.WriteFile(filepath.Join(dir, ProcessedDir, "jump.txt"), []byte("old"), 0644)
	os.WriteFile(filepath.Join(dir, "jump.txt"), []byte("new"), 0644)

	dest, err := w.archive(filepath.Join(dir, "jump.txt"))
	require.NoError(t, err)
	assert.NotEqual(t, filepath.Join(dir, ProcessedDir, "jump.txt"), dest)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestRunWatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("already here"), 0644)

	got := make(chan Request, 4)
	w := New(dir, func(_ context.Context, req Request) error {
		got <- req
		return nil
	})
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case req := <-got:
		assert.Equal(t, "existing", req.Feature)
	case <-time.After(5 * time.Second):
		t.Fatal("existing request not handled")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sprint.yml"), []byte("features:\n  dash: Quick dash\n"), 0644))
	select {
	case req := <-got:
		require.True(t, req.IsBatch())
		assert.Equal(t, "dash", req.Batch[0].Name)
	case <-time.After(5 * time.Second):
		t.Fatal("new request not handled")
	}

	cancel()
	require.NoError(t, <-done)
	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "sprint.yml"))
	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "existing.txt"))
}
