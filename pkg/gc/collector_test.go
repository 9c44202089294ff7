package gc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = ".partial-"

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("partial payload"), 0o644))
	when := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, when, when))
}

func TestNewCollector_Validation(t *testing.T) {
	_, err := NewCollector("", prefix, Config{})
	assert.Error(t, err)

	_, err = NewCollector(t.TempDir(), "", Config{})
	assert.Error(t, err)

	c, err := NewCollector(t.TempDir(), prefix, Config{})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, c.config.Interval)
	assert.Equal(t, time.Hour, c.config.MinAge)
}

func TestRunNow_DeletesOnlyStaleTempFiles(t *testing.T) {
	root := t.TempDir()

	stale := filepath.Join(root, "docs", prefix+"111")
	fresh := filepath.Join(root, prefix+"222")
	regular := filepath.Join(root, "docs", "report.txt")
	writeAged(t, stale, 2*time.Hour)
	writeAged(t, fresh, time.Minute)
	writeAged(t, regular, 48*time.Hour)

	c, err := NewCollector(root, prefix, Config{MinAge: time.Hour})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Equal(t, uint64(1), stats.DeletedCount)
	assert.Equal(t, uint64(1), stats.InProgressCount)
	assert.Equal(t, uint64(2), stats.ScannedDirs)
	assert.Equal(t, int64(len("partial payload")), stats.OrphanedBytes)
	assert.Contains(t, stats.Summary(), "deleted=1")

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, regular)
}

func TestRunNow_DryRunKeepsFiles(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, prefix+"333")
	writeAged(t, stale, 3*time.Hour)

	c, err := NewCollector(root, prefix, Config{MinAge: time.Hour, DryRun: true})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Equal(t, uint64(0), stats.DeletedCount)
	assert.FileExists(t, stale)
}

func TestRunNow_MissingRoot(t *testing.T) {
	c, err := NewCollector(filepath.Join(t.TempDir(), "gone"), prefix, Config{})
	require.NoError(t, err)

	_, err = c.RunNow(context.Background())
	assert.Error(t, err)
}

func TestRunNow_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, prefix+"444"), 2*time.Hour)

	c, err := NewCollector(root, prefix, Config{MinAge: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.RunNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_SweepsPeriodically(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, prefix+"555")
	writeAged(t, stale, 2*time.Hour)

	c, err := NewCollector(root, prefix, Config{Enabled: true, Interval: 20 * time.Millisecond, MinAge: time.Hour})
	require.NoError(t, err)

	c.Start()
	c.Start()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestStop_BeforeStartAndDisabled(t *testing.T) {
	c, err := NewCollector(t.TempDir(), prefix, Config{Enabled: true})
	require.NoError(t, err)
	require.NoError(t, c.Stop(context.Background()))
	c.Start()
	assert.False(t, c.running, "Start after Stop is a no-op")

	disabled, err := NewCollector(t.TempDir(), prefix, Config{})
	require.NoError(t, err)
	disabled.Start()
	require.NoError(t, disabled.Stop(context.Background()))
}
