package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclex/doclex/internal/config"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Index.Path = filepath.Join(t.TempDir(), "index")
	cfg.Crawler.Directories = []string{t.TempDir()}
	cfg.Crawler.WatchEnabled = false
	return cfg
}

func TestNew_BuildsAndCloses(t *testing.T) {
	e, err := New(newTestConfig(t))
	require.NoError(t, err)
	require.NotNil(t, e.Store())
	require.NotNil(t, e.Observer())
	require.NotNil(t, e.Executor())
	require.NoError(t, e.Close())
	// Close is idempotent.
	require.NoError(t, e.Close())
}

func TestNew_HoldsIndexLock(t *testing.T) {
	cfg := newTestConfig(t)
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	// A second engine over the same index directory must fail on the lock.
	_, err = New(cfg)
	require.Error(t, err)
}

func TestPauseResumeStatus(t *testing.T) {
	e, err := New(newTestConfig(t))
	require.NoError(t, err)
	defer e.Close()

	status := e.CrawlerStatus()
	assert.Equal(t, "idle", status.State)

	e.PauseCrawler()
	assert.Equal(t, "paused", e.CrawlerStatus().State)

	e.ResumeCrawler()
	assert.Equal(t, "idle", e.CrawlerStatus().State)
}

func TestReconciliationIndexesEligibleFiles(t *testing.T) {
	cfg := newTestConfig(t)
	root := cfg.Crawler.Directories[0]
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha document"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.bin"), []byte{0x00, 0x01}, 0o644))

	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	e.runReconciliation(context.Background())

	count, err := e.Store().DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	snap := e.CrawlerStatus()
	assert.Equal(t, 1, snap.Added)
}
