package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclex/doclex/internal/crawl"
	"github.com/doclex/doclex/internal/extract"
	"github.com/doclex/doclex/internal/indexstore"
)

func newTestIndexer(t *testing.T) (*Indexer, *indexstore.Store) {
	t.Helper()
	store, err := indexstore.Open(indexstore.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ix := New(store, extract.NewDefault(0, true), DefaultConfig())
	return ix, store
}

func newMatcher(t *testing.T) *crawl.Matcher {
	t.Helper()
	m, err := crawl.NewMatcher([]string{"*.txt"}, []string{"**/skip/**"})
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestClassify_AddUpdateSkip(t *testing.T) {
	ix, store := newTestIndexer(t)
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "original content")

	fi, err := os.Stat(path)
	require.NoError(t, err)

	// Unknown path classifies as ADD.
	action, err := ix.Classify(path, fi.Size(), fi.ModTime().UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, ActionAdd, action)

	// Index it, then the same stat classifies as SKIP.
	require.NoError(t, ix.Apply(Op{Path: path, Action: ActionAdd}))
	require.NoError(t, store.Commit(context.Background()))

	action, err = ix.Classify(path, fi.Size(), fi.ModTime().UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, action)

	// A different size classifies as UPDATE.
	action, err = ix.Classify(path, fi.Size()+10, fi.ModTime().UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, action)

	// A different mtime classifies as UPDATE.
	action, err = ix.Classify(path, fi.Size(), fi.ModTime().UnixMilli()+5000)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, action)
}

func TestApply_UpdateReplacesNotDuplicates(t *testing.T) {
	// One document per path at any committed point.
	ix, store := newTestIndexer(t)
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")

	writeFile(t, path, "first version")
	require.NoError(t, ix.Apply(Op{Path: path, Action: ActionAdd}))
	require.NoError(t, store.Commit(context.Background()))

	writeFile(t, path, "second version with different text")
	require.NoError(t, ix.Apply(Op{Path: path, Action: ActionUpdate}))
	require.NoError(t, store.Commit(context.Background()))

	count, err := store.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	fields, ok, err := store.LookupFields(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, len("second version with different text"), fields["file_size"])
}

func TestApply_AddOfVanishedFileBecomesDelete(t *testing.T) {
	ix, store := newTestIndexer(t)
	path := filepath.Join(t.TempDir(), "gone.txt")
	writeFile(t, path, "here now")

	require.NoError(t, ix.Apply(Op{Path: path, Action: ActionAdd}))
	require.NoError(t, store.Commit(context.Background()))

	require.NoError(t, os.Remove(path))
	require.NoError(t, ix.Apply(Op{Path: path, Action: ActionUpdate}))
	require.NoError(t, store.Commit(context.Background()))

	count, err := store.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestClassifyMissing_FindsDeleteCandidates(t *testing.T) {
	ix, store := newTestIndexer(t)
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	writeFile(t, a, "stays")
	writeFile(t, b, "goes")

	require.NoError(t, ix.Apply(Op{Path: a, Action: ActionAdd}))
	require.NoError(t, ix.Apply(Op{Path: b, Action: ActionAdd}))
	require.NoError(t, store.Commit(context.Background()))

	ops, err := ix.ClassifyMissing(map[string]bool{a: true})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, b, ops[0].Path)
	assert.Equal(t, ActionDelete, ops[0].Action)
}

func TestReconcile_FullCycle(t *testing.T) {
	ix, store := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "b.txt"), "beta")
	writeFile(t, filepath.Join(root, "skip", "c.txt"), "excluded")
	writeFile(t, filepath.Join(root, "d.log"), "wrong extension")

	err := Reconcile(context.Background(), ix, []string{root}, newMatcher(t), nil)
	require.NoError(t, err)

	count, err := store.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	snap := ix.Snapshot()
	assert.Equal(t, 2, snap.Added)
	assert.Zero(t, snap.Errors)
}

func TestReconcile_SecondRunIsAllSkips(t *testing.T) {
	// Index N documents, reconcile again - the diff yields N SKIPs and
	// no mutations.
	ix, store := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "b.txt"), "beta")

	matcher := newMatcher(t)
	require.NoError(t, Reconcile(context.Background(), ix, []string{root}, matcher, nil))
	seqAfterFirst := store.CommitSequence()

	// Fresh indexer for clean counters, same store.
	ix2 := New(store, extract.NewDefault(0, true), DefaultConfig())
	require.NoError(t, Reconcile(context.Background(), ix2, []string{root}, matcher, nil))

	snap := ix2.Snapshot()
	assert.Equal(t, 2, snap.Skipped)
	assert.Zero(t, snap.Added)
	assert.Zero(t, snap.Updated)
	assert.Zero(t, snap.Deleted)
	assert.Equal(t, seqAfterFirst, store.CommitSequence(), "no mutations means no commits")
}

func TestReconcile_DeletesRemovedFiles(t *testing.T) {
	ix, store := newTestIndexer(t)
	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	writeFile(t, a, "alpha")
	writeFile(t, b, "beta")

	matcher := newMatcher(t)
	require.NoError(t, Reconcile(context.Background(), ix, []string{root}, matcher, nil))

	require.NoError(t, os.Remove(b))
	ix2 := New(store, extract.NewDefault(0, true), DefaultConfig())
	require.NoError(t, Reconcile(context.Background(), ix2, []string{root}, matcher, nil))

	count, err := store.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 1, ix2.Snapshot().Deleted)
}

func TestReconcile_ProgressReported(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, "f"+string(rune('a'+i))+".txt"), "content")
	}

	var last Progress
	calls := 0
	err := Reconcile(context.Background(), ix, []string{root}, newMatcher(t), func(p Progress) {
		last = p
		calls++
	})
	require.NoError(t, err)
	assert.Positive(t, calls)
	assert.Equal(t, 5, last.FilesProcessed)
}
