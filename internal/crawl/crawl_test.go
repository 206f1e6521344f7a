package crawl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_IncludeByName_ExcludeByPath(t *testing.T) {
	m, err := NewMatcher([]string{"*.pdf", "*.txt"}, []string{"**/node_modules/**", "**/.git/**"})
	require.NoError(t, err)

	assert.True(t, m.Eligible("docs/report.pdf"))
	assert.True(t, m.Eligible("notes.txt"))
	assert.False(t, m.Eligible("docs/report.docx"), "extension not included")
	assert.False(t, m.Eligible("node_modules/pkg/readme.txt"), "excluded subtree")
	assert.False(t, m.Eligible(".git/config.txt"), "excluded subtree")
}

func TestMatcher_EmptyIncludesMatchEverything(t *testing.T) {
	m, err := NewMatcher(nil, []string{"**/tmp/**"})
	require.NoError(t, err)

	assert.True(t, m.Eligible("anything.xyz"))
	assert.False(t, m.Eligible("tmp/anything.xyz"))
}

func TestMatcher_InvalidPatternRejected(t *testing.T) {
	_, err := NewMatcher([]string{"[unclosed"}, nil)
	assert.Error(t, err)

	_, err = NewMatcher(nil, []string{"[unclosed"})
	assert.Error(t, err)
}

func TestMatcher_ExcludesDirPrunes(t *testing.T) {
	m, err := NewMatcher([]string{"*.txt"}, []string{"**/node_modules/**"})
	require.NoError(t, err)

	assert.True(t, m.ExcludesDir("node_modules"))
	assert.True(t, m.ExcludesDir("src/node_modules"))
	assert.False(t, m.ExcludesDir("src"))
}

func collectWalk(t *testing.T, root string, m *Matcher) []string {
	t.Helper()
	results := make(chan Result, 64)
	go Walk(context.Background(), root, m, results)

	var paths []string
	for r := range results {
		require.NoError(t, r.Err)
		paths = append(paths, r.File.Path)
	}
	return paths
}

func TestWalk_StreamsEligibleFiles(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("a.txt", "one")
	write("sub/b.txt", "two")
	write("sub/c.log", "skipped extension")
	write("node_modules/dep/d.txt", "pruned")

	m, err := NewMatcher([]string{"*.txt"}, []string{"**/node_modules/**"})
	require.NoError(t, err)

	paths := collectWalk(t, root, m)
	require.Len(t, paths, 2)
	assert.Contains(t, paths, filepath.Join(root, "a.txt"))
	assert.Contains(t, paths, filepath.Join(root, "sub", "b.txt"))
}

func TestWalk_ReportsSizeAndModTime(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))

	m, err := NewMatcher([]string{"*.txt"}, nil)
	require.NoError(t, err)

	results := make(chan Result, 4)
	go Walk(context.Background(), root, m, results)
	r := <-results
	require.NoError(t, r.Err)
	assert.Equal(t, int64(5), r.File.Size)
	assert.Positive(t, r.File.ModTime)
}

func TestWalk_ContextCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		name := filepath.Join(root, "f"+string(rune('a'+i%26))+string(rune('a'+i/26))+".txt")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}

	m, err := NewMatcher([]string{"*.txt"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := make(chan Result, 1)
	go Walk(ctx, root, m, results)
	n := 0
	for range results {
		n++
	}
	assert.Less(t, n, 50, "cancelled walk must not stream the full tree")
}

func TestJoinRoots_MergesAllRoots(t *testing.T) {
	root1, root2 := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root1, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root2, "b.txt"), []byte("y"), 0o644))

	m, err := NewMatcher([]string{"*.txt"}, nil)
	require.NoError(t, err)

	var paths []string
	for r := range JoinRoots(context.Background(), []string{root1, root2}, m) {
		require.NoError(t, r.Err)
		paths = append(paths, r.File.Path)
	}
	assert.Len(t, paths, 2)
}
