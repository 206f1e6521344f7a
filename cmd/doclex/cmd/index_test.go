package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCmd_OneShotCrawl(t *testing.T) {
	isolateEnv(t)

	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.txt"), []byte("hello doclex"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "b.md"), []byte("# heading\n\nbody"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "c.bin"), []byte{0x00}, 0o644))

	cmd := newIndexCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--plain", "--no-color", docs})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "2")
}

func TestIndexCmd_NoDirectoriesIsConfigError(t *testing.T) {
	isolateEnv(t)

	cmd := newIndexCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfig, exitCodeFor(err))
}
