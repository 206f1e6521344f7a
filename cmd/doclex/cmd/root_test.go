package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclex/doclex/internal/doclexerr"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "index", "stats", "doctor", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCmd_Help(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "doclex")
	assert.Contains(t, out.String(), "serve")
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitConfig, exitCodeFor(&configError{cause: errors.New("bad yaml")}))
	assert.Equal(t, ExitFatal, exitCodeFor(doclexerr.SchemaMismatch("v2 vs v3")))
	assert.Equal(t, ExitFatal, exitCodeFor(doclexerr.LockHeld("held")))
	assert.Equal(t, ExitFatal, exitCodeFor(errors.New("anything else")))
}
