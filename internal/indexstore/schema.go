package indexstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/doclex/doclex/internal/doclexerr"
)

// SchemaVersion is bumped whenever any indexed field's type, analyzer, or
// set changes. It is the single source of truth the mapping in
// mapping.go must match.
const SchemaVersion = 1

const schemaFileName = "schema.version"

// readSchemaVersion reads schema.version from dir. A missing file returns
// (0, false, nil): the caller should write SchemaVersion and proceed.
func readSchemaVersion(dir string) (int, bool, error) {
	path := filepath.Join(dir, schemaFileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, doclexerr.TransientIO("read schema.version", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false, doclexerr.New(doclexerr.KindSchemaMismatch, doclexerr.CodeSchemaMismatch,
			fmt.Sprintf("schema.version is not a valid integer: %q", raw), err)
	}
	return v, true, nil
}

// writeSchemaVersion writes v atomically: write to a temp file in the same
// directory, then rename, so a crash never leaves a half-written version
// file.
func writeSchemaVersion(dir string, v int) error {
	path := filepath.Join(dir, schemaFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(v)), 0o644); err != nil {
		return doclexerr.TransientIO("write schema.version", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return doclexerr.TransientIO("rename schema.version into place", err)
	}
	return nil
}

// SchemaMismatchAction controls what openSchema does on a version mismatch.
type SchemaMismatchAction string

const (
	// SchemaFail refuses to open the index; it is the default.
	SchemaFail SchemaMismatchAction = "fail"
	// SchemaReindex wipes the index directory and starts fresh.
	SchemaReindex SchemaMismatchAction = "reindex"
)

// openSchema reconciles the persisted schema.version against
// SchemaVersion. wipe is called to clear the index directory when
// SchemaReindex is requested and versions disagree.
func openSchema(dir string, action SchemaMismatchAction, wipe func() error) error {
	version, existed, err := readSchemaVersion(dir)
	if err != nil {
		return err
	}
	if !existed {
		return writeSchemaVersion(dir, SchemaVersion)
	}
	if version == SchemaVersion {
		return nil
	}

	if action != SchemaReindex {
		return doclexerr.SchemaMismatch(fmt.Sprintf(
			"index schema.version=%d does not match code SCHEMA_VERSION=%d", version, SchemaVersion))
	}

	if err := wipe(); err != nil {
		return doclexerr.IndexUnavailable("failed to clear index for auto-reindex", err)
	}
	return writeSchemaVersion(dir, SchemaVersion)
}
