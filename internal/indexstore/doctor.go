package indexstore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SchemaStatus is the doctor's view of the persisted schema file.
type SchemaStatus struct {
	Present bool
	Version int
	Matches bool
}

// InspectSchema reads schema.version without opening the index.
func InspectSchema(dir string) (SchemaStatus, error) {
	v, present, err := readSchemaVersion(dir)
	if err != nil {
		return SchemaStatus{}, err
	}
	return SchemaStatus{
		Present: present,
		Version: v,
		Matches: !present || v == SchemaVersion,
	}, nil
}

// LockStatus is the doctor's view of the index lock file.
type LockStatus struct {
	Present   bool
	OwnerPID  int
	OwnerLive bool
}

// InspectLock reads the lock file's PID payload and checks liveness
// without attempting to acquire the lock.
func InspectLock(dir string) (LockStatus, error) {
	raw, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if os.IsNotExist(err) {
		return LockStatus{}, nil
	}
	if err != nil {
		return LockStatus{}, err
	}
	status := LockStatus{Present: true}
	if pid, perr := strconv.Atoi(strings.TrimSpace(string(raw))); perr == nil {
		status.OwnerPID = pid
		status.OwnerLive = processLive(pid)
	}
	return status, nil
}

// CheckWritable verifies dir exists (creating it if needed) and that a
// file can be created inside it.
func CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doclex-write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}
