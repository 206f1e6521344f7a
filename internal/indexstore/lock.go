package indexstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/doclex/doclex/internal/doclexerr"
)

const lockFileName = "doclex.lock"

// dirLock is the index directory's lock file, backed by gofrs/flock for
// the OS-level exclusive lock plus a small PID payload that lets a later
// process recognize and clear a stale lock left by a crashed owner.
type dirLock struct {
	fl   *flock.Flock
	path string
}

// acquireLock tries the lock; on failure, it reads the owning PID, and
// if that process isn't live, deletes the stale lock file and retries
// once before giving up with INDEX_UNAVAILABLE.
func acquireLock(dir string) (*dirLock, error) {
	path := filepath.Join(dir, lockFileName)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, doclexerr.IndexUnavailable("failed to acquire index lock", err)
	}

	if !locked {
		if recovered, rerr := recoverStaleLock(path); rerr != nil {
			return nil, rerr
		} else if recovered {
			locked, err = fl.TryLock()
			if err != nil {
				return nil, doclexerr.IndexUnavailable("failed to acquire index lock after stale-lock recovery", err)
			}
		}
	}

	if !locked {
		return nil, doclexerr.LockHeld(fmt.Sprintf("index lock held by a live process: %s", path))
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, doclexerr.IndexUnavailable("failed to write lock owner pid", err)
	}

	return &dirLock{fl: fl, path: path}, nil
}

// recoverStaleLock reads the PID encoded in the lock file; if that PID
// does not correspond to a live process, it removes the lock file so the
// caller can retry acquisition once.
func recoverStaleLock(path string) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// No PID payload to read; nothing to recover, but also nothing
		// blocking - the caller's retry will simply re-attempt the flock.
		return true, nil
	}
	if err != nil {
		return false, doclexerr.TransientIO("read lock file", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		// Unreadable payload; treat conservatively as live (fail, don't guess).
		return false, nil
	}

	if processLive(pid) {
		return false, nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, doclexerr.TransientIO("remove stale lock file", err)
	}
	return true, nil
}

// release drops the OS lock and removes the lock file.
func (l *dirLock) release() error {
	if l == nil {
		return nil
	}
	err := l.fl.Unlock()
	_ = os.Remove(l.path)
	return err
}
