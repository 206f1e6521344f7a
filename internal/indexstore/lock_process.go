package indexstore

import (
	"os"
	"syscall"
)

// processLive reports whether pid identifies a live OS process. Sending
// signal 0 performs existence/permission checks without actually
// signaling the process, the standard liveness-check idiom on POSIX
// systems; os.FindProcess always succeeds on POSIX so the real check is
// the Signal call's error.
func processLive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
