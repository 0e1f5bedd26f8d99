// Package lock guards against two xdpfwd daemons managing the same
// pin directory and state database at once, using flock(2) on a file
// in the state directory.
package lock

import (
	"fmt"
	"os"
	"syscall"
)

// Handle holds the single-instance lock until released.
type Handle struct {
	f *os.File
}

// Acquire takes an exclusive non-blocking lock on path, creating the
// file if needed. If another process holds the lock, Acquire fails
// immediately rather than waiting: a second daemon instance is an
// operator error, not a queueing problem.
func Acquire(path string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, fmt.Errorf("another instance holds %s", path)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Handle{f: f}, nil
}

// Release drops the lock. The kernel also releases it on process exit,
// so a crashed daemon never wedges the next one.
func (h *Handle) Release() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	return err
}
