// Package lockfile serializes bridge operations per branch with advisory
// file locks. Only one importer, checkin or rebase may touch a branch's
// sync point at a time; concurrent attempts fail fast with ErrLockBusy
// rather than queue.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLockBusy is returned when another process holds the lock.
var ErrLockBusy = errors.New("branch is locked by another bridge process")

// Lock is a held branch lock. Release it when the operation finishes.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the exclusive lock for a branch, creating dir as needed.
// The lock file records the holder's PID for diagnosis. Returns
// ErrLockBusy (possibly wrapped with the holder's PID) without blocking
// when the lock is already held.
func Acquire(dir, branch string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, lockName(branch))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := flockExclusiveNonBlock(f); err != nil {
		holder := readHolder(f)
		f.Close()
		if errors.Is(err, ErrLockBusy) && holder > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrLockBusy, holder)
		}
		return nil, err
	}
	// Lock held; the PID is informational only, flock is what protects.
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
		f.Sync()
	}
	return &Lock{f: f, path: path}, nil
}

// Release drops the lock. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	if err := flockUnlock(l.f); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// lockName flattens a branch name into a single path component.
func lockName(branch string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(branch)
	return safe + ".lock"
}

func readHolder(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
