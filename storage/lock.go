package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var ErrInstanceRunning = errors.New("another lumora instance is using this data directory")

// InstanceLock marks a data directory as owned by one client process. Every
// save rewrites the whole conversation record, so two clients on one
// directory would overwrite each other.
type InstanceLock struct {
	path string
}

// AcquireInstanceLock creates <dataDir>/lumora.lock holding this process's
// PID. A lock left behind by a process that no longer exists is taken over.
func AcquireInstanceLock(dataDir string) (*InstanceLock, error) {
	return acquireLock(filepath.Join(dataDir, "lumora.lock"), os.Getpid())
}

func acquireLock(lockPath string, pid int) (*InstanceLock, error) {
	for attempt := 0; attempt < 3; attempt++ {
		err := createLockFile(lockPath, pid)
		if err == nil {
			return &InstanceLock{path: lockPath}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		data, err := os.ReadFile(lockPath)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read lock file: %w", err)
		}

		owner, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && owner == pid {
			return &InstanceLock{path: lockPath}, nil
		}
		if parseErr == nil && processAlive(owner) {
			return nil, fmt.Errorf("%w (pid %d)", ErrInstanceRunning, owner)
		}

		// stale
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lock file: %w", err)
		}
	}
	return nil, ErrInstanceRunning
}

// createLockFile writes the PID to a private temp file and links it into
// place. The link fails with fs.ErrExist when the lock is held, and a lock
// file is never visible without its PID.
func createLockFile(lockPath string, pid int) error {
	tmp, err := os.CreateTemp(filepath.Dir(lockPath), ".lumora.lock-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = tmp.WriteString(strconv.Itoa(pid))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return err
	}
	return os.Link(tmpPath, lockPath)
}

// Release removes the lock file.
func (l *InstanceLock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

var processAlive = func(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 only checks for existence. Platforms without signal support
	// report an error and the stale lock is taken over.
	return proc.Signal(syscall.Signal(0)) == nil
}
