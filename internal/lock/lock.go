// Package lock implements the PID lock file that keeps a single daemon
// running per host.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultPath is the well-known location of the daemon lock file.
const DefaultPath = "/var/run/powa_daemon.lock"

var (
	// ErrAlreadyRunning means a live process owns the lock file.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrNotHeld means the lock file was absent when it was released.
	ErrNotHeld = errors.New("lock file does not exist")
)

// StaleFunc is called when a lock file left by a dead process is replaced.
type StaleFunc func(path string, pid int, cause error)

// File is the lock artifact of one daemon instance.
type File struct {
	path    string
	pid     int
	onStale StaleFunc

	mu   sync.Mutex
	held bool
}

// New returns the lock at path for the current process. An empty path means
// DefaultPath.
func New(path string, onStale StaleFunc) *File {
	if path == "" {
		path = DefaultPath
	}
	return &File{path: path, pid: os.Getpid(), onStale: onStale}
}

// Path returns the lock file location.
func (f *File) Path() string { return f.path }

// Held reports whether this instance created the lock file.
func (f *File) Held() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held
}

// Acquire creates the lock file holding the current pid. An existing file
// whose pid is alive yields ErrAlreadyRunning; a file left by a dead or
// unknown pid is replaced once.
func (f *File) Acquire() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return nil
	}

	err := f.create()
	if err == nil {
		f.held = true
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return err
	}

	owner, rerr := ReadPID(f.path)
	if rerr == nil {
		alive, aerr := process.PidExists(int32(owner))
		if aerr != nil || alive {
			return fmt.Errorf("%w: lock file %s owned by pid %d", ErrAlreadyRunning, f.path, owner)
		}
		rerr = fmt.Errorf("pid %d is not running", owner)
	} else if errors.Is(rerr, fs.ErrNotExist) {
		rerr = errors.New("lock file vanished")
	}

	if f.onStale != nil {
		f.onStale(f.path, owner, rerr)
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale lock file %s: %w", f.path, err)
	}
	if err := f.create(); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: lock file %s recreated concurrently", ErrAlreadyRunning, f.path)
		}
		return err
	}
	f.held = true
	return nil
}

// create writes the pid with O_EXCL so creation is the mutual exclusion.
// A partially written file is removed.
func (f *File) create() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	fh, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create lock file %s: %w", f.path, err)
	}
	if _, err := fh.WriteString(strconv.Itoa(f.pid)); err != nil {
		_ = fh.Close()
		_ = os.Remove(f.path)
		return fmt.Errorf("write lock file %s: %w", f.path, err)
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(f.path)
		return fmt.Errorf("close lock file %s: %w", f.path, err)
	}
	return nil
}

// Release removes the lock file. ErrNotHeld is returned when it is already
// gone.
func (f *File) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false

	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotHeld, f.path)
	}
	if err != nil {
		return fmt.Errorf("remove lock file %s: %w", f.path, err)
	}
	return nil
}

// ReadPID returns the pid recorded in the lock file at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid in %s: %w", path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d in %s", pid, path)
	}
	return pid, nil
}

// Owner returns the pid recorded in f's lock file.
func (f *File) Owner() (int, error) {
	return ReadPID(f.path)
}
