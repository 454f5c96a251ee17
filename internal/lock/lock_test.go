package lock_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/power-warden/powa/internal/lock"
)

func lockPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "run", "powa.lock")
}

func TestAcquireWritesPid(t *testing.T) {
	path := lockPath(t)
	l := lock.New(path, nil)

	require.NoError(t, l.Acquire())
	assert.True(t, l.Held())

	pid, err := lock.ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Release())
	assert.False(t, l.Held())
	assert.NoFileExists(t, path)
}

func TestAcquireLiveOwner(t *testing.T) {
	path := lockPath(t)
	first := lock.New(path, nil)
	require.NoError(t, first.Acquire())

	second := lock.New(path, nil)
	err := second.Acquire()
	assert.ErrorIs(t, err, lock.ErrAlreadyRunning)
	assert.False(t, second.Held())

	pid, err := lock.ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid, "failed acquire must not disturb the owner")
}

func TestAcquireReplacesStaleLock(t *testing.T) {
	path := lockPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	// pid far above any pid_max
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)), 0o644))

	var stalePid int
	l := lock.New(path, func(_ string, pid int, cause error) {
		stalePid = pid
		assert.Error(t, cause)
	})
	require.NoError(t, l.Acquire())
	assert.Equal(t, 1<<30, stalePid)

	pid, err := lock.ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireReplacesGarbageLock(t *testing.T) {
	path := lockPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	l := lock.New(path, nil)
	require.NoError(t, l.Acquire())
	assert.True(t, l.Held())
}

func TestReleaseMissing(t *testing.T) {
	l := lock.New(lockPath(t), nil)
	assert.ErrorIs(t, l.Release(), lock.ErrNotHeld)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, lock.DefaultPath, lock.New("", nil).Path())
}
