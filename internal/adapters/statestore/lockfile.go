package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"finvizTraderBot/internal/ports"
)

// FileLock is an advisory lock file guarding state-mutating operations so
// auxiliary tools (eodnow, flatten) and the main loop never mutate the same
// snapshot concurrently.
type FileLock struct {
	path string
}

// AcquireLock creates the lock file exclusively, writing the holder's PID.
// Returns ports.ErrLockHeld when another process holds it.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory '%s': %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, _ := os.ReadFile(path)
			return nil, fmt.Errorf("%w: %s (pid %s)", ports.ErrLockHeld, path, string(holder))
		}
		return nil, fmt.Errorf("failed to create lock file '%s': %w", path, err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file '%s': %v %v", path, werr, cerr)
	}
	return &FileLock{path: path}, nil
}

// Release removes the lock file.
func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file '%s': %w", l.path, err)
	}
	return nil
}
