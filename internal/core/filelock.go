package core

import (
	"fmt"
	"os"
	"syscall"
)

// lockFile acquires an exclusive advisory lock (flock LOCK_EX) on path,
// creating the file if needed, and blocks until the lock is held. The
// returned unlock releases the lock and closes the handle. Concurrent fl
// processes serialize on this when allocating project IDs.
func lockFile(path string) (unlock func() error, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring file lock: %w", err)
	}

	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}
