//go:build unix

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileLock holds a blocking, process-wide advisory lock on a single file
// via flock(2), following the same x/sys-backed approach Sneller takes for
// its own OS-level primitives rather than reaching for a third-party flock
// package.
type fileLock struct {
	f *os.File
}

// lockFile opens (creating if needed) and blockingly flocks path. The
// caller must call Unlock when done.
func lockFile(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) Unlock() error {
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}
