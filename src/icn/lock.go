//go:build unix

package icn

import (
	"os"

	"github.com/intercoop/icnnode/src/common"
	"golang.org/x/sys/unix"
)

// dirLock is an exclusive advisory lock on the data directory. Only the
// process holding it may mutate the state document or the queue.
type dirLock struct {
	f *os.File
}

// lockDataDir takes the lock without waiting. It fails with a Config error if
// another process holds it.
func lockDataDir(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, common.WrapErr(common.Io, err, "Failed to open lock file %s", path)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, common.NewErr(common.Config, "Data directory is in use by another node process (%s)", path)
		}
		return nil, common.WrapErr(common.Io, err, "Failed to lock %s", path)
	}

	return &dirLock{f: f}, nil
}

func (l *dirLock) release() error {
	if l == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
