//go:build !unix

package icn

// dirLock is a no-op where flock is unavailable.
type dirLock struct{}

func lockDataDir(path string) (*dirLock, error) {
	return &dirLock{}, nil
}

func (l *dirLock) release() error {
	return nil
}
