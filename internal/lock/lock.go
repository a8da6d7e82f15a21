// Package lock serializes operations on one service across processes with an
// advisory flock on a file under the installation's locks directory.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"golang.org/x/sys/unix"
)

const (
	minBackoff = 50 * time.Millisecond
	maxBackoff = time.Second
)

// ErrTimeout is wrapped when the lock stays held past the timeout.
var ErrTimeout = errors.New("timed out waiting for service lock")

// Lock is a held advisory lock.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive lock on path, polling with backoff until timeout
// or ctx is done. A zero timeout fails immediately when the lock is held.
func Acquire(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, svcerr.New(svcerr.Filesystem, "", err).WithPath(filepath.Dir(path))
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, svcerr.New(svcerr.Filesystem, "", err).WithPath(path)
	}

	err = tryLock(f)
	if err == nil {
		return &Lock{f: f}, nil
	}
	if !errors.Is(err, unix.EWOULDBLOCK) {
		f.Close()
		return nil, svcerr.New(svcerr.Filesystem, "", fmt.Errorf("locking: %w", err)).WithPath(path)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := minBackoff
	for {
		select {
		case <-lockCtx.Done():
			f.Close()
			return nil, svcerr.New(svcerr.Filesystem, "", fmt.Errorf("%w after %v: %w", ErrTimeout, timeout, lockCtx.Err())).WithPath(path)
		case <-time.After(backoff):
		}
		err = tryLock(f)
		if err == nil {
			return &Lock{f: f}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, svcerr.New(svcerr.Filesystem, "", fmt.Errorf("locking: %w", err)).WithPath(path)
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func tryLock(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// Release drops the lock. The lock file stays in place for the next caller.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
