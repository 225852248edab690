//go:build darwin || linux

package sharedfile

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/brynmoore/streamstore/internal/storeerr"
)

func lockExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return storeerr.New(storeerr.Busy, "another process already holds the write lock for this data file")
		}
		return storeerr.Wrap(storeerr.Io, "acquiring exclusive file lock", err)
	}
	return nil
}

func lockShared(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return storeerr.New(storeerr.Busy, "cannot acquire a shared lock for this data file right now")
		}
		return storeerr.Wrap(storeerr.Io, "acquiring shared file lock", err)
	}
	return nil
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
