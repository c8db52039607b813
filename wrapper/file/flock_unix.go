//go:build unix

package file

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/nuln/stream"
)

func flock(f *os.File, op stream.LockOp) error {
	var how int
	switch {
	case op&stream.LockUnlock != 0:
		how = unix.LOCK_UN
	case op&stream.LockExclusive != 0:
		how = unix.LOCK_EX
	case op&stream.LockShared != 0:
		how = unix.LOCK_SH
	default:
		return stream.ErrInvalid
	}
	if op&stream.LockNonBlocking != 0 {
		how |= unix.LOCK_NB
	}
	err := unix.Flock(int(f.Fd()), how)
	if err == unix.EWOULDBLOCK {
		return stream.ErrWouldBlock
	}
	return err
}
