//go:build unix

package socket

import (
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nuln/stream"
)

// readNonBlocking performs a single read attempt on the raw descriptor
// without parking on the poller.
func readNonBlocking(conn net.Conn, p []byte) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, stream.ErrNotSupported
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var (
		n       int
		readErr error
	)
	err = raw.Read(func(fd uintptr) bool {
		n, readErr = unix.Read(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}
	switch {
	case errors.Is(readErr, unix.EAGAIN), errors.Is(readErr, unix.EWOULDBLOCK):
		return 0, stream.ErrWouldBlock
	case readErr != nil:
		return 0, readErr
	case n == 0 && !isPacketConn(conn):
		return 0, io.EOF
	}
	return n, nil
}

func isPacketConn(conn net.Conn) bool {
	_, ok := conn.(net.PacketConn)
	return ok
}
