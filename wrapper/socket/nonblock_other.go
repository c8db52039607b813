//go:build !unix

package socket

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/nuln/stream"
)

// readNonBlocking approximates a single read attempt with a short deadline.
// Any deadline set with SetReadDeadline is cleared.
func readNonBlocking(conn net.Conn, p []byte) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	n, err := conn.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, stream.ErrWouldBlock
	}
	return n, err
}
