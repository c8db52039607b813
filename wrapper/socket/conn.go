package socket

import (
	"net"
	"sync"
	"time"

	"github.com/nuln/stream"
)

// Conn is an open socket. It supports read and write deadlines and a
// non-blocking read mode in which a read with no data pending fails with
// stream.ErrWouldBlock.
type Conn struct {
	net.Conn
	network string

	mu       sync.Mutex
	blocking bool
}

// SetBlocking switches between blocking and non-blocking reads.
func (c *Conn) SetBlocking(blocking bool) error {
	c.mu.Lock()
	c.blocking = blocking
	c.mu.Unlock()
	return nil
}

func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	blocking := c.blocking
	c.mu.Unlock()
	if blocking || len(p) == 0 {
		return c.Conn.Read(p)
	}
	return readNonBlocking(c.Conn, p)
}

func (c *Conn) Stat() (*stream.EntryInfo, error) {
	return &stream.EntryInfo{
		Name:    c.RemoteAddr().String(),
		Path:    c.RemoteAddr().String(),
		ModTime: time.Now(),
	}, nil
}

// StreamType names the socket family.
func (c *Conn) StreamType() string { return c.network + "_socket" }

// WrapperData reports the local and remote addresses.
func (c *Conn) WrapperData() any {
	return map[string]string{
		"local":  c.LocalAddr().String(),
		"remote": c.RemoteAddr().String(),
	}
}

var (
	_ stream.Resource  = (*Conn)(nil)
	_ stream.Deadliner = (*Conn)(nil)
	_ stream.Blocker   = (*Conn)(nil)
	_ stream.Statter   = (*Conn)(nil)
)
