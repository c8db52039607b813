package ws

import (
	"errors"
	"io"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/nuln/stream"
)

// GracefulCloseTimeout bounds the wait for the close frame to be sent.
var GracefulCloseTimeout = 100 * time.Millisecond

// Conn adapts a websocket connection to a byte stream.
type Conn struct {
	*ws.Conn
	messageType int
	reader      io.Reader
	closeOnce   func() error

	readLock, writeLock sync.Mutex
}

func newConn(raw *ws.Conn, messageType int) *Conn {
	c := &Conn{Conn: raw, messageType: messageType}
	c.closeOnce = sync.OnceValue(c.close)
	return c
}

func (c *Conn) Read(b []byte) (int, error) {
	c.readLock.Lock()
	defer c.readLock.Unlock()

	if c.reader == nil {
		if err := c.nextReader(); err != nil {
			return 0, err
		}
	}
	for {
		n, err := c.reader.Read(b)
		if err != io.EOF {
			return n, err
		}
		c.reader = nil
		if n > 0 {
			return n, nil
		}
		if err := c.nextReader(); err != nil {
			return 0, err
		}
	}
}

// nextReader moves to the next incoming message. A normal close ends the
// stream with io.EOF.
func (c *Conn) nextReader() error {
	t, r, err := c.Conn.NextReader()
	if err != nil {
		var cerr *ws.CloseError
		if errors.As(err, &cerr) && (cerr.Code == ws.CloseNormalClosure || cerr.Code == ws.CloseNoStatusReceived) {
			return io.EOF
		}
		return err
	}
	if t == ws.CloseMessage {
		return io.EOF
	}
	c.reader = r
	return nil
}

// Write sends b as a single message.
func (c *Conn) Write(b []byte) (int, error) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if err := c.Conn.WriteMessage(c.messageType, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// SetWriteDeadline is serialised with writes.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return c.Conn.SetWriteDeadline(t)
}

// Close sends a close frame and closes the connection. Later calls return
// the same result.
func (c *Conn) Close() error {
	return c.closeOnce()
}

func (c *Conn) close() error {
	err1 := c.Conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, "closed"),
		time.Now().Add(GracefulCloseTimeout),
	)
	err2 := c.Conn.Close()
	return errors.Join(err1, err2)
}

func (c *Conn) StreamType() string { return "websocket" }

// WrapperData reports the negotiated subprotocol.
func (c *Conn) WrapperData() any { return c.Subprotocol() }

var (
	_ stream.Resource  = (*Conn)(nil)
	_ stream.Deadliner = (*Conn)(nil)
)
