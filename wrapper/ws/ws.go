// Package ws registers the "ws" and "wss" protocols. An open websocket is
// a byte stream: each Write sends one message and reads run through
// incoming messages back to back.
//
// Context options:
//
//	message_type   "binary" (default) or "text"
//	subprotocols   comma separated list offered during the handshake
//	header         extra handshake headers, a map
package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/nuln/stream"
	"github.com/nuln/stream/internal/logging"
)

var log = logging.Logger("stream/ws")

func init() {
	factory := func(cfg *stream.WrapperConfig) (stream.Wrapper, error) {
		w := New()
		if n, ok := cfg.Int("handshakeTimeout"); ok {
			w.dialer.HandshakeTimeout = time.Duration(n) * time.Second
		}
		return w, nil
	}
	stream.RegisterWrapper("ws", factory, stream.FlagURL)
	stream.RegisterWrapper("wss", factory, stream.FlagURL)
}

// Wrapper dials websocket connections.
type Wrapper struct {
	dialer ws.Dialer
}

// New creates a Wrapper with gorilla's default dialer settings.
func New() *Wrapper {
	return &Wrapper{dialer: *ws.DefaultDialer}
}

// Open performs the handshake. Websockets are bidirectional, so mode only
// needs to be valid.
func (w *Wrapper) Open(ctx context.Context, name string, mode stream.Mode, sc *stream.Context) (stream.Resource, error) {
	d := w.dialer
	if protos := sc.StringOption("subprotocols", ""); protos != "" {
		d.Subprotocols = strings.Split(protos, ",")
	}
	msgType := ws.BinaryMessage
	switch t := sc.StringOption("message_type", "binary"); t {
	case "binary":
	case "text":
		msgType = ws.TextMessage
	default:
		return nil, fmt.Errorf("stream/ws: message_type %q: %w", t, stream.ErrInvalid)
	}

	header := http.Header{}
	if sc != nil {
		if v, err := sc.Option("header"); err == nil {
			hdr, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("stream/ws: header option of type %T: %w", v, stream.ErrInvalid)
			}
			for k, val := range hdr {
				header.Set(k, fmt.Sprint(val))
			}
		}
	}

	raw, resp, err := d.DialContext(ctx, name, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			notify(sc, stream.Notification{
				Code:        stream.CodeAuthRequired,
				Severity:    stream.SeverityErr,
				Message:     resp.Status,
				MessageCode: resp.StatusCode,
			})
		}
		notify(sc, stream.Notification{Code: stream.CodeFailure, Severity: stream.SeverityErr, Message: err.Error()})
		return nil, fmt.Errorf("stream/ws: dial %s: %w", name, err)
	}
	notify(sc, stream.Notification{Code: stream.CodeConnect, Message: raw.RemoteAddr().String()})
	log.Debugw("connected", "url", name, "subprotocol", raw.Subprotocol())
	return newConn(raw, msgType), nil
}

func notify(sc *stream.Context, n stream.Notification) {
	if err := sc.Notify(n); err != nil {
		log.Debugw("notification rejected", "code", n.Code, "error", err)
	}
}

var _ stream.Wrapper = (*Wrapper)(nil)
