// Package socket registers the "tcp", "udp" and "unix" protocols as client
// sockets. Names look like "tcp://host:port" or "unix:///run/app.sock".
//
// Context options:
//
//	timeout    dial timeout, a time.ParseDuration string
//	bindto     local address to dial from, "host:port"
package socket

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nuln/stream"
	"github.com/nuln/stream/internal/logging"
)

var log = logging.Logger("stream/socket")

// Transports lists the networks this package dials.
var transports = []string{"tcp", "udp", "unix"}

func init() {
	for _, network := range transports {
		stream.RegisterWrapper(network, func(cfg *stream.WrapperConfig) (stream.Wrapper, error) {
			w := New(network)
			if n, ok := cfg.Int("timeout"); ok {
				w.dialer.Timeout = time.Duration(n) * time.Second
			}
			return w, nil
		})
	}
}

// Wrapper dials client connections on one network.
type Wrapper struct {
	network string
	dialer  net.Dialer
}

// New creates a Wrapper for network ("tcp", "udp" or "unix").
func New(network string) *Wrapper {
	return &Wrapper{network: network}
}

// Transports returns every network this package registers.
func (w *Wrapper) Transports() []string {
	return append([]string(nil), transports...)
}

func (w *Wrapper) address(name string) string {
	addr := stream.PathOf(name)
	if w.network != "unix" {
		addr = strings.TrimSuffix(addr, "/")
	}
	return addr
}

// Open dials the address carried by name. Sockets are always readable and
// writable, so mode only needs to be valid.
func (w *Wrapper) Open(ctx context.Context, name string, mode stream.Mode, sc *stream.Context) (stream.Resource, error) {
	d := w.dialer
	if s := sc.StringOption("timeout", ""); s != "" {
		timeout, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("stream/socket: timeout option: %w: %w", stream.ErrInvalid, err)
		}
		d.Timeout = timeout
	}
	if bind := sc.StringOption("bindto", ""); bind != "" {
		local, err := w.localAddr(bind)
		if err != nil {
			return nil, err
		}
		d.LocalAddr = local
	}

	addr := w.address(name)
	notify(sc, stream.Notification{Code: stream.CodeResolve, Message: addr})
	conn, err := d.DialContext(ctx, w.network, addr)
	if err != nil {
		notify(sc, stream.Notification{Code: stream.CodeFailure, Severity: stream.SeverityErr, Message: err.Error()})
		return nil, err
	}
	notify(sc, stream.Notification{Code: stream.CodeConnect, Message: conn.RemoteAddr().String()})
	log.Debugw("connected", "network", w.network, "addr", addr)
	return &Conn{Conn: conn, network: w.network, blocking: true}, nil
}

func (w *Wrapper) localAddr(bind string) (net.Addr, error) {
	switch w.network {
	case "tcp":
		return net.ResolveTCPAddr("tcp", bind)
	case "udp":
		return net.ResolveUDPAddr("udp", bind)
	default:
		return net.ResolveUnixAddr("unix", bind)
	}
}

func notify(sc *stream.Context, n stream.Notification) {
	if err := sc.Notify(n); err != nil {
		log.Debugw("notification rejected", "code", n.Code, "error", err)
	}
}

// Compile-time interface checks.
var (
	_ stream.Wrapper     = (*Wrapper)(nil)
	_ stream.Transporter = (*Wrapper)(nil)
)
