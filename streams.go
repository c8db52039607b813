package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// entry is the registry record shared by every handle on one name.
type entry struct {
	key     uint64
	name    string
	wrapper string
	opener  Opener
	mode    Mode
	context *Context

	// handler is the owning handle. It passes to the oldest remaining
	// holder when the owner closes first.
	handler atomic.Pointer[Stream]

	// guarded by streamTable.mu
	holders []*Stream
	closing bool
	closed  atomic.Bool

	// Lock order is wmu, rmu, mu. Resource reads and writes never run
	// under mu.
	mu       sync.Mutex
	resource Resource
	timeout  time.Duration
	timedOut bool
	blocked  bool

	rmu     sync.Mutex
	read    FilterChain
	pending []byte
	readEOF atomic.Bool
	eof     atomic.Bool
	unread  atomic.Int64

	wmu     sync.Mutex
	write   FilterChain
	wbuf    *bufio.Writer
	bufSize atomic.Int64
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// setBuffer must be called with wmu held.
func (e *entry) setBuffer(n int) error {
	if e.wbuf != nil {
		if err := e.wbuf.Flush(); err != nil {
			return err
		}
	}
	e.bufSize.Store(int64(n))
	e.wbuf = nil
	if n > 0 {
		e.wbuf = bufio.NewWriterSize(writerFunc(e.rawWrite), n)
	}
	return nil
}

func (e *entry) state() (Resource, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resource, e.timeout
}

func (e *entry) noteTimeout(err error) {
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		e.mu.Lock()
		e.timedOut = true
		e.mu.Unlock()
	}
}

func (e *entry) setPending(b []byte) {
	e.pending = b
	e.unread.Store(int64(len(b)))
}

func (e *entry) rawRead(p []byte) (int, error) {
	r, timeout := e.state()
	if d, ok := r.(Deadliner); ok && timeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	n, err := r.Read(p)
	if err == io.EOF {
		e.eof.Store(true)
	}
	if err != nil {
		e.noteTimeout(err)
	}
	return n, err
}

func (e *entry) rawWrite(p []byte) (int, error) {
	r, timeout := e.state()
	if d, ok := r.(Deadliner); ok && timeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	n, err := r.Write(p)
	if err != nil {
		e.noteTimeout(err)
	}
	return n, err
}

// flushLocked must be called with wmu held.
func (e *entry) flushLocked() error {
	if e.wbuf != nil && e.wbuf.Buffered() > 0 {
		if err := e.wbuf.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (e *entry) readData(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if e.bufSize.Load() > 0 {
		e.wmu.Lock()
		err := e.flushLocked()
		e.wmu.Unlock()
		if err != nil {
			return 0, err
		}
	}

	e.rmu.Lock()
	defer e.rmu.Unlock()
	for len(e.pending) == 0 {
		if e.readEOF.Load() {
			return 0, io.EOF
		}
		if e.read.Len() == 0 {
			return e.rawRead(p)
		}

		chunk := make([]byte, max(len(p), int(e.bufSize.Load()), DefaultBufferSize))
		n, err := e.rawRead(chunk)
		if n > 0 {
			out, ferr := e.read.Process(chunk[:n], false)
			if ferr != nil {
				return 0, ferr
			}
			e.setPending(append(e.pending, out...))
		}
		if err == io.EOF {
			out, ferr := e.read.Process(nil, true)
			if ferr != nil {
				return 0, ferr
			}
			e.setPending(append(e.pending, out...))
			e.readEOF.Store(true)
			continue
		}
		if err != nil {
			if len(e.pending) > 0 {
				break
			}
			return 0, err
		}
	}
	n := copy(p, e.pending)
	e.setPending(e.pending[n:])
	return n, nil
}

func (e *entry) writeData(p []byte) (int, error) {
	e.wmu.Lock()
	defer e.wmu.Unlock()

	data := p
	if e.write.Len() > 0 {
		out, err := e.write.Process(p, false)
		if err != nil {
			return 0, err
		}
		data = out
	}
	if len(data) > 0 {
		var err error
		if e.wbuf != nil {
			_, err = e.wbuf.Write(data)
		} else {
			_, err = e.rawWrite(data)
		}
		if err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (e *entry) flush() error {
	e.wmu.Lock()
	defer e.wmu.Unlock()

	if err := e.flushLocked(); err != nil {
		return err
	}
	if f, ok := e.currentResource().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (e *entry) seek(offset int64, whence int) (int64, error) {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	e.rmu.Lock()
	defer e.rmu.Unlock()

	s, ok := e.currentResource().(io.Seeker)
	if !ok {
		return 0, newError("seek", e.name, ErrNotSupported, "resource is not seekable")
	}
	if err := e.flushLocked(); err != nil {
		return 0, err
	}
	if whence == io.SeekCurrent && e.read.Len() == 0 {
		offset -= int64(len(e.pending))
	}
	pos, err := s.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	e.setPending(nil)
	e.readEOF.Store(false)
	e.eof.Store(false)
	return pos, nil
}

func (e *entry) tell() (int64, error) {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	e.rmu.Lock()
	defer e.rmu.Unlock()

	s, ok := e.currentResource().(io.Seeker)
	if !ok {
		return 0, newError("tell", e.name, ErrNotSupported, "resource is not seekable")
	}
	pos, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if e.wbuf != nil {
		pos += int64(e.wbuf.Buffered())
	}
	if e.read.Len() == 0 {
		pos -= int64(len(e.pending))
	}
	return pos, nil
}

// shutdown runs the closing pass of the write chain, flushes buffered
// output and calls the close hook. The close hook runs without the read
// lock, so a read blocked on the resource returns once it is closed. The
// chains are released when the hook succeeds; flushErr is reported but
// does not keep the entry alive.
func (e *entry) shutdown() (flushErr, closeErr error) {
	e.wmu.Lock()
	if e.write.Len() > 0 {
		out, err := e.write.Process(nil, true)
		if err != nil {
			flushErr = err
		} else if len(out) > 0 {
			if e.wbuf != nil {
				_, flushErr = e.wbuf.Write(out)
			} else {
				_, flushErr = e.rawWrite(out)
			}
		}
	}
	if err := e.flushLocked(); err != nil && flushErr == nil {
		flushErr = err
	}
	e.wmu.Unlock()

	closeErr = e.opener.CloseResource(e.currentResource())
	if closeErr != nil {
		return flushErr, closeErr
	}

	e.wmu.Lock()
	e.write.release()
	e.wmu.Unlock()
	e.rmu.Lock()
	e.read.release()
	e.rmu.Unlock()
	return flushErr, nil
}

func (e *entry) swap(r Resource) Resource {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	e.rmu.Lock()
	defer e.rmu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.resource
	e.resource = r
	e.setPending(nil)
	e.readEOF.Store(false)
	e.eof.Store(false)
	e.timedOut = false
	if e.wbuf != nil {
		e.wbuf.Reset(writerFunc(e.rawWrite))
	}
	return old
}

func (e *entry) currentResource() Resource {
	r, _ := e.state()
	return r
}

// streamTable is the registry of open names: at most one entry per name.
type streamTable struct {
	mu      sync.Mutex
	entries map[uint64]*entry
	group   singleflight.Group

	closeMode CloseMode
	bufSize   int
	bus       *Bus
	tracer    MetricsTracer
}

func newStreamTable(cfg *Config, bus *Bus, tracer MetricsTracer) *streamTable {
	return &streamTable{
		entries:   make(map[uint64]*entry),
		closeMode: cfg.CloseMode,
		bufSize:   cfg.BufferSize,
		bus:       bus,
		tracer:    tracer,
	}
}

func streamKey(name string) uint64 {
	return xxhash.Sum64String(name)
}

func (t *streamTable) lookup(name string) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[streamKey(name)]
	return e, ok
}

// acquire returns the live entry of s's name, opening the resource when
// none exists, and records s as one of its holders. Concurrent first opens
// of a name share a single call to the open hook.
func (t *streamTable) acquire(ctx context.Context, s *Stream, sc *Context) (*entry, error) {
	key := streamKey(s.name)
	for {
		v, err, _ := t.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
			t.mu.Lock()
			e, ok := t.entries[key]
			closing := ok && e.closing
			t.mu.Unlock()
			if closing {
				return nil, newError("open", s.name, ErrClosed, "stream is being closed")
			}
			if ok {
				return e, nil
			}
			return t.open(ctx, s, sc, key)
		})
		if err != nil {
			return nil, err
		}

		e := v.(*entry)
		t.mu.Lock()
		if t.entries[key] != e || e.closing {
			t.mu.Unlock()
			continue
		}
		e.holders = append(e.holders, s)
		refs := len(e.holders)
		t.mu.Unlock()

		if e.handler.Load() != s {
			log.Debugw("borrowing stream", "name", s.name, "refs", refs)
			if t.tracer != nil {
				t.tracer.Borrowed(e.wrapper)
			}
		}
		return e, nil
	}
}

func (t *streamTable) open(ctx context.Context, s *Stream, sc *Context, key uint64) (*entry, error) {
	wrapper := s.WrapperName()
	r, err := s.opener.OpenResource(ctx, s.name, sc)
	if err == nil && r == nil {
		err = newError("open", s.name, ErrInvalidResource, "open hook returned no resource")
	}
	if err != nil {
		log.Debugw("open failed", "name", s.name, "err", err)
		if t.tracer != nil {
			t.tracer.OpenFailed(wrapper)
		}
		var serr *Error
		if errors.As(err, &serr) {
			return nil, err
		}
		return nil, wrapError("open", s.name, ErrInvalidResource, err)
	}

	e := &entry{
		key:      key,
		name:     s.name,
		wrapper:  wrapper,
		opener:   s.opener,
		mode:     s.mode,
		context:  sc,
		resource: r,
		blocked:  true,
	}
	e.handler.Store(s)
	if err := e.setBuffer(t.bufSize); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.entries[key] = e
	t.mu.Unlock()

	for _, ch := range []string{StreamChannel(s.name), CloseBeforeChannel(s.name)} {
		if err := t.bus.Register(ch, s); err != nil {
			log.Debugw("bus channel left over", "channel", ch, "err", err)
		}
	}
	if t.tracer != nil {
		t.tracer.Opened(wrapper)
	}
	log.Debugw("stream opened", "name", s.name, "wrapper", wrapper)
	return e, nil
}

// release drops s from the holders of e. The resource is closed when s was
// the last holder, on any close in CloseEager mode, or when force is set.
// When the owner leaves first, ownership passes to the oldest remaining
// holder.
func (t *streamTable) release(s *Stream, e *entry, force bool) error {
	t.mu.Lock()
	if t.entries[e.key] != e || e.closing {
		t.mu.Unlock()
		return nil
	}
	if !force && t.closeMode == CloseRefcount && len(e.holders) > 1 {
		e.holders = slices.DeleteFunc(e.holders, func(h *Stream) bool { return h == s })
		if e.handler.Load() == s {
			e.handler.Store(e.holders[0])
		}
		refs := len(e.holders)
		t.mu.Unlock()
		log.Debugw("stream reference dropped", "name", e.name, "refs", refs)
		return nil
	}
	e.closing = true
	t.mu.Unlock()

	return t.closeEntry(e, s)
}

// closeEntry shuts e down. The caller must have set e.closing.
func (t *streamTable) closeEntry(e *entry, source *Stream) error {
	if err := t.bus.Notify(CloseBeforeChannel(e.name), source, e.name); err != nil {
		log.Debugw("close-before notification failed", "name", e.name, "err", err)
	}

	flushErr, closeErr := e.shutdown()
	if closeErr != nil {
		t.mu.Lock()
		e.closing = false
		t.mu.Unlock()
		return wrapError("close", e.name, ErrInvalidResource, closeErr)
	}

	t.mu.Lock()
	delete(t.entries, e.key)
	e.closed.Store(true)
	t.mu.Unlock()

	t.bus.Unregister(StreamChannel(e.name))
	t.bus.Unregister(CloseBeforeChannel(e.name))
	if t.tracer != nil {
		t.tracer.Closed(e.wrapper)
	}
	log.Debugw("stream closed", "name", e.name)
	return flushErr
}

// closeAll force-closes every entry and detaches all of its holders.
// Entries whose close hook fails stay registered.
func (t *streamTable) closeAll() error {
	t.mu.Lock()
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.Unlock()

	var errs error
	for _, e := range entries {
		t.mu.Lock()
		if t.entries[e.key] != e || e.closing {
			t.mu.Unlock()
			continue
		}
		e.closing = true
		holders := slices.Clone(e.holders)
		t.mu.Unlock()

		err := t.closeEntry(e, e.handler.Load())
		if e.closed.Load() {
			for _, h := range holders {
				h.detach(e)
			}
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (t *streamTable) names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		names = append(names, e.name)
	}
	slices.Sort(names)
	return names
}
