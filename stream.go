package stream

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// StreamOption configures NewStream.
type StreamOption func(*Stream)

// WithContext opens the stream with the context declared under id.
func WithContext(id string) StreamOption {
	return func(s *Stream) { s.contextID = id }
}

// Deferred skips opening in NewStream; call Open later.
func Deferred() StreamOption {
	return func(s *Stream) { s.deferred = true }
}

// WithMode sets the open mode handed to the wrapper. The default is "r".
func WithMode(mode Mode) StreamOption {
	return func(s *Stream) { s.mode = mode }
}

// WithOpener replaces the wrapper dispatch with custom open/close hooks.
func WithOpener(o Opener) StreamOption {
	return func(s *Stream) { s.opener = o }
}

// Stream is one logical handle on a named resource. Handles opened on the
// same name share the resource: the first one owns it, later ones borrow.
type Stream struct {
	rt        *Runtime
	name      string
	contextID string
	mode      Mode
	opener    Opener
	deferred  bool
	listener  *Listener

	mu    sync.Mutex
	entry *entry
}

var (
	_ io.ReadWriteCloser = (*Stream)(nil)
	_ io.Seeker          = (*Stream)(nil)
	_ FilterTarget       = (*Stream)(nil)
)

func newStream(rt *Runtime, name string, opts ...StreamOption) (*Stream, error) {
	s := &Stream{
		rt:       rt,
		name:     name,
		mode:     ModeRead,
		listener: NewListener(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.mode.Validate(); err != nil {
		return nil, err
	}
	if s.opener == nil {
		s.opener = &wrapperOpener{table: rt.wrappers, mode: s.mode}
	}
	return s, nil
}

// Open performs the native open. It is a no-op on a handle already open.
func (s *Stream) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != nil && !s.entry.closed.Load() {
		return nil
	}
	sc, err := s.resolveContext()
	if err != nil {
		return err
	}
	e, err := s.rt.streams.acquire(ctx, s, sc)
	if err != nil {
		return err
	}
	s.entry = e
	return nil
}

func (s *Stream) resolveContext() (*Context, error) {
	contexts := s.rt.contexts
	if s.contextID == "" {
		if !s.deferred {
			return nil, nil
		}
		c, err := contexts.Get(uuid.NewString(), s.WrapperName())
		if err != nil {
			return nil, err
		}
		c.SetNotification(s.Notify)
		s.contextID = c.ID()
		return c, nil
	}

	if !contexts.Exists(s.contextID) {
		return nil, newError("open", s.contextID, ErrNotFound,
			"context was not previously declared, cannot retrieve it")
	}
	c, err := contexts.Get(s.contextID, "")
	if err != nil {
		return nil, err
	}
	if s.deferred && c.Notification() == nil {
		c.SetNotification(s.Notify)
	}
	return c, nil
}

// Close releases this handle. Closing twice is a no-op. The native resource
// is released according to the runtime CloseMode.
func (s *Stream) Close() error {
	s.mu.Lock()
	e := s.entry
	s.mu.Unlock()
	if e == nil {
		return nil
	}

	err := s.rt.streams.release(s, e, false)
	if err != nil && !e.closed.Load() {
		return err
	}
	s.detach(e)
	return err
}

// detach forgets e unless the handle has since moved to another entry.
func (s *Stream) detach(e *entry) {
	s.mu.Lock()
	if s.entry != e {
		s.mu.Unlock()
		return
	}
	s.entry = nil
	s.mu.Unlock()
	s.listener.Reset()
}

// live returns the entry of an open handle.
func (s *Stream) live(op string) (*entry, error) {
	s.mu.Lock()
	e := s.entry
	s.mu.Unlock()
	if e == nil || e.closed.Load() {
		return nil, newError(op, s.name, ErrClosed, "stream is not opened")
	}
	return e, nil
}

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// Mode returns the open mode.
func (s *Stream) Mode() Mode { return s.mode }

// Resource returns the shared native resource, nil when not opened.
func (s *Stream) Resource() Resource {
	e, err := s.live("resource")
	if err != nil {
		return nil
	}
	return e.currentResource()
}

// SetResource replaces the shared resource and returns the previous one.
// It is used to manage stacks of resources, e.g. a socket upgraded to TLS.
func (s *Stream) SetResource(r Resource) (Resource, error) {
	if r == nil {
		return nil, newError("set resource", s.name, ErrInvalidResource, "resource is nil")
	}
	e, err := s.live("set resource")
	if err != nil {
		return nil, err
	}
	return e.swap(r), nil
}

// StreamContext returns the context the resource was opened with.
func (s *Stream) StreamContext() *Context {
	e, err := s.live("context")
	if err != nil {
		return nil
	}
	return e.context
}

// IsOpened reports whether this handle holds a live resource.
func (s *Stream) IsOpened() bool {
	_, err := s.live("opened")
	return err == nil
}

// IsBorrowing reports whether the resource was opened by another handle.
func (s *Stream) IsBorrowing() bool {
	e, err := s.live("borrowing")
	return err == nil && e.handler.Load() != s
}

// HasBeenDeferred reports whether opening was deferred.
func (s *Stream) HasBeenDeferred() bool { return s.deferred }

// WrapperName returns the protocol of the name, "file" when it has none.
func (s *Stream) WrapperName() string { return SchemeOf(s.name) }

// Runtime returns the runtime owning the handle.
func (s *Stream) Runtime() *Runtime { return s.rt }

// FilterChains implements FilterTarget.
func (s *Stream) FilterChains() (read, write *FilterChain, err error) {
	e, err := s.live("filter")
	if err != nil {
		return nil, nil, err
	}
	return &e.read, &e.write, nil
}

// On attaches cb to the named event.
func (s *Stream) On(event string, cb Callback) error {
	return s.listener.Attach(event, cb)
}

// Attach binds every event to the matching method of target.
func (s *Stream) Attach(target Notifiable) error {
	cb := notifiableCallback(target)
	for _, ev := range Events() {
		if err := s.listener.Attach(ev.String(), cb); err != nil {
			return err
		}
	}
	return nil
}

// Notify dispatches a wrapper notification to the listeners. It is the
// NotifyFunc installed in contexts of deferred streams.
func (s *Stream) Notify(n Notification) error {
	ev, err := EventForCode(n.Code)
	if err != nil {
		return err
	}
	if s.rt.tracer != nil {
		s.rt.tracer.Notified(ev)
	}
	s.listener.Fire(ev, n)
	return nil
}

// SetTimeout bounds every subsequent read and write. Zero disables it.
func (s *Stream) SetTimeout(d time.Duration) error {
	e, err := s.live("set timeout")
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dl, ok := e.resource.(Deadliner)
	if !ok {
		return newError("set timeout", s.name, ErrNotSupported, "resource has no deadlines")
	}
	e.timeout = d
	if d != 0 {
		return nil
	}
	if err := multierr.Combine(dl.SetReadDeadline(time.Time{}), dl.SetWriteDeadline(time.Time{})); err != nil {
		return wrapError("set timeout", s.name, ErrInvalidResource, err)
	}
	return nil
}

// HasTimedOut reports whether the last read or write hit the timeout.
func (s *Stream) HasTimedOut() bool {
	e, err := s.live("timed out")
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timedOut
}

// SetBlocking switches the resource between blocking and non-blocking mode.
func (s *Stream) SetBlocking(blocking bool) error {
	e, err := s.live("set blocking")
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.resource.(Blocker)
	if !ok {
		return newError("set blocking", s.name, ErrNotSupported, "resource is always blocking")
	}
	if err := b.SetBlocking(blocking); err != nil {
		return err
	}
	e.blocked = blocking
	return nil
}

// SetBuffer sets the write buffer size; 0 disables buffering. On failure
// the previous size is kept.
func (s *Stream) SetBuffer(size int) error {
	if size < 0 {
		return newError("set buffer", s.name, ErrInvalid, "negative buffer size %d", size)
	}
	e, err := s.live("set buffer")
	if err != nil {
		return err
	}
	if !e.mode.Writable() {
		return newError("set buffer", s.name, ErrNotSupported, "stream is not writable")
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	return e.setBuffer(size)
}

// DisableBuffer is SetBuffer(0).
func (s *Stream) DisableBuffer() error {
	return s.SetBuffer(0)
}

// BufferSize returns the write buffer size.
func (s *Stream) BufferSize() int {
	e, err := s.live("buffer size")
	if err != nil {
		return s.rt.cfg.BufferSize
	}
	return int(e.bufSize.Load())
}

// MetaData describes the open resource.
func (s *Stream) MetaData() (*MetaData, error) {
	e, err := s.live("metadata")
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	_, seekable := e.resource.(io.Seeker)
	md := &MetaData{
		TimedOut:    e.timedOut,
		Blocked:     e.blocked,
		EOF:         e.eof.Load() || e.readEOF.Load(),
		WrapperType: e.wrapper,
		StreamType:  streamType(e.resource),
		Mode:        e.mode,
		UnreadBytes: int(e.unread.Load()),
		Seekable:    seekable,
		URI:         e.name,
	}
	if wd, ok := e.resource.(interface{ WrapperData() any }); ok {
		md.WrapperData = wd.WrapperData()
	}
	return md, nil
}

func streamType(r Resource) string {
	if t, ok := r.(interface{ StreamType() string }); ok {
		return t.StreamType()
	}
	return "user-space"
}

// Read implements io.Reader through the read filter chain.
func (s *Stream) Read(p []byte) (int, error) {
	e, err := s.live("read")
	if err != nil {
		return 0, err
	}
	return e.readData(p)
}

// Write implements io.Writer through the write filter chain.
func (s *Stream) Write(p []byte) (int, error) {
	e, err := s.live("write")
	if err != nil {
		return 0, err
	}
	return e.writeData(p)
}

// Seek implements io.Seeker. Buffered output is flushed first.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	e, err := s.live("seek")
	if err != nil {
		return 0, err
	}
	return e.seek(offset, whence)
}

// Tell returns the current position.
func (s *Stream) Tell() (int64, error) {
	e, err := s.live("tell")
	if err != nil {
		return 0, err
	}
	return e.tell()
}

// Rewind seeks to the start.
func (s *Stream) Rewind() error {
	_, err := s.Seek(0, io.SeekStart)
	return err
}

// EOF reports whether a read hit the end of the resource.
func (s *Stream) EOF() bool {
	e, err := s.live("eof")
	if err != nil {
		return true
	}
	return e.unread.Load() == 0 && (e.eof.Load() || e.readEOF.Load())
}

// Flush pushes buffered output to the resource.
func (s *Stream) Flush() error {
	e, err := s.live("flush")
	if err != nil {
		return err
	}
	return e.flush()
}

// Truncate resizes the resource to size bytes.
func (s *Stream) Truncate(size int64) error {
	e, err := s.live("truncate")
	if err != nil {
		return err
	}
	if err := e.flush(); err != nil {
		return err
	}
	t, ok := e.currentResource().(Truncater)
	if !ok {
		return newError("truncate", s.name, ErrNotSupported, "resource cannot be truncated")
	}
	return t.Truncate(size)
}

// Lock applies an advisory lock on the resource.
func (s *Stream) Lock(op LockOp) error {
	e, err := s.live("lock")
	if err != nil {
		return err
	}
	l, ok := e.currentResource().(Locker)
	if !ok {
		return newError("lock", s.name, ErrNotSupported, "resource cannot be locked")
	}
	return l.Lock(op)
}

// Stat describes the resource. Open resources are asked first, then the
// wrapper.
func (s *Stream) Stat(ctx context.Context) (*EntryInfo, error) {
	if e, err := s.live("stat"); err == nil {
		if st, ok := e.currentResource().(Statter); ok {
			if err := e.flush(); err != nil {
				return nil, err
			}
			return st.Stat()
		}
	}
	w, err := s.rt.wrappers.For(s.name)
	if err != nil {
		return nil, err
	}
	st, ok := w.(URLStatter)
	if !ok {
		return nil, newError("stat", s.name, ErrNotSupported, "wrapper cannot stat")
	}
	return st.StatURL(ctx, s.name)
}

// Size returns the resource size in bytes.
func (s *Stream) Size(ctx context.Context) (int64, error) {
	info, err := s.Stat(ctx)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Touch sets the access and modification times of the name.
func (s *Stream) Touch(ctx context.Context, mtime, atime time.Time) error {
	w, err := s.rt.wrappers.For(s.name)
	if err != nil {
		return err
	}
	t, ok := w.(Toucher)
	if !ok {
		return newError("touch", s.name, ErrNotSupported, "wrapper cannot touch")
	}
	return t.Touch(ctx, s.name, mtime, atime)
}

// Delete removes the name.
func (s *Stream) Delete(ctx context.Context) error {
	w, err := s.rt.wrappers.For(s.name)
	if err != nil {
		return err
	}
	u, ok := w.(Unlinker)
	if !ok {
		return newError("delete", s.name, ErrNotSupported, "wrapper cannot delete")
	}
	return u.Unlink(ctx, s.name)
}

// Rename moves the name to newName.
func (s *Stream) Rename(ctx context.Context, newName string) error {
	w, err := s.rt.wrappers.For(s.name)
	if err != nil {
		return err
	}
	if SchemeOf(newName) != s.WrapperName() {
		return newError("rename", s.name, ErrInvalid, "cannot rename across protocols to %s", newName)
	}
	r, ok := w.(Renamer)
	if !ok {
		return newError("rename", s.name, ErrNotSupported, "wrapper cannot rename")
	}
	return r.Rename(ctx, s.name, newName)
}

// ChangeMode changes the permission bits of the name.
func (s *Stream) ChangeMode(ctx context.Context, mode os.FileMode) error {
	w, err := s.rt.wrappers.For(s.name)
	if err != nil {
		return err
	}
	m, ok := w.(ModeChanger)
	if !ok {
		return newError("chmod", s.name, ErrNotSupported, "wrapper cannot change modes")
	}
	return m.Chmod(ctx, s.name, mode)
}

// ChangeOwner changes the owner of the name.
func (s *Stream) ChangeOwner(ctx context.Context, uid, gid int) error {
	w, err := s.rt.wrappers.For(s.name)
	if err != nil {
		return err
	}
	o, ok := w.(OwnerChanger)
	if !ok {
		return newError("chown", s.name, ErrNotSupported, "wrapper cannot change owners")
	}
	return o.Chown(ctx, s.name, uid, gid)
}
