package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamBorrowing(t *testing.T) {
	rt, w := newTestRuntime(t, nil)
	writeFile(t, rt, "test://a", "hello")
	ctx := context.Background()

	s1, err := rt.NewStream(ctx, "test://a")
	require.NoError(t, err)
	s2, err := rt.NewStream(ctx, "test://a")
	require.NoError(t, err)

	assert.False(t, s1.IsBorrowing())
	assert.True(t, s2.IsBorrowing())
	assert.Same(t, s1.Resource(), s2.Resource())
	assert.Same(t, s1, rt.Handler("test://a"))
	assert.Equal(t, []string{"test://a"}, rt.Streams())
	assert.EqualValues(t, 2, w.opens.Load(), "one open for the write, one shared by both readers")

	require.NoError(t, s1.Close())
	assert.False(t, s1.IsOpened())
	assert.True(t, s2.IsOpened(), "refcount keeps the resource alive for the borrower")

	data, err := s2.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s2.Close())
	require.NoError(t, s2.Close(), "closing twice is a no-op")
	assert.Empty(t, rt.Streams())
	assert.Nil(t, rt.Handler("test://a"))
}

func TestStreamOwnerHandsOver(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	writeFile(t, rt, "test://a", "hello")
	ctx := context.Background()

	owner, err := rt.NewStream(ctx, "test://a")
	require.NoError(t, err)
	first, err := rt.NewStream(ctx, "test://a")
	require.NoError(t, err)
	second, err := rt.NewStream(ctx, "test://a")
	require.NoError(t, err)

	require.NoError(t, owner.Close())
	got := rt.Handler("test://a")
	assert.Same(t, first, got, "the oldest borrower takes over")
	assert.True(t, got.IsOpened())
	assert.False(t, first.IsBorrowing())
	assert.True(t, second.IsBorrowing())

	node, ok := rt.Node().ReachID("test://a")
	require.True(t, ok)
	assert.Same(t, first, node)

	require.NoError(t, rt.CloseAll())
	assert.Empty(t, rt.Streams())
	assert.Nil(t, rt.Handler("test://a"))
	assert.False(t, first.IsOpened())
	assert.False(t, second.IsOpened())
	assert.NoError(t, second.Close())
}

func TestRuntimeCloseAllClosesResource(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	ctx := context.Background()
	res := &nopResource{Buffer: new(bytes.Buffer)}
	opener := &bufferOpener{res: res}

	owner, err := rt.NewStream(ctx, "custom://x", WithOpener(opener))
	require.NoError(t, err)
	borrower, err := rt.NewStream(ctx, "custom://x", WithOpener(opener))
	require.NoError(t, err)
	require.NoError(t, owner.Close())
	assert.False(t, res.closed)

	require.NoError(t, rt.CloseAll())
	assert.True(t, res.closed)
	assert.Empty(t, rt.Streams())
	assert.False(t, borrower.IsOpened())
}

func TestStreamEagerClose(t *testing.T) {
	rt, _ := newTestRuntime(t, &Config{CloseMode: CloseEager})
	writeFile(t, rt, "test://a", "hello")
	ctx := context.Background()

	s1, err := rt.NewStream(ctx, "test://a")
	require.NoError(t, err)
	s2, err := rt.NewStream(ctx, "test://a")
	require.NoError(t, err)

	require.NoError(t, s2.Close())
	assert.False(t, s1.IsOpened())
	assert.Nil(t, s1.Resource())
	_, err = s1.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s1.Close())
	assert.Empty(t, rt.Streams())
}

func TestStreamReopenAfterClose(t *testing.T) {
	rt, w := newTestRuntime(t, nil)
	writeFile(t, rt, "test://a", "x")
	ctx := context.Background()

	s, err := rt.NewStream(ctx, "test://a")
	require.NoError(t, err)
	require.NoError(t, s.Open(ctx), "open on an open handle is a no-op")
	require.NoError(t, s.Close())
	require.NoError(t, s.Open(ctx))
	assert.True(t, s.IsOpened())
	assert.EqualValues(t, 3, w.opens.Load())
	require.NoError(t, s.Close())
}

func TestStreamConcurrentOpensShareOneResource(t *testing.T) {
	rt, w := newTestRuntime(t, nil)
	writeFile(t, rt, "test://shared", "data")
	ctx := context.Background()

	const n = 16
	handles := make([]*Stream, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := rt.NewStream(ctx, "test://shared")
			assert.NoError(t, err)
			handles[i] = s
		}()
	}
	wg.Wait()

	owners := 0
	for _, s := range handles {
		require.NotNil(t, s)
		if !s.IsBorrowing() {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
	assert.EqualValues(t, 2, w.opens.Load())

	for _, s := range handles {
		require.NoError(t, s.Close())
	}
	assert.Empty(t, rt.Streams())
}

func TestStreamOpenErrors(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	ctx := context.Background()

	_, err := rt.NewStream(ctx, "test://missing")
	assert.ErrorIs(t, err, ErrInvalidResource)
	assert.ErrorIs(t, err, afero.ErrFileNotFound)

	_, err = rt.NewStream(ctx, "nope://x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = rt.NewStream(ctx, "test://a", WithMode("z"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = rt.NewStream(ctx, "test://a", WithContext("undeclared"), WithMode(ModeTruncateWrite))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, rt.Streams())
}

func TestDeferredStreamReceivesNotifications(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	w := &notifyingWrapper{
		memWrapper: memWrapper{fs: afero.NewMemMapFs()},
		sequence: []Notification{
			{Code: CodeResolve},
			{Code: CodeConnect, Message: "up"},
			{Code: CodeFileSizeIs, Max: 10},
		},
	}
	require.NoError(t, rt.Wrappers().Register("note", w, 0))
	ctx := context.Background()

	s, err := rt.NewStream(ctx, "note://x", Deferred(), WithMode(ModeTruncateWrite))
	require.NoError(t, err)
	assert.True(t, s.HasBeenDeferred())
	assert.False(t, s.IsOpened())

	var seen []Event
	for _, name := range []string{"resolve", "connect", "size"} {
		require.NoError(t, s.On(name, func(ev Event, n Notification) { seen = append(seen, ev) }))
	}
	assert.ErrorIs(t, s.On("explode", func(Event, Notification) {}), ErrUnsupportedEvent)

	require.NoError(t, s.Open(ctx))
	assert.Equal(t, []Event{EventResolve, EventConnect, EventSize}, seen)

	sc := s.StreamContext()
	require.NotNil(t, sc)
	_, err = uuid.Parse(sc.ID())
	assert.NoError(t, err, "a deferred stream without context gets a generated one")
	assert.True(t, rt.Contexts().Exists(sc.ID()))
	assert.Equal(t, "note", sc.Wrapper())
	require.NoError(t, s.Close())

	seen = nil
	s, err = rt.NewStream(ctx, "note://y", WithMode(ModeTruncateWrite))
	require.NoError(t, err)
	assert.Nil(t, s.StreamContext())
	assert.Empty(t, seen)
	require.NoError(t, s.Close())
}

func TestDeferredStreamWithDeclaredContext(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	w := &notifyingWrapper{
		memWrapper: memWrapper{fs: afero.NewMemMapFs()},
		sequence:   []Notification{{Code: CodeProgress, Transferred: 3}},
	}
	require.NoError(t, rt.Wrappers().Register("note", w, 0))
	sc, err := rt.Contexts().Get("ctx", "note")
	require.NoError(t, err)
	sc.AddOption("k", "v")

	s, err := rt.NewStream(context.Background(), "note://x",
		Deferred(), WithContext("ctx"), WithMode(ModeTruncateWrite))
	require.NoError(t, err)
	r := &recorder{}
	require.NoError(t, s.Attach(r))
	require.NoError(t, s.Open(context.Background()))

	assert.Equal(t, []string{"progress"}, r.events)
	assert.Same(t, sc, s.StreamContext())
	require.NoError(t, s.Close())
}

func TestStreamNotifyUnknownCode(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	s, err := rt.NewStream(context.Background(), "test://a", Deferred())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Notify(Notification{Code: 99}), ErrUnsupportedEvent)
}

func TestStreamBuffer(t *testing.T) {
	rt, w := newTestRuntime(t, &Config{BufferSize: 64})
	ctx := context.Background()

	s, err := rt.NewStream(ctx, "test://buf", WithMode(ModeTruncateWrite))
	require.NoError(t, err)
	assert.Equal(t, 64, s.BufferSize())

	require.NoError(t, s.SetBuffer(16))
	assert.Equal(t, 16, s.BufferSize())
	assert.ErrorIs(t, s.SetBuffer(-1), ErrInvalid)
	assert.Equal(t, 16, s.BufferSize(), "a failed resize keeps the previous size")

	_, err = s.WriteString("abc")
	require.NoError(t, err)
	pos, err := s.Tell()
	require.NoError(t, err)
	assert.EqualValues(t, 3, pos)

	data, err := afero.ReadFile(w.fs, "buf")
	require.NoError(t, err)
	assert.Empty(t, data, "output stays buffered until flushed")

	require.NoError(t, s.Flush())
	data, err = afero.ReadFile(w.fs, "buf")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	require.NoError(t, s.DisableBuffer())
	assert.Equal(t, 0, s.BufferSize())
	_, err = s.WriteString("d")
	require.NoError(t, err)
	data, _ = afero.ReadFile(w.fs, "buf")
	assert.Equal(t, "abcd", string(data))
	require.NoError(t, s.Close())
	assert.Equal(t, 64, s.BufferSize(), "closed handles report the configured size")

	writeFile(t, rt, "test://ro", "x")
	ro, err := rt.NewStream(ctx, "test://ro")
	require.NoError(t, err)
	assert.ErrorIs(t, ro.SetBuffer(8), ErrNotSupported)
	require.NoError(t, ro.Close())
}

func TestStreamCloseBeforeEvent(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	writeFile(t, rt, "test://a", "x")

	var got []BusEvent
	rt.Bus().Attach(CloseBeforeChannel("test://a"), func(ev BusEvent) { got = append(got, ev) })

	s, err := rt.NewStream(context.Background(), "test://a")
	require.NoError(t, err)
	assert.True(t, rt.Bus().IsRegistered(StreamChannel("test://a")))
	require.NoError(t, s.Close())

	require.Len(t, got, 1)
	assert.Equal(t, "test://a", got[0].Data)
	assert.Same(t, s, got[0].Source)
	assert.False(t, rt.Bus().IsRegistered(StreamChannel("test://a")))
}

func TestStreamFailingCloseKeepsEntry(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	writeFile(t, rt, "test://a", "x")
	opener := &failingCloser{Opener: &wrapperOpener{table: rt.Wrappers(), mode: ModeRead}}
	opener.fail.Store(true)

	s, err := rt.NewStream(context.Background(), "test://a", WithOpener(opener))
	require.NoError(t, err)

	err = s.Close()
	assert.ErrorIs(t, err, ErrInvalidResource)
	assert.ErrorIs(t, err, errCloseHook)
	assert.True(t, s.IsOpened())
	assert.Equal(t, []string{"test://a"}, rt.Streams())

	opener.fail.Store(false)
	require.NoError(t, s.Close())
	assert.False(t, s.IsOpened())
	assert.Empty(t, rt.Streams())
}

type nopResource struct {
	*bytes.Buffer
	closed bool
}

func (r *nopResource) Close() error { r.closed = true; return nil }

type bufferOpener struct{ res *nopResource }

func (o *bufferOpener) OpenResource(context.Context, string, *Context) (Resource, error) {
	return o.res, nil
}

func (o *bufferOpener) CloseResource(r Resource) error { return r.Close() }

func TestStreamCustomOpenerAndResource(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	res := &nopResource{Buffer: bytes.NewBufferString("first")}
	s, err := rt.NewStream(context.Background(), "custom", WithOpener(&bufferOpener{res: res}))
	require.NoError(t, err)
	assert.Equal(t, "file", s.WrapperName())

	md, err := s.MetaData()
	require.NoError(t, err)
	assert.Equal(t, "user-space", md.StreamType)
	assert.False(t, md.Seekable)
	assert.Equal(t, "custom", md.URI)

	_, err = s.Tell()
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.ErrorIs(t, s.Truncate(0), ErrNotSupported)
	assert.ErrorIs(t, s.Lock(LockShared), ErrNotSupported)
	assert.ErrorIs(t, s.SetTimeout(0), ErrNotSupported)
	assert.ErrorIs(t, s.SetBlocking(false), ErrNotSupported)

	_, err = s.SetResource(nil)
	assert.ErrorIs(t, err, ErrInvalidResource)

	next := &nopResource{Buffer: bytes.NewBufferString("second")}
	old, err := s.SetResource(next)
	require.NoError(t, err)
	assert.Same(t, res, old)

	data, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, s.Close())
	assert.True(t, next.closed)
	assert.False(t, res.closed)
}

func TestStreamMetaDataAndSeek(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	s, err := rt.NewStream(context.Background(), "test://m", WithMode(ModeTruncateReadWrite))
	require.NoError(t, err)

	_, err = s.WriteString("0123456789")
	require.NoError(t, err)
	require.NoError(t, s.Rewind())

	p := make([]byte, 4)
	_, err = io.ReadFull(s, p)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(p))
	pos, err := s.Tell()
	require.NoError(t, err)
	assert.EqualValues(t, 4, pos)

	require.NoError(t, s.Truncate(6))
	rest, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "45", string(rest))
	assert.True(t, s.EOF())

	md, err := s.MetaData()
	require.NoError(t, err)
	assert.Equal(t, "test", md.WrapperType)
	assert.Equal(t, ModeTruncateReadWrite, md.Mode)
	assert.True(t, md.Seekable)
	assert.True(t, md.EOF)
	assert.True(t, md.Blocked)

	_, err = s.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.False(t, s.EOF())
	c, err := s.ReadCharacter()
	require.NoError(t, err)
	assert.Equal(t, byte('4'), c)
	require.NoError(t, s.Close())

	_, err = s.MetaData()
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, s.EOF())
}

func TestStreamFilters(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	require.NoError(t, rt.Filters().Register("upper", TransformFactory(func(any) (TransformFunc, error) {
		return func(chunk []byte, _ bool) ([][]byte, bool, error) {
			return [][]byte{bytes.ToUpper(chunk)}, false, nil
		}, nil
	}), false))
	ctx := context.Background()

	w, err := rt.NewStream(ctx, "test://f", WithMode(ModeTruncateWrite))
	require.NoError(t, err)
	_, err = rt.Filters().Append(w, "upper", FilterWrite, nil)
	require.NoError(t, err)
	_, err = w.WriteString("shout")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = rt.Filters().Append(w, "upper", FilterWrite, nil)
	assert.ErrorIs(t, err, ErrClosed)

	r, err := rt.NewStream(ctx, "test://f")
	require.NoError(t, err)
	data, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "SHOUT", string(data))
	require.NoError(t, r.Close())
}

func TestStreamIOHelpers(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	s, err := rt.NewStream(context.Background(), "test://io", WithMode(ModeTruncateReadWrite))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteLine("hello\nignored"))
	require.NoError(t, s.WriteInteger(42))
	require.NoError(t, s.WriteBoolean(true))
	require.NoError(t, s.WriteFloat(1.5))
	require.NoError(t, s.WriteCharacter('\n'))
	_, err = s.WriteString("a b\r\n")
	require.NoError(t, err)
	require.NoError(t, s.WriteBoolean(false))
	require.NoError(t, s.Rewind())

	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
	i, err := s.ReadInteger(2)
	require.NoError(t, err)
	assert.EqualValues(t, 42, i)
	b, err := s.ReadBoolean()
	require.NoError(t, err)
	assert.True(t, b)
	f, err := s.ReadFloat(3)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-9)
	c, err := s.ReadCharacter()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), c)

	var x, y string
	n, err := s.Scanf("%s %s", &x, &y)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "a", x)
	assert.Equal(t, "b", y)

	last, err := s.ReadLine()
	require.NoError(t, err, "the last line may lack a terminator")
	assert.Equal(t, "0", last)

	_, err = s.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
	str, err := s.ReadString(10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, str)
	_, err = s.ReadString(0)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRuntimeCloseAllAndNode(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	ctx := context.Background()
	a, err := rt.NewStream(ctx, "test://a", WithMode(ModeTruncateWrite))
	require.NoError(t, err)
	b, err := rt.NewStream(ctx, "test://b", WithMode(ModeTruncateWrite))
	require.NoError(t, err)
	borrower, err := rt.NewStream(ctx, "test://b", WithMode(ModeTruncateWrite))
	require.NoError(t, err)

	node := rt.Node()
	assert.Equal(t, "Stream", node.Name())
	assert.Equal(t, []string{"test://a", "test://b"}, node.Children())
	got, ok := node.ReachID("test://b")
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = node.ReachID("test://c")
	assert.False(t, ok)

	require.NoError(t, rt.CloseAll())
	assert.Empty(t, rt.Streams())
	for _, s := range []*Stream{a, b, borrower} {
		assert.False(t, s.IsOpened())
	}
	assert.Empty(t, node.Children())
}

var errDeadline = errors.New("deadline rejected")

// deadlineResource records deadlines and rejects the read side while
// readErr is set.
type deadlineResource struct {
	*nopResource
	readErr error
	read    time.Time
	write   time.Time
}

func (r *deadlineResource) SetReadDeadline(t time.Time) error {
	if r.readErr != nil {
		return r.readErr
	}
	r.read = t
	return nil
}

func (r *deadlineResource) SetWriteDeadline(t time.Time) error {
	r.write = t
	return nil
}

type fixedOpener struct{ res Resource }

func (o *fixedOpener) OpenResource(context.Context, string, *Context) (Resource, error) {
	return o.res, nil
}

func (o *fixedOpener) CloseResource(r Resource) error { return r.Close() }

func TestStreamSetTimeoutReportsDeadlineErrors(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	res := &deadlineResource{nopResource: &nopResource{Buffer: bytes.NewBufferString("abc")}}
	s, err := rt.NewStream(context.Background(), "custom://d",
		WithOpener(&fixedOpener{res: res}), WithMode(ModeReadWrite))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.SetTimeout(time.Second))
	buf := make([]byte, 3)
	_, err = s.Read(buf)
	require.NoError(t, err)
	assert.False(t, res.read.IsZero(), "reads arm the read deadline")

	require.NoError(t, s.SetTimeout(0))
	assert.True(t, res.read.IsZero())
	assert.True(t, res.write.IsZero())

	res.readErr = errDeadline
	err = s.SetTimeout(0)
	assert.ErrorIs(t, err, errDeadline)
	assert.ErrorIs(t, err, ErrInvalidResource)
}
