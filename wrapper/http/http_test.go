package http_test

import (
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/stream"
	streamhttp "github.com/nuln/stream/wrapper/http"
)

type recorder struct {
	mu     sync.Mutex
	events []stream.Event
	last   map[stream.Event]stream.Notification
}

func (r *recorder) attach(t *testing.T, s *stream.Stream) {
	t.Helper()
	r.last = make(map[stream.Event]stream.Notification)
	for _, ev := range stream.Events() {
		require.NoError(t, s.On(ev.String(), func(ev stream.Event, n stream.Notification) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
			r.last[ev] = n
		}))
	}
}

func (r *recorder) seen(ev stream.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.last[ev]
	return ok
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := stdhttp.NewServeMux()
	mux.HandleFunc("/hello", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		_, _ = io.WriteString(w, "hello over http")
	})
	mux.HandleFunc("/moved", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		stdhttp.Redirect(w, r, "/hello", stdhttp.StatusFound)
	})
	mux.HandleFunc("/secret", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
		w.WriteHeader(stdhttp.StatusUnauthorized)
	})
	mux.HandleFunc("/echo", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Token", r.Header.Get("X-Token"))
		_, _ = io.Copy(w, r.Body)
	})
	var (
		mu     sync.Mutex
		stored []byte
	)
	mux.HandleFunc("/store", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == stdhttp.MethodPut {
			stored, _ = io.ReadAll(r.Body)
			w.WriteHeader(stdhttp.StatusCreated)
			return
		}
		_, _ = w.Write(stored)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestReadNotifiesLifecycle(t *testing.T) {
	srv := newServer(t)
	rt := stream.MustNewRuntime(nil)
	ctx := context.Background()

	s, err := rt.NewStream(ctx, srv.URL+"/hello", stream.Deferred())
	require.NoError(t, err)
	var rec recorder
	rec.attach(t, s)

	require.NoError(t, s.Open(ctx))
	defer func() { _ = s.Close() }()
	require.NotNil(t, s.StreamContext(), "deferred open creates a context")

	data, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "hello over http", string(data))

	assert.True(t, rec.seen(stream.EventConnect))
	assert.Equal(t, "text/plain", rec.last[stream.EventMimeType].Message)
	assert.Equal(t, int64(len("hello over http")), rec.last[stream.EventSize].Max)
	assert.Equal(t, int64(len("hello over http")), rec.last[stream.EventProgress].Transferred)
	assert.True(t, rec.seen(stream.EventComplete))
	assert.False(t, rec.seen(stream.EventFailure))

	md, err := s.MetaData()
	require.NoError(t, err)
	assert.Equal(t, "http", md.StreamType)
	assert.Equal(t, "http", md.WrapperType)
}

func TestRedirectNotification(t *testing.T) {
	srv := newServer(t)
	rt := stream.MustNewRuntime(nil)
	ctx := context.Background()

	s, err := rt.NewStream(ctx, srv.URL+"/moved", stream.Deferred())
	require.NoError(t, err)
	var rec recorder
	rec.attach(t, s)
	require.NoError(t, s.Open(ctx))
	defer func() { _ = s.Close() }()

	assert.Equal(t, srv.URL+"/hello", rec.last[stream.EventRedirect].Message)
	data, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "hello over http", string(data))
}

func TestRedirectDisabled(t *testing.T) {
	srv := newServer(t)
	w := streamhttp.New()
	rt := stream.MustNewRuntime(nil)
	sc, err := rt.Contexts().Get("nofollow", "http")
	require.NoError(t, err)
	sc.AddOption("follow_location", "0")

	r, err := w.Open(context.Background(), srv.URL+"/moved", stream.ModeRead, sc)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	assert.Equal(t, stdhttp.StatusFound, r.(*streamhttp.Response).StatusCode())
}

func TestAuthRequired(t *testing.T) {
	srv := newServer(t)
	rt := stream.MustNewRuntime(nil)
	ctx := context.Background()

	s, err := rt.NewStream(ctx, srv.URL+"/secret", stream.Deferred())
	require.NoError(t, err)
	var rec recorder
	rec.attach(t, s)

	err = s.Open(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, stdhttp.StatusUnauthorized, rec.last[stream.EventAuthRequire].MessageCode)
	assert.True(t, rec.seen(stream.EventFailure))
}

func TestNotFound(t *testing.T) {
	srv := newServer(t)
	_, err := streamhttp.New().Open(context.Background(), srv.URL+"/missing", stream.ModeRead, nil)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestContextOptions(t *testing.T) {
	srv := newServer(t)
	rt := stream.MustNewRuntime(nil)
	sc, err := rt.Contexts().Get("post", "http")
	require.NoError(t, err)
	sc.AddOptions(map[string]any{
		"method":  "POST",
		"header":  "X-Token: abc\r\n",
		"content": "payload",
	})

	r, err := streamhttp.New().Open(context.Background(), srv.URL+"/echo", stream.ModeRead, sc)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	resp := r.(*streamhttp.Response)
	assert.Equal(t, "POST", resp.Header().Get("X-Method"))
	assert.Equal(t, "abc", resp.Header().Get("X-Token"))
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestWriteSendsOnClose(t *testing.T) {
	srv := newServer(t)
	rt := stream.MustNewRuntime(nil)
	ctx := context.Background()

	s, err := rt.NewStream(ctx, srv.URL+"/store", stream.WithMode(stream.ModeTruncateWrite))
	require.NoError(t, err)
	_, err = s.WriteString("uploaded")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	r, err := rt.NewStream(ctx, srv.URL+"/store")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	data, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "uploaded", string(data))
}

func TestStatURL(t *testing.T) {
	srv := newServer(t)
	info, err := streamhttp.New().StatURL(context.Background(), srv.URL+"/hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", info.Name)
	assert.Equal(t, 2006, info.ModTime.Year())
}

func TestReadWriteModeRejected(t *testing.T) {
	_, err := streamhttp.New().Open(context.Background(), "http://127.0.0.1:1/x", stream.ModeReadWrite, nil)
	assert.ErrorIs(t, err, stream.ErrNotSupported)
}

func TestRegisteredAsURLWrapper(t *testing.T) {
	rt := stream.MustNewRuntime(nil)
	assert.Equal(t, stream.FlagURL, rt.Wrappers().Flags("http"))
	assert.Equal(t, stream.FlagURL, rt.Wrappers().Flags("https"))
}
