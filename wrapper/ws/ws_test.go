package ws_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/stream"
	streamws "github.com/nuln/stream/wrapper/ws"
)

var upgrader = ws.Upgrader{Subprotocols: []string{"echo"}}

func echoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/private" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(msg) == "bye" {
				_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEcho(t *testing.T) {
	base := echoServer(t)
	rt := stream.MustNewRuntime(nil)
	ctx := context.Background()

	s, err := rt.NewStream(ctx, base+"/echo", stream.WithMode(stream.ModeReadWrite), stream.Deferred())
	require.NoError(t, err)
	connected := false
	require.NoError(t, s.On("connect", func(stream.Event, stream.Notification) { connected = true }))
	require.NoError(t, s.Open(ctx))
	defer func() { _ = s.Close() }()
	assert.True(t, connected)

	require.NoError(t, s.WriteLine("hello"))
	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	md, err := s.MetaData()
	require.NoError(t, err)
	assert.Equal(t, "websocket", md.StreamType)
}

func TestSubprotocolAndNormalClose(t *testing.T) {
	base := echoServer(t)
	rt := stream.MustNewRuntime(nil)
	sc, err := rt.Contexts().Get("echo", "ws")
	require.NoError(t, err)
	sc.AddOptions(map[string]any{"subprotocols": "echo", "message_type": "text"})

	r, err := streamws.New().Open(context.Background(), base+"/echo", stream.ModeReadWrite, sc)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	conn := r.(*streamws.Conn)
	assert.Equal(t, "echo", conn.WrapperData())

	_, err = r.Write([]byte("one"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "one", string(buf[:n]))

	_, err = r.Write([]byte("bye"))
	require.NoError(t, err)
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestUnauthorizedHandshake(t *testing.T) {
	base := echoServer(t)
	rt := stream.MustNewRuntime(nil)
	ctx := context.Background()

	s, err := rt.NewStream(ctx, base+"/private", stream.Deferred())
	require.NoError(t, err)
	var auth, failed bool
	require.NoError(t, s.On("authrequire", func(stream.Event, stream.Notification) { auth = true }))
	require.NoError(t, s.On("failure", func(stream.Event, stream.Notification) { failed = true }))

	require.Error(t, s.Open(ctx))
	assert.True(t, auth)
	assert.True(t, failed)
}

func TestBadMessageType(t *testing.T) {
	rt := stream.MustNewRuntime(nil)
	sc, err := rt.Contexts().Get("bad", "ws")
	require.NoError(t, err)
	sc.AddOption("message_type", "morse")
	_, err = streamws.New().Open(context.Background(), "ws://127.0.0.1:1/", stream.ModeRead, sc)
	assert.ErrorIs(t, err, stream.ErrInvalid)
}

func TestRegisteredAsURLWrapper(t *testing.T) {
	rt := stream.MustNewRuntime(nil)
	assert.Equal(t, stream.FlagURL, rt.Wrappers().Flags("ws"))
	assert.Equal(t, stream.FlagURL, rt.Wrappers().Flags("wss"))
}
