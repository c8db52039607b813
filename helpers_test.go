package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// memWrapper serves "test://" names from an afero.MemMapFs and counts
// native opens.
type memWrapper struct {
	fs    afero.Fs
	opens atomic.Int32
}

func newMemWrapper() *memWrapper {
	return &memWrapper{fs: afero.NewMemMapFs()}
}

func (w *memWrapper) Open(_ context.Context, name string, mode Mode, sc *Context) (Resource, error) {
	f, err := w.fs.OpenFile(PathOf(name), mode.Flag(), 0o644)
	if err != nil {
		return nil, err
	}
	w.opens.Add(1)
	return f, nil
}

// notifyingWrapper emits a fixed sequence of notifications on open.
type notifyingWrapper struct {
	memWrapper
	sequence []Notification
}

func (w *notifyingWrapper) Open(ctx context.Context, name string, mode Mode, sc *Context) (Resource, error) {
	for _, n := range w.sequence {
		if err := sc.Notify(n); err != nil {
			return nil, err
		}
	}
	return w.memWrapper.Open(ctx, name, mode, sc)
}

var errCloseHook = errors.New("close hook failed")

// failingCloser wraps the default opener and fails CloseResource while
// fail is set.
type failingCloser struct {
	Opener
	fail atomic.Bool
}

func (o *failingCloser) CloseResource(r Resource) error {
	if o.fail.Load() {
		return errCloseHook
	}
	return o.Opener.CloseResource(r)
}

func newTestRuntime(t *testing.T, cfg *Config, opts ...Option) (*Runtime, *memWrapper) {
	t.Helper()
	rt, err := NewRuntime(cfg, opts...)
	require.NoError(t, err)
	w := newMemWrapper()
	require.NoError(t, rt.Wrappers().Register("test", w, 0))
	return rt, w
}

func writeFile(t *testing.T, rt *Runtime, name, content string) {
	t.Helper()
	s, err := rt.NewStream(context.Background(), name, WithMode(ModeTruncateWrite))
	require.NoError(t, err)
	_, err = s.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
