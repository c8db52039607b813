package stream

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// treeWalker serves a fixed tree; directories end with "/".
type treeWalker struct {
	entries []string
	failDir string
}

func (w *treeWalker) StatURL(_ context.Context, name string) (*EntryInfo, error) {
	p := strings.TrimSuffix(PathOf(name), "/")
	for _, e := range w.entries {
		if strings.TrimSuffix(e, "/") == p {
			return &EntryInfo{Path: p, Name: path.Base(p), IsDir: strings.HasSuffix(e, "/")}, nil
		}
	}
	return nil, ErrNotFound
}

func (w *treeWalker) ReadDir(_ context.Context, name string) ([]*EntryInfo, error) {
	dir := strings.TrimSuffix(PathOf(name), "/")
	if dir == w.failDir {
		return nil, errors.New("unreadable")
	}
	var out []*EntryInfo
	for _, e := range w.entries {
		p := strings.TrimSuffix(e, "/")
		if path.Dir(p) == dir && p != dir {
			out = append(out, &EntryInfo{Path: p, Name: path.Base(p), IsDir: strings.HasSuffix(e, "/")})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (w *treeWalker) Mkdir(context.Context, string, os.FileMode, bool) error { return nil }

func TestWalk(t *testing.T) {
	w := &treeWalker{entries: []string{"root/", "root/a", "root/b/", "root/b/c", "root/d/", "root/d/e"}}

	var visited []string
	err := Walk(context.Background(), w, "tree://root", func(name string, info *EntryInfo, err error) error {
		require.NoError(t, err)
		visited = append(visited, name)
		if info.Name == "d" {
			return filepath.SkipDir
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tree://root", "tree://root/a", "tree://root/b", "tree://root/b/c", "tree://root/d"}, visited)
}

func TestWalkErrors(t *testing.T) {
	w := &treeWalker{entries: []string{"root/", "root/bad/"}, failDir: "root/bad"}

	var errs []error
	err := Walk(context.Background(), w, "root", func(name string, info *EntryInfo, err error) error {
		if err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, errs, 1)

	err = Walk(context.Background(), w, "missing", func(name string, info *EntryInfo, err error) error {
		assert.Nil(t, info)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)

	stop := errors.New("stop")
	err = Walk(context.Background(), w, "root", func(string, *EntryInfo, error) error { return stop })
	assert.ErrorIs(t, err, stop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Walk(ctx, w, "root", func(string, *EntryInfo, error) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRuntimeWalkNeedsWalker(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)
	err := rt.Walk(context.Background(), "test://x", func(string, *EntryInfo, error) error { return nil })
	assert.ErrorIs(t, err, ErrNotSupported)

	require.NoError(t, rt.Wrappers().Register("tree", &walkingWrapper{
		memWrapper: memWrapper{},
		treeWalker: treeWalker{entries: []string{"t/", "t/x"}},
	}, 0))
	var names []string
	require.NoError(t, rt.Walk(context.Background(), "tree://t", func(name string, _ *EntryInfo, _ error) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{"tree://t", "tree://t/x"}, names)
}

type walkingWrapper struct {
	memWrapper
	treeWalker
}
