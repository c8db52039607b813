package stream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chains struct {
	read, write FilterChain
	err         error
}

func (c *chains) FilterChains() (*FilterChain, *FilterChain, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	return &c.read, &c.write, nil
}

// suffixFilter appends its name to every chunk and counts hook calls.
type suffixFilter struct {
	BasicFilter
	created, closed *int
}

func (f *suffixFilter) Filter(in, out *Brigade, consumed *int64, closing bool) FilterStatus {
	for bk, ok := in.Next(); ok; bk, ok = in.Next() {
		*consumed += int64(bk.Len())
		out.Append(NewBucket(append(bk.Data(), f.name...)))
	}
	return FilterPassOn
}

func (f *suffixFilter) OnCreate() error { *f.created++; return nil }
func (f *suffixFilter) OnClose()        { *f.closed++ }

func newSuffixTable(t *testing.T) (*FilterTable, *int, *int) {
	t.Helper()
	created, closed := new(int), new(int)
	tbl := NewFilterTable()
	factory := func(name string, params any) (Filter, error) {
		return &suffixFilter{BasicFilter: BasicFilter{name: name, params: params}, created: created, closed: closed}, nil
	}
	require.NoError(t, tbl.Register("-a", factory, false))
	require.NoError(t, tbl.Register("-b", factory, false))
	return tbl, created, closed
}

func TestFilterTableRegister(t *testing.T) {
	tbl := NewFilterTable()
	assert.ErrorIs(t, tbl.Register("", NewBasicFilter, false), ErrConfiguration)
	assert.ErrorIs(t, tbl.Register("x", nil, false), ErrConfiguration)

	require.NoError(t, tbl.Register("x", NewBasicFilter, false))
	assert.ErrorIs(t, tbl.Register("x", NewBasicFilter, false), ErrConflict)
	assert.NoError(t, tbl.Register("x", NewBasicFilter, true))
	assert.True(t, tbl.IsRegistered("x"))
	assert.Contains(t, tbl.Registered(), "x")
}

func TestFilterChainOrder(t *testing.T) {
	tbl, created, closed := newSuffixTable(t)
	target := &chains{}

	a, err := tbl.Append(target, "-a", FilterWrite, nil)
	require.NoError(t, err)
	_, err = tbl.Prepend(target, "-b", FilterWrite, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"-b", "-a"}, target.write.Names())
	assert.Equal(t, 0, target.read.Len())
	assert.Equal(t, 2, *created)

	out, err := target.write.Process([]byte("x"), false)
	require.NoError(t, err)
	assert.Equal(t, []byte("x-b-a"), out)

	require.NoError(t, tbl.Remove(a))
	assert.Equal(t, 1, *closed)
	assert.ErrorIs(t, tbl.Remove(a), ErrNotFound)
	assert.Equal(t, []string{"-b"}, target.write.Names())

	require.NoError(t, tbl.RemoveByName("-b"))
	assert.ErrorIs(t, tbl.RemoveByName("-b"), ErrNotFound)
	assert.Equal(t, 0, target.write.Len())
}

func TestFilterReadWriteGetsOneInstancePerDirection(t *testing.T) {
	tbl, created, closed := newSuffixTable(t)
	target := &chains{}

	att, err := tbl.Append(target, "-a", FilterReadWrite, nil)
	require.NoError(t, err)
	assert.Equal(t, FilterReadWrite, att.Mode())
	assert.Equal(t, "-a", att.Name())
	assert.Equal(t, 2, *created)
	assert.Equal(t, 1, target.read.Len())
	assert.Equal(t, 1, target.write.Len())

	require.NoError(t, tbl.Remove(att))
	assert.Equal(t, 2, *closed)
	assert.Equal(t, 0, target.read.Len()+target.write.Len())
}

func TestFilterAttachErrors(t *testing.T) {
	tbl, _, _ := newSuffixTable(t)

	_, err := tbl.Append(&chains{}, "-a", 0, nil)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = tbl.Append(&chains{}, "-a", FilterMode(8), nil)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = tbl.Append(&chains{}, "missing", FilterRead, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tbl.Append(&chains{err: errors.New("gone")}, "-a", FilterRead, nil)
	assert.ErrorIs(t, err, ErrClosed)

	boom := errors.New("bad params")
	require.NoError(t, tbl.Register("broken", func(string, any) (Filter, error) { return nil, boom }, false))
	_, err = tbl.Append(&chains{}, "broken", FilterRead, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, boom)
}

func TestFilterChainFatal(t *testing.T) {
	tbl := NewFilterTable()
	require.NoError(t, tbl.Register("fatal", func(string, any) (Filter, error) {
		return TransformFunc(func([]byte, bool) ([][]byte, bool, error) {
			return nil, false, errors.New("fatal")
		}), nil
	}, false))
	target := &chains{}
	_, err := tbl.Append(target, "fatal", FilterRead, nil)
	require.NoError(t, err)

	_, err = target.read.Process([]byte("x"), false)
	assert.ErrorIs(t, err, ErrFilterFatal)
}

func TestFilterChainClosingReachesEveryFilter(t *testing.T) {
	tbl := NewFilterTable()
	late := func(name string, params any) (Filter, error) {
		return NewLateComputed(name, params, func(p []byte) ([]byte, error) {
			return append(bytes.ToUpper(p), '.'), nil
		}), nil
	}
	require.NoError(t, tbl.Register("late", late, false))
	target := &chains{}
	_, err := tbl.Append(target, "late", FilterWrite, nil)
	require.NoError(t, err)
	_, err = tbl.Append(target, "late", FilterWrite, nil)
	require.NoError(t, err)

	out, err := target.write.Process([]byte("ab"), false)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = target.write.Process(nil, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("AB.."), out)
}

func TestFilterChainRelease(t *testing.T) {
	tbl, _, closed := newSuffixTable(t)
	target := &chains{}
	a, err := tbl.Append(target, "-a", FilterWrite, nil)
	require.NoError(t, err)
	_, err = tbl.Append(target, "-b", FilterWrite, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Remove(a))

	target.write.release()
	assert.Equal(t, 2, *closed, "removed attachments are not closed twice")
	assert.Equal(t, 0, target.write.Len())
}

func TestFilterChainReleaseForgetsAttachments(t *testing.T) {
	tbl, _, closed := newSuffixTable(t)
	target := &chains{}
	att, err := tbl.Append(target, "-a", FilterReadWrite, nil)
	require.NoError(t, err)

	target.write.release()
	target.read.release()
	assert.Equal(t, 2, *closed)
	assert.Empty(t, tbl.attached)

	err = tbl.RemoveByName("-a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "no attachment was found")
	assert.ErrorIs(t, tbl.Remove(att), ErrNotFound)
}
