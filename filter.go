package stream

import (
	"bytes"
)

// FilterStatus is returned by a filter for each invocation.
type FilterStatus int

const (
	// FilterFatalError aborts the stream operation.
	FilterFatalError FilterStatus = iota
	// FilterFeedMe asks for more input before producing output.
	FilterFeedMe
	// FilterPassOn reports that output was pushed to the out brigade.
	FilterPassOn
)

func (s FilterStatus) String() string {
	switch s {
	case FilterFatalError:
		return "fatal"
	case FilterFeedMe:
		return "feed-me"
	case FilterPassOn:
		return "pass-on"
	default:
		return "unknown"
	}
}

// FilterMode selects the direction(s) an attached filter applies to.
type FilterMode int

const (
	FilterRead FilterMode = 1 << iota
	FilterWrite

	FilterReadWrite = FilterRead | FilterWrite
)

// Filter transforms the buckets of in into out. consumed must be increased
// by the number of input bytes the filter used. closing is true on the last
// invocation of a stream direction.
type Filter interface {
	Filter(in, out *Brigade, consumed *int64, closing bool) FilterStatus
}

// FilterCreator is implemented by filters that need a hook when attached.
// A non-nil error aborts the attachment.
type FilterCreator interface {
	OnCreate() error
}

// FilterCloser is implemented by filters that need a hook when detached.
type FilterCloser interface {
	OnClose()
}

// FilterFactory builds one filter instance per attachment. params are the
// implementation-specific parameters given to Append/Prepend.
type FilterFactory func(name string, params any) (Filter, error)

// BasicFilter passes every bucket through unchanged. Embed it to inherit
// the name/parameter bookkeeping.
type BasicFilter struct {
	name   string
	params any
}

// NewBasicFilter is a FilterFactory for the pass-through filter.
func NewBasicFilter(name string, params any) (Filter, error) {
	return &BasicFilter{name: name, params: params}, nil
}

func (f *BasicFilter) Filter(in, out *Brigade, consumed *int64, closing bool) FilterStatus {
	for bk, ok := in.Next(); ok; bk, ok = in.Next() {
		*consumed += int64(bk.Len())
		out.Append(bk)
	}
	return FilterPassOn
}

// Name returns the name the filter was attached under.
func (f *BasicFilter) Name() string { return f.name }

// SetName sets the name and returns the previous one.
func (f *BasicFilter) SetName(name string) string {
	old := f.name
	f.name = name
	return old
}

// Parameters returns the attachment parameters.
func (f *BasicFilter) Parameters() any { return f.params }

// SetParameters sets the parameters and returns the previous ones.
func (f *BasicFilter) SetParameters(params any) any {
	old := f.params
	f.params = params
	return old
}

// LateComputed buffers its whole input and emits a single bucket holding
// Compute(payload) on the closing invocation.
type LateComputed struct {
	BasicFilter
	Compute func(payload []byte) ([]byte, error)

	buf bytes.Buffer
}

// NewLateComputed returns a LateComputed filter around compute.
func NewLateComputed(name string, params any, compute func([]byte) ([]byte, error)) *LateComputed {
	return &LateComputed{
		BasicFilter: BasicFilter{name: name, params: params},
		Compute:     compute,
	}
}

func (f *LateComputed) Filter(in, out *Brigade, consumed *int64, closing bool) FilterStatus {
	for bk, ok := in.Next(); ok; bk, ok = in.Next() {
		f.buf.Write(bk.Data())
		*consumed += int64(bk.Len())
	}
	if !closing {
		return FilterFeedMe
	}

	payload := append([]byte(nil), f.buf.Bytes()...)
	f.buf.Reset()
	result, err := f.Compute(payload)
	if err != nil {
		log.Debugw("late computed filter failed", "filter", f.name, "err", err)
		return FilterFatalError
	}
	out.Append(NewBucket(result))
	return FilterPassOn
}

// TransformFunc is a streaming transform: given a chunk and whether it is
// the final one, it returns the chunks to emit, whether it needs more input
// before producing anything, or an error.
type TransformFunc func(chunk []byte, final bool) (emit [][]byte, needMore bool, err error)

// Filter adapts fn to the bucket protocol. It is called once per input
// bucket, and once with a nil chunk on an empty closing invocation. The
// filter asks for more input when fn emitted nothing and reported needMore;
// a transform that emits nothing without needing more passes an empty
// brigade on.
func (fn TransformFunc) Filter(in, out *Brigade, consumed *int64, closing bool) FilterStatus {
	emitted, needMore := false, false
	call := func(chunk []byte, final bool) FilterStatus {
		emit, more, err := fn(chunk, final)
		if err != nil {
			return FilterFatalError
		}
		needMore = more
		for _, c := range emit {
			out.Append(NewBucket(c))
			emitted = true
		}
		return FilterPassOn
	}

	if in.Empty() {
		if !closing {
			return FilterFeedMe
		}
		if call(nil, true) == FilterFatalError {
			return FilterFatalError
		}
	}
	for bk, ok := in.Next(); ok; bk, ok = in.Next() {
		*consumed += int64(bk.Len())
		if call(bk.Data(), closing && in.Empty()) == FilterFatalError {
			return FilterFatalError
		}
	}
	if !emitted && needMore && !closing {
		return FilterFeedMe
	}
	return FilterPassOn
}

// TransformFactory wraps a constructor of stateful transforms into a
// FilterFactory.
func TransformFactory(newFn func(params any) (TransformFunc, error)) FilterFactory {
	return func(name string, params any) (Filter, error) {
		fn, err := newFn(params)
		if err != nil {
			return nil, err
		}
		return fn, nil
	}
}
