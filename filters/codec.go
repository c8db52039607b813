package filters

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/nuln/stream"
)

// compressor drives an encoder writing into a buffer: every chunk is
// written through and whatever the encoder produced so far is emitted. The
// final chunk closes the encoder.
func compressor(newWriter func(w io.Writer) (io.WriteCloser, error)) (stream.TransformFunc, error) {
	var buf bytes.Buffer
	enc, err := newWriter(&buf)
	if err != nil {
		return nil, err
	}
	return func(chunk []byte, final bool) ([][]byte, bool, error) {
		if len(chunk) > 0 {
			if _, err := enc.Write(chunk); err != nil {
				return nil, false, err
			}
		}
		if final {
			if err := enc.Close(); err != nil {
				return nil, false, err
			}
		}
		if buf.Len() == 0 {
			return nil, !final, nil
		}
		out := bytes.Clone(buf.Bytes())
		buf.Reset()
		return [][]byte{out}, false, nil
	}, nil
}

var errDetached = errors.New("filters: filter detached")

// pipeFilter feeds input to a pull-based decoder running in its own
// goroutine and emits whatever it has decoded on each invocation. The
// closing invocation waits for the decoder to finish.
type pipeFilter struct {
	pw   *io.PipeWriter
	done chan struct{}

	mu  sync.Mutex
	out bytes.Buffer
	err error
}

func decompressor(newReader func(r io.Reader) (io.ReadCloser, error)) stream.Filter {
	pr, pw := io.Pipe()
	f := &pipeFilter{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		rc, err := newReader(pr)
		if err == nil {
			_, err = io.Copy(f, rc)
			_ = rc.Close()
		}
		if err != nil {
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
			_ = pr.CloseWithError(err)
			return
		}
		// Trailing input after the end of the compressed stream is ignored.
		_, _ = io.Copy(io.Discard, pr)
	}()
	return f
}

// Write collects decoded output.
func (f *pipeFilter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(p)
}

func (f *pipeFilter) Filter(in, out *stream.Brigade, consumed *int64, closing bool) stream.FilterStatus {
	for bk, ok := in.Next(); ok; bk, ok = in.Next() {
		if _, err := f.pw.Write(bk.Data()); err != nil {
			log.Debugw("decoder rejected input", "err", err)
			return stream.FilterFatalError
		}
		*consumed += int64(bk.Len())
	}
	if closing {
		_ = f.pw.Close()
		<-f.done
	}

	f.mu.Lock()
	data := bytes.Clone(f.out.Bytes())
	f.out.Reset()
	err := f.err
	f.mu.Unlock()

	if err != nil {
		log.Debugw("decoder failed", "err", err)
		return stream.FilterFatalError
	}
	if len(data) > 0 {
		out.Append(stream.NewBucket(data))
		return stream.FilterPassOn
	}
	if closing {
		return stream.FilterPassOn
	}
	return stream.FilterFeedMe
}

// OnClose stops the decoder goroutine of a filter removed before its
// stream closed.
func (f *pipeFilter) OnClose() {
	_ = f.pw.CloseWithError(errDetached)
}

var (
	_ stream.Filter       = (*pipeFilter)(nil)
	_ stream.FilterCloser = (*pipeFilter)(nil)
)
