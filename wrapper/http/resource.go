package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"
	"sync"

	"github.com/nuln/stream"
)

// Response streams a response body, reporting progress as it is read and
// completion once the body is exhausted.
type Response struct {
	name        string
	resp        *stdhttp.Response
	sc          *stream.Context
	transferred int64
	done        sync.Once
}

func newResponse(name string, resp *stdhttp.Response, sc *stream.Context) *Response {
	return &Response{name: name, resp: resp, sc: sc}
}

func (r *Response) Read(p []byte) (int, error) {
	n, err := r.resp.Body.Read(p)
	if n > 0 {
		r.transferred += int64(n)
		notify(r.sc, stream.Notification{
			Code:        stream.CodeProgress,
			Transferred: r.transferred,
			Max:         r.resp.ContentLength,
		})
	}
	if err == io.EOF {
		r.done.Do(func() {
			notify(r.sc, stream.Notification{Code: stream.CodeCompleted, Transferred: r.transferred})
		})
	}
	return n, err
}

func (r *Response) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("stream/http: %s opened for reading: %w", r.name, stream.ErrNotSupported)
}

func (r *Response) Close() error { return r.resp.Body.Close() }

func (r *Response) Stat() (*stream.EntryInfo, error) { return entryInfo(r.name, r.resp), nil }

// StatusCode returns the final response status.
func (r *Response) StatusCode() int { return r.resp.StatusCode }

// Header returns the final response headers.
func (r *Response) Header() stdhttp.Header { return r.resp.Header }

func (r *Response) StreamType() string { return "http" }

// WrapperData returns the status line followed by the response headers.
func (r *Response) WrapperData() any {
	lines := []string{r.resp.Proto + " " + r.resp.Status}
	for k, vs := range r.resp.Header {
		for _, v := range vs {
			lines = append(lines, k+": "+v)
		}
	}
	return lines
}

// Request buffers a request body and sends it on Close.
type Request struct {
	wrapper *Wrapper
	ctx     context.Context
	url     string
	sc      *stream.Context
	body    bytes.Buffer
	status  int
}

func (r *Request) Write(p []byte) (int, error) { return r.body.Write(p) }

func (r *Request) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("stream/http: %s opened for writing: %w", r.url, stream.ErrNotSupported)
}

// Close sends the buffered body and waits for the response.
func (r *Request) Close() error {
	method := r.sc.StringOption("method", stdhttp.MethodPut)
	req, err := r.wrapper.newRequest(r.ctx, method, r.url, strings.NewReader(r.body.String()), r.sc)
	if err != nil {
		return err
	}
	resp, err := r.wrapper.do(req, r.sc)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	r.status = resp.StatusCode
	_, _ = io.Copy(io.Discard, resp.Body)
	notify(r.sc, stream.Notification{Code: stream.CodeCompleted, Transferred: int64(r.body.Len())})
	return nil
}

// StatusCode returns the response status once Close has returned.
func (r *Request) StatusCode() int { return r.status }

func (r *Request) StreamType() string { return "http" }

var (
	_ stream.Resource = (*Response)(nil)
	_ stream.Statter  = (*Response)(nil)
	_ stream.Resource = (*Request)(nil)
)
