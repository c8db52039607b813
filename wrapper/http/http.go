// Package http registers the "http" and "https" protocols. Opening a name
// sends a request and streams the response body; every step of the
// exchange is reported to the context's notification function.
//
// Context options (all optional):
//
//	method           request method, GET for reads and PUT for writes
//	header           extra headers, a "K: v\r\n" string or a map
//	content          request body for read opens
//	user_agent       User-Agent header
//	follow_location  "0" disables redirects
//	max_redirects    redirect limit, 20 by default
package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/http/httptrace"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/nuln/stream"
	"github.com/nuln/stream/internal/logging"
)

var log = logging.Logger("stream/http")

// DefaultMaxRedirects bounds redirect chains unless max_redirects is set.
const DefaultMaxRedirects = 20

func init() {
	factory := func(cfg *stream.WrapperConfig) (stream.Wrapper, error) {
		var opts []Option
		if n, ok := cfg.Int("timeout"); ok {
			opts = append(opts, WithClient(&stdhttp.Client{Timeout: time.Duration(n) * time.Second}))
		}
		if ua := cfg.String("userAgent"); ua != "" {
			opts = append(opts, WithUserAgent(ua))
		}
		return New(opts...), nil
	}
	stream.RegisterWrapper("http", factory, stream.FlagURL)
	stream.RegisterWrapper("https", factory, stream.FlagURL)
}

// Wrapper implements stream.Wrapper over net/http.
type Wrapper struct {
	client    *stdhttp.Client
	userAgent string
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithClient sets the client requests are sent with. Its CheckRedirect is
// replaced per request.
func WithClient(c *stdhttp.Client) Option {
	return func(w *Wrapper) { w.client = c }
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(w *Wrapper) { w.userAgent = ua }
}

// New creates a Wrapper.
func New(opts ...Option) *Wrapper {
	w := &Wrapper{client: &stdhttp.Client{}, userAgent: "nuln-stream"}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open sends the request for read modes. Write modes buffer the body and
// send it on Close; read-write modes are not supported.
func (w *Wrapper) Open(ctx context.Context, name string, mode stream.Mode, sc *stream.Context) (stream.Resource, error) {
	if mode.Readable() && mode.Writable() {
		return nil, fmt.Errorf("stream/http: mode %q: %w", mode, stream.ErrNotSupported)
	}
	if mode.Writable() {
		return &Request{wrapper: w, ctx: context.WithoutCancel(ctx), url: name, sc: sc}, nil
	}

	body := strings.NewReader(sc.StringOption("content", ""))
	req, err := w.newRequest(ctx, sc.StringOption("method", stdhttp.MethodGet), name, body, sc)
	if err != nil {
		return nil, err
	}
	resp, err := w.do(req, sc)
	if err != nil {
		return nil, err
	}
	return newResponse(name, resp, sc), nil
}

func (w *Wrapper) newRequest(ctx context.Context, method, url string, body *strings.Reader, sc *stream.Context) (*stdhttp.Request, error) {
	trace := &httptrace.ClientTrace{
		DNSStart: func(info httptrace.DNSStartInfo) {
			notify(sc, stream.Notification{Code: stream.CodeResolve, Message: info.Host})
		},
		ConnectStart: func(network, addr string) {
			notify(sc, stream.Notification{Code: stream.CodeConnect, Message: network + " " + addr})
		},
	}
	req, err := stdhttp.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, url, body)
	if err != nil {
		return nil, fmt.Errorf("stream/http: %w: %w", stream.ErrInvalid, err)
	}
	req.Header.Set("User-Agent", sc.StringOption("user_agent", w.userAgent))
	if err := applyHeaders(req.Header, sc); err != nil {
		return nil, err
	}
	return req, nil
}

// do sends req and turns error statuses into errors after reporting them.
func (w *Wrapper) do(req *stdhttp.Request, sc *stream.Context) (*stdhttp.Response, error) {
	follow := sc.StringOption("follow_location", "1") != "0"
	limit := DefaultMaxRedirects
	if n, err := strconv.Atoi(sc.StringOption("max_redirects", "")); err == nil {
		limit = n
	}

	client := *w.client
	client.CheckRedirect = func(next *stdhttp.Request, via []*stdhttp.Request) error {
		if !follow {
			return stdhttp.ErrUseLastResponse
		}
		if len(via) >= limit {
			return fmt.Errorf("stream/http: stopped after %d redirects", limit)
		}
		notify(sc, stream.Notification{Code: stream.CodeRedirected, Message: next.URL.String()})
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		notify(sc, stream.Notification{Code: stream.CodeFailure, Severity: stream.SeverityErr, Message: err.Error()})
		return nil, err
	}
	log.Debugw("response", "url", req.URL.String(), "status", resp.StatusCode)

	if req.URL.User != nil || req.Header.Get("Authorization") != "" {
		notify(sc, stream.Notification{
			Code:        stream.CodeAuthResult,
			Message:     resp.Status,
			MessageCode: resp.StatusCode,
		})
	}
	if resp.StatusCode == stdhttp.StatusUnauthorized {
		notify(sc, stream.Notification{
			Code:        stream.CodeAuthRequired,
			Severity:    stream.SeverityErr,
			Message:     resp.Header.Get("WWW-Authenticate"),
			MessageCode: resp.StatusCode,
		})
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		notify(sc, stream.Notification{
			Code:        stream.CodeFailure,
			Severity:    stream.SeverityErr,
			Message:     resp.Status,
			MessageCode: resp.StatusCode,
		})
		return nil, statusError(req, resp)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		notify(sc, stream.Notification{Code: stream.CodeMimeTypeIs, Message: ct})
	}
	if resp.ContentLength >= 0 {
		notify(sc, stream.Notification{Code: stream.CodeFileSizeIs, Max: resp.ContentLength})
	}
	return resp, nil
}

// StatURL issues a HEAD request.
func (w *Wrapper) StatURL(ctx context.Context, name string) (*stream.EntryInfo, error) {
	req, err := w.newRequest(ctx, stdhttp.MethodHead, name, strings.NewReader(""), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.do(req, nil)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return entryInfo(name, resp), nil
}

func entryInfo(name string, resp *stdhttp.Response) *stream.EntryInfo {
	info := &stream.EntryInfo{
		Name: path.Base(resp.Request.URL.Path),
		Path: name,
		Size: max(resp.ContentLength, 0),
	}
	if lm, err := stdhttp.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		info.ModTime = lm
	}
	return info
}

func statusError(req *stdhttp.Request, resp *stdhttp.Response) error {
	var kind error
	switch resp.StatusCode {
	case stdhttp.StatusNotFound, stdhttp.StatusGone:
		kind = os.ErrNotExist
	case stdhttp.StatusUnauthorized, stdhttp.StatusForbidden:
		kind = os.ErrPermission
	default:
		kind = errors.New(resp.Status)
	}
	return &os.PathError{Op: req.Method, Path: req.URL.String(), Err: kind}
}

func applyHeaders(h stdhttp.Header, sc *stream.Context) error {
	if sc == nil {
		return nil
	}
	v, err := sc.Option("header")
	if err != nil {
		return nil
	}
	switch hdr := v.(type) {
	case string:
		for _, line := range strings.Split(hdr, "\n") {
			k, val, ok := strings.Cut(strings.TrimSpace(line), ":")
			if ok {
				h.Add(strings.TrimSpace(k), strings.TrimSpace(val))
			}
		}
	case map[string]any:
		for k, val := range hdr {
			h.Set(k, fmt.Sprint(val))
		}
	case map[string]string:
		for k, val := range hdr {
			h.Set(k, val)
		}
	default:
		return fmt.Errorf("stream/http: header option of type %T: %w", v, stream.ErrInvalid)
	}
	return nil
}

func notify(sc *stream.Context, n stream.Notification) {
	if err := sc.Notify(n); err != nil {
		log.Debugw("notification rejected", "code", n.Code, "error", err)
	}
}

// Compile-time interface checks.
var (
	_ stream.Wrapper    = (*Wrapper)(nil)
	_ stream.URLStatter = (*Wrapper)(nil)
)
