package stream

import (
	"context"
	"sync"

	"github.com/nuln/stream/internal/logging"
)

var log = logging.Logger("stream")

// Runtime owns the stream, context, filter and wrapper tables and the
// event bus. Independent runtimes share nothing.
type Runtime struct {
	cfg      Config
	contexts *ContextTable
	wrappers *WrapperTable
	filters  *FilterTable
	bus      *Bus
	streams  *streamTable
	tracer   MetricsTracer
}

// Option configures NewRuntime.
type Option func(*Runtime)

// WithMetricsTracer records registry activity with t.
func WithMetricsTracer(t MetricsTracer) Option {
	return func(rt *Runtime) { rt.tracer = t }
}

// NewRuntime builds a runtime from cfg, instantiating every built-in
// wrapper and filter and declaring the configured contexts. A nil cfg
// means DefaultConfig().
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		if err := logging.SetLevel(c.LogLevel); err != nil {
			return nil, newError("config", "logLevel", ErrConfiguration, "%v", err)
		}
	}

	rt := &Runtime{
		cfg:      c,
		contexts: NewContextTable(),
		filters:  NewFilterTable(),
		bus:      NewBus(),
	}
	for _, opt := range opts {
		opt(rt)
	}

	wrappers, err := NewWrapperTable(c.Wrappers)
	if err != nil {
		return nil, err
	}
	rt.wrappers = wrappers
	rt.filters.tracer = rt.tracer
	rt.streams = newStreamTable(&rt.cfg, rt.bus, rt.tracer)

	for id, cc := range c.Contexts {
		sc, err := rt.contexts.Get(id, cc.Wrapper)
		if err != nil {
			return nil, err
		}
		sc.AddOptions(cc.Options)
		sc.SetParameters(cc.Parameters)
	}
	return rt, nil
}

// MustNewRuntime is like NewRuntime but panics on error.
func MustNewRuntime(cfg *Config, opts ...Option) *Runtime {
	rt, err := NewRuntime(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return rt
}

var (
	defaultOnce sync.Once
	defaultRT   *Runtime
)

// Default returns the process-wide runtime, built from DefaultConfig on
// first use.
func Default() *Runtime {
	defaultOnce.Do(func() {
		defaultRT = MustNewRuntime(nil)
	})
	return defaultRT
}

// Config returns a copy of the runtime configuration.
func (rt *Runtime) Config() Config { return rt.cfg }

// Contexts returns the context table.
func (rt *Runtime) Contexts() *ContextTable { return rt.contexts }

// Wrappers returns the wrapper table.
func (rt *Runtime) Wrappers() *WrapperTable { return rt.wrappers }

// Filters returns the filter table.
func (rt *Runtime) Filters() *FilterTable { return rt.filters }

// Bus returns the event bus.
func (rt *Runtime) Bus() *Bus { return rt.bus }

// NewStream returns a handle on name, opened unless Deferred is given.
func (rt *Runtime) NewStream(ctx context.Context, name string, opts ...StreamOption) (*Stream, error) {
	s, err := newStream(rt, name, opts...)
	if err != nil {
		return nil, err
	}
	if s.deferred {
		return s, nil
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the handle owning name, nil when name is not open. The
// owner is the handle that opened it, or the oldest remaining borrower once
// the opener has closed.
func (rt *Runtime) Handler(name string) *Stream {
	e, ok := rt.streams.lookup(name)
	if !ok {
		return nil
	}
	return e.handler.Load()
}

// Streams returns the names of every open stream, sorted.
func (rt *Runtime) Streams() []string {
	return rt.streams.names()
}

// CloseAll releases every open resource regardless of how many handles
// share it. It is meant for shutdown.
func (rt *Runtime) CloseAll() error {
	return rt.streams.closeAll()
}

// NewStream opens name on the Default runtime.
func NewStream(ctx context.Context, name string, opts ...StreamOption) (*Stream, error) {
	return Default().NewStream(ctx, name, opts...)
}

// Handler looks name up on the Default runtime.
func Handler(name string) *Stream {
	return Default().Handler(name)
}
