package stream

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
)

// Mode is an fopen-style open mode: r, r+, w, w+, a, a+, x, x+, c or c+.
// The b and t modifiers are accepted and ignored.
type Mode string

const (
	ModeRead              Mode = "r"
	ModeReadWrite         Mode = "r+"
	ModeTruncateWrite     Mode = "w"
	ModeTruncateReadWrite Mode = "w+"
	ModeAppendWrite       Mode = "a"
	ModeAppendReadWrite   Mode = "a+"
	ModeCreateWrite       Mode = "x"
	ModeCreateReadWrite   Mode = "x+"
	ModeOpenWrite         Mode = "c"
	ModeOpenReadWrite     Mode = "c+"
)

func (m Mode) base() string {
	return strings.NewReplacer("b", "", "t", "").Replace(string(m))
}

// Validate reports whether m is a known mode.
func (m Mode) Validate() error {
	switch m.base() {
	case "r", "r+", "w", "w+", "a", "a+", "x", "x+", "c", "c+":
		return nil
	}
	return newError("mode", string(m), ErrInvalid, "unknown open mode")
}

// Flag translates m into os.OpenFile flags.
func (m Mode) Flag() int {
	b := m.base()
	plus := strings.HasSuffix(b, "+")
	rw := os.O_WRONLY
	if plus {
		rw = os.O_RDWR
	}
	switch strings.TrimSuffix(b, "+") {
	case "w":
		return rw | os.O_CREATE | os.O_TRUNC
	case "a":
		return rw | os.O_CREATE | os.O_APPEND
	case "x":
		return rw | os.O_CREATE | os.O_EXCL
	case "c":
		return rw | os.O_CREATE
	default:
		if plus {
			return os.O_RDWR
		}
		return os.O_RDONLY
	}
}

// Readable reports whether the mode allows reading.
func (m Mode) Readable() bool {
	b := m.base()
	return b == "r" || strings.HasSuffix(b, "+")
}

// Writable reports whether the mode allows writing.
func (m Mode) Writable() bool {
	return m.base() != "r"
}

// Resource is the native handle a wrapper returns. Optional capabilities
// are discovered with type assertions, see extensions.go.
type Resource interface {
	io.Reader
	io.Writer
	io.Closer
}

// Wrapper implements one protocol scheme. name is the full stream name,
// scheme included; use PathOf to strip it.
type Wrapper interface {
	Open(ctx context.Context, name string, mode Mode, sc *Context) (Resource, error)
}

// WrapperFactory builds a Wrapper for one Runtime.
type WrapperFactory func(cfg *WrapperConfig) (Wrapper, error)

// WrapperFlags qualify a wrapper registration.
type WrapperFlags int

// FlagURL marks a wrapper whose names are URLs rather than local paths.
const FlagURL WrapperFlags = 1

type builtinWrapper struct {
	factory WrapperFactory
	flags   WrapperFlags
}

var (
	builtinWrappersMu sync.RWMutex
	builtinWrappers   = make(map[string]builtinWrapper)
)

// RegisterWrapper makes a protocol available to every Runtime created
// afterwards, with the given registration flags. This is typically called
// from a wrapper package's init() function. It panics if called twice with
// the same protocol.
func RegisterWrapper(protocol string, factory WrapperFactory, flags ...WrapperFlags) {
	builtinWrappersMu.Lock()
	defer builtinWrappersMu.Unlock()

	protocol = strings.ToLower(protocol)
	if factory == nil {
		panic("stream: RegisterWrapper factory is nil")
	}
	if _, dup := builtinWrappers[protocol]; dup {
		panic("stream: RegisterWrapper called twice for protocol " + protocol)
	}
	var f WrapperFlags
	for _, fl := range flags {
		f |= fl
	}
	builtinWrappers[protocol] = builtinWrapper{factory: factory, flags: f}
}

// BuiltinWrappers returns the protocols registered with RegisterWrapper.
func BuiltinWrappers() []string {
	builtinWrappersMu.RLock()
	defer builtinWrappersMu.RUnlock()

	reg := NewRegistry[string, struct{}]()
	for p := range builtinWrappers {
		reg.Put(p, struct{}{}, true)
	}
	return reg.Keys()
}

// SchemeOf returns the lower-cased protocol prefix of name, or "file" when
// name carries none.
func SchemeOf(name string) string {
	if i := strings.Index(name, "://"); i > 0 {
		return strings.ToLower(name[:i])
	}
	return "file"
}

// PathOf strips the protocol prefix from name.
func PathOf(name string) string {
	if i := strings.Index(name, "://"); i > 0 {
		return name[i+3:]
	}
	return name
}

type wrapperBinding struct {
	wrapper Wrapper
	flags   WrapperFlags
}

// WrapperTable maps protocol names to wrappers for one Runtime.
type WrapperTable struct {
	reg      *Registry[string, wrapperBinding]
	builtins map[string]wrapperBinding
}

// NewWrapperTable instantiates every built-in wrapper with its entry of
// configs, if any.
func NewWrapperTable(configs map[string]WrapperConfig) (*WrapperTable, error) {
	builtinWrappersMu.RLock()
	defer builtinWrappersMu.RUnlock()

	t := &WrapperTable{
		reg:      NewRegistry[string, wrapperBinding](),
		builtins: make(map[string]wrapperBinding, len(builtinWrappers)),
	}
	for protocol, b := range builtinWrappers {
		cfg := configs[protocol]
		w, err := b.factory(&cfg)
		if err != nil {
			return nil, wrapError("wrapper init", protocol, ErrConfiguration, err)
		}
		binding := wrapperBinding{wrapper: w, flags: b.flags}
		t.builtins[protocol] = binding
		t.reg.Put(protocol, binding, true)
	}
	return t, nil
}

// Register binds protocol to w.
func (t *WrapperTable) Register(protocol string, w Wrapper, flags WrapperFlags) error {
	protocol = strings.ToLower(protocol)
	if protocol == "" {
		return newError("wrapper register", protocol, ErrConfiguration, "protocol cannot be empty")
	}
	if w == nil {
		return newError("wrapper register", protocol, ErrConfiguration, "implementation not found")
	}
	if !t.reg.Put(protocol, wrapperBinding{wrapper: w, flags: flags}, false) {
		return newError("wrapper register", protocol, ErrConflict, "protocol is already registered")
	}
	log.Debugw("wrapper registered", "protocol", protocol, "flags", flags)
	return nil
}

// Unregister removes the binding of protocol.
func (t *WrapperTable) Unregister(protocol string) error {
	protocol = strings.ToLower(protocol)
	if !t.reg.Delete(protocol) {
		return newError("wrapper unregister", protocol, ErrNotFound, "protocol is not registered")
	}
	return nil
}

// Restore reinstates the built-in wrapper of protocol, replacing any
// custom binding.
func (t *WrapperTable) Restore(protocol string) error {
	protocol = strings.ToLower(protocol)
	b, ok := t.builtins[protocol]
	if !ok {
		return newError("wrapper restore", protocol, ErrNotFound, "no built-in wrapper for this protocol")
	}
	t.reg.Put(protocol, b, true)
	return nil
}

// IsRegistered reports whether protocol is bound.
func (t *WrapperTable) IsRegistered(protocol string) bool {
	return t.reg.Has(strings.ToLower(protocol))
}

// Registered returns every bound protocol, sorted.
func (t *WrapperTable) Registered() []string {
	return t.reg.Keys()
}

// Lookup returns the wrapper bound to protocol.
func (t *WrapperTable) Lookup(protocol string) (Wrapper, bool) {
	b, ok := t.reg.Get(strings.ToLower(protocol))
	return b.wrapper, ok
}

// Flags returns the registration flags of protocol.
func (t *WrapperTable) Flags(protocol string) WrapperFlags {
	b, _ := t.reg.Get(strings.ToLower(protocol))
	return b.flags
}

// For returns the wrapper serving name.
func (t *WrapperTable) For(name string) (Wrapper, error) {
	scheme := SchemeOf(name)
	w, ok := t.Lookup(scheme)
	if !ok {
		return nil, newError("wrapper", scheme, ErrNotFound, "no wrapper registered for %s", name)
	}
	return w, nil
}

// Opener supplies the open and close hooks of a stream. The default one
// dispatches to the wrapper registered for the name's scheme.
type Opener interface {
	OpenResource(ctx context.Context, name string, sc *Context) (Resource, error)
	CloseResource(r Resource) error
}

type wrapperOpener struct {
	table *WrapperTable
	mode  Mode
}

func (o *wrapperOpener) OpenResource(ctx context.Context, name string, sc *Context) (Resource, error) {
	w, err := o.table.For(name)
	if err != nil {
		return nil, err
	}
	r, err := w.Open(ctx, name, o.mode, sc)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, newError("open", name, ErrInvalidResource, "wrapper returned no resource")
	}
	return r, nil
}

func (o *wrapperOpener) CloseResource(r Resource) error {
	return r.Close()
}
