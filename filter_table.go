package stream

import (
	"fmt"
	"sync"
)

var builtinFilters = NewRegistry[string, FilterFactory]()

// RegisterFilter makes a filter available to every Runtime created
// afterwards. This is typically called from a filter package's init()
// function. It panics if called twice with the same name.
func RegisterFilter(name string, factory FilterFactory) {
	if name == "" || factory == nil {
		panic("stream: RegisterFilter needs a name and a factory")
	}
	if !builtinFilters.Put(name, factory, false) {
		panic(fmt.Sprintf("stream: filter %q already registered", name))
	}
}

// FilterTarget is anything filters can be attached to. Stream implements it.
type FilterTarget interface {
	FilterChains() (read, write *FilterChain, err error)
}

// Attachment is the token returned by Append/Prepend; keep it to remove
// the filter later.
type Attachment struct {
	name    string
	mode    FilterMode
	table   *FilterTable
	read    *FilterChain
	write   *FilterChain
	filters []Filter

	mu      sync.Mutex
	removed bool
}

// Name returns the filter name.
func (a *Attachment) Name() string { return a.name }

// Mode returns the directions the filter was attached to.
func (a *Attachment) Mode() FilterMode { return a.mode }

// FilterTable holds the filter registrations of a Runtime and the side
// table of attachments by name.
type FilterTable struct {
	reg    *Registry[string, FilterFactory]
	tracer MetricsTracer

	mu       sync.Mutex
	attached map[string]*Attachment
}

// NewFilterTable returns a table holding every built-in filter.
func NewFilterTable() *FilterTable {
	t := &FilterTable{
		reg:      NewRegistry[string, FilterFactory](),
		attached: make(map[string]*Attachment),
	}
	for _, name := range builtinFilters.Keys() {
		f, _ := builtinFilters.Get(name)
		t.reg.Put(name, f, true)
	}
	return t
}

// Register binds name to factory. It fails when name is empty, when the
// factory is nil, or when name is taken and overwrite is false.
func (t *FilterTable) Register(name string, factory FilterFactory, overwrite bool) error {
	if name == "" {
		return newError("filter register", name, ErrConfiguration, "filter name cannot be empty")
	}
	if factory == nil {
		return newError("filter register", name, ErrConfiguration, "no implementation given")
	}
	if !t.reg.Put(name, factory, overwrite) {
		return newError("filter register", name, ErrConflict, "filter is already registered")
	}
	return nil
}

// IsRegistered reports whether name is registered.
func (t *FilterTable) IsRegistered(name string) bool {
	return t.reg.Has(name)
}

// Registered returns every registered filter name, sorted.
func (t *FilterTable) Registered() []string {
	return t.reg.Keys()
}

// Append attaches a new instance of filter name at the end of the chains
// selected by mode.
func (t *FilterTable) Append(target FilterTarget, name string, mode FilterMode, params any) (*Attachment, error) {
	return t.attach(target, name, mode, params, false)
}

// Prepend attaches a new instance of filter name at the head of the chains
// selected by mode.
func (t *FilterTable) Prepend(target FilterTarget, name string, mode FilterMode, params any) (*Attachment, error) {
	return t.attach(target, name, mode, params, true)
}

func (t *FilterTable) attach(target FilterTarget, name string, mode FilterMode, params any, front bool) (*Attachment, error) {
	if mode&FilterReadWrite == 0 || mode&^FilterReadWrite != 0 {
		return nil, newError("filter attach", name, ErrInvalid, "invalid mode %d", mode)
	}
	factory, ok := t.reg.Get(name)
	if !ok {
		return nil, newError("filter attach", name, ErrNotFound, "filter is not registered")
	}
	read, write, err := target.FilterChains()
	if err != nil {
		return nil, wrapError("filter attach", name, ErrClosed, err)
	}

	att := &Attachment{name: name, mode: mode, table: t}
	build := func() (Filter, error) {
		f, err := factory(name, params)
		if err != nil {
			return nil, wrapError("filter create", name, ErrConfiguration, err)
		}
		if c, ok := f.(FilterCreator); ok {
			if err := c.OnCreate(); err != nil {
				return nil, wrapError("filter create", name, ErrConfiguration, err)
			}
		}
		att.filters = append(att.filters, f)
		return f, nil
	}

	var rf, wf Filter
	if mode&FilterRead != 0 {
		if rf, err = build(); err != nil {
			return nil, err
		}
	}
	if mode&FilterWrite != 0 {
		if wf, err = build(); err != nil {
			att.close()
			return nil, err
		}
	}
	if rf != nil {
		read.add(att, rf, front)
		att.read = read
	}
	if wf != nil {
		write.add(att, wf, front)
		att.write = write
	}

	t.mu.Lock()
	t.attached[name] = att
	t.mu.Unlock()

	if t.tracer != nil {
		t.tracer.FilterAttached(name)
	}
	log.Debugw("filter attached", "filter", name, "mode", mode, "prepend", front)
	return att, nil
}

// Remove detaches the filter identified by token.
func (t *FilterTable) Remove(att *Attachment) error {
	if att == nil {
		return newError("filter remove", "", ErrInvalid, "nil attachment")
	}
	att.mu.Lock()
	if att.removed {
		att.mu.Unlock()
		return newError("filter remove", att.name, ErrNotFound, "filter already removed")
	}
	att.removed = true
	att.mu.Unlock()

	if att.read != nil {
		att.read.remove(att)
	}
	if att.write != nil {
		att.write.remove(att)
	}
	att.close()
	t.forget(att)
	return nil
}

// forget drops att from the by-name index unless a newer attachment took
// its name.
func (t *FilterTable) forget(att *Attachment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached[att.name] == att {
		delete(t.attached, att.name)
	}
}

// RemoveByName detaches the last attachment made under name.
func (t *FilterTable) RemoveByName(name string) error {
	t.mu.Lock()
	att, ok := t.attached[name]
	t.mu.Unlock()
	if !ok {
		return newError("filter remove", name, ErrNotFound,
			"cannot remove the stream filter because no attachment was found with this name")
	}
	return t.Remove(att)
}

func (a *Attachment) close() {
	for _, f := range a.filters {
		if c, ok := f.(FilterCloser); ok {
			c.OnClose()
		}
	}
}
