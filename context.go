package stream

import (
	"maps"
	"strings"
	"sync"
)

// ParamNotification is the context parameter holding the NotifyFunc that
// wrappers report lifecycle events to.
const ParamNotification = "notification"

// Context is a named bundle of options and parameters for one protocol,
// handed to a wrapper when a resource is opened.
type Context struct {
	id      string
	wrapper string

	mu      sync.RWMutex
	options map[string]any
	params  map[string]any
}

func newContext(id, wrapper string) *Context {
	return &Context{
		id:      id,
		wrapper: strings.ToLower(wrapper),
		options: make(map[string]any),
		params:  make(map[string]any),
	}
}

// ID returns the context id.
func (c *Context) ID() string { return c.id }

// Wrapper returns the lower-cased protocol name the options are scoped to.
func (c *Context) Wrapper() string { return c.wrapper }

// AddOption sets one option.
func (c *Context) AddOption(key string, value any) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options[key] = value
	return c
}

// AddOptions sets several options.
func (c *Context) AddOptions(options map[string]any) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.options, options)
	return c
}

// Option returns the value of key. An option set to nil exists; a key
// never set fails with ErrNotFound.
func (c *Context) Option(key string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.options[key]
	if !ok {
		return nil, newError("option", key, ErrNotFound,
			"option does not exist for the context that wraps %s, with id %s", c.wrapper, c.id)
	}
	return v, nil
}

// OptionExists reports whether key was set.
func (c *Context) OptionExists(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.options[key]
	return ok
}

// StringOption returns the option as a string, or def when missing or of
// another type.
func (c *Context) StringOption(key, def string) string {
	if c == nil {
		return def
	}
	v, err := c.Option(key)
	if err != nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// Options returns a copy of every option.
func (c *Context) Options() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.options)
}

// SetParameters merges params into the context parameters.
func (c *Context) SetParameters(params map[string]any) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.params, params)
	return c
}

// Parameters returns a copy of the parameters.
func (c *Context) Parameters() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.params)
}

// SetNotification installs fn as the notification parameter.
func (c *Context) SetNotification(fn NotifyFunc) *Context {
	return c.SetParameters(map[string]any{ParamNotification: fn})
}

// Notification returns the installed NotifyFunc, if any.
func (c *Context) Notification() NotifyFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch fn := c.params[ParamNotification].(type) {
	case NotifyFunc:
		return fn
	case func(Notification) error:
		return fn
	}
	return nil
}

// Notify forwards n to the installed NotifyFunc. It is safe on a nil
// Context and when no function is installed.
func (c *Context) Notify(n Notification) error {
	if c == nil {
		return nil
	}
	fn := c.Notification()
	if fn == nil {
		return nil
	}
	return fn(n)
}

// ContextTable maps context ids to their single Context instance.
type ContextTable struct {
	reg *Registry[string, *Context]
}

// NewContextTable returns an empty table.
func NewContextTable() *ContextTable {
	return &ContextTable{reg: NewRegistry[string, *Context]()}
}

// Get returns the context for id, creating it on first use. The wrapper
// name is required on creation and ignored afterwards.
func (t *ContextTable) Get(id, wrapper string) (*Context, error) {
	if id == "" {
		return nil, newError("context", id, ErrConfiguration, "context id must not be empty")
	}
	c, _, err := t.reg.GetOrCreate(id, func() (*Context, error) {
		if wrapper == "" {
			return nil, newError("context", id, ErrConfiguration, "wrapper name cannot be empty")
		}
		return newContext(id, wrapper), nil
	})
	return c, err
}

// Exists reports whether a context was declared under id.
func (t *ContextTable) Exists(id string) bool {
	return t.reg.Has(id)
}

// IDs returns every declared id, sorted.
func (t *ContextTable) IDs() []string {
	return t.reg.Keys()
}
