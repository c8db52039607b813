package stream

import (
	"sync"
)

// FilterChain is the ordered list of filters applied to one direction of
// an open resource.
type FilterChain struct {
	mu    sync.Mutex
	links []chainLink
}

type chainLink struct {
	att    *Attachment
	filter Filter
}

// Len returns the number of attached filters.
func (c *FilterChain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.links)
}

// Names returns the attached filter names in execution order.
func (c *FilterChain) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.links))
	for _, l := range c.links {
		names = append(names, l.att.name)
	}
	return names
}

func (c *FilterChain) add(att *Attachment, f Filter, front bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	link := chainLink{att: att, filter: f}
	if front {
		c.links = append([]chainLink{link}, c.links...)
		return
	}
	c.links = append(c.links, link)
}

func (c *FilterChain) remove(att *Attachment) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, l := range c.links {
		if l.att == att {
			c.links = append(c.links[:i], c.links[i+1:]...)
			return true
		}
	}
	return false
}

// release detaches every filter once the resource is closed, running the
// close hooks of attachments not removed yet and dropping them from their
// table.
func (c *FilterChain) release() {
	c.mu.Lock()
	links := c.links
	c.links = nil
	c.mu.Unlock()

	for _, l := range links {
		l.att.mu.Lock()
		removed := l.att.removed
		l.att.removed = true
		l.att.mu.Unlock()
		if !removed {
			l.att.close()
		}
		if l.att.table != nil {
			l.att.table.forget(l.att)
		}
	}
}

// Process runs data through every filter in order. Output is nil while a
// filter is still asking for input. On a closing pass every filter gets its
// closing invocation, even when an earlier one produced nothing.
func (c *FilterChain) Process(data []byte, closing bool) ([]byte, error) {
	c.mu.Lock()
	links := append([]chainLink(nil), c.links...)
	c.mu.Unlock()

	in := NewBrigade()
	if len(data) > 0 {
		in.Append(NewBucket(append([]byte(nil), data...)))
	}
	for _, l := range links {
		out := NewBrigade()
		var consumed int64
		switch l.filter.Filter(in, out, &consumed, closing) {
		case FilterFatalError:
			return nil, newError("filter", l.att.name, ErrFilterFatal, "fatal error after consuming %d bytes", consumed)
		case FilterFeedMe:
			if !closing {
				return nil, nil
			}
		}
		in = out
	}
	return in.Bytes(), nil
}
