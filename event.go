package stream

import (
	"strings"
	"sync"
)

// Notification codes delivered by wrappers while an operation is in flight.
const (
	CodeResolve      = 1
	CodeConnect      = 2
	CodeAuthRequired = 3
	CodeMimeTypeIs   = 4
	CodeFileSizeIs   = 5
	CodeRedirected   = 6
	CodeProgress     = 7
	CodeCompleted    = 8
	CodeFailure      = 9
	CodeAuthResult   = 10
)

// Severity of a notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityErr
)

// Event is the closed set of lifecycle events a stream listener can observe.
type Event int

const (
	EventResolve Event = iota + 1
	EventConnect
	EventAuthRequire
	EventAuthResult
	EventMimeType
	EventSize
	EventRedirect
	EventProgress
	EventComplete
	EventFailure
)

var eventNames = map[Event]string{
	EventResolve:     "resolve",
	EventConnect:     "connect",
	EventAuthRequire: "authrequire",
	EventAuthResult:  "authresult",
	EventMimeType:    "mimetype",
	EventSize:        "size",
	EventRedirect:    "redirect",
	EventProgress:    "progress",
	EventComplete:    "complete",
	EventFailure:     "failure",
}

var codeEvents = map[int]Event{
	CodeResolve:      EventResolve,
	CodeConnect:      EventConnect,
	CodeAuthRequired: EventAuthRequire,
	CodeMimeTypeIs:   EventMimeType,
	CodeFileSizeIs:   EventSize,
	CodeRedirected:   EventRedirect,
	CodeProgress:     EventProgress,
	CodeCompleted:    EventComplete,
	CodeFailure:      EventFailure,
	CodeAuthResult:   EventAuthResult,
}

// Events lists every event in declaration order.
func Events() []Event {
	return []Event{
		EventResolve, EventConnect, EventAuthRequire, EventAuthResult, EventMimeType,
		EventSize, EventRedirect, EventProgress, EventComplete, EventFailure,
	}
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "unknown"
}

// ParseEvent resolves a listener name. "redirected" and "completed" are
// accepted as aliases of "redirect" and "complete".
func ParseEvent(name string) (Event, error) {
	name = strings.ToLower(name)
	switch name {
	case "redirected":
		return EventRedirect, nil
	case "completed":
		return EventComplete, nil
	}
	for ev, n := range eventNames {
		if n == name {
			return ev, nil
		}
	}
	return 0, newError("event", name, ErrUnsupportedEvent, "unknown listener id")
}

// EventForCode maps a notification code to its event.
func EventForCode(code int) (Event, error) {
	ev, ok := codeEvents[code]
	if !ok {
		return 0, newError("notify", "", ErrUnsupportedEvent, "unknown notification code %d", code)
	}
	return ev, nil
}

// Notification is one low-level lifecycle callback.
type Notification struct {
	Code        int
	Severity    Severity
	Message     string
	MessageCode int
	Transferred int64
	Max         int64
}

// NotifyFunc receives notifications emitted by a wrapper. It is stored in
// the "notification" parameter of a Context.
type NotifyFunc func(n Notification) error

// Callback is a listener registered with Stream.On.
type Callback func(ev Event, n Notification)

// Listener holds the callbacks attached to each event of one stream.
type Listener struct {
	mu        sync.RWMutex
	callbacks map[Event][]Callback
}

// NewListener returns a listener accepting every event in Events.
func NewListener() *Listener {
	l := &Listener{}
	l.Reset()
	return l
}

// Attach registers cb for the named event.
func (l *Listener) Attach(name string, cb Callback) error {
	ev, err := ParseEvent(name)
	if err != nil {
		return err
	}
	if cb == nil {
		return newError("on", name, ErrInvalid, "nil callback")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.callbacks == nil {
		return newError("on", name, ErrClosed, "listener torn down")
	}
	l.callbacks[ev] = append(l.callbacks[ev], cb)
	return nil
}

// Exists reports whether name is a listener id of this set.
func (l *Listener) Exists(name string) bool {
	ev, err := ParseEvent(name)
	if err != nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.callbacks[ev]
	return ok
}

// Fire calls every callback attached to ev and returns how many ran.
func (l *Listener) Fire(ev Event, n Notification) int {
	l.mu.RLock()
	cbs := append([]Callback(nil), l.callbacks[ev]...)
	l.mu.RUnlock()

	for _, cb := range cbs {
		cb(ev, n)
	}
	return len(cbs)
}

// Reset drops every callback and re-opens all event slots.
func (l *Listener) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = make(map[Event][]Callback, len(eventNames))
	for ev := range eventNames {
		l.callbacks[ev] = nil
	}
}

// Notifiable is the interface-based binding of the same events: one method
// per event. See Stream.Attach.
type Notifiable interface {
	Resolve(n Notification)
	Connect(n Notification)
	AuthRequire(n Notification)
	AuthResult(n Notification)
	MimeType(n Notification)
	Size(n Notification)
	Redirect(n Notification)
	Progress(n Notification)
	Complete(n Notification)
	Failure(n Notification)
}

func notifiableCallback(target Notifiable) Callback {
	return func(ev Event, n Notification) {
		switch ev {
		case EventResolve:
			target.Resolve(n)
		case EventConnect:
			target.Connect(n)
		case EventAuthRequire:
			target.AuthRequire(n)
		case EventAuthResult:
			target.AuthResult(n)
		case EventMimeType:
			target.MimeType(n)
		case EventSize:
			target.Size(n)
		case EventRedirect:
			target.Redirect(n)
		case EventProgress:
			target.Progress(n)
		case EventComplete:
			target.Complete(n)
		case EventFailure:
			target.Failure(n)
		}
	}
}
