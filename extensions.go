package stream

import (
	"context"
	"os"
	"time"
)

// Resource capabilities. A wrapper declares what its resources support by
// implementing these; use type assertion to check:
//
//	if st, ok := r.(stream.Statter); ok { ... }

// Statter returns metadata about an open resource.
type Statter interface {
	Stat() (*EntryInfo, error)
}

// Truncater resizes an open resource.
type Truncater interface {
	Truncate(size int64) error
}

// Locker applies advisory locks.
type Locker interface {
	Lock(op LockOp) error
}

// Flusher pushes buffered output to the underlying storage.
type Flusher interface {
	Flush() error
}

// Caster exposes the underlying OS handle.
type Caster interface {
	Fd() uintptr
}

// Deadliner supports per-operation timeouts, see Stream.SetTimeout.
type Deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Blocker switches a resource between blocking and non-blocking reads. A
// non-blocking read with nothing available fails with ErrWouldBlock.
type Blocker interface {
	SetBlocking(blocking bool) error
}

// Wrapper capabilities operate on names rather than open resources.

// URLStatter stats a name without opening it.
type URLStatter interface {
	StatURL(ctx context.Context, name string) (*EntryInfo, error)
}

// Toucher sets access and modification times, creating the target if needed.
type Toucher interface {
	Touch(ctx context.Context, name string, mtime, atime time.Time) error
}

// ModeChanger changes permission bits.
type ModeChanger interface {
	Chmod(ctx context.Context, name string, mode os.FileMode) error
}

// OwnerChanger changes ownership.
type OwnerChanger interface {
	Chown(ctx context.Context, name string, uid, gid int) error
}

// Unlinker deletes a name.
type Unlinker interface {
	Unlink(ctx context.Context, name string) error
}

// Renamer moves a name. Both names use the same scheme.
type Renamer interface {
	Rename(ctx context.Context, from, to string) error
}

// DirReader lists and creates directories.
type DirReader interface {
	ReadDir(ctx context.Context, name string) ([]*EntryInfo, error)
	Mkdir(ctx context.Context, name string, perm os.FileMode, recursive bool) error
}

// Transporter lists the network transports a wrapper accepts.
type Transporter interface {
	Transports() []string
}
