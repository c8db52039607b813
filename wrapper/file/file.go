package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/nuln/stream"
)

// DefaultStatCacheSize is the number of StatURL results kept per wrapper.
const DefaultStatCacheSize = 256

// Auto-register the file wrapper.
func init() {
	stream.RegisterWrapper("file", func(cfg *stream.WrapperConfig) (stream.Wrapper, error) {
		var opts []Option
		if n, ok := cfg.Int("statCacheSize"); ok {
			opts = append(opts, WithStatCacheSize(int(n)))
		}
		if cfg.BasePath == "" {
			return NewWithFs(afero.NewOsFs(), opts...)
		}
		return New(cfg.BasePath, opts...)
	})
}

// Wrapper implements stream.Wrapper over an afero filesystem.
type Wrapper struct {
	fs        afero.Fs
	root      string
	clock     clock.Clock
	cacheSize int
	stats     *lru.Cache[string, *stream.EntryInfo]
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithClock sets the clock used for default touch times.
func WithClock(c clock.Clock) Option {
	return func(w *Wrapper) { w.clock = c }
}

// WithStatCacheSize sets the StatURL cache size; 0 disables caching.
func WithStatCacheSize(n int) Option {
	return func(w *Wrapper) { w.cacheSize = n }
}

// New creates a Wrapper rooted at root on the OS filesystem.
func New(root string, opts ...Option) (*Wrapper, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0750); err != nil {
		return nil, err
	}
	w, err := NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), absRoot), opts...)
	if err != nil {
		return nil, err
	}
	w.root = absRoot
	return w, nil
}

// NewWithFs creates a Wrapper backed by a custom afero.Fs.
// This is useful for testing with afero.MemMapFs.
func NewWithFs(fs afero.Fs, opts ...Option) (*Wrapper, error) {
	w := &Wrapper{
		fs:        fs,
		root:      ".",
		clock:     clock.New(),
		cacheSize: DefaultStatCacheSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cacheSize > 0 {
		cache, err := lru.New[string, *stream.EntryInfo](w.cacheSize)
		if err != nil {
			return nil, err
		}
		w.stats = cache
	}
	return w, nil
}

// Fs returns the underlying filesystem.
func (w *Wrapper) Fs() afero.Fs { return w.fs }

func (w *Wrapper) forget(path string) {
	if w.stats != nil {
		w.stats.Remove(path)
	}
}

// Open opens the file named by name with the flags of mode. Parent
// directories are created when mode may create the file.
func (w *Wrapper) Open(ctx context.Context, name string, mode stream.Mode, sc *stream.Context) (stream.Resource, error) {
	path := stream.PathOf(name)
	flag := mode.Flag()
	if flag&os.O_CREATE != 0 {
		if err := w.fs.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, err
		}
	}
	f, err := w.fs.OpenFile(path, flag, filePerm(sc))
	if err != nil {
		return nil, err
	}
	w.forget(path)
	return &File{f: f, w: w, path: path}, nil
}

// filePerm reads the "perm" context option, an octal string such as "0600".
func filePerm(sc *stream.Context) os.FileMode {
	var perm uint32 = 0644
	if s := sc.StringOption("perm", ""); s != "" {
		if _, err := fmt.Sscanf(s, "%o", &perm); err != nil {
			perm = 0644
		}
	}
	return os.FileMode(perm)
}

func (w *Wrapper) StatURL(ctx context.Context, name string) (*stream.EntryInfo, error) {
	path := stream.PathOf(name)
	if w.stats != nil {
		if info, ok := w.stats.Get(path); ok {
			return info, nil
		}
	}
	fi, err := w.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	info := stream.EntryFromFileInfo(path, fi)
	if w.stats != nil {
		w.stats.Add(path, info)
	}
	return info, nil
}

// Touch sets the file times, creating the file when it is missing. Zero
// times mean now.
func (w *Wrapper) Touch(ctx context.Context, name string, mtime, atime time.Time) error {
	path := stream.PathOf(name)
	defer w.forget(path)

	now := w.clock.Now()
	if mtime.IsZero() {
		mtime = now
	}
	if atime.IsZero() {
		atime = mtime
	}
	if _, err := w.fs.Stat(path); os.IsNotExist(err) {
		if err := w.fs.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return err
		}
		f, err := w.fs.Create(path)
		if err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return w.fs.Chtimes(path, atime, mtime)
}

func (w *Wrapper) Chmod(ctx context.Context, name string, mode os.FileMode) error {
	path := stream.PathOf(name)
	defer w.forget(path)
	return w.fs.Chmod(path, mode)
}

func (w *Wrapper) Chown(ctx context.Context, name string, uid, gid int) error {
	path := stream.PathOf(name)
	defer w.forget(path)
	return w.fs.Chown(path, uid, gid)
}

func (w *Wrapper) Unlink(ctx context.Context, name string) error {
	path := stream.PathOf(name)
	defer w.forget(path)
	return w.fs.RemoveAll(path)
}

func (w *Wrapper) Rename(ctx context.Context, from, to string) error {
	oldPath, newPath := stream.PathOf(from), stream.PathOf(to)
	defer w.forget(oldPath)
	defer w.forget(newPath)
	if err := w.fs.MkdirAll(filepath.Dir(newPath), 0750); err != nil {
		return err
	}
	return w.fs.Rename(oldPath, newPath)
}

func (w *Wrapper) Mkdir(ctx context.Context, name string, perm os.FileMode, recursive bool) error {
	path := stream.PathOf(name)
	if recursive {
		return w.fs.MkdirAll(path, perm)
	}
	return w.fs.Mkdir(path, perm)
}

func (w *Wrapper) ReadDir(ctx context.Context, name string) ([]*stream.EntryInfo, error) {
	path := stream.PathOf(name)
	infos, err := afero.ReadDir(w.fs, path)
	if err != nil {
		return nil, err
	}
	result := make([]*stream.EntryInfo, 0, len(infos))
	for _, info := range infos {
		result = append(result, stream.EntryFromFileInfo(filepath.Join(path, info.Name()), info))
	}
	return result, nil
}

// File is an open file resource.
type File struct {
	f    afero.File
	w    *Wrapper
	path string
}

func (f *File) Read(p []byte) (int, error) { return f.f.Read(p) }

func (f *File) Write(p []byte) (int, error) {
	f.w.forget(f.path)
	return f.f.Write(p)
}

func (f *File) Seek(offset int64, whence int) (int64, error) { return f.f.Seek(offset, whence) }

func (f *File) Close() error {
	f.w.forget(f.path)
	return f.f.Close()
}

func (f *File) Stat() (*stream.EntryInfo, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return nil, err
	}
	return stream.EntryFromFileInfo(f.path, fi), nil
}

func (f *File) Truncate(size int64) error {
	f.w.forget(f.path)
	return f.f.Truncate(size)
}

// Flush commits the file to stable storage.
func (f *File) Flush() error { return f.f.Sync() }

// Fd returns the OS descriptor, or ^uintptr(0) when the file is not
// backed by the OS.
func (f *File) Fd() uintptr {
	if osf, ok := osFile(f.f); ok {
		return osf.Fd()
	}
	return ^uintptr(0)
}

// Lock applies an flock(2) style advisory lock. Only OS-backed files can
// be locked.
func (f *File) Lock(op stream.LockOp) error {
	osf, ok := osFile(f.f)
	if !ok {
		return fmt.Errorf("stream/file: lock %s: %w", f.path, stream.ErrNotSupported)
	}
	return flock(osf, op)
}

func (f *File) StreamType() string { return "STDIO" }

func osFile(f afero.File) (*os.File, bool) {
	switch v := f.(type) {
	case *os.File:
		return v, true
	case *afero.BasePathFile:
		return osFile(v.File)
	}
	return nil, false
}

// Compile-time interface checks.
var (
	_ stream.Wrapper      = (*Wrapper)(nil)
	_ stream.Walker       = (*Wrapper)(nil)
	_ stream.Toucher      = (*Wrapper)(nil)
	_ stream.ModeChanger  = (*Wrapper)(nil)
	_ stream.OwnerChanger = (*Wrapper)(nil)
	_ stream.Unlinker     = (*Wrapper)(nil)
	_ stream.Renamer      = (*Wrapper)(nil)
	_ io.Seeker           = (*File)(nil)
	_ stream.Statter      = (*File)(nil)
	_ stream.Truncater    = (*File)(nil)
	_ stream.Flusher      = (*File)(nil)
	_ stream.Caster       = (*File)(nil)
	_ stream.Locker       = (*File)(nil)
)
