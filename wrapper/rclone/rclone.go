// Package rclone registers the "rclone" protocol, serving names from any
// rclone remote. The remote comes from the wrapper configuration
// (Options["remote"] or BasePath) or from the "remote" option of the
// stream context, e.g. ":local:/srv/data" or "gdrive:backup".
package rclone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/operations"

	"github.com/nuln/stream"
)

// Auto-register the rclone wrapper. A missing remote is not an error here:
// contexts may supply one per stream.
func init() {
	stream.RegisterWrapper("rclone", func(cfg *stream.WrapperConfig) (stream.Wrapper, error) {
		remote := cfg.String("remote")
		if remote == "" {
			remote = cfg.BasePath
		}
		return &Wrapper{defaultRemote: remote, remotes: make(map[string]fs.Fs)}, nil
	})
}

// Wrapper implements stream.Wrapper on top of rclone's fs.Fs. Remotes are
// created once per remote string and cached.
type Wrapper struct {
	defaultRemote string

	mu      sync.Mutex
	remotes map[string]fs.Fs
}

// New creates a Wrapper whose default remote is remotePath. The remote is
// resolved eagerly so configuration errors surface here.
func New(ctx context.Context, remotePath string) (*Wrapper, error) {
	w := &Wrapper{defaultRemote: remotePath, remotes: make(map[string]fs.Fs)}
	if _, err := w.remote(ctx, nil); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Wrapper) remote(ctx context.Context, sc *stream.Context) (fs.Fs, error) {
	target := w.defaultRemote
	if sc != nil {
		target = sc.StringOption("remote", target)
	}
	if target == "" {
		return nil, fmt.Errorf("stream/rclone: remote is required (set Options[\"remote\"] or the context option): %w", stream.ErrConfiguration)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := w.remotes[target]; ok {
		return f, nil
	}
	f, err := fs.NewFs(ctx, target)
	if err != nil {
		return nil, err
	}
	w.remotes[target] = f
	return f, nil
}

// Open stages the object in a local temp file. Rclone objects do not seek,
// so reads download the whole object first and writes are uploaded with
// operations.Rcat on Close.
func (w *Wrapper) Open(ctx context.Context, name string, mode stream.Mode, sc *stream.Context) (stream.Resource, error) {
	remote, err := w.remote(ctx, sc)
	if err != nil {
		return nil, err
	}
	p := stream.PathOf(name)
	flag := mode.Flag()

	obj, err := remote.NewObject(ctx, p)
	exists := err == nil
	switch {
	case err != nil && !errors.Is(err, fs.ErrorObjectNotFound):
		return nil, convertError(err)
	case !exists && flag&os.O_CREATE == 0:
		return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
	case exists && flag&os.O_EXCL != 0:
		return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrExist}
	}

	tmp, err := os.CreateTemp("", "stream-rclone-*")
	if err != nil {
		return nil, err
	}
	// Newly created or truncated objects are uploaded even when unwritten.
	o := &Object{
		f:        tmp,
		remote:   remote,
		path:     p,
		writable: mode.Writable(),
		dirty:    mode.Writable() && (!exists || flag&os.O_TRUNC != 0),
		ctx:      context.WithoutCancel(ctx),
	}

	if exists && flag&os.O_TRUNC == 0 {
		if err := o.download(ctx, obj); err != nil {
			_ = o.discard()
			return nil, err
		}
	}
	if flag&os.O_APPEND != 0 {
		if _, err := o.f.Seek(0, io.SeekEnd); err != nil {
			_ = o.discard()
			return nil, err
		}
	}
	return o, nil
}

func (w *Wrapper) StatURL(ctx context.Context, name string) (*stream.EntryInfo, error) {
	remote, err := w.remote(ctx, nil)
	if err != nil {
		return nil, err
	}
	p := stream.PathOf(name)
	obj, err := remote.NewObject(ctx, p)
	if err != nil {
		// Might be a directory
		if _, errDir := remote.List(ctx, p); errDir == nil {
			return &stream.EntryInfo{Name: path.Base(p), Path: p, IsDir: true}, nil
		}
		return nil, convertError(err)
	}
	return &stream.EntryInfo{
		Name:    path.Base(obj.Remote()),
		Path:    p,
		Size:    obj.Size(),
		ModTime: obj.ModTime(ctx),
	}, nil
}

// Touch sets the modification time of name, creating it empty when missing.
// Remotes only keep one timestamp, so atime is ignored.
func (w *Wrapper) Touch(ctx context.Context, name string, mtime, atime time.Time) error {
	remote, err := w.remote(ctx, nil)
	if err != nil {
		return err
	}
	if mtime.IsZero() {
		mtime = time.Now()
	}
	p := stream.PathOf(name)
	obj, err := remote.NewObject(ctx, p)
	if err != nil {
		if !errors.Is(err, fs.ErrorObjectNotFound) {
			return convertError(err)
		}
		_, err = operations.Rcat(ctx, remote, p, io.NopCloser(&emptyReader{}), mtime, nil)
		return err
	}
	return obj.SetModTime(ctx, mtime)
}

func (w *Wrapper) Unlink(ctx context.Context, name string) error {
	remote, err := w.remote(ctx, nil)
	if err != nil {
		return err
	}
	p := stream.PathOf(name)
	obj, err := remote.NewObject(ctx, p)
	if err != nil {
		// Try as directory
		return convertError(operations.Purge(ctx, remote, p))
	}
	return obj.Remove(ctx)
}

func (w *Wrapper) Rename(ctx context.Context, from, to string) error {
	remote, err := w.remote(ctx, nil)
	if err != nil {
		return err
	}
	return convertError(operations.MoveFile(ctx, remote, remote, stream.PathOf(to), stream.PathOf(from)))
}

// Mkdir creates the directory. Remotes create parents implicitly, so
// recursive is always honoured.
func (w *Wrapper) Mkdir(ctx context.Context, name string, perm os.FileMode, recursive bool) error {
	remote, err := w.remote(ctx, nil)
	if err != nil {
		return err
	}
	return remote.Mkdir(ctx, stream.PathOf(name))
}

func (w *Wrapper) ReadDir(ctx context.Context, name string) ([]*stream.EntryInfo, error) {
	remote, err := w.remote(ctx, nil)
	if err != nil {
		return nil, err
	}
	dir := stream.PathOf(name)
	entries, err := remote.List(ctx, dir)
	if err != nil {
		return nil, convertError(err)
	}

	result := make([]*stream.EntryInfo, 0, len(entries))
	for _, entry := range entries {
		info := &stream.EntryInfo{
			Name: path.Base(entry.Remote()),
			Path: path.Join(dir, path.Base(entry.Remote())),
		}
		if obj, ok := entry.(fs.Object); ok {
			info.Size = obj.Size()
			info.ModTime = obj.ModTime(ctx)
		} else {
			info.IsDir = true
		}
		result = append(result, info)
	}
	return result, nil
}

func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrorObjectNotFound) || errors.Is(err, fs.ErrorDirNotFound) {
		return os.ErrNotExist
	}
	return err
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

// Compile-time interface checks.
var (
	_ stream.Wrapper  = (*Wrapper)(nil)
	_ stream.Walker   = (*Wrapper)(nil)
	_ stream.Toucher  = (*Wrapper)(nil)
	_ stream.Unlinker = (*Wrapper)(nil)
	_ stream.Renamer  = (*Wrapper)(nil)
)
