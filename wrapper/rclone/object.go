package rclone

import (
	"context"
	"io"
	"os"
	"path"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/operations"

	"github.com/nuln/stream"
)

// Object is an open rclone object staged in a local temp file. The temp
// file is removed on Close; writable objects are uploaded first when they
// changed since the last upload.
type Object struct {
	f        *os.File
	remote   fs.Fs
	path     string
	writable bool
	dirty    bool
	ctx      context.Context
}

func (o *Object) download(ctx context.Context, obj fs.Object) error {
	rc, err := obj.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	if _, err := io.Copy(o.f, rc); err != nil {
		return err
	}
	_, err = o.f.Seek(0, io.SeekStart)
	return err
}

func (o *Object) Read(p []byte) (int, error) { return o.f.Read(p) }

// Write fails on objects opened read-only.
func (o *Object) Write(p []byte) (int, error) {
	if !o.writable {
		return 0, &os.PathError{Op: "write", Path: o.path, Err: stream.ErrNotSupported}
	}
	o.dirty = true
	return o.f.Write(p)
}

func (o *Object) Seek(offset int64, whence int) (int64, error) {
	return o.f.Seek(offset, whence)
}

func (o *Object) Truncate(size int64) error {
	if !o.writable {
		return &os.PathError{Op: "truncate", Path: o.path, Err: stream.ErrNotSupported}
	}
	o.dirty = true
	return o.f.Truncate(size)
}

func (o *Object) Stat() (*stream.EntryInfo, error) {
	fi, err := o.f.Stat()
	if err != nil {
		return nil, err
	}
	return &stream.EntryInfo{
		Name:    path.Base(o.path),
		Path:    o.path,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, nil
}

// Flush uploads the staged content without closing the object.
func (o *Object) Flush() error {
	if !o.dirty {
		return nil
	}
	return o.upload()
}

func (o *Object) upload() error {
	f, err := os.Open(o.f.Name())
	if err != nil {
		return err
	}
	// Rcat closes f.
	if _, err := operations.Rcat(o.ctx, o.remote, o.path, f, time.Now(), nil); err != nil {
		return err
	}
	o.dirty = false
	return nil
}

// StreamType reports the temp-file staging.
func (o *Object) StreamType() string { return "rclone" }

// WrapperData exposes the remote the object lives on.
func (o *Object) WrapperData() any { return o.remote.String() }

func (o *Object) Close() error {
	var err error
	if o.dirty {
		err = o.upload()
	}
	if derr := o.discard(); err == nil {
		err = derr
	}
	return err
}

func (o *Object) discard() error {
	name := o.f.Name()
	err := o.f.Close()
	_ = os.Remove(name)
	return err
}

var (
	_ stream.Resource  = (*Object)(nil)
	_ io.Seeker        = (*Object)(nil)
	_ stream.Statter   = (*Object)(nil)
	_ stream.Truncater = (*Object)(nil)
	_ stream.Flusher   = (*Object)(nil)
)
