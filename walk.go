package stream

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// WalkFunc is the callback for Walk. It is called for each file or directory
// visited. If it returns filepath.SkipDir for a directory, Walk skips that
// directory's contents.
type WalkFunc func(name string, info *EntryInfo, err error) error

// Walker is what Walk needs from a wrapper.
type Walker interface {
	URLStatter
	DirReader
}

// Walk walks the tree rooted at root, calling fn for each entry including
// root. Names handed to fn carry root's scheme.
func Walk(ctx context.Context, w Walker, root string, fn WalkFunc) error {
	info, err := w.StatURL(ctx, root)
	if err != nil {
		err = fn(root, nil, err)
	} else {
		err = walk(ctx, w, root, info, fn)
	}
	if errors.Is(err, filepath.SkipDir) {
		return nil
	}
	return err
}

func walk(ctx context.Context, w Walker, name string, info *EntryInfo, fn WalkFunc) error {
	if !info.IsDir {
		return fn(name, info, nil)
	}

	if err := fn(name, info, nil); err != nil {
		if errors.Is(err, filepath.SkipDir) {
			return nil
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := w.ReadDir(ctx, name)
	if err != nil {
		if err = fn(name, nil, err); err != nil {
			if errors.Is(err, filepath.SkipDir) {
				return nil
			}
			return err
		}
	}

	prefix := ""
	if i := strings.Index(name, "://"); i > 0 {
		prefix = name[:i+3]
	}
	for _, entry := range entries {
		child := prefix + entry.Path
		if err := walk(ctx, w, child, entry, fn); err != nil {
			if errors.Is(err, filepath.SkipDir) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Walk walks root using the wrapper registered for its scheme.
func (rt *Runtime) Walk(ctx context.Context, root string, fn WalkFunc) error {
	w, err := rt.wrappers.For(root)
	if err != nil {
		return err
	}
	walker, ok := w.(Walker)
	if !ok {
		return newError("walk", root, ErrNotSupported, "wrapper cannot list directories")
	}
	return Walk(ctx, walker, root, fn)
}
