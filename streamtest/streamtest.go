package streamtest

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/nuln/stream"
)

// WrapperTestSuite runs a set of tests against a storage-like Wrapper.
// Names are built as scheme + "://" + path. Call this in your wrapper tests
// to verify correctness:
//
//	func TestMemWrapper(t *testing.T) {
//	    w, _ := mem.New()
//	    streamtest.WrapperTestSuite(t, "mem", w)
//	}
func WrapperTestSuite(t *testing.T, scheme string, w stream.Wrapper) { //nolint:gocyclo
	t.Helper()
	ctx := context.Background()
	name := func(path string) string { return scheme + "://" + path }

	put := func(t *testing.T, path, content string, mode stream.Mode) {
		t.Helper()
		r, err := w.Open(ctx, name(path), mode, nil)
		if err != nil {
			t.Fatalf("Open %s (%s): %v", path, mode, err)
		}
		if _, err := io.WriteString(r, content); err != nil {
			t.Fatalf("Write %s: %v", path, err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("Close %s: %v", path, err)
		}
	}
	get := func(t *testing.T, path string) string {
		t.Helper()
		r, err := w.Open(ctx, name(path), stream.ModeRead, nil)
		if err != nil {
			t.Fatalf("Open %s: %v", path, err)
		}
		defer func() { _ = r.Close() }()
		data, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll %s: %v", path, err)
		}
		return string(data)
	}

	t.Run("Write_Read_Seek", func(t *testing.T) {
		path := "test/hello.txt"
		content := "hello world"
		put(t, path, content, stream.ModeTruncateWrite)

		if got := get(t, path); got != content {
			t.Errorf("content = %q, want %q", got, content)
		}

		r, err := w.Open(ctx, name(path), stream.ModeRead, nil)
		if err != nil {
			t.Fatalf("Open for seek: %v", err)
		}
		defer func() { _ = r.Close() }()
		s, ok := r.(io.Seeker)
		if !ok {
			t.Skip("resource is not seekable")
		}
		if _, err := s.Seek(6, io.SeekStart); err != nil {
			t.Fatalf("Seek: %v", err)
		}
		partial, _ := io.ReadAll(r)
		if string(partial) != "world" {
			t.Errorf("after seek = %q, want %q", string(partial), "world")
		}
		if st, ok := r.(stream.Statter); ok {
			info, err := st.Stat()
			if err != nil {
				t.Fatalf("resource Stat: %v", err)
			}
			if info.Size != int64(len(content)) {
				t.Errorf("resource Size = %d, want %d", info.Size, len(content))
			}
		}
	})

	t.Run("Open_Missing", func(t *testing.T) {
		_, err := w.Open(ctx, name("does/not/exist"), stream.ModeRead, nil)
		if err == nil {
			t.Fatal("Open missing: expected error")
		}
		if !os.IsNotExist(err) {
			t.Errorf("Open missing: got %v, want a not-exist error", err)
		}
	})

	t.Run("Append", func(t *testing.T) {
		path := "append_test.txt"
		put(t, path, "hello", stream.ModeTruncateWrite)
		put(t, path, " world", stream.ModeAppendWrite)
		if got := get(t, path); got != "hello world" {
			t.Errorf("after append = %q, want %q", got, "hello world")
		}
	})

	t.Run("Exclusive", func(t *testing.T) {
		path := "exclusive.txt"
		put(t, path, "once", stream.ModeCreateWrite)
		if _, err := w.Open(ctx, name(path), stream.ModeCreateWrite, nil); err == nil {
			t.Error("second exclusive create: expected error")
		}
	})

	if st, ok := w.(stream.URLStatter); ok {
		t.Run("StatURL", func(t *testing.T) {
			path := "stat/file.txt"
			put(t, path, "12345", stream.ModeTruncateWrite)
			info, err := st.StatURL(ctx, name(path))
			if err != nil {
				t.Fatalf("StatURL: %v", err)
			}
			if info.Name != "file.txt" {
				t.Errorf("Name = %q, want %q", info.Name, "file.txt")
			}
			if info.Size != 5 {
				t.Errorf("Size = %d, want 5", info.Size)
			}
			if info.IsDir {
				t.Error("IsDir = true, want false")
			}

			put(t, path, "1234567", stream.ModeTruncateWrite)
			info, err = st.StatURL(ctx, name(path))
			if err != nil {
				t.Fatalf("StatURL after rewrite: %v", err)
			}
			if info.Size != 7 {
				t.Errorf("Size after rewrite = %d, want 7", info.Size)
			}
		})
	}

	if u, ok := w.(stream.Unlinker); ok {
		t.Run("Unlink", func(t *testing.T) {
			path := "unlink_me.txt"
			put(t, path, "bye", stream.ModeTruncateWrite)
			if err := u.Unlink(ctx, name(path)); err != nil {
				t.Fatalf("Unlink: %v", err)
			}
			if _, err := w.Open(ctx, name(path), stream.ModeRead, nil); err == nil {
				t.Error("Open after Unlink: expected error")
			}
		})
	}

	if rn, ok := w.(stream.Renamer); ok {
		t.Run("Rename", func(t *testing.T) {
			src, dst := "rename_src.txt", "moved/rename_dst.txt"
			put(t, src, "data", stream.ModeTruncateWrite)
			if err := rn.Rename(ctx, name(src), name(dst)); err != nil {
				t.Fatalf("Rename: %v", err)
			}
			if _, err := w.Open(ctx, name(src), stream.ModeRead, nil); err == nil {
				t.Error("Open src after Rename: expected error")
			}
			if got := get(t, dst); got != "data" {
				t.Errorf("dst content = %q, want %q", got, "data")
			}
		})
	}

	if dr, ok := w.(stream.DirReader); ok {
		t.Run("Mkdir_ReadDir", func(t *testing.T) {
			dir := "dirops"
			if err := dr.Mkdir(ctx, name(dir+"/nested"), 0750, true); err != nil {
				t.Fatalf("Mkdir: %v", err)
			}
			for _, f := range []string{"a.txt", "b.txt"} {
				put(t, dir+"/"+f, f, stream.ModeTruncateWrite)
			}
			entries, err := dr.ReadDir(ctx, name(dir))
			if err != nil {
				t.Fatalf("ReadDir: %v", err)
			}
			if len(entries) != 3 {
				t.Errorf("ReadDir: got %d entries, want 3", len(entries))
			}
		})
	}

	if walker, ok := w.(stream.Walker); ok {
		t.Run("Walk", func(t *testing.T) {
			put(t, "walk/f1.txt", "1", stream.ModeTruncateWrite)
			put(t, "walk/sub/f2.txt", "2", stream.ModeTruncateWrite)

			var files []string
			err := stream.Walk(ctx, walker, name("walk"), func(n string, info *stream.EntryInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir {
					files = append(files, info.Name)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Walk: %v", err)
			}
			if len(files) != 2 {
				t.Errorf("Walk found %d files, want 2: %v", len(files), files)
			}
		})
	}

	t.Run("Runtime", func(t *testing.T) {
		rt, err := stream.NewRuntime(nil)
		if err != nil {
			t.Fatalf("NewRuntime: %v", err)
		}
		_ = rt.Wrappers().Unregister(scheme)
		if err := rt.Wrappers().Register(scheme, w, 0); err != nil {
			t.Fatalf("Register: %v", err)
		}

		path := name("runtime/shared.txt")
		ws, err := rt.NewStream(ctx, path, stream.WithMode(stream.ModeTruncateWrite))
		if err != nil {
			t.Fatalf("NewStream: %v", err)
		}
		if _, err := ws.WriteString("via the registry"); err != nil {
			t.Fatalf("WriteString: %v", err)
		}
		if err := ws.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if ws.IsOpened() {
			t.Error("IsOpened after Close = true")
		}

		rs, err := rt.NewStream(ctx, path)
		if err != nil {
			t.Fatalf("NewStream read: %v", err)
		}
		defer func() { _ = rs.Close() }()
		if rt.Handler(path) != rs {
			t.Error("Handler does not return the opening handle")
		}
		data, err := rs.ReadAll()
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if string(data) != "via the registry" {
			t.Errorf("content = %q, want %q", data, "via the registry")
		}
	})
}
