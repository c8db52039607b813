package sharded

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/nuln/stream"
)

// reader stitches the shards of one manifest together and supports seeking
// to any offset within the logical file.
type reader struct {
	wrapper  *Wrapper
	path     string
	manifest Manifest
	offset   int64
}

func newReader(w *Wrapper, path string, m Manifest) *reader {
	return &reader{wrapper: w, path: path, manifest: m}
}

// locate returns the chunk holding offset and the position inside it.
func (r *reader) locate(offset int64) (idx int, within, remaining int64, err error) {
	if len(r.manifest.ChunkSizes) > 0 {
		var start int64
		for i, sz := range r.manifest.ChunkSizes {
			if offset < start+sz {
				return i, offset - start, sz - (offset - start), nil
			}
			start += sz
		}
		return 0, 0, 0, io.ErrUnexpectedEOF
	}
	cs := r.wrapper.chunkSize
	return int(offset / cs), offset % cs, cs - offset%cs, nil
}

func (r *reader) Read(p []byte) (int, error) {
	if r.offset >= r.manifest.Size {
		return 0, io.EOF
	}

	total := 0
	for len(p) > 0 && r.offset < r.manifest.Size {
		idx, within, remaining, err := r.locate(r.offset)
		if err != nil {
			return total, err
		}
		if idx >= len(r.manifest.Chunks) {
			return total, io.ErrUnexpectedEOF
		}

		f, err := r.wrapper.shardsFs.Open(HashPath(r.manifest.Chunks[idx]))
		if err != nil {
			return total, err
		}
		if _, err := f.Seek(within, io.SeekStart); err != nil {
			_ = f.Close()
			return total, err
		}

		n, readErr := f.Read(p[:min(int64(len(p)), remaining)])
		_ = f.Close()

		total += n
		r.offset += int64(n)
		p = p[n:]

		if readErr != nil && readErr != io.EOF {
			return total, readErr
		}
		if n == 0 && readErr == io.EOF {
			break
		}
	}
	return total, nil
}

func (r *reader) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("stream/sharded: %s opened for reading: %w", r.path, stream.ErrNotSupported)
}

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.offset + offset
	case io.SeekEnd:
		next = r.manifest.Size + offset
	default:
		return 0, errors.New("stream/sharded: invalid whence")
	}
	if next < 0 || next > r.manifest.Size {
		return 0, errors.New("stream/sharded: seek offset out of range")
	}
	r.offset = next
	return r.offset, nil
}

func (r *reader) Stat() (*stream.EntryInfo, error) {
	return &stream.EntryInfo{
		Name:    filepath.Base(r.path),
		Size:    r.manifest.Size,
		ModTime: r.manifest.ModTime,
		Path:    r.path,
	}, nil
}

// WrapperData exposes the manifest in stream metadata.
func (r *reader) WrapperData() any { return r.manifest }

func (r *reader) Close() error { return nil }

var (
	_ stream.Resource = (*reader)(nil)
	_ io.Seeker       = (*reader)(nil)
	_ stream.Statter  = (*reader)(nil)
)
