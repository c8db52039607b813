package sharded

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	sha256 "github.com/minio/sha256-simd"
	"github.com/spf13/afero"

	"github.com/nuln/stream"
)

// writer accumulates data into chunks, hashes them and stores each unique
// chunk once. The manifest is written on Close.
type writer struct {
	wrapper    *Wrapper
	path       string
	hashes     []string
	chunkSizes []int64
	size       int64
	buffer     []byte
	pbuf       *[]byte
}

func (w *writer) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		space := int(w.wrapper.chunkSize) - len(w.buffer)
		if space > len(p) {
			w.buffer = append(w.buffer, p...)
			break
		}
		w.buffer = append(w.buffer, p[:space]...)
		if err := w.flushChunk(); err != nil {
			return 0, err
		}
		p = p[space:]
	}
	w.size += int64(total)
	return total, nil
}

func (w *writer) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("stream/sharded: %s opened for writing: %w", w.path, stream.ErrNotSupported)
}

func (w *writer) flushChunk() error {
	if len(w.buffer) == 0 {
		return nil
	}

	sum := sha256.Sum256(w.buffer)
	hash := hex.EncodeToString(sum[:])
	shardPath := HashPath(hash)

	if err := w.wrapper.shardsFs.MkdirAll(filepath.Dir(shardPath), 0755); err != nil {
		return err
	}
	// Content-addressed: an existing shard is never rewritten.
	if exists, _ := afero.Exists(w.wrapper.shardsFs, shardPath); !exists {
		if err := afero.WriteFile(w.wrapper.shardsFs, shardPath, w.buffer, 0644); err != nil {
			return err
		}
	}

	w.hashes = append(w.hashes, hash)
	w.chunkSizes = append(w.chunkSizes, int64(len(w.buffer)))
	w.buffer = w.buffer[:0]
	return nil
}

// Seek only reports the current end, for append-style callers.
func (w *writer) Seek(offset int64, whence int) (int64, error) {
	switch {
	case whence == io.SeekStart && offset == w.size:
		return w.size, nil
	case whence == io.SeekCurrent && offset == 0:
		return w.size, nil
	case whence == io.SeekEnd && offset == 0:
		return w.size, nil
	}
	return 0, errors.New("stream/sharded: seek only supported to current end")
}

func (w *writer) Stat() (*stream.EntryInfo, error) {
	return &stream.EntryInfo{
		Name: filepath.Base(w.path),
		Size: w.size,
		Path: w.path,
	}, nil
}

func (w *writer) Close() error {
	if err := w.flushChunk(); err != nil {
		return err
	}

	data, err := json.Marshal(Manifest{
		Chunks:     w.hashes,
		ChunkSizes: w.chunkSizes,
		Size:       w.size,
		ModTime:    time.Now(),
	})
	if err != nil {
		return err
	}

	mPath := w.wrapper.manifestPath(w.path)
	if err := w.wrapper.manifestFs.MkdirAll(filepath.Dir(mPath), 0750); err != nil {
		return err
	}
	err = afero.WriteFile(w.wrapper.manifestFs, mPath, data, 0644)

	if w.pbuf != nil {
		*w.pbuf = w.buffer[:cap(w.buffer)]
		w.wrapper.bufferPool.Put(w.pbuf)
		w.pbuf = nil
		w.buffer = nil
	}
	return err
}

var (
	_ stream.Resource = (*writer)(nil)
	_ io.Seeker       = (*writer)(nil)
	_ stream.Statter  = (*writer)(nil)
)
