package sharded

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/nuln/stream"
)

// DefaultChunkSize is the default chunk size (4MB).
const DefaultChunkSize = 4 * 1024 * 1024

// Auto-register the shard wrapper. Without a base path the store lives in
// memory for the lifetime of the runtime.
func init() {
	stream.RegisterWrapper("shard", func(cfg *stream.WrapperConfig) (stream.Wrapper, error) {
		chunkSize := int64(DefaultChunkSize)
		if n, ok := cfg.Int("chunkSize"); ok {
			chunkSize = n
		}

		if cfg.BasePath == "" {
			return New(afero.NewMemMapFs(), afero.NewMemMapFs(), chunkSize), nil
		}

		manifestPath := filepath.Join(cfg.BasePath, "manifest")
		if s := cfg.String("manifestDir"); s != "" {
			manifestPath = s
		}
		shardsPath := filepath.Join(cfg.BasePath, "shards")
		if s := cfg.String("shardsDir"); s != "" {
			shardsPath = s
		}

		if err := os.MkdirAll(manifestPath, 0750); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(shardsPath, 0750); err != nil {
			return nil, err
		}

		manifestFs := afero.NewBasePathFs(afero.NewOsFs(), manifestPath)
		shardsFs := afero.NewBasePathFs(afero.NewOsFs(), shardsPath)
		return New(manifestFs, shardsFs, chunkSize), nil
	})
}

// Manifest represents the metadata of a chunked file.
type Manifest struct {
	Chunks     []string  `json:"chunks"`               // Chunk hashes
	ChunkSizes []int64   `json:"chunkSizes,omitempty"` // Per-chunk sizes (for variable-sized chunks)
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
}

// Wrapper implements stream.Wrapper using content-addressed chunked storage.
// Files are opened either for reading (r) or for writing (w, a, x); read
// write modes are not supported.
type Wrapper struct {
	manifestFs afero.Fs
	shardsFs   afero.Fs
	chunkSize  int64
	bufferPool *sync.Pool
}

// New creates a sharded Wrapper.
// manifestFs stores manifest JSON files (mirroring logical paths),
// shardsFs stores chunk blobs (content-addressed via HashPath).
// They can share the same filesystem or be separate (e.g., for cross-user dedup).
func New(manifestFs, shardsFs afero.Fs, chunkSize int64) *Wrapper {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	w := &Wrapper{
		manifestFs: manifestFs,
		shardsFs:   shardsFs,
		chunkSize:  chunkSize,
	}
	w.bufferPool = &sync.Pool{
		New: func() any {
			b := make([]byte, w.chunkSize)
			return &b
		},
	}
	return w
}

// cleanPath normalizes a logical path for manifest storage.
func cleanPath(p string) string {
	clean := filepath.ToSlash(filepath.Clean(p))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return ""
	}
	return clean
}

// manifestPath mirrors the logical path: "test/hello.txt" is stored as
// "manifests/test/hello.txt.json".
func (w *Wrapper) manifestPath(path string) string {
	p := cleanPath(path)
	if p == "" {
		return "manifests"
	}
	return filepath.Join("manifests", p+".json")
}

func (w *Wrapper) manifestDirPath(path string) string {
	p := cleanPath(path)
	if p == "" {
		return "manifests"
	}
	return filepath.Join("manifests", p)
}

func (w *Wrapper) loadManifest(path string) (*Manifest, error) {
	data, err := afero.ReadFile(w.manifestFs, w.manifestPath(path))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Open returns a reader stitching the shards of name together, or a writer
// accumulating new shards.
func (w *Wrapper) Open(ctx context.Context, name string, mode stream.Mode, sc *stream.Context) (stream.Resource, error) {
	path := stream.PathOf(name)
	if mode.Readable() && mode.Writable() {
		return nil, fmt.Errorf("stream/sharded: mode %q: %w", mode, stream.ErrNotSupported)
	}
	if !mode.Writable() {
		m, err := w.loadManifest(path)
		if err != nil {
			return nil, err
		}
		return newReader(w, path, *m), nil
	}
	return w.openWriter(path, mode.Flag())
}

func (w *Wrapper) openWriter(path string, flag int) (*writer, error) {
	mPath := w.manifestPath(path)
	exists, _ := afero.Exists(w.manifestFs, mPath)

	switch {
	case flag&os.O_EXCL != 0 && exists:
		return nil, os.ErrExist
	case flag&(os.O_TRUNC|os.O_APPEND|os.O_EXCL) == 0:
		return nil, fmt.Errorf("stream/sharded: in-place writes: %w", stream.ErrNotSupported)
	}

	var buf []byte
	var pb *[]byte
	if pbi, ok := w.bufferPool.Get().(*[]byte); ok && pbi != nil {
		pb = pbi
		buf = (*pb)[:0]
	} else {
		buf = make([]byte, w.chunkSize)[:0]
	}
	wr := &writer{
		wrapper: w,
		path:    path,
		buffer:  buf,
		pbuf:    pb,
	}

	if exists && flag&os.O_APPEND != 0 {
		m, err := w.loadManifest(path)
		if err != nil {
			return nil, err
		}
		wr.hashes = m.Chunks
		wr.chunkSizes = m.ChunkSizes
		wr.size = m.Size

		// Older manifests only list hashes of fixed-size chunks.
		if len(wr.chunkSizes) == 0 && len(wr.hashes) > 0 {
			for i := 0; i < len(wr.hashes)-1; i++ {
				wr.chunkSizes = append(wr.chunkSizes, w.chunkSize)
			}
			wr.chunkSizes = append(wr.chunkSizes, wr.size-int64(len(wr.hashes)-1)*w.chunkSize)
		}
	} else if err := w.manifestFs.MkdirAll(filepath.Dir(mPath), 0755); err != nil {
		return nil, err
	}
	return wr, nil
}

func (w *Wrapper) StatURL(ctx context.Context, name string) (*stream.EntryInfo, error) {
	path := stream.PathOf(name)
	p := cleanPath(path)
	if p == "" {
		return &stream.EntryInfo{Name: "/", IsDir: true, Path: path}, nil
	}

	if m, err := w.loadManifest(path); err == nil {
		return &stream.EntryInfo{
			Name:    filepath.Base(p),
			Size:    m.Size,
			ModTime: m.ModTime,
			Path:    path,
		}, nil
	}

	info, err := w.manifestFs.Stat(w.manifestDirPath(path))
	if err == nil && info.IsDir() {
		return &stream.EntryInfo{
			Name:    filepath.Base(p),
			ModTime: info.ModTime(),
			IsDir:   true,
			Path:    path,
		}, nil
	}
	return nil, os.ErrNotExist
}

// Unlink removes a file or directory manifest. Shards are content-addressed
// and may be shared, so they are left in place.
func (w *Wrapper) Unlink(ctx context.Context, name string) error {
	path := stream.PathOf(name)
	mPath := w.manifestPath(path)
	if exists, _ := afero.Exists(w.manifestFs, mPath); exists {
		return w.manifestFs.Remove(mPath)
	}
	return w.manifestFs.RemoveAll(w.manifestDirPath(path))
}

func (w *Wrapper) Rename(ctx context.Context, from, to string) error {
	oldPath, newPath := stream.PathOf(from), stream.PathOf(to)
	oldM, newM := w.manifestPath(oldPath), w.manifestPath(newPath)

	if exists, _ := afero.Exists(w.manifestFs, oldM); exists {
		if err := w.manifestFs.MkdirAll(filepath.Dir(newM), 0755); err != nil {
			return err
		}
		return w.manifestFs.Rename(oldM, newM)
	}

	oldD, newD := w.manifestDirPath(oldPath), w.manifestDirPath(newPath)
	if err := w.manifestFs.MkdirAll(filepath.Dir(newD), 0755); err != nil {
		return err
	}
	return w.manifestFs.Rename(oldD, newD)
}

// Mkdir mirrors a directory in the manifest filesystem.
func (w *Wrapper) Mkdir(ctx context.Context, name string, perm os.FileMode, recursive bool) error {
	mDir := w.manifestDirPath(stream.PathOf(name))
	if recursive {
		return w.manifestFs.MkdirAll(mDir, perm)
	}
	return w.manifestFs.Mkdir(mDir, perm)
}

func (w *Wrapper) ReadDir(ctx context.Context, name string) ([]*stream.EntryInfo, error) {
	path := stream.PathOf(name)
	mDir := w.manifestDirPath(path)
	entries, err := afero.ReadDir(w.manifestFs, mDir)
	if err != nil {
		if os.IsNotExist(err) && cleanPath(path) == "" {
			return []*stream.EntryInfo{}, nil
		}
		return nil, err
	}

	result := make([]*stream.EntryInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			result = append(result, &stream.EntryInfo{
				Name:    name,
				ModTime: entry.ModTime(),
				IsDir:   true,
				Path:    filepath.Join(path, name),
			})
		case strings.HasSuffix(name, ".json"):
			logical := strings.TrimSuffix(name, ".json")
			info := &stream.EntryInfo{Name: logical, Path: filepath.Join(path, logical)}
			if m, err := w.loadManifest(info.Path); err == nil {
				info.Size = m.Size
				info.ModTime = m.ModTime
			}
			result = append(result, info)
		}
	}
	return result, nil
}

// Compile-time interface checks.
var (
	_ stream.Wrapper  = (*Wrapper)(nil)
	_ stream.Walker   = (*Wrapper)(nil)
	_ stream.Unlinker = (*Wrapper)(nil)
	_ stream.Renamer  = (*Wrapper)(nil)
)
