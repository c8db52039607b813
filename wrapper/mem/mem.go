// Package mem registers the "mem" protocol: the file wrapper over an
// in-memory filesystem. Every Runtime gets its own store.
package mem

import (
	"github.com/spf13/afero"

	"github.com/nuln/stream"
	"github.com/nuln/stream/wrapper/file"
)

// Auto-register the mem wrapper.
func init() {
	stream.RegisterWrapper("mem", func(cfg *stream.WrapperConfig) (stream.Wrapper, error) {
		var opts []file.Option
		if n, ok := cfg.Int("statCacheSize"); ok {
			opts = append(opts, file.WithStatCacheSize(int(n)))
		}
		return New(opts...)
	})
}

// New returns a wrapper over a fresh afero.MemMapFs.
func New(opts ...file.Option) (*file.Wrapper, error) {
	return file.NewWithFs(afero.NewMemMapFs(), opts...)
}
