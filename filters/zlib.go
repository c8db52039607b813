package filters

import (
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/nuln/stream"
)

func init() {
	stream.RegisterFilter("zlib.deflate", stream.TransformFactory(func(params any) (stream.TransformFunc, error) {
		level, err := paramInt(params, "level", flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		return compressor(func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, level)
		})
	}))
	stream.RegisterFilter("zlib.inflate", func(string, any) (stream.Filter, error) {
		return decompressor(func(r io.Reader) (io.ReadCloser, error) {
			return flate.NewReader(r), nil
		}), nil
	})
}
