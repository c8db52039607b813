package filters

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/nuln/stream"
)

func init() {
	stream.RegisterFilter("zstd.compress", stream.TransformFactory(func(params any) (stream.TransformFunc, error) {
		level, err := paramInt(params, "level", 3)
		if err != nil {
			return nil, err
		}
		return compressor(func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w,
				zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
				zstd.WithEncoderConcurrency(1))
		})
	}))
	stream.RegisterFilter("zstd.decompress", func(string, any) (stream.Filter, error) {
		return decompressor(func(r io.Reader) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		}), nil
	})
}
