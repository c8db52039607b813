package filters

import (
	"bytes"

	"github.com/nuln/stream"
)

func init() {
	stream.RegisterFilter("string.toupper", stateless(bytes.ToUpper))
	stream.RegisterFilter("string.tolower", stateless(bytes.ToLower))
	stream.RegisterFilter("string.rot13", stateless(rot13))
}

// stateless turns a per-chunk mapping into a filter factory.
func stateless(fn func([]byte) []byte) stream.FilterFactory {
	return stream.TransformFactory(func(any) (stream.TransformFunc, error) {
		return func(chunk []byte, final bool) ([][]byte, bool, error) {
			if len(chunk) == 0 {
				return nil, !final, nil
			}
			return [][]byte{fn(chunk)}, false, nil
		}, nil
	})
}

func rot13(p []byte) []byte {
	out := make([]byte, len(p))
	for i, c := range p {
		switch {
		case c >= 'a' && c <= 'z':
			c = 'a' + (c-'a'+13)%26
		case c >= 'A' && c <= 'Z':
			c = 'A' + (c-'A'+13)%26
		}
		out[i] = c
	}
	return out
}
