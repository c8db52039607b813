package filters

import (
	"bytes"
	"encoding/base64"

	"github.com/nuln/stream"
)

func init() {
	stream.RegisterFilter("convert.base64-encode", stream.TransformFactory(newBase64Encoder))
	stream.RegisterFilter("convert.base64-decode", stream.TransformFactory(newBase64Decoder))
}

// newBase64Encoder encodes whole 3-byte groups as they arrive and pads the
// remainder on the final chunk.
func newBase64Encoder(any) (stream.TransformFunc, error) {
	var rest []byte
	return func(chunk []byte, final bool) ([][]byte, bool, error) {
		rest = append(rest, chunk...)
		n := len(rest)
		if !final {
			n -= n % 3
		}
		if n == 0 {
			return nil, !final, nil
		}
		out := make([]byte, base64.StdEncoding.EncodedLen(n))
		base64.StdEncoding.Encode(out, rest[:n])
		rest = append(rest[:0], rest[n:]...)
		return [][]byte{out}, false, nil
	}, nil
}

// newBase64Decoder ignores whitespace and decodes whole 4-byte quanta.
func newBase64Decoder(any) (stream.TransformFunc, error) {
	var rest []byte
	return func(chunk []byte, final bool) ([][]byte, bool, error) {
		for _, c := range chunk {
			if c != ' ' && c != '\n' && c != '\r' && c != '\t' {
				rest = append(rest, c)
			}
		}
		n := len(rest) - len(rest)%4
		if final {
			n = len(rest)
		}
		if n == 0 {
			return nil, !final, nil
		}
		src := rest[:n]
		if final && len(src)%4 != 0 {
			src = append(bytes.Clone(src), bytes.Repeat([]byte("="), 4-len(src)%4)...)
		}
		out := make([]byte, base64.StdEncoding.DecodedLen(len(src)))
		m, err := base64.StdEncoding.Decode(out, src)
		if err != nil {
			log.Debugw("base64 decode failed", "err", err)
			return nil, false, err
		}
		rest = append(rest[:0], rest[n:]...)
		return [][]byte{out[:m]}, false, nil
	}, nil
}
