package filters

import (
	"encoding/hex"

	sha256 "github.com/minio/sha256-simd"
	"lukechampine.com/blake3"

	"github.com/nuln/stream"
)

func init() {
	stream.RegisterFilter("digest.sha256", func(name string, params any) (stream.Filter, error) {
		return stream.NewLateComputed(name, params, func(payload []byte) ([]byte, error) {
			sum := sha256.Sum256(payload)
			return []byte(hex.EncodeToString(sum[:])), nil
		}), nil
	})
	stream.RegisterFilter("digest.blake3", func(name string, params any) (stream.Filter, error) {
		return stream.NewLateComputed(name, params, func(payload []byte) ([]byte, error) {
			sum := blake3.Sum256(payload)
			return []byte(hex.EncodeToString(sum[:])), nil
		}), nil
	})
}
