// Package filters registers the built-in stream filters. Import it for its
// side effects:
//
//	import _ "github.com/nuln/stream/filters"
//
// Registered names:
//
//	string.toupper, string.tolower, string.rot13
//	convert.base64-encode, convert.base64-decode
//	zlib.deflate, zlib.inflate        raw DEFLATE, params: level
//	zstd.compress, zstd.decompress    params: level
//	digest.sha256, digest.blake3      replace the content with its hex digest
package filters

import (
	"fmt"

	"github.com/nuln/stream"
	"github.com/nuln/stream/internal/logging"
)

var log = logging.Logger("stream/filters")

// paramInt reads key from params given either as a bare number or as a
// map. def is returned when params carry no value.
func paramInt(params any, key string, def int) (int, error) {
	v := params
	if m, ok := params.(map[string]any); ok {
		v = m[key]
	}
	switch n := v.(type) {
	case nil:
		return def, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("filters: %s parameter of type %T: %w", key, v, stream.ErrInvalid)
}
