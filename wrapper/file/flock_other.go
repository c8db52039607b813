//go:build !unix

package file

import (
	"os"

	"github.com/nuln/stream"
)

func flock(f *os.File, op stream.LockOp) error {
	return stream.ErrNotSupported
}
