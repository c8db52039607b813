// Command streamcat copies named resources to stdout and stdin to named
// resources through any registered wrapper, with optional filters.
//
//	streamcat cat https://example.com/ -f string.toupper
//	streamcat put file:///tmp/out.z -f zlib.deflate < input
//	streamcat wrappers
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "streamcat:", err)
		os.Exit(1)
	}
}
