// Package wrappers is a convenience package that registers all built-in
// wrappers and filters. Import it with a blank identifier to make them
// available:
//
//	import _ "github.com/nuln/stream/wrappers"
package wrappers

import (
	"github.com/nuln/stream"
	_ "github.com/nuln/stream/filters"
	_ "github.com/nuln/stream/wrapper/file"
	_ "github.com/nuln/stream/wrapper/http"
	_ "github.com/nuln/stream/wrapper/mem"
	_ "github.com/nuln/stream/wrapper/rclone"
	_ "github.com/nuln/stream/wrapper/sharded"
	_ "github.com/nuln/stream/wrapper/socket"
	_ "github.com/nuln/stream/wrapper/ws"
)

// List returns every protocol registered with stream.RegisterWrapper.
func List() []string {
	return stream.BuiltinWrappers()
}

// Filters returns every filter name a new Runtime starts with.
func Filters() []string {
	return stream.NewFilterTable().Registered()
}
