// Package stream opens named resources through pluggable protocol
// wrappers and keeps a registry so that every handle on the same name
// shares one native resource.
//
// Each open resource carries a read and a write filter chain, built from
// bucket-brigade filters registered by name, and may be bound to a
// Context holding protocol options and the notification callback that
// wrappers report lifecycle events to.
//
// # Supported Wrappers
//
//   - file:   Local filesystem via afero (import _ "github.com/nuln/stream/wrapper/file")
//   - mem:    In-memory filesystem, one per Runtime (import _ "github.com/nuln/stream/wrapper/mem")
//   - shard:  Content-addressed chunked storage (import _ "github.com/nuln/stream/wrapper/sharded")
//   - rclone: Any rclone-supported remote (import _ "github.com/nuln/stream/wrapper/rclone")
//   - http:   HTTP and HTTPS with notifications (import _ "github.com/nuln/stream/wrapper/http")
//   - tcp:    TCP, UDP and unix sockets (import _ "github.com/nuln/stream/wrapper/socket")
//   - ws:     WebSocket messages (import _ "github.com/nuln/stream/wrapper/ws")
//
// # Quick Start
//
//	import (
//	    "github.com/nuln/stream"
//	    _ "github.com/nuln/stream/wrapper/mem"
//	)
//
//	rt, err := stream.NewRuntime(nil)
//	s, err := rt.NewStream(ctx, "mem://blob", stream.WithMode("w+"))
//	_, err = rt.Filters().Append(s, "string.toupper", stream.FilterWrite, nil)
//
// # Import All Wrappers and Filters
//
//	import _ "github.com/nuln/stream/wrappers"
package stream
