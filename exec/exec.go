// Package exec implements spec.md §4.8: the volcano-style physical operator
// graph. Every operator is built once, owning its parameters and children by
// value, and is driven by a single pull method that yields the next chunk or
// (nil, nil) at end of stream — the single-threaded-cooperative execution
// model of §4.8/§5: each Next call is a suspension point a caller can
// interleave with other statements' Next calls, and the storage layer is the
// only place real I/O happens.
package exec

import (
	"context"

	"github.com/lumen-db/lumen/array"
)

// Operator is the pull-based contract every physical node implements.
// Next returns (nil, nil) at end of stream; it must not be called again
// afterward. Implementations check ctx at their own suspension points
// (chunk boundaries, storage reads) and translate a cancelled context into
// lumen.NewCancelledError() rather than ctx.Err() directly, so callers see
// the engine's own error type throughout.
type Operator interface {
	Next(ctx context.Context) (*array.DataChunk, error)
}
