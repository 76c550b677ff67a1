package exec

import (
	"context"
	"time"

	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/internal/util"
)

// telemetryOp wraps any Operator to emit per-chunk latency/row-count metrics
// at its one suspension point, the chunk boundary spec.md §5 names. It's a
// pass-through otherwise: same Next contract, same (nil, nil) EOF signal.
type telemetryOp struct {
	inner Operator
	kind  string
}

func wrapTelemetry(kind string, op Operator) Operator {
	return &telemetryOp{inner: op, kind: kind}
}

func (t *telemetryOp) Next(ctx context.Context) (*array.DataChunk, error) {
	start := time.Now()
	chunk, err := t.inner.Next(ctx)
	util.EmitChunkLatency(ctx, t.kind, time.Since(start).Microseconds())
	if chunk != nil {
		util.EmitRowCount(ctx, t.kind, int64(chunk.Cardinality()))
	}
	return chunk, err
}
