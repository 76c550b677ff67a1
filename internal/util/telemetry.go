package util

import (
	"context"
	"fmt"
	"sync"
)

// telemetry.go
// Lightweight telemetry hook layer used by the executor. This file exposes
// simple emitter functions operators call at chunk boundaries and suspension
// points (spec.md §5). Callers may register a real metrics emitter (or a test
// stub) via RegisterTelemetryEmitter; the default emitter is a no-op so the
// core carries no hard dependency on a metrics SDK, matching spec.md §1's
// "logging/metrics plumbing" out-of-scope boundary.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterTelemetryEmitter registers a custom emitter function. Callers (e.g. the
// embedding application) can provide a metrics-backed emitter or a test meter.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

// EmitChunkLatency records the time (microseconds) an operator spent producing
// one chunk. name: "lumen_operator_chunk_latency_us" with label {"operator": "<kind>"}.
func EmitChunkLatency(ctx context.Context, operator string, us int64) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, "lumen_operator_chunk_latency_us", map[string]string{"operator": operator}, us)
}

// EmitRowCount records rows produced by an operator in one chunk.
// name: "lumen_operator_row_count" with label {"operator": "<kind>"}.
func EmitRowCount(ctx context.Context, operator string, rows int64) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, "lumen_operator_row_count", map[string]string{"operator": operator}, rows)
}

// EmitBuildSideSize records the number of rows buffered by a blocking build
// side (Order, HashAgg, HashJoin.build_side, NestedLoopJoin.left_side).
// name: "lumen_operator_build_side_rows" with label {"operator": "<kind>"}.
func EmitBuildSideSize(ctx context.Context, operator string, tableID int32, rows int64) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	labels := map[string]string{"operator": operator, "table_id": fmt.Sprintf("%d", tableID)}
	fn(ctx, "lumen_operator_build_side_rows", labels, rows)
}
