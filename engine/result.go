package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/exec"
)

// ResultStream is the lazy sequence of chunk-or-error spec.md §6's
// "run(sql) -> stream of chunk-or-error" describes: Next drives the built
// operator graph's root one chunk at a time, committing every transaction
// the statement opened once the root reports end of stream, and aborting
// all of them on the first error (including cancellation).
type ResultStream struct {
	db    *Database
	token *CancelToken
	ec    *exec.Context
	root  exec.Operator

	// Schema and Names describe the stream's output columns — the typed
	// result of planning, available before the first Next call.
	Schema []lumen.DataType
	Names  []string

	log     *zap.SugaredLogger
	started time.Time
	state   State
	closed  bool
}

// Next pulls the next chunk from the operator graph. It returns (nil, nil)
// at end of stream, after which every transaction this statement opened has
// been committed. Calling Next again after EOF or an error is a programmer
// error the same way it would be for any exec.Operator.
func (r *ResultStream) Next() (*array.DataChunk, error) {
	if r.closed {
		return nil, nil
	}
	chunk, err := r.root.Next(r.token.Context())
	if err != nil {
		r.fail(err)
		return nil, err
	}
	if chunk == nil {
		return nil, r.finish()
	}
	return chunk, nil
}

// Drain pulls every remaining chunk and concatenates them into one, for
// callers (tests, RunSQL-style one-shot callers) that want the whole result
// rather than a stream. Returns a zero-cardinality chunk with the stream's
// schema if the statement produced no rows.
func (r *ResultStream) Drain() (*array.DataChunk, error) {
	var out *array.DataChunk
	for {
		chunk, err := r.Next()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if out == nil {
			out = chunk
			continue
		}
		out = out.Concat(chunk)
	}
	if out == nil {
		return array.EmptyChunk(r.Schema), nil
	}
	return out, nil
}

func (r *ResultStream) finish() error {
	r.closed = true
	r.state = StateDone
	if err := r.ec.Commit(r.token.Context()); err != nil {
		r.state = StateFailed
		r.log.Errorw("commit failed", "error", err)
		return err
	}
	r.log.Infow("statement done", "state", r.state.String(), "elapsed", time.Since(r.started))
	return nil
}

func (r *ResultStream) fail(err error) {
	if r.closed {
		return
	}
	r.closed = true
	if lumen.ErrorCode(err) == lumen.CodeExecuteCancelled {
		r.state = StateCancelled
	} else {
		r.state = StateFailed
	}
	if abortErr := r.ec.Abort(r.token.Context()); abortErr != nil {
		r.log.Errorw("abort failed", "error", abortErr, "original_error", err)
	}
	r.log.Warnw("statement ended", "state", r.state.String(), "error", err)
}

// Cancel requests cancellation of the in-flight statement (spec.md §5). The
// next Next call observes the cancelled context and aborts every open
// transaction.
func (r *ResultStream) Cancel() { r.token.Cancel() }

// State returns the statement's current position in spec.md §4.8's state
// machine.
func (r *ResultStream) State() State { return r.state }
