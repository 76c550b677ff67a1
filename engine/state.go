package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/lumen-db/lumen/internal/util"
)

// State is spec.md §4.8's statement state machine:
//
//	Idle -> Parsed -> Bound -> Planned -> Optimized -> Executing -> Done
//	                                                     \-> Cancelled
//	                                                     \-> Failed
type State int

const (
	StateIdle State = iota
	StateParsed
	StateBound
	StatePlanned
	StateOptimized
	StateExecuting
	StateDone
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateParsed:
		return "Parsed"
	case StateBound:
		return "Bound"
	case StatePlanned:
		return "Planned"
	case StateOptimized:
		return "Optimized"
	case StateExecuting:
		return "Executing"
	case StateDone:
		return "Done"
	case StateCancelled:
		return "Cancelled"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// CancelToken is a thin wrapper over context.Context carrying a statement id
// for log correlation (spec.md §5's cancellation token, matching the
// teacher's per-request id conventions). Cancel marks the statement
// cancelled; suspension points throughout lumen/exec observe this via
// ctx.Done() and translate it into lumen.NewCancelledError().
type CancelToken struct {
	ID     string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelToken derives a cancellable context from parent and tags it with
// a fresh statement id, base32-encoded the way the teacher shortens its own
// uuid-derived ids for log lines.
func NewCancelToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ID: util.EncodeUUIDToBase32(uuid.New()), ctx: ctx, cancel: cancel}
}

// Context returns the token's derived, cancellable context.
func (t *CancelToken) Context() context.Context { return t.ctx }

// Cancel aborts the statement. Idempotent.
func (t *CancelToken) Cancel() { t.cancel() }
