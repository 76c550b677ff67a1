package exec

import (
	"context"
	"sync"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/storage"
)

// execContext is shared by every operator built for one statement: it owns
// the statement's storage transactions (spec.md §5: "each statement owns
// its own operator graph and its own storage transaction(s)"), opening one
// per distinct table on first touch and closing all of them together when
// the statement finishes or is cancelled.
type execContext struct {
	engine storage.Engine
	cat    *catalog.Catalog

	mu      sync.Mutex
	txns    map[catalog.TableId]storage.Transaction
	tblOrder []catalog.TableId
}

func newExecContext(engine storage.Engine, cat *catalog.Catalog) *execContext {
	return &execContext{engine: engine, cat: cat, txns: make(map[catalog.TableId]storage.Transaction)}
}

// Context is execContext, aliased under an exported name so that callers
// outside this package (lumen/engine) can hold one returned by NewContext
// without this package giving up its internal field layout.
type Context = execContext

// NewContext constructs the per-statement execution context exec.Build
// needs, for callers outside this package (lumen/engine) driving the full
// bind -> plan -> optimize -> build -> execute pipeline.
func NewContext(engine storage.Engine, cat *catalog.Catalog) *Context {
	return newExecContext(engine, cat)
}

// Commit commits every transaction this statement opened, in the order
// they were first touched (spec.md §5: a successful statement's writes
// become visible together).
func (ec *execContext) Commit(ctx context.Context) error { return ec.commitAll(ctx) }

// Abort aborts every transaction this statement opened (spec.md §5's
// cancellation semantics).
func (ec *execContext) Abort(ctx context.Context) error { return ec.abortAll(ctx) }

// txnFor returns the statement's transaction against tableId, opening one
// via engine.GetTable/Table.Read on first use.
func (ec *execContext) txnFor(ctx context.Context, tableId catalog.TableId) (storage.Transaction, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if tx, ok := ec.txns[tableId]; ok {
		return tx, nil
	}
	tbl, err := ec.engine.GetTable(ctx, tableId)
	if err != nil {
		return nil, err
	}
	tx, err := tbl.Read(ctx)
	if err != nil {
		return nil, err
	}
	ec.txns[tableId] = tx
	ec.tblOrder = append(ec.tblOrder, tableId)
	return tx, nil
}

// commitAll commits every transaction opened by this statement, in the
// order they were first touched. It stops and returns the first error,
// leaving any remaining transactions open — callers in that situation
// should prefer abortAll for cleanup instead of retrying commitAll.
func (ec *execContext) commitAll(ctx context.Context) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for _, id := range ec.tblOrder {
		if err := ec.txns[id].Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// abortAll aborts every transaction opened by this statement, per spec.md
// §5's cancellation semantics ("operators abort their transactions via
// Transaction.abort()"). It aborts every transaction even if one fails,
// surfacing the first error.
func (ec *execContext) abortAll(ctx context.Context) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	var first error
	for _, id := range ec.tblOrder {
		if err := ec.txns[id].Abort(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// checkCancel translates a cancelled context into the engine's own error
// type, the form every suspension point in this package reports
// cancellation through.
func checkCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return lumen.NewCancelledError()
	}
	return nil
}
