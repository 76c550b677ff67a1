package exec

import (
	"context"

	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
	"github.com/lumen-db/lumen/storage"
)

// scanOp opens a read view on the storage interface and streams whatever
// the underlying Iterator produces (spec.md §4.8's Scan). This layer
// always scans the table's full key range: the plan graph carries no
// start/end key fields, since the optimizer never narrows a Scan node to
// a key range or selects an index physical operator — the filter pushed
// down through ScanFilter is the only predicate a Scan node applies.
type scanOp struct {
	tx   storage.Transaction
	iter storage.Iterator
}

func newScanOp(ctx context.Context, ec *execContext, n plan.PlanNode, exprs *plan.ExprGraph, sub eval.SubqueryRunner) (*scanOp, error) {
	tableId := catalog.TableId(n.TableID)
	tx, err := ec.txnFor(ctx, tableId)
	if err != nil {
		return nil, err
	}
	columnIds := make([]catalog.ColumnId, len(n.ColumnIDs))
	for i, c := range n.ColumnIDs {
		columnIds[i] = catalog.ColumnId(c)
	}
	var filter storage.ScanFilter
	if n.ScanFilter != plan.Invalid {
		filter = func(chunk *array.DataChunk) (*array.Array, error) {
			return eval.Eval(exprs, n.ScanFilter, chunk, sub)
		}
	}
	iter, err := tx.Scan(ctx, nil, nil, columnIds, false, n.WithRowHandler, filter)
	if err != nil {
		return nil, err
	}
	return &scanOp{tx: tx, iter: iter}, nil
}

func (s *scanOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	return s.iter.Next(ctx)
}
