package exec

import (
	"context"
	"fmt"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/internal/util"
	"github.com/lumen-db/lumen/storage"
)

// insertOp builds chunks from its child and forwards them to
// storage.append (spec.md §4.8's Insert); it echoes each forwarded chunk
// back as its own output, so a caller can total affected rows by summing
// chunk cardinalities the same way it would for a SELECT.
type insertOp struct {
	child   Operator
	tableId catalog.TableId
	ec      *execContext
}

func newInsertOp(child Operator, tableId catalog.TableId, ec *execContext) *insertOp {
	return &insertOp{child: child, tableId: tableId, ec: ec}
}

func (ins *insertOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	chunk, err := ins.child.Next(ctx)
	if err != nil || chunk == nil {
		return chunk, err
	}
	tx, err := ins.ec.txnFor(ctx, ins.tableId)
	if err != nil {
		return nil, err
	}
	if err := tx.Append(ctx, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// deleteOp requires a Scan child built with_row_handler, and forwards the
// row handles in its last column to storage.delete (spec.md §4.8's
// Delete).
type deleteOp struct {
	child   Operator
	tableId catalog.TableId
	ec      *execContext
}

func newDeleteOp(child Operator, tableId catalog.TableId, ec *execContext) *deleteOp {
	return &deleteOp{child: child, tableId: tableId, ec: ec}
}

func (d *deleteOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	chunk, err := d.child.Next(ctx)
	if err != nil || chunk == nil {
		return chunk, err
	}
	handleCol := chunk.ArrayAt(chunk.ColumnCount() - 1)
	handles := make([]storage.RowHandle, handleCol.Len())
	for i := range handles {
		v := handleCol.Get(i)
		handles[i] = storage.RowHandle(valueAsUint64(v))
	}
	tx, err := d.ec.txnFor(ctx, d.tableId)
	if err != nil {
		return nil, err
	}
	if err := tx.Delete(ctx, handles); err != nil {
		if len(handles) == 0 {
			return nil, lumen.NewStorageError("delete", err)
		}
		return nil, lumen.NewStorageError(fmt.Sprintf("delete: row handle %s", util.EncodeRowHandle(uint64(handles[0]))), err)
	}
	return chunk, nil
}

func valueAsUint64(v lumen.Value) uint64 {
	switch v.Kind() {
	case lumen.KindInt64:
		return uint64(v.Int64())
	case lumen.KindInt32:
		return uint64(v.Int32())
	default:
		return uint64(v.AsFloat64())
	}
}
