package exec

import (
	"context"

	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

// dummyOp feeds a single constant row with no input columns downstream
// (spec.md's "Dummy (constant one-row)"), the same one-row chunk scalar.go
// uses to evaluate constant-foldable expressions through the ordinary Eval
// path. It also stands in for statements with no row-producing effect of
// their own (CREATE FUNCTION), whose output nothing downstream reads.
type dummyOp struct{ emitted bool }

func newDummyOp() *dummyOp { return &dummyOp{} }

func (d *dummyOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	if d.emitted {
		return nil, nil
	}
	d.emitted = true
	return oneRowChunk, nil
}

// createTableOp materializes a table or view the binder has already
// registered in the catalog (DDL takes effect on the catalog at bind time,
// per spec.md §4.3 — see binder/ddl.go) into the storage engine. It is
// idempotent: if the engine already has a table under this id (the
// IF NOT EXISTS case, where the binder resolved TargetTableID to the
// pre-existing table instead of minting a new one), it does nothing rather
// than re-creating storage state out from under existing rows.
type createTableOp struct {
	ec   *execContext
	n    plan.PlanNode
	done bool
}

func newCreateTableOp(ec *execContext, n plan.PlanNode) *createTableOp {
	return &createTableOp{ec: ec, n: n}
}

func (c *createTableOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if c.done {
		return nil, nil
	}
	c.done = true
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	tableId := catalog.TableId(c.n.TargetTableID)
	if _, err := c.ec.engine.GetTable(ctx, tableId); err == nil {
		return nil, nil
	}
	tbl, err := c.ec.cat.GetTable(tableId)
	if err != nil {
		return nil, err
	}
	if tbl.IsView {
		return nil, c.ec.engine.AddView(ctx, tableId, tbl.ViewQuerySQL)
	}
	columns := make([]catalog.ColumnDesc, len(tbl.Columns))
	names := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		columns[i] = col.Desc
		names[i] = col.Name
	}
	pkOrder := make([]int, 0, len(tbl.OrderedPKIds))
	for _, pkId := range tbl.OrderedPKIds {
		for i, col := range tbl.Columns {
			if col.Id == pkId {
				pkOrder = append(pkOrder, i)
				break
			}
		}
	}
	return nil, c.ec.engine.CreateTable(ctx, tableId, tbl.SchemaId, tbl.Name, columns, names, pkOrder)
}

// dropOp forwards the already-catalog-dropped table's id to the storage
// engine. IfExists-on-a-missing-table was already resolved to a no-op plan
// node by the binder (TargetTableID is zero in that case), so there is
// nothing for the executor to do but check for that sentinel.
type dropOp struct {
	ec   *execContext
	n    plan.PlanNode
	done bool
}

func newDropOp(ec *execContext, n plan.PlanNode) *dropOp {
	return &dropOp{ec: ec, n: n}
}

func (d *dropOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if d.done {
		return nil, nil
	}
	d.done = true
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	if d.n.TargetTableID == 0 {
		return nil, nil
	}
	return nil, d.ec.engine.DropTable(ctx, catalog.TableId(d.n.TargetTableID))
}
