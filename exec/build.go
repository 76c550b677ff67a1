package exec

import (
	"context"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/eval"
	"github.com/lumen-db/lumen/plan"
)

// Build walks a bound, optimized plan.PlanGraph and constructs the
// corresponding operator tree (spec.md §4.8's "physical operator graph"),
// building each child before the node that consumes it since every operator
// constructor takes its children already built. Building does touch
// storage: each Scan node opens its table's statement transaction
// (execContext.txnFor) and calls Transaction.Scan for its iterator, and
// memstore materializes the scanned rows at that call.
func Build(ctx context.Context, g *plan.PlanGraph, id plan.PlanID, ec *execContext, sub eval.SubqueryRunner) (Operator, error) {
	n := g.Node(id)
	switch n.Kind {
	case plan.PlanDummy:
		return wrapTelemetry(n.Kind.String(), newDummyOp()), nil

	case plan.PlanScan:
		op, err := newScanOp(ctx, ec, n, g.Exprs, sub)
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), op), nil

	case plan.PlanValues:
		return wrapTelemetry(n.Kind.String(), newValuesOp(g.Exprs, n.Rows, n.Schema)), nil

	case plan.PlanFilter:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newFilterOp(child, g.Exprs, n.Predicate, sub)), nil

	case plan.PlanProjection:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newProjectionOp(child, g.Exprs, n.Exprs, sub)), nil

	case plan.PlanAggregate:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		if n.AggPhys == plan.AggPhysicalHash || (n.AggPhys == plan.AggPhysicalAuto && len(n.GroupKeys) > 0) {
			return wrapTelemetry(n.Kind.String(), newHashAggOp(child, g.Exprs, n.GroupKeys, n.Aggs, sub)), nil
		}
		return wrapTelemetry(n.Kind.String(), newSimpleAggOp(child, g.Exprs, n.Aggs, sub)), nil

	case plan.PlanOrder:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		schema, err := outputSchemaOf(ec, g, n.Children[0])
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newOrderOp(child, g.Exprs, n.OrderKeys, schema, sub)), nil

	case plan.PlanLimit:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newLimitOp(child, g.Exprs, n.Offset, n.Limit)), nil

	case plan.PlanTopN:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		schema, err := outputSchemaOf(ec, g, n.Children[0])
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newTopNOp(child, g.Exprs, n.OrderKeys, schema, n.Offset, n.Limit, sub)), nil

	case plan.PlanJoin:
		left, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		right, err := buildChild(ctx, g, n, 1, ec, sub)
		if err != nil {
			return nil, err
		}
		leftSchema, err := outputSchemaOf(ec, g, n.Children[0])
		if err != nil {
			return nil, err
		}
		rightSchema, err := outputSchemaOf(ec, g, n.Children[1])
		if err != nil {
			return nil, err
		}
		switch n.JoinPhys {
		case plan.JoinPhysicalHash:
			return wrapTelemetry(n.Kind.String(), newHashJoinOp(left, right, g.Exprs, n.LeftKeys, n.RightKeys, n.JoinKind, leftSchema, rightSchema, sub)), nil
		case plan.JoinPhysicalSortMerge:
			return wrapTelemetry(n.Kind.String(), newSortMergeJoinOp(left, right, g.Exprs, n.LeftKeys, n.RightKeys, n.JoinKind, leftSchema, rightSchema, sub)), nil
		default:
			if n.JoinKind == plan.JoinRightOuter || n.JoinKind == plan.JoinFullOuter {
				return nil, lumen.NewPlanInvalidError("RIGHT/FULL OUTER JOIN needs an equi-join ON condition")
			}
			return wrapTelemetry(n.Kind.String(), newNestedLoopJoinOp(left, right, g.Exprs, n.JoinOn, n.JoinKind, leftSchema, rightSchema, sub)), nil
		}

	case plan.PlanCreateTable:
		return wrapTelemetry(n.Kind.String(), newCreateTableOp(ec, n)), nil

	case plan.PlanDrop:
		return wrapTelemetry(n.Kind.String(), newDropOp(ec, n)), nil

	case plan.PlanInsert:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newInsertOp(child, catalog.TableId(n.TargetTableID), ec)), nil

	case plan.PlanDelete:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newDeleteOp(child, catalog.TableId(n.TargetTableID), ec)), nil

	case plan.PlanCopyTo:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		schema, err := outputSchemaOf(ec, g, n.Children[0])
		if err != nil {
			return nil, err
		}
		names := columnNamesOf(ec, g, n.Children[0])
		return wrapTelemetry(n.Kind.String(), newCopyToOp(child, schema, names, n.Format, n.FilePath)), nil

	case plan.PlanCopyFrom:
		tbl, err := ec.cat.GetTable(catalog.TableId(n.TargetTableID))
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newCopyFromOp(n.FilePath, schemaOfTable(tbl), n.Format, catalog.TableId(n.TargetTableID), ec)), nil

	case plan.PlanExplain:
		child, err := buildChild(ctx, g, n, 0, ec, sub)
		if err != nil {
			return nil, err
		}
		return wrapTelemetry(n.Kind.String(), newExplainOp(g, n.Children[0], child, n.Analyze)), nil

	default:
		return nil, lumen.NewPlanInvalidError("exec: unsupported plan kind " + n.Kind.String())
	}
}

func buildChild(ctx context.Context, g *plan.PlanGraph, n plan.PlanNode, idx int, ec *execContext, sub eval.SubqueryRunner) (Operator, error) {
	return Build(ctx, g, n.Children[idx], ec, sub)
}

// outputSchemaOf is PlanGraph.OutputSchema extended to handle PlanScan, whose
// column types live in the catalog rather than in any expression-bearing
// field OutputSchema already walks. Every plan this package builds that
// needs a child's schema (Order, TopN, Join, CopyTo) can have a bare Scan as
// that child — a COPY of a whole table, or an ORDER BY with no intervening
// projection — so this case can't be skipped.
// OutputSchemaOf and ColumnNamesOf are outputSchemaOf/columnNamesOf exported
// for lumen/engine, which needs the final root's result schema/column names
// to hand back to its caller alongside the chunk stream.
func OutputSchemaOf(ec *execContext, g *plan.PlanGraph, id plan.PlanID) ([]lumen.DataType, error) {
	return outputSchemaOf(ec, g, id)
}

func ColumnNamesOf(ec *execContext, g *plan.PlanGraph, id plan.PlanID) []string {
	return columnNamesOf(ec, g, id)
}

func outputSchemaOf(ec *execContext, g *plan.PlanGraph, id plan.PlanID) ([]lumen.DataType, error) {
	n := g.Node(id)
	if n.Kind != plan.PlanScan {
		return g.OutputSchema(id), nil
	}
	tbl, err := ec.cat.GetTable(catalog.TableId(n.TableID))
	if err != nil {
		return nil, err
	}
	schema := make([]lumen.DataType, len(n.ColumnIDs))
	for i, colId := range n.ColumnIDs {
		col, err := columnById(tbl, catalog.ColumnId(colId))
		if err != nil {
			return nil, err
		}
		schema[i] = col.Desc.DataType
	}
	if n.WithRowHandler {
		schema = append(schema, lumen.Int64Type(false))
	}
	return schema, nil
}

func columnById(tbl *catalog.TableCatalog, id catalog.ColumnId) (catalog.ColumnCatalog, error) {
	for _, c := range tbl.Columns {
		if c.Id == id {
			return c, nil
		}
	}
	return catalog.ColumnCatalog{}, lumen.NewBindNotFoundError("column", tbl.Name)
}

// columnNamesOf resolves output column names for CopyTo's header row. A
// Projection carries its own aliases; a bare Scan (a whole-table COPY TO
// with no SELECT) falls back to the table's declared column names. Any
// other child shape (there is none today, since bindCopyTo only ever
// produces one of these two) yields no names, and copyToOp falls back to
// synthesized placeholders.
func columnNamesOf(ec *execContext, g *plan.PlanGraph, id plan.PlanID) []string {
	n := g.Node(id)
	switch n.Kind {
	case plan.PlanProjection:
		return n.Aliases
	case plan.PlanScan:
		tbl, err := ec.cat.GetTable(catalog.TableId(n.TableID))
		if err != nil {
			return nil
		}
		names := make([]string, len(n.ColumnIDs))
		for i, colId := range n.ColumnIDs {
			if col, err := columnById(tbl, catalog.ColumnId(colId)); err == nil {
				names[i] = col.Name
			}
		}
		return names
	default:
		return nil
	}
}

func schemaOfTable(tbl *catalog.TableCatalog) []lumen.DataType {
	out := make([]lumen.DataType, len(tbl.Columns))
	for i, c := range tbl.Columns {
		out[i] = c.Desc.DataType
	}
	return out
}
