package binder

import (
	"fmt"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

// bindInsert binds either `INSERT ... VALUES` (as a PlanValues source) or
// `INSERT ... SELECT` (as a bound subquery source), casting every value to
// its target column's type (spec.md §4.4's implicit-cast rule applies to
// INSERT targets the same way it applies to binary operands).
func (b *Binder) bindInsert(schemaID catalog.SchemaId, stmt *ast.InsertStatement) (plan.PlanID, error) {
	tbl, err := b.catalog.LookupTable(schemaID, stmt.TableName)
	if err != nil {
		return 0, err
	}

	targetCols := tbl.Columns
	if len(stmt.Columns) > 0 {
		targetCols = make([]catalog.ColumnCatalog, len(stmt.Columns))
		for i, name := range stmt.Columns {
			col, ok := tbl.ColumnByName(name)
			if !ok {
				return 0, lumen.NewBindNotFoundError("column", name)
			}
			targetCols[i] = col
		}
	}

	var source plan.PlanID
	if stmt.Query != nil {
		root, env, err := b.bindSelectBody(schemaID, stmt.Query)
		if err != nil {
			return 0, err
		}
		if len(env.Columns) != len(targetCols) {
			return 0, lumen.NewPlanInvalidError(fmt.Sprintf("INSERT has %d target columns but the query projects %d", len(targetCols), len(env.Columns)))
		}
		schema := b.plans.OutputSchema(root)
		exprs := make([]plan.NodeID, len(targetCols))
		for i, col := range targetCols {
			ref := b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: i, TargetType: schema[i]})
			exprs[i] = b.insertCastIfNeeded(ref, col.Desc.DataType)
		}
		source = b.plans.Add(plan.PlanNode{Kind: plan.PlanProjection, Children: []plan.PlanID{root}, Exprs: exprs})
	} else {
		rows := make([][]plan.NodeID, len(stmt.Values))
		for r, row := range stmt.Values {
			if len(row) != len(targetCols) {
				return 0, lumen.NewPlanInvalidError(fmt.Sprintf("INSERT row %d has %d values for %d columns", r, len(row), len(targetCols)))
			}
			bound := make([]plan.NodeID, len(row))
			for i, v := range row {
				id, err := b.bindExpr(v)
				if err != nil {
					return 0, err
				}
				bound[i] = b.insertCastIfNeeded(id, targetCols[i].Desc.DataType)
			}
			rows[r] = bound
		}
		schema := make([]lumen.DataType, len(targetCols))
		for i, c := range targetCols {
			schema[i] = c.Desc.DataType
		}
		source = b.plans.Add(plan.PlanNode{Kind: plan.PlanValues, Rows: rows, Schema: schema})
	}

	return b.plans.Add(plan.PlanNode{
		Kind:          plan.PlanInsert,
		Children:      []plan.PlanID{source},
		TargetTableID: uint32(tbl.Id),
	}), nil
}

func (b *Binder) bindDelete(schemaID catalog.SchemaId, stmt *ast.DeleteStatement) (plan.PlanID, error) {
	tbl, err := b.catalog.LookupTable(schemaID, stmt.TableName)
	if err != nil {
		return 0, err
	}

	colIDs := make([]uint32, len(tbl.Columns))
	env := &Environment{}
	for i, c := range tbl.Columns {
		colIDs[i] = uint32(c.Id)
		env.Columns = append(env.Columns, EnvColumn{TableAlias: tbl.Name, ColumnName: c.Name, Index: i, DataType: c.Desc.DataType, TableID: tbl.Id, ColumnID: c.Id})
	}
	scan := b.plans.Add(plan.PlanNode{Kind: plan.PlanScan, TableID: uint32(tbl.Id), ColumnIDs: colIDs, ScanFilter: plan.Invalid})

	current := scan
	if stmt.Where != nil {
		b.env.Push(env)
		pred, err := b.bindExpr(stmt.Where)
		b.env.Pop()
		if err != nil {
			return 0, err
		}
		current = b.plans.Add(plan.PlanNode{Kind: plan.PlanFilter, Children: []plan.PlanID{current}, Predicate: pred})
	}

	return b.plans.Add(plan.PlanNode{
		Kind:          plan.PlanDelete,
		Children:      []plan.PlanID{current},
		TargetTableID: uint32(tbl.Id),
	}), nil
}
