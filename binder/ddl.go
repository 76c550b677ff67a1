package binder

import (
	"fmt"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

// bindCreateTable registers the table in the catalog immediately (DDL takes
// effect at bind time, not execution time, per spec.md §4.3) and emits a
// PlanCreateTable node purely for EXPLAIN/audit purposes.
func (b *Binder) bindCreateTable(schemaID catalog.SchemaId, stmt *ast.CreateTableStatement) (plan.PlanID, error) {
	cols := make([]catalog.ColumnDesc, len(stmt.Columns))
	names := make([]string, len(stmt.Columns))
	var pkOrder []int
	for i, def := range stmt.Columns {
		dt, err := columnTypeFromDef(def)
		if err != nil {
			return 0, err
		}
		cols[i] = catalog.ColumnDesc{DataType: dt, IsPrimary: def.IsPrimary}
		names[i] = def.Name
		if def.IsPrimary {
			pkOrder = append(pkOrder, i)
		}
	}

	tableID, err := b.catalog.AddTable(schemaID, stmt.TableName, cols, names, pkOrder)
	if err != nil {
		if stmt.IfNotExists && lumen.ErrorCode(err) == lumen.CodeBindDuplicated {
			existing, lookupErr := b.catalog.LookupTable(schemaID, stmt.TableName)
			if lookupErr != nil {
				return 0, lookupErr
			}
			tableID = existing.Id
		} else {
			return 0, err
		}
	}

	return b.plans.Add(plan.PlanNode{
		Kind:        plan.PlanCreateTable,
		SchemaID:    uint32(schemaID),
		ObjectName:  stmt.TableName,
		TargetTableID: uint32(tableID),
		IfNotExists: stmt.IfNotExists,
	}), nil
}

// bindCreateView binds the view's query once to validate it and derive its
// output schema, then registers a table-shaped catalog entry with those
// columns. The body itself is not kept: a later FROM reference to the view
// binds as a plain scan of the view's table id (bindTableRef).
func (b *Binder) bindCreateView(schemaID catalog.SchemaId, stmt *ast.CreateViewStatement) (plan.PlanID, error) {
	_, env, err := b.bindSelectBody(schemaID, stmt.Query)
	if err != nil {
		return 0, err
	}

	names := stmt.ColumnNames
	if len(names) == 0 {
		names = make([]string, len(env.Columns))
		for i, c := range env.Columns {
			names[i] = c.ColumnName
		}
	}
	if len(names) != len(env.Columns) {
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("view %s column count mismatch: %d names for %d projected columns", stmt.ViewName, len(names), len(env.Columns)))
	}
	cols := make([]catalog.ColumnDesc, len(env.Columns))
	for i, c := range env.Columns {
		cols[i] = catalog.ColumnDesc{DataType: c.DataType}
	}

	tableID, err := b.catalog.AddView(schemaID, stmt.ViewName, cols, names, viewQueryPlaceholder)
	if err != nil {
		return 0, err
	}

	return b.plans.Add(plan.PlanNode{
		Kind:          plan.PlanCreateTable,
		SchemaID:      uint32(schemaID),
		ObjectName:    stmt.ViewName,
		TargetTableID: uint32(tableID),
		IsView:        true,
	}), nil
}

// bindCreateFunction validates the function body against its declared
// argument names/types (the body must bind cleanly once, to catch
// unresolvable names and aggregate misuse up front) and registers it in the
// catalog; the actual substitution happens lazily at each call site
// (inlineUDF), so this produces a PlanDummy node — CREATE FUNCTION has no
// row-producing effect of its own.
func (b *Binder) bindCreateFunction(schemaID catalog.SchemaId, stmt *ast.CreateFunctionStatement) (plan.PlanID, error) {
	if len(stmt.ArgNames) != len(stmt.ArgTypes) {
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("function %s: %d argument names for %d argument types", stmt.Name, len(stmt.ArgNames), len(stmt.ArgTypes)))
	}
	argTypes := make([]lumen.DataType, len(stmt.ArgTypes))
	for i, tn := range stmt.ArgTypes {
		dt, err := typeFromName(tn)
		if err != nil {
			return 0, err
		}
		argTypes[i] = dt
	}
	returnType, err := typeFromName(stmt.ReturnType)
	if err != nil {
		return 0, err
	}

	placeholderArgs := make(map[string]plan.NodeID, len(stmt.ArgNames))
	for i, name := range stmt.ArgNames {
		placeholderArgs[name] = b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: i, TargetType: argTypes[i]})
	}
	if _, err := b.substituteUDFBody(stmt.Body, placeholderArgs); err != nil {
		return 0, err
	}

	if err := b.catalog.AddFunction(schemaID, stmt.Name, argTypes, stmt.ArgNames, returnType, stmt.Body); err != nil {
		return 0, err
	}
	return b.plans.Add(plan.PlanNode{Kind: plan.PlanDummy, SchemaID: uint32(schemaID), ObjectName: stmt.Name}), nil
}

// viewQueryPlaceholder stands in for the view's source text: the AST holds
// no original SQL text and the bound ast.SelectStatement is not retained,
// so the catalog's ViewQuerySQL is stored empty for every view.
const viewQueryPlaceholder = ""

func (b *Binder) bindDrop(schemaID catalog.SchemaId, stmt *ast.DropStatement) (plan.PlanID, error) {
	tbl, err := b.catalog.LookupTable(schemaID, stmt.Name)
	if err != nil {
		if stmt.IfExists && lumen.ErrorCode(err) == lumen.CodeBindNotFound {
			return b.plans.Add(plan.PlanNode{Kind: plan.PlanDrop, SchemaID: uint32(schemaID), ObjectName: stmt.Name, IfExists: true}), nil
		}
		return 0, err
	}
	if stmt.IsView && !tbl.IsView {
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("%s is a table, not a view", stmt.Name))
	}
	if !stmt.IsView && tbl.IsView {
		return 0, lumen.NewPlanInvalidError(fmt.Sprintf("%s is a view, not a table", stmt.Name))
	}
	tableID := tbl.Id
	if err := b.catalog.DropTable(tableID); err != nil {
		return 0, err
	}
	return b.plans.Add(plan.PlanNode{
		Kind: plan.PlanDrop, SchemaID: uint32(schemaID), ObjectName: stmt.Name,
		TargetTableID: uint32(tableID), IsView: stmt.IsView, IfExists: stmt.IfExists,
	}), nil
}

func (b *Binder) bindExplain(schemaID catalog.SchemaId, stmt *ast.ExplainStatement) (plan.PlanID, error) {
	inner, err := b.Bind(schemaID, stmt.Inner)
	if err != nil {
		return 0, err
	}
	return b.plans.Add(plan.PlanNode{Kind: plan.PlanExplain, Children: []plan.PlanID{inner.Root}, Analyze: stmt.Analyze}), nil
}

func (b *Binder) bindCopyTo(schemaID catalog.SchemaId, stmt *ast.CopyToStatement) (plan.PlanID, error) {
	var source plan.PlanID
	if stmt.Query != nil {
		root, err := b.bindSelect(schemaID, stmt.Query)
		if err != nil {
			return 0, err
		}
		source = root
	} else {
		tbl, err := b.catalog.LookupTable(schemaID, stmt.TableName)
		if err != nil {
			return 0, err
		}
		colIDs := make([]uint32, len(tbl.Columns))
		for i, c := range tbl.Columns {
			colIDs[i] = uint32(c.Id)
		}
		source = b.plans.Add(plan.PlanNode{Kind: plan.PlanScan, TableID: uint32(tbl.Id), ColumnIDs: colIDs, ScanFilter: plan.Invalid})
	}

	return b.plans.Add(plan.PlanNode{
		Kind:     plan.PlanCopyTo,
		Children: []plan.PlanID{source},
		FilePath: stmt.Target,
		Format:   copyFormatFromAST(stmt.Format),
	}), nil
}

func (b *Binder) bindCopyFrom(schemaID catalog.SchemaId, stmt *ast.CopyFromStatement) (plan.PlanID, error) {
	tbl, err := b.catalog.LookupTable(schemaID, stmt.TableName)
	if err != nil {
		return 0, err
	}
	return b.plans.Add(plan.PlanNode{
		Kind:          plan.PlanCopyFrom,
		TargetTableID: uint32(tbl.Id),
		FilePath:      stmt.Source,
		Format:        copyFormatFromAST(stmt.Format),
	}), nil
}

func copyFormatFromAST(f ast.CopyFormat) plan.CopyFormat {
	out := plan.CopyFormat{Delimiter: f.Delimiter, Quote: f.Quote, Escape: f.Escape, Header: f.Header}
	if out.Delimiter == "" {
		out.Delimiter = ","
	}
	if out.Quote == "" {
		out.Quote = `"`
	}
	if out.Escape == "" {
		out.Escape = `"`
	}
	return out
}
