package binder

import (
	"fmt"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

// bindFrom resolves a FROM clause (spec.md §4.4 step 1): each relation
// expression becomes a plan.PlanScan/PlanJoin node, and the accompanying
// Environment carries (alias, column) → (tuple index, type) for every
// column the relation contributes, in left-to-right order.
func (b *Binder) bindFrom(schemaID catalog.SchemaId, from ast.TableExpr) (plan.PlanID, *Environment, error) {
	switch t := from.(type) {
	case *ast.TableRef:
		return b.bindTableRef(schemaID, t)
	case *ast.SubqueryRef:
		return b.bindSubqueryRef(schemaID, t)
	case *ast.JoinExpr:
		return b.bindJoin(schemaID, t)
	default:
		return 0, nil, lumen.NewPlanInvalidError(fmt.Sprintf("unsupported FROM expression %T", from))
	}
}

func (b *Binder) bindTableRef(schemaID catalog.SchemaId, ref *ast.TableRef) (plan.PlanID, *Environment, error) {
	tbl, err := b.catalog.LookupTable(schemaID, ref.TableName)
	if err != nil {
		return 0, nil, err
	}
	alias := ref.Alias
	if alias == "" {
		alias = ref.TableName
	}

	env := &Environment{}
	colIDs := make([]uint32, len(tbl.Columns))
	for i, col := range tbl.Columns {
		colIDs[i] = uint32(col.Id)
		env.Columns = append(env.Columns, EnvColumn{
			TableAlias: alias,
			ColumnName: col.Name,
			Index:      i,
			DataType:   col.Desc.DataType,
			TableID:    tbl.Id,
			ColumnID:   col.Id,
		})
	}

	scan := b.plans.Add(plan.PlanNode{
		Kind:      plan.PlanScan,
		TableID:   uint32(tbl.Id),
		ColumnIDs: colIDs,
		ScanFilter: plan.Invalid,
	})
	return scan, env, nil
}

func (b *Binder) bindSubqueryRef(schemaID catalog.SchemaId, ref *ast.SubqueryRef) (plan.PlanID, *Environment, error) {
	inner, innerEnv, err := b.bindSelectBody(schemaID, ref.Query)
	if err != nil {
		return 0, nil, err
	}
	env := &Environment{}
	for i, c := range innerEnv.Columns {
		env.Columns = append(env.Columns, EnvColumn{
			TableAlias: ref.Alias,
			ColumnName: c.ColumnName,
			Index:      i,
			DataType:   c.DataType,
		})
	}
	return inner, env, nil
}

func toplanJoinKind(k ast.JoinKind) plan.JoinKind {
	switch k {
	case ast.JoinLeftOuter:
		return plan.JoinLeftOuter
	case ast.JoinRightOuter:
		return plan.JoinRightOuter
	case ast.JoinFullOuter:
		return plan.JoinFullOuter
	case ast.JoinCross:
		return plan.JoinCross
	default:
		return plan.JoinInner
	}
}

func (b *Binder) bindJoin(schemaID catalog.SchemaId, j *ast.JoinExpr) (plan.PlanID, *Environment, error) {
	leftPlan, leftEnv, err := b.bindFrom(schemaID, j.Left)
	if err != nil {
		return 0, nil, err
	}
	rightPlan, rightEnv, err := b.bindFrom(schemaID, j.Right)
	if err != nil {
		return 0, nil, err
	}

	merged := &Environment{}
	merged.Columns = append(merged.Columns, leftEnv.Columns...)
	base := len(leftEnv.Columns)
	for _, c := range rightEnv.Columns {
		c.Index += base
		merged.Columns = append(merged.Columns, c)
	}

	onID := plan.Invalid
	b.env.Push(merged)
	if j.On != nil {
		onID, err = b.bindExpr(j.On)
		if err != nil {
			b.env.Pop()
			return 0, nil, err
		}
	} else if len(j.Using) > 0 {
		// USING(a,b,...) lowers to an equivalent equi-ON (spec.md §4.4 step 1).
		var cond plan.NodeID
		for i, colName := range j.Using {
			lc, err := leftEnv.Lookup("", colName)
			if err != nil {
				b.env.Pop()
				return 0, nil, err
			}
			rc, err := rightEnv.Lookup("", colName)
			if err != nil {
				b.env.Pop()
				return 0, nil, err
			}
			l := b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: lc.Index, TargetType: lc.DataType})
			r := b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: base + rc.Index, TargetType: rc.DataType})
			eq := b.exprs.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpEq, Left: l, Right: r})
			if i == 0 {
				cond = eq
			} else {
				cond = b.exprs.Add(plan.ExprNode{Kind: plan.ExprBinaryOp, BinOp: lumen.OpAnd, Left: cond, Right: eq})
			}
		}
		onID = cond
	}
	b.env.Pop()

	joinID := b.plans.Add(plan.PlanNode{
		Kind:     plan.PlanJoin,
		Children: []plan.PlanID{leftPlan, rightPlan},
		JoinKind: toplanJoinKind(j.Kind),
		JoinOn:   onID,
	})
	return joinID, merged, nil
}
