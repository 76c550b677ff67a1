package binder

import (
	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
)

// bindSelect is the top-level entry point for a SELECT statement.
func (b *Binder) bindSelect(schemaID catalog.SchemaId, stmt *ast.SelectStatement) (plan.PlanID, error) {
	root, _, err := b.bindSelectBody(schemaID, stmt)
	return root, err
}

// bindSelectBody implements spec.md §4.4 steps 1-7 and returns both the
// bound plan and the output Environment a caller (an outer query binding
// this as a subquery, or the CREATE VIEW/INSERT ... SELECT binder) needs to
// resolve the projected columns by position.
func (b *Binder) bindSelectBody(schemaID catalog.SchemaId, stmt *ast.SelectStatement) (plan.PlanID, *Environment, error) {
	// Step 1: FROM resolution (joins lowered to equi-ON, derived tables bound
	// recursively).
	var (
		current plan.PlanID
		env     *Environment
		err     error
	)
	if stmt.From == nil {
		current = b.plans.Add(plan.PlanNode{Kind: plan.PlanValues, Rows: [][]plan.NodeID{{}}})
		env = &Environment{}
	} else {
		current, env, err = b.bindFrom(schemaID, stmt.From)
		if err != nil {
			return 0, nil, err
		}
	}

	// Step 2/3: push the attribute environment so WHERE (and any correlated
	// subquery nested within it) can resolve against it.
	b.env.Push(env)
	defer b.env.Pop()

	if stmt.Where != nil {
		pred, err := b.bindExpr(stmt.Where)
		if err != nil {
			return 0, nil, err
		}
		if !b.exprs.ReturnType(pred).Equal(lumen.BoolType(true)) && !b.exprs.ReturnType(pred).Equal(lumen.BoolType(false)) {
			return 0, nil, lumen.NewInvalidTypeError("WHERE clause must be boolean")
		}
		current = b.plans.Add(plan.PlanNode{Kind: plan.PlanFilter, Children: []plan.PlanID{current}, Predicate: pred})
	}

	// Step 4: GROUP BY + aggregate collection. scope is non-nil for the
	// remainder of binding (projection/HAVING/ORDER BY) whenever the query
	// aggregates, i.e. it has a GROUP BY or at least one aggregate call
	// appears in the select list; we build the scope eagerly for GROUP BY
	// keys and let the first aggregate call populate scope.aggs lazily.
	scope := newAggScope()
	for _, g := range stmt.GroupBy {
		colRef, ok := g.(*ast.ColumnRef)
		if !ok {
			// Non-column group-by expressions (e.g. GROUP BY a + 1) bind
			// normally; they just aren't available for later dedup-by-column.
			id, err := b.bindExpr(g)
			if err != nil {
				return 0, nil, err
			}
			scope.groupKeyTypes = append(scope.groupKeyTypes, b.exprs.ReturnType(id))
			continue
		}
		col, depth, err := b.env.Resolve(colRef.Qualifier, colRef.Name)
		if err != nil {
			return 0, nil, err
		}
		if depth != 0 {
			return 0, nil, lumen.NewPlanInvalidError("GROUP BY cannot reference an outer query's column")
		}
		scope.groupKeyByEnvIndex[col.Index] = len(scope.groupKeyTypes)
		scope.groupKeyTypes = append(scope.groupKeyTypes, col.DataType)
	}
	hasGroupBy := len(stmt.GroupBy) > 0

	// Projection is bound aggregate-aware so any aggregate call or grouped
	// column reference registers itself with scope; projItems holds the
	// resulting expr IDs before we know whether aggregation actually
	// happened (an aggregate might appear only in HAVING/ORDER BY with no
	// GROUP BY, e.g. `SELECT 1 FROM t HAVING count(*) > 0`).
	type boundItem struct {
		expr  plan.NodeID
		alias string
	}
	var projItems []boundItem
	outEnv := &Environment{}
	for _, item := range stmt.Projection {
		if item.Star {
			for _, c := range env.Columns {
				if item.StarQualifier != "" && c.TableAlias != item.StarQualifier {
					continue
				}
				id, err := b.bindExprAgg(&ast.ColumnRef{Qualifier: c.TableAlias, Name: c.ColumnName}, scope)
				if err != nil {
					return 0, nil, err
				}
				projItems = append(projItems, boundItem{expr: id, alias: c.ColumnName})
				outEnv.Columns = append(outEnv.Columns, EnvColumn{ColumnName: c.ColumnName, Index: len(projItems) - 1, DataType: b.exprs.ReturnType(id)})
			}
			continue
		}
		id, err := b.bindExprAgg(item.Expr, scope)
		if err != nil {
			return 0, nil, err
		}
		alias := item.Alias
		if alias == "" {
			if cr, ok := item.Expr.(*ast.ColumnRef); ok {
				alias = cr.Name
			}
		}
		projItems = append(projItems, boundItem{expr: id, alias: alias})
		outEnv.Columns = append(outEnv.Columns, EnvColumn{ColumnName: alias, Index: len(projItems) - 1, DataType: b.exprs.ReturnType(id)})
	}

	var having plan.NodeID = plan.Invalid
	if stmt.Having != nil {
		having, err = b.bindExprAgg(stmt.Having, scope)
		if err != nil {
			return 0, nil, err
		}
	}

	type orderKey struct {
		id   plan.NodeID
		desc bool
	}
	var orderKeys []orderKey
	for _, o := range stmt.OrderBy {
		id, err := b.bindExprAgg(o.Expr, scope)
		if err != nil {
			return 0, nil, err
		}
		orderKeys = append(orderKeys, orderKey{id: id, desc: o.Desc})
	}

	isAggregating := hasGroupBy || len(scope.aggs) > 0
	if isAggregating {
		groupKeyExprs := make([]plan.NodeID, len(scope.groupKeyTypes))
		// Re-derive the bound GROUP BY key expr IDs in declaration order; for
		// column keys this is an InputRef at the source env index, matching
		// what bindColumnRef produces for references to that same column.
		gi := 0
		for _, g := range stmt.GroupBy {
			if colRef, ok := g.(*ast.ColumnRef); ok {
				col, _, err := b.env.Resolve(colRef.Qualifier, colRef.Name)
				if err != nil {
					return 0, nil, err
				}
				groupKeyExprs[gi] = b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: col.Index, TargetType: col.DataType})
			} else {
				id, err := b.bindExpr(g)
				if err != nil {
					return 0, nil, err
				}
				groupKeyExprs[gi] = id
			}
			gi++
		}
		current = b.plans.Add(plan.PlanNode{
			Kind:      plan.PlanAggregate,
			Children:  []plan.PlanID{current},
			GroupKeys: groupKeyExprs,
			Aggs:      scope.aggs,
			AggPhys:   plan.AggPhysicalAuto,
		})
	}

	if having != plan.Invalid {
		current = b.plans.Add(plan.PlanNode{Kind: plan.PlanFilter, Children: []plan.PlanID{current}, Predicate: having})
	}

	projExprs := make([]plan.NodeID, len(projItems))
	aliases := make([]string, len(projItems))
	for i, it := range projItems {
		projExprs[i] = it.expr
		aliases[i] = it.alias
	}
	current = b.plans.Add(plan.PlanNode{Kind: plan.PlanProjection, Children: []plan.PlanID{current}, Exprs: projExprs, Aliases: aliases})

	if stmt.Distinct {
		// Lowered to a hash-aggregate with no aggregate calls over every
		// projected column (spec.md's DISTINCT == "group by everything"),
		// applied before ORDER BY/LIMIT so those see deduplicated rows.
		keys := make([]plan.NodeID, len(projExprs))
		for i := range projExprs {
			keys[i] = b.exprs.Add(plan.ExprNode{Kind: plan.ExprInputRef, Index: i, TargetType: b.exprs.ReturnType(projExprs[i])})
		}
		current = b.plans.Add(plan.PlanNode{Kind: plan.PlanAggregate, Children: []plan.PlanID{current}, GroupKeys: keys, AggPhys: plan.AggPhysicalAuto})
	}

	if len(orderKeys) > 0 {
		keys := make([]plan.OrderKey, len(orderKeys))
		for i, k := range orderKeys {
			keys[i] = plan.OrderKey{Expr: k.id, Desc: k.desc}
		}
		orderPlan := plan.PlanNode{Kind: plan.PlanOrder, Children: []plan.PlanID{current}, OrderKeys: keys}
		if stmt.Limit != nil {
			limitID, err := b.bindExpr(stmt.Limit)
			if err != nil {
				return 0, nil, err
			}
			offsetID := plan.Invalid
			if stmt.Offset != nil {
				offsetID, err = b.bindExpr(stmt.Offset)
				if err != nil {
					return 0, nil, err
				}
			}
			current = b.plans.Add(plan.PlanNode{
				Kind: plan.PlanTopN, Children: []plan.PlanID{current}, OrderKeys: keys,
				Limit: limitID, Offset: offsetID,
			})
		} else {
			current = b.plans.Add(orderPlan)
		}
	} else if stmt.Limit != nil {
		limitID, err := b.bindExpr(stmt.Limit)
		if err != nil {
			return 0, nil, err
		}
		offsetID := plan.Invalid
		if stmt.Offset != nil {
			offsetID, err = b.bindExpr(stmt.Offset)
			if err != nil {
				return 0, nil, err
			}
		}
		current = b.plans.Add(plan.PlanNode{Kind: plan.PlanLimit, Children: []plan.PlanID{current}, Limit: limitID, Offset: offsetID})
	}

	return current, outEnv, nil
}
