package engine

import (
	"context"
	"time"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
	"github.com/lumen-db/lumen/binder"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/exec"
	"github.com/lumen-db/lumen/optimizer"
	"github.com/lumen-db/lumen/planner"
)

// Run drives one statement through every stage of spec.md §4.8's state
// machine — Bind -> Plan -> Optimize -> Build -> Executing — and returns a
// ResultStream the caller pulls chunks from. schemaID selects which schema
// unqualified names resolve against; DefaultSchema() is the usual choice.
//
// Binding, planning and optimizing all happen eagerly, before Run returns,
// matching spec.md §4.8's state table (each of those transitions is a
// synchronous step; only "Executing" is a stream the caller drives chunk by
// chunk). A bind/plan/optimize error leaves the statement in StateFailed
// and no storage transaction is ever opened.
func (db *Database) Run(ctx context.Context, schemaID catalog.SchemaId, stmt ast.Statement) (*ResultStream, error) {
	token := NewCancelToken(ctx)
	log := db.logger.With("stmt_id", token.ID)

	state := StateIdle
	fail := func(err error) (*ResultStream, error) {
		state = StateFailed
		log.Warnw("statement failed", "state", state.String(), "error", err)
		return nil, err
	}

	b := binder.New(db.catalog)
	bound, err := b.Bind(schemaID, stmt)
	if err != nil {
		return fail(err)
	}
	state = StateParsed
	state = StateBound

	lp, err := planner.Plan(bound)
	if err != nil {
		return fail(err)
	}
	state = StatePlanned

	if db.cfg.Query.EnableOptimizer {
		lp = optimizer.Optimize(lp)
	}
	state = StateOptimized

	ec := exec.NewContext(db.storage, db.catalog)
	sub := exec.NewSubqueryRunner(lp.Plans, ec)
	root, err := exec.Build(token.Context(), lp.Plans, lp.Root, ec, sub)
	if err != nil {
		return fail(err)
	}

	schema, err := exec.OutputSchemaOf(ec, lp.Plans, lp.Root)
	if err != nil {
		return fail(err)
	}
	names := exec.ColumnNamesOf(ec, lp.Plans, lp.Root)

	state = StateExecuting
	log.Infow("statement executing", "state", state.String())

	return &ResultStream{
		db:      db,
		token:   token,
		ec:      ec,
		root:    root,
		Schema:  schema,
		Names:   names,
		log:     log,
		started: time.Now(),
	}, nil
}

// RunSQL is a convenience wrapper over Run for callers that have SQL text
// rather than an already-parsed ast.Statement. It parses the text with
// ast.Parse, the small recursive-descent parser this module ships, and
// binds against the default schema; callers with their own parser's AST
// use Run directly.
func (db *Database) RunSQL(ctx context.Context, sql string) (*ResultStream, error) {
	stmt, err := ast.Parse(sql)
	if err != nil {
		return nil, lumen.NewParseError(err.Error())
	}
	return db.Run(ctx, db.DefaultSchema(), stmt)
}
