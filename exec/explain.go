package exec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/plan"
)

// explainOp renders the plan tree rooted at root as text, one row per line
// (spec.md's EXPLAIN). Without ANALYZE it never calls child.Next — but
// because Build already opened child's transactions and, for a Scan child,
// storage/memstore's Transaction.Scan builds its merged result chunk eagerly
// rather than lazily, EXPLAIN without ANALYZE still performs the underlying
// table scan; it just never iterates the resulting operator tree. Only a
// truly lazy storage engine would make plain EXPLAIN execution-free. With
// ANALYZE, child is drained fully and the row count and wall-clock time are
// appended after the plan text.
type explainOp struct {
	g      *plan.PlanGraph
	root   plan.PlanID
	child  Operator
	analyze bool
	done   bool
}

func newExplainOp(g *plan.PlanGraph, root plan.PlanID, child Operator, analyze bool) *explainOp {
	return &explainOp{g: g, root: root, child: child, analyze: analyze}
}

func (e *explainOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if e.done {
		return nil, nil
	}
	e.done = true
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	var lines []string
	formatPlan(e.g, e.root, 0, &lines)

	if e.analyze {
		start := time.Now()
		rows := 0
		for {
			chunk, err := e.child.Next(ctx)
			if err != nil {
				return nil, err
			}
			if chunk == nil {
				break
			}
			rows += chunk.Cardinality()
		}
		lines = append(lines, fmt.Sprintf("Execution: %d rows in %s", rows, time.Since(start)))
	}

	schema := []lumen.DataType{lumen.StringType(false)}
	b := array.NewDataChunkBuilder(schema, len(lines))
	var chunk *array.DataChunk
	for _, line := range lines {
		if c := b.PushRow([]lumen.Value{lumen.StringValue(line)}); c != nil {
			chunk = mergeTwo(chunk, c, schema)
		}
	}
	if tail := b.Take(); tail.Cardinality() > 0 {
		chunk = mergeTwo(chunk, tail, schema)
	}
	return chunk, nil
}

// formatPlan walks the plan tree depth-first, indenting children under their
// parent the way a tree-shaped EXPLAIN output conventionally reads.
func formatPlan(g *plan.PlanGraph, id plan.PlanID, depth int, out *[]string) {
	n := g.Node(id)
	indent := strings.Repeat("  ", depth)
	*out = append(*out, indent+describeNode(n))
	for _, c := range n.Children {
		formatPlan(g, c, depth+1, out)
	}
}

func describeNode(n plan.PlanNode) string {
	switch n.Kind {
	case plan.PlanScan:
		return fmt.Sprintf("Scan(table=%d, columns=%d)", n.TableID, len(n.ColumnIDs))
	case plan.PlanFilter:
		return "Filter"
	case plan.PlanProjection:
		return fmt.Sprintf("Projection(%d exprs)", len(n.Exprs))
	case plan.PlanAggregate:
		return fmt.Sprintf("Aggregate(groups=%d, aggs=%d)", len(n.GroupKeys), len(n.Aggs))
	case plan.PlanOrder:
		return fmt.Sprintf("Order(%d keys)", len(n.OrderKeys))
	case plan.PlanLimit:
		return "Limit"
	case plan.PlanTopN:
		return fmt.Sprintf("TopN(%d keys)", len(n.OrderKeys))
	case plan.PlanJoin:
		return fmt.Sprintf("Join(kind=%d, phys=%d)", n.JoinKind, n.JoinPhys)
	case plan.PlanInsert:
		return fmt.Sprintf("Insert(table=%d)", n.TargetTableID)
	case plan.PlanDelete:
		return fmt.Sprintf("Delete(table=%d)", n.TargetTableID)
	case plan.PlanCopyFrom:
		return fmt.Sprintf("CopyFrom(table=%d, path=%s)", n.TargetTableID, n.FilePath)
	case plan.PlanCopyTo:
		return fmt.Sprintf("CopyTo(path=%s)", n.FilePath)
	case plan.PlanValues:
		return fmt.Sprintf("Values(%d rows)", len(n.Rows))
	default:
		return n.Kind.String()
	}
}
