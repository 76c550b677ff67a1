package binder

import (
	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/catalog"
)

// EnvColumn is one entry of an attribute environment: the binder's mapping
// from (optional table alias, column name) to (output tuple index, type)
// (spec.md §4.4 step 2).
type EnvColumn struct {
	TableAlias string
	ColumnName string
	Index      int
	DataType   lumen.DataType
	TableID    catalog.TableId
	ColumnID   catalog.ColumnId
}

// Environment is the ordered set of columns visible while binding one FROM
// clause's expressions.
type Environment struct {
	Columns []EnvColumn
}

// Lookup resolves an (optional qualifier, name) reference, erroring with
// AmbiguousColumn if more than one unqualified candidate matches.
func (e *Environment) Lookup(qualifier, name string) (EnvColumn, error) {
	var matches []EnvColumn
	for _, c := range e.Columns {
		if c.ColumnName != name {
			continue
		}
		if qualifier != "" && c.TableAlias != qualifier {
			continue
		}
		matches = append(matches, c)
	}
	if len(matches) == 0 {
		return EnvColumn{}, lumen.NewBindNotFoundError("column", name)
	}
	if len(matches) > 1 && qualifier == "" {
		return EnvColumn{}, lumen.NewAmbiguousColumnError(name)
	}
	return matches[0], nil
}

// EnvStack is a stack of environments, innermost last, used to resolve
// correlated references from a subquery against its outer queries (spec.md
// §4.4 step 3).
type EnvStack struct {
	frames []*Environment
}

func (s *EnvStack) Push(e *Environment) { s.frames = append(s.frames, e) }
func (s *EnvStack) Pop()                { s.frames = s.frames[:len(s.frames)-1] }
func (s *EnvStack) Top() *Environment   { return s.frames[len(s.frames)-1] }

// Resolve tries the innermost environment first, then each outer frame in
// turn, so a correlated reference in a subquery finds its outer binding.
func (s *EnvStack) Resolve(qualifier, name string) (EnvColumn, int, error) {
	for depth := len(s.frames) - 1; depth >= 0; depth-- {
		if col, err := s.frames[depth].Lookup(qualifier, name); err == nil {
			return col, len(s.frames) - 1 - depth, nil
		}
	}
	return EnvColumn{}, 0, lumen.NewBindNotFoundError("column", name)
}
