package array

import "github.com/lumen-db/lumen"

// DefaultWindow is the standard processing window W (spec.md §4.2): the
// default target chunk cardinality DataChunkBuilder emits at.
const DefaultWindow = 2048

// DataChunk is an ordered sequence of arrays of equal length: the unit of
// inter-operator transfer in the volcano execution model (spec.md §4.2).
type DataChunk struct {
	columns []*Array
}

// NewDataChunk assembles a chunk from columns that must all share the same
// length.
func NewDataChunk(columns []*Array) *DataChunk {
	return &DataChunk{columns: columns}
}

// Cardinality returns the chunk's row count (0 for a zero-column chunk).
func (c *DataChunk) Cardinality() int {
	if len(c.columns) == 0 {
		return 0
	}
	return c.columns[0].Len()
}

// ColumnCount returns the number of columns.
func (c *DataChunk) ColumnCount() int { return len(c.columns) }

// ArrayAt returns the i-th column.
func (c *DataChunk) ArrayAt(i int) *Array { return c.columns[i] }

// Filter applies a boolean mask across all columns, returning a new chunk.
func (c *DataChunk) Filter(mask []bool) *DataChunk {
	out := make([]*Array, len(c.columns))
	for i, col := range c.columns {
		out[i] = col.Filter(mask)
	}
	return &DataChunk{columns: out}
}

// Slice returns the half-open row range [start, end) across every column.
func (c *DataChunk) Slice(start, end int) *DataChunk {
	out := make([]*Array, len(c.columns))
	for i, col := range c.columns {
		out[i] = col.Slice(start, end)
	}
	return &DataChunk{columns: out}
}

// Concat appends other's rows after c's, column by column, returning a new
// chunk (spec.md §3's "column-wise concatenation"). c and other must share
// the same column types.
func (c *DataChunk) Concat(other *DataChunk) *DataChunk {
	out := make([]*Array, len(c.columns))
	for i, col := range c.columns {
		b := NewBuilder(col.DataType())
		b.Append(col)
		b.Append(other.columns[i])
		out[i] = b.Finish()
	}
	return &DataChunk{columns: out}
}

// EmptyChunk returns a zero-row chunk typed to schema, for callers that need
// a well-typed result even when a statement produced no rows.
func EmptyChunk(schema []lumen.DataType) *DataChunk {
	columns := make([]*Array, len(schema))
	for i, dt := range schema {
		columns[i] = NewBuilder(dt).Finish()
	}
	return &DataChunk{columns: columns}
}

// Row is a lightweight, lazily-evaluated view over one row of a chunk.
type Row struct {
	chunk *DataChunk
	index int
}

// At returns the scalar at the given column index.
func (r Row) At(col int) lumen.Value { return r.chunk.columns[col].Get(r.index) }

// Width returns the number of columns in the row's owning chunk.
func (r Row) Width() int { return len(r.chunk.columns) }

// Rows returns a lazy sequence of row views in order.
func (c *DataChunk) Rows() []Row {
	rows := make([]Row, c.Cardinality())
	for i := range rows {
		rows[i] = Row{chunk: c, index: i}
	}
	return rows
}

// FromRows rebuilds a chunk from owned row values against a column schema.
func FromRows(rows []Row, schema []lumen.DataType) *DataChunk {
	builders := make([]*Builder, len(schema))
	for i, dt := range schema {
		builders[i] = NewBuilder(dt)
	}
	for _, row := range rows {
		for col := range schema {
			v := row.At(col)
			builders[col].Push(&v)
		}
	}
	columns := make([]*Array, len(schema))
	for i, b := range builders {
		columns[i] = b.Finish()
	}
	return &DataChunk{columns: columns}
}

// DataChunkBuilder buffers rows and emits a chunk each time the row count
// reaches W; a final Take emits the remainder (spec.md §4.2).
type DataChunkBuilder struct {
	schema   []lumen.DataType
	window   int
	builders []*Builder
}

// NewDataChunkBuilder allocates a builder targeting the given window size.
// A window of 0 uses DefaultWindow.
func NewDataChunkBuilder(schema []lumen.DataType, window int) *DataChunkBuilder {
	if window <= 0 {
		window = DefaultWindow
	}
	b := &DataChunkBuilder{schema: schema, window: window}
	b.reset()
	return b
}

func (b *DataChunkBuilder) reset() {
	b.builders = make([]*Builder, len(b.schema))
	for i, dt := range b.schema {
		b.builders[i] = NewBuilder(dt)
	}
}

// PushRow appends one row's worth of values, one per column in schema
// order. It returns a completed chunk if the window was reached, else nil.
func (b *DataChunkBuilder) PushRow(values []lumen.Value) *DataChunk {
	for i, v := range values {
		vv := v
		b.builders[i].Push(&vv)
	}
	if b.builders[0].Len() >= b.window {
		return b.take()
	}
	return nil
}

func (b *DataChunkBuilder) take() *DataChunk {
	columns := make([]*Array, len(b.builders))
	for i, bb := range b.builders {
		columns[i] = bb.Finish()
	}
	b.reset()
	return &DataChunk{columns: columns}
}

// Take flushes any buffered rows below the window threshold into a final
// (possibly short) chunk. Returns nil if nothing is buffered.
func (b *DataChunkBuilder) Take() *DataChunk {
	if len(b.builders) == 0 || b.builders[0].Len() == 0 {
		return nil
	}
	return b.take()
}
