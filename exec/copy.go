package exec

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/array"
	"github.com/lumen-db/lumen/catalog"
	"github.com/lumen-db/lumen/plan"
	"github.com/lumen-db/lumen/storage/s3copy"
)

func copyRune(s string, def rune) rune {
	if s == "" {
		return def
	}
	return []rune(s)[0]
}

// copyToOp streams its child's chunks to a file as delimited text (spec.md
// §4.8's CopyTo), one line per row. NULL round-trips as the literal
// "NULL", the same text Value.Display renders it as everywhere else in the
// engine (EXPLAIN, error messages), so CopyFrom can read it back unambiguously.
type copyToOp struct {
	child  Operator
	schema []lumen.DataType
	format plan.CopyFormat
	path   string

	sink    io.WriteCloser
	writer  *bufio.Writer
	wroteHeader bool
	names   []string
	done    bool
}

func newCopyToOp(child Operator, schema []lumen.DataType, names []string, format plan.CopyFormat, path string) *copyToOp {
	return &copyToOp{child: child, schema: schema, names: names, format: format, path: path}
}

// open resolves the destination, routing s3:// targets through
// storage/s3copy and everything else through a local file, same as
// copyFromOp.parse's source resolution.
func (c *copyToOp) open(ctx context.Context) error {
	if s3copy.IsS3URI(c.path) {
		w, err := s3copy.OpenWriter(ctx, c.path)
		if err != nil {
			return lumen.NewIOError("copy_to_open", err.Error())
		}
		c.sink = w
	} else {
		f, err := os.Create(c.path)
		if err != nil {
			return lumen.NewIOError("copy_to_open", err.Error())
		}
		c.sink = f
	}
	c.writer = bufio.NewWriter(c.sink)
	if c.format.Header {
		names := c.names
		if len(names) != len(c.schema) {
			names = make([]string, len(c.schema))
			for i := range names {
				names[i] = columnPlaceholderName(i)
			}
		}
		delim := copyRune(c.format.Delimiter, ',')
		c.writer.WriteString(strings.Join(names, string(delim)))
		c.writer.WriteByte('\n')
	}
	return nil
}

func columnPlaceholderName(i int) string {
	return "column" + strconv.Itoa(i)
}

func (c *copyToOp) writeRow(values []lumen.Value) error {
	delim := string(copyRune(c.format.Delimiter, ','))
	quote := string(copyRune(c.format.Quote, '"'))
	escape := string(copyRune(c.format.Escape, '"'))
	fields := make([]string, len(values))
	for i, v := range values {
		text := v.Display()
		if strings.ContainsAny(text, delim+quote+"\n") {
			text = quote + strings.ReplaceAll(text, quote, escape+quote) + quote
		}
		fields[i] = text
	}
	if _, err := c.writer.WriteString(strings.Join(fields, delim)); err != nil {
		return lumen.NewIOError("copy_to_write", err.Error())
	}
	return c.writer.WriteByte('\n')
}

func (c *copyToOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if c.done {
		return nil, nil
	}
	if c.sink == nil {
		if err := c.open(ctx); err != nil {
			return nil, err
		}
	}
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	chunk, err := c.child.Next(ctx)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		c.done = true
		if err := c.writer.Flush(); err != nil {
			return nil, lumen.NewIOError("copy_to_flush", err.Error())
		}
		if err := c.sink.Close(); err != nil {
			return nil, lumen.NewIOError("copy_to_close", err.Error())
		}
		return nil, nil
	}
	for _, row := range chunk.Rows() {
		values := make([]lumen.Value, chunk.ColumnCount())
		for i := range values {
			values[i] = row.At(i)
		}
		if err := c.writeRow(values); err != nil {
			return nil, err
		}
	}
	return chunk, nil
}

// copyFromOp parses a delimited text file in a background goroutine — the
// "blocking I/O task" of spec.md §5 — and hands completed chunks to Next
// over a channel, then forwards each one to storage.append. The parser is
// one of the engine's named unbounded-memory exceptions
// (CopyFrom.parser_backlog): its channel buffers up to 65536 chunks, so it
// runs that far ahead of the consumer before it blocks.
type copyFromOp struct {
	path    string
	schema  []lumen.DataType
	format  plan.CopyFormat
	tableId catalog.TableId
	ec      *execContext

	chunks  chan *array.DataChunk
	errCh   chan error
	started bool
	openCtx context.Context
}

func newCopyFromOp(path string, schema []lumen.DataType, format plan.CopyFormat, tableId catalog.TableId, ec *execContext) *copyFromOp {
	return &copyFromOp{path: path, schema: schema, format: format, tableId: tableId, ec: ec}
}

func (c *copyFromOp) start(ctx context.Context) {
	c.openCtx = ctx
	c.chunks = make(chan *array.DataChunk, 1<<16)
	c.errCh = make(chan error, 1)
	go c.parse()
	c.started = true
}

// open resolves the source, routing s3:// URIs through storage/s3copy and
// everything else through a local file.
func (c *copyFromOp) open() (io.ReadCloser, error) {
	if s3copy.IsS3URI(c.path) {
		return s3copy.OpenReader(c.openCtx, c.path)
	}
	return os.Open(c.path)
}

func (c *copyFromOp) parse() {
	defer close(c.chunks)
	src, err := c.open()
	if err != nil {
		c.errCh <- lumen.NewIOError("copy_from_open", err.Error())
		return
	}
	defer src.Close()

	delim := copyRune(c.format.Delimiter, ',')
	quote := copyRune(c.format.Quote, '"')
	escape := copyRune(c.format.Escape, '"')

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	builder := array.NewDataChunkBuilder(c.schema, array.DefaultWindow)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first && c.format.Header {
			first = false
			continue
		}
		first = false
		fields := splitCSVLine(line, delim, quote, escape)
		row, err := castRow(fields, c.schema)
		if err != nil {
			c.errCh <- err
			return
		}
		if chunk := builder.PushRow(row); chunk != nil {
			c.chunks <- chunk
		}
	}
	if err := scanner.Err(); err != nil {
		c.errCh <- lumen.NewIOError("copy_from_read", err.Error())
		return
	}
	if rem := builder.Take(); rem != nil {
		c.chunks <- rem
	}
}

func castRow(fields []string, schema []lumen.DataType) ([]lumen.Value, error) {
	row := make([]lumen.Value, len(schema))
	for i, dt := range schema {
		if i >= len(fields) || fields[i] == "NULL" {
			row[i] = lumen.NullValue()
			continue
		}
		v, err := lumen.Cast(lumen.StringValue(fields[i]), dt)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// splitCSVLine is a small hand-rolled splitter supporting a configurable
// delimiter, quote, and escape character — encoding/csv only supports a
// configurable delimiter, not quote/escape, so it can't serve COPY's
// dialect options directly.
func splitCSVLine(line string, delim, quote, escape rune) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuotes && r == escape && i+1 < len(runes) && runes[i+1] == quote:
			cur.WriteRune(quote)
			i++
		case r == quote:
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

func (c *copyFromOp) Next(ctx context.Context) (*array.DataChunk, error) {
	if !c.started {
		c.start(ctx)
	}
	select {
	case <-ctx.Done():
		return nil, lumen.NewCancelledError()
	case err := <-c.errCh:
		return nil, err
	case chunk, ok := <-c.chunks:
		if !ok {
			return nil, nil
		}
		tx, err := c.ec.txnFor(ctx, c.tableId)
		if err != nil {
			return nil, err
		}
		if err := tx.Append(ctx, chunk); err != nil {
			return nil, err
		}
		return chunk, nil
	}
}
