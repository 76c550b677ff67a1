// Package catalog implements the hierarchical namespace of spec.md §4.3:
// database → schema → table → column → index, addressed by dense,
// monotonically-allocated u32 IDs, shared across statements under a coarse
// reader-writer lock (the catalog is read-heavy, write-rare).
package catalog

import (
	"fmt"
	"sync"

	"github.com/lumen-db/lumen"
	"github.com/lumen-db/lumen/ast"
)

type DatabaseId uint32
type SchemaId uint32
type TableId uint32
type ColumnId uint32
type IndexId uint32

const (
	DefaultDatabaseName = "default"
	DefaultSchemaName   = "public"
)

// ColumnDesc describes a column's type and whether it participates in the
// table's primary key.
type ColumnDesc struct {
	DataType  lumen.DataType
	IsPrimary bool
}

// ColumnCatalog pairs a ColumnDesc with its dense ID and name.
type ColumnCatalog struct {
	Id   ColumnId
	Name string
	Desc ColumnDesc
}

// TableCatalog is one table's full catalog entry.
type TableCatalog struct {
	Id            TableId
	SchemaId      SchemaId
	Name          string
	Columns       []ColumnCatalog
	columnByName  map[string]ColumnId
	OrderedPKIds  []ColumnId // primary-key declaration order, required for storage-layer ordering
	nextColumnId  ColumnId
	Indexes       map[IndexId]*IndexCatalog
	nextIndexId   IndexId
	IsView        bool   // spec.md's supplemented CREATE VIEW feature
	ViewQuerySQL  string // view body text as passed to AddView; stored only
}

// IndexCatalog describes a secondary index over a table.
type IndexCatalog struct {
	Id        IndexId
	Name      string
	TableId   TableId
	ColumnIds []ColumnId
	Unique    bool
}

// FunctionCatalog describes a SQL-bodied user function (CREATE FUNCTION).
// Only SQL-bodied functions are supported: Body is the parsed expression
// over ArgNames, re-bound (not re-parsed) on every call site (spec.md §4.3).
type FunctionCatalog struct {
	SchemaId   SchemaId
	Name       string
	ArgTypes   []lumen.DataType
	ArgNames   []string
	ReturnType lumen.DataType
	Language   string // always "sql" today; the field exists for forward compatibility
	Body       ast.Expr
}

// SchemaCatalog is one schema's table/function namespace.
type SchemaCatalog struct {
	Id           SchemaId
	DatabaseId   DatabaseId
	Name         string
	tables       map[string]TableId
	nextTableId  TableId
	functions    map[string]*FunctionCatalog
}

// DatabaseCatalog is one database's schema namespace.
type DatabaseCatalog struct {
	Id            DatabaseId
	Name          string
	schemas       map[string]SchemaId
	nextSchemaId  SchemaId
}

// Catalog is the top-level namespace root: maps protected by a single
// coarse RWMutex (spec.md §4.3's "interior mutation under a coarse lock").
type Catalog struct {
	mu sync.RWMutex

	databases       map[DatabaseId]*DatabaseCatalog
	databasesByName map[string]DatabaseId
	nextDatabaseId  DatabaseId

	schemas map[SchemaId]*SchemaCatalog
	tables  map[TableId]*TableCatalog
}

// New constructs a Catalog with a default database and default schema
// already present (spec.md §4.1's invariant).
func New() *Catalog {
	c := &Catalog{
		databases:       make(map[DatabaseId]*DatabaseCatalog),
		databasesByName: make(map[string]DatabaseId),
		schemas:         make(map[SchemaId]*SchemaCatalog),
		tables:          make(map[TableId]*TableCatalog),
	}
	dbId := c.addDatabaseLocked(DefaultDatabaseName)
	c.addSchemaLocked(dbId, DefaultSchemaName)
	return c
}

func (c *Catalog) addDatabaseLocked(name string) DatabaseId {
	c.nextDatabaseId++
	id := c.nextDatabaseId
	c.databases[id] = &DatabaseCatalog{
		Id:     id,
		Name:   name,
		schemas: make(map[string]SchemaId),
	}
	c.databasesByName[name] = id
	return id
}

func (c *Catalog) addSchemaLocked(dbId DatabaseId, name string) SchemaId {
	db := c.databases[dbId]
	db.nextSchemaId++
	id := db.nextSchemaId
	sc := &SchemaCatalog{
		Id:         id,
		DatabaseId: dbId,
		Name:       name,
		tables:     make(map[string]TableId),
		functions:  make(map[string]*FunctionCatalog),
	}
	c.schemas[id] = sc
	db.schemas[name] = id
	return id
}

// DefaultSchemaId returns the always-present default database's default
// schema id.
func (c *Catalog) DefaultSchemaId() SchemaId {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dbId := c.databasesByName[DefaultDatabaseName]
	return c.databases[dbId].schemas[DefaultSchemaName]
}

// AddTable registers a new table, failing with a Duplicated bind error on
// name collision within the schema (spec.md §4.3).
func (c *Catalog) AddTable(schemaId SchemaId, name string, columns []ColumnDesc, columnNames []string, pkOrder []int) (TableId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc, ok := c.schemas[schemaId]
	if !ok {
		return 0, lumen.NewBindNotFoundError("schema", fmt.Sprintf("#%d", schemaId))
	}
	if _, exists := sc.tables[name]; exists {
		return 0, lumen.NewBindDuplicatedError("table", name)
	}

	sc.nextTableId++
	tableId := sc.nextTableId
	tbl := &TableCatalog{
		Id:           tableId,
		SchemaId:     schemaId,
		Name:         name,
		columnByName: make(map[string]ColumnId),
		Indexes:      make(map[IndexId]*IndexCatalog),
	}
	seen := make(map[string]bool, len(columns))
	for i, desc := range columns {
		if seen[columnNames[i]] {
			return 0, lumen.NewBindDuplicatedError("column", columnNames[i])
		}
		seen[columnNames[i]] = true
		tbl.nextColumnId++
		colId := tbl.nextColumnId
		tbl.Columns = append(tbl.Columns, ColumnCatalog{Id: colId, Name: columnNames[i], Desc: desc})
		tbl.columnByName[columnNames[i]] = colId
	}
	for _, idx := range pkOrder {
		tbl.OrderedPKIds = append(tbl.OrderedPKIds, tbl.Columns[idx].Id)
	}

	sc.tables[name] = tableId
	c.tables[tableId] = tbl
	return tableId, nil
}

// AddView registers a CREATE VIEW entry: a table-shaped catalog entry
// flagged IsView that records querySQL as given. The catalog does not
// parse, bind or expand the stored text (spec.md's supplemented CREATE
// VIEW/add_view feature, recovered from original_source/).
func (c *Catalog) AddView(schemaId SchemaId, name string, columns []ColumnDesc, columnNames []string, querySQL string) (TableId, error) {
	id, err := c.AddTable(schemaId, name, columns, columnNames, nil)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.tables[id].IsView = true
	c.tables[id].ViewQuerySQL = querySQL
	c.mu.Unlock()
	return id, nil
}

// GetTable returns a qualified table's catalog entry (required by Scan).
func (c *Catalog) GetTable(tableId TableId) (*TableCatalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tbl, ok := c.tables[tableId]
	if !ok {
		return nil, lumen.NewBindNotFoundError("table", fmt.Sprintf("#%d", tableId))
	}
	return tbl, nil
}

// DropTable removes a table or view's catalog entry, so that any later
// statement binding against its name resolves as not-found (DDL takes
// effect at bind time, per spec.md §4.3, the same as AddTable).
func (c *Catalog) DropTable(tableId TableId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tbl, ok := c.tables[tableId]
	if !ok {
		return lumen.NewBindNotFoundError("table", fmt.Sprintf("#%d", tableId))
	}
	sc, ok := c.schemas[tbl.SchemaId]
	if ok {
		delete(sc.tables, tbl.Name)
	}
	delete(c.tables, tableId)
	return nil
}

// LookupTable resolves a table name within a schema.
func (c *Catalog) LookupTable(schemaId SchemaId, name string) (*TableCatalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sc, ok := c.schemas[schemaId]
	if !ok {
		return nil, lumen.NewBindNotFoundError("schema", fmt.Sprintf("#%d", schemaId))
	}
	tableId, ok := sc.tables[name]
	if !ok {
		return nil, lumen.NewBindNotFoundError("table", name)
	}
	return c.tables[tableId], nil
}

// BoundColumnRef is the resolved result of ResolveName: a specific table's
// specific column.
type BoundColumnRef struct {
	TableId  TableId
	ColumnId ColumnId
	DataType lumen.DataType
}

// ResolveName resolves (schemaName?, tableName?, columnName) against the
// set of tables currently in scope, erroring with AmbiguousColumn if more
// than one candidate table supplies the same unqualified name (spec.md
// §4.3/§4.4 step 2).
func (c *Catalog) ResolveName(candidates []TableId, tableName, columnName string) (BoundColumnRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []BoundColumnRef
	for _, tid := range candidates {
		tbl, ok := c.tables[tid]
		if !ok {
			continue
		}
		if tableName != "" && tbl.Name != tableName {
			continue
		}
		colId, ok := tbl.columnByName[columnName]
		if !ok {
			continue
		}
		var dt lumen.DataType
		for _, col := range tbl.Columns {
			if col.Id == colId {
				dt = col.Desc.DataType
				break
			}
		}
		matches = append(matches, BoundColumnRef{TableId: tid, ColumnId: colId, DataType: dt})
	}
	if len(matches) == 0 {
		return BoundColumnRef{}, lumen.NewBindNotFoundError("column", columnName)
	}
	if len(matches) > 1 && tableName == "" {
		return BoundColumnRef{}, lumen.NewAmbiguousColumnError(columnName)
	}
	return matches[0], nil
}

// AddFunction registers a SQL-bodied UDF, used by CREATE FUNCTION.
func (c *Catalog) AddFunction(schemaId SchemaId, name string, argTypes []lumen.DataType, argNames []string, returnType lumen.DataType, body ast.Expr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.schemas[schemaId]
	if !ok {
		return lumen.NewBindNotFoundError("schema", fmt.Sprintf("#%d", schemaId))
	}
	if _, exists := sc.functions[name]; exists {
		return lumen.NewBindDuplicatedError("function", name)
	}
	sc.functions[name] = &FunctionCatalog{
		SchemaId: schemaId, Name: name, ArgTypes: argTypes, ArgNames: argNames,
		ReturnType: returnType, Language: "sql", Body: body,
	}
	return nil
}

// LookupFunction resolves a function name within a schema.
func (c *Catalog) LookupFunction(schemaId SchemaId, name string) (*FunctionCatalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sc, ok := c.schemas[schemaId]
	if !ok {
		return nil, lumen.NewBindNotFoundError("schema", fmt.Sprintf("#%d", schemaId))
	}
	fn, ok := sc.functions[name]
	if !ok {
		return nil, lumen.NewBindNotFoundError("function", name)
	}
	return fn, nil
}

// ColumnByName returns a table's column descriptor by name.
func (t *TableCatalog) ColumnByName(name string) (ColumnCatalog, bool) {
	colId, ok := t.columnByName[name]
	if !ok {
		return ColumnCatalog{}, false
	}
	for _, col := range t.Columns {
		if col.Id == colId {
			return col, true
		}
	}
	return ColumnCatalog{}, false
}

// AddIndex registers a secondary index on the given table.
func (c *Catalog) AddIndex(tableId TableId, name string, columnIds []ColumnId, unique bool) (IndexId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tbl, ok := c.tables[tableId]
	if !ok {
		return 0, lumen.NewBindNotFoundError("table", fmt.Sprintf("#%d", tableId))
	}
	for _, idx := range tbl.Indexes {
		if idx.Name == name {
			return 0, lumen.NewBindDuplicatedError("index", name)
		}
	}
	tbl.nextIndexId++
	id := tbl.nextIndexId
	tbl.Indexes[id] = &IndexCatalog{Id: id, Name: name, TableId: tableId, ColumnIds: columnIds, Unique: unique}
	return id, nil
}
