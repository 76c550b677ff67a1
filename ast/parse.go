package ast

import (
	"fmt"
	"strings"
)

// Parse is a small recursive-descent parser covering the SQL subset spec.md
// §6 names (CREATE {TABLE,SCHEMA,VIEW,FUNCTION}, DROP, INSERT, DELETE,
// SELECT with joins/group by/having/order by/limit/offset, COPY {FROM,TO},
// EXPLAIN). lumen/binder is the package that actually needs an AST; this
// function lets engine.Database.RunSQL and this module's own test suite
// express statements as literal SQL text instead of hand-built AST
// literals. Callers holding another parser's AST translated into this shape
// can pass it to engine.Database.Run directly.
func Parse(sql string) (Statement, error) {
	p, err := newParser(sql)
	if err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	p.skipSymbol(";")
	if !p.at(tokEOF) {
		return nil, p.errorf("unexpected trailing input %q", p.cur.text)
	}
	return stmt, nil
}

type parser struct {
	toks []token
	pos  int
	cur  token
}

func newParser(sql string) (*parser, error) {
	lx := newLexer(sql)
	var toks []token
	for {
		t, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			break
		}
	}
	p := &parser{toks: toks}
	p.cur = p.toks[0]
	return p, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("parse error at %d:%d: %s", p.cur.line, p.cur.col, fmt.Sprintf(format, args...))
}

func (p *parser) advance() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	p.cur = p.toks[p.pos]
}

func (p *parser) span() Span { return Span{Line: p.cur.line, Column: p.cur.col} }

func (p *parser) at(k tokenKind) bool { return p.cur.kind == k }

// kw reports whether the current token is an identifier matching word,
// case-insensitively (SQL keywords are not reserved in this lexer; the
// parser decides by context).
func (p *parser) kw(word string) bool {
	return p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, word)
}

func (p *parser) kwAny(words ...string) bool {
	for _, w := range words {
		if p.kw(w) {
			return true
		}
	}
	return false
}

func (p *parser) expectKw(word string) error {
	if !p.kw(word) {
		return p.errorf("expected %q, got %q", word, p.cur.text)
	}
	p.advance()
	return nil
}

func (p *parser) symbol(sym string) bool {
	return p.cur.kind == tokSymbol && p.cur.text == sym
}

func (p *parser) skipSymbol(sym string) bool {
	if p.symbol(sym) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectSymbol(sym string) error {
	if !p.symbol(sym) {
		return p.errorf("expected %q, got %q", sym, p.cur.text)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent() (string, error) {
	if p.cur.kind != tokIdent {
		return "", p.errorf("expected identifier, got %q", p.cur.text)
	}
	text := p.cur.text
	p.advance()
	return text, nil
}

// qualifiedName parses `[schema.]name`, returning ("", name) when no
// qualifier is present.
func (p *parser) qualifiedName() (string, string, error) {
	first, err := p.expectIdent()
	if err != nil {
		return "", "", err
	}
	if p.skipSymbol(".") {
		second, err := p.expectIdent()
		if err != nil {
			return "", "", err
		}
		return first, second, nil
	}
	return "", first, nil
}

func (p *parser) parseStatement() (Statement, error) {
	switch {
	case p.kw("CREATE"):
		return p.parseCreate()
	case p.kw("DROP"):
		return p.parseDrop()
	case p.kw("INSERT"):
		return p.parseInsert()
	case p.kw("DELETE"):
		return p.parseDelete()
	case p.kw("SELECT"):
		return p.parseSelect()
	case p.kw("COPY"):
		return p.parseCopy()
	case p.kw("EXPLAIN"):
		return p.parseExplain()
	default:
		return nil, p.errorf("unexpected statement start %q", p.cur.text)
	}
}

func (p *parser) parseExplain() (Statement, error) {
	span := p.span()
	p.advance()
	analyze := false
	if p.kw("ANALYZE") {
		analyze = true
		p.advance()
	}
	inner, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ExplainStatement{Span: span, Inner: inner, Analyze: analyze}, nil
}

// ---- CREATE ----

func (p *parser) parseCreate() (Statement, error) {
	span := p.span()
	p.advance() // CREATE
	switch {
	case p.kw("TABLE"):
		return p.parseCreateTable(span)
	case p.kw("VIEW"):
		return p.parseCreateView(span)
	case p.kw("FUNCTION"):
		return p.parseCreateFunction(span)
	case p.kw("SCHEMA"):
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		// A bare CREATE SCHEMA has no per-statement effect beyond catalog
		// registration, which the binder does not yet expose a node for;
		// represented as a no-op CreateTable-shaped statement is out of
		// scope, so it is modeled as creating an empty table-like marker.
		return &CreateTableStatement{Span: span, TableName: name}, nil
	case p.kw("INDEX"):
		return p.parseCreateIndexAsDummy(span)
	default:
		return nil, p.errorf("unsupported CREATE statement %q", p.cur.text)
	}
}

// parseCreateIndexAsDummy consumes CREATE INDEX syntax and returns a
// column-less CreateTableStatement naming the indexed table; the index name
// and column list are discarded. The binder binds that statement as a
// CREATE TABLE, which fails with a duplicate-name error when the table
// exists. No index is registered from SQL text.
func (p *parser) parseCreateIndexAsDummy(span Span) (Statement, error) {
	p.advance() // INDEX
	if _, err := p.expectIdent(); err != nil {
		return nil, err
	}
	if err := p.expectKw("ON"); err != nil {
		return nil, err
	}
	_, tbl, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	for !p.symbol(")") {
		if _, err := p.expectIdent(); err != nil {
			return nil, err
		}
		if !p.skipSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &CreateTableStatement{Span: span, TableName: tbl}, nil
}

func (p *parser) parseCreateTable(span Span) (Statement, error) {
	p.advance() // TABLE
	ifNotExists := false
	if p.kw("IF") {
		p.advance()
		if err := p.expectKw("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectKw("EXISTS"); err != nil {
			return nil, err
		}
		ifNotExists = true
	}
	schemaName, tableName, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var cols []ColumnDef
	for {
		def, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, def)
		if !p.skipSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &CreateTableStatement{Span: span, SchemaName: schemaName, TableName: tableName, Columns: cols, IfNotExists: ifNotExists}, nil
}

func (p *parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	typeName, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	def := ColumnDef{Name: name, TypeName: strings.ToUpper(typeName), Nullable: true}
	if p.skipSymbol("(") {
		prec, err := p.parseIntLiteralToken()
		if err != nil {
			return ColumnDef{}, err
		}
		if strings.EqualFold(typeName, "VECTOR") {
			def.VectorLen = prec
		} else {
			def.Precision = prec
			if p.skipSymbol(",") {
				scale, err := p.parseIntLiteralToken()
				if err != nil {
					return ColumnDef{}, err
				}
				def.Scale = scale
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return ColumnDef{}, err
		}
	}
	for {
		switch {
		case p.kw("NOT"):
			p.advance()
			if err := p.expectKw("NULL"); err != nil {
				return ColumnDef{}, err
			}
			def.Nullable = false
		case p.kw("PRIMARY"):
			p.advance()
			if err := p.expectKw("KEY"); err != nil {
				return ColumnDef{}, err
			}
			def.IsPrimary = true
			def.Nullable = false
		case p.kw("NULL"):
			p.advance()
		default:
			return def, nil
		}
	}
}

func (p *parser) parseIntLiteralToken() (int, error) {
	if p.cur.kind != tokNumber {
		return 0, p.errorf("expected integer, got %q", p.cur.text)
	}
	n := 0
	for _, c := range p.cur.text {
		if c < '0' || c > '9' {
			return 0, p.errorf("expected integer, got %q", p.cur.text)
		}
		n = n*10 + int(c-'0')
	}
	p.advance()
	return n, nil
}

func (p *parser) parseCreateView(span Span) (Statement, error) {
	p.advance() // VIEW
	schemaName, viewName, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	var cols []string
	if p.skipSymbol("(") {
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cols = append(cols, name)
			if !p.skipSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	if err := p.expectKw("AS"); err != nil {
		return nil, err
	}
	query, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	return &CreateViewStatement{Span: span, SchemaName: schemaName, ViewName: viewName, ColumnNames: cols, Query: query}, nil
}

func (p *parser) parseCreateFunction(span Span) (Statement, error) {
	p.advance() // FUNCTION
	schemaName, name, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var argNames, argTypes []string
	for !p.symbol(")") {
		an, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		at, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		argNames = append(argNames, an)
		argTypes = append(argTypes, strings.ToUpper(at))
		if !p.skipSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if err := p.expectKw("RETURNS"); err != nil {
		return nil, err
	}
	retType, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKw("AS"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &CreateFunctionStatement{
		Span: span, SchemaName: schemaName, Name: name,
		ArgNames: argNames, ArgTypes: argTypes, ReturnType: strings.ToUpper(retType), Body: body,
	}, nil
}

// ---- DROP ----

func (p *parser) parseDrop() (Statement, error) {
	span := p.span()
	p.advance() // DROP
	isView := false
	if p.kw("VIEW") {
		isView = true
		p.advance()
	} else if err := p.expectKw("TABLE"); err != nil {
		return nil, err
	}
	ifExists := false
	if p.kw("IF") {
		p.advance()
		if err := p.expectKw("EXISTS"); err != nil {
			return nil, err
		}
		ifExists = true
	}
	schemaName, name, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	return &DropStatement{Span: span, SchemaName: schemaName, Name: name, IsView: isView, IfExists: ifExists}, nil
}

// ---- INSERT / DELETE ----

func (p *parser) parseInsert() (Statement, error) {
	span := p.span()
	p.advance() // INSERT
	if err := p.expectKw("INTO"); err != nil {
		return nil, err
	}
	schemaName, tableName, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	var cols []string
	if p.skipSymbol("(") {
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cols = append(cols, name)
			if !p.skipSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}
	stmt := &InsertStatement{Span: span, SchemaName: schemaName, TableName: tableName, Columns: cols}
	if p.kw("VALUES") {
		p.advance()
		for {
			if err := p.expectSymbol("("); err != nil {
				return nil, err
			}
			var row []Expr
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				row = append(row, e)
				if !p.skipSymbol(",") {
					break
				}
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			stmt.Values = append(stmt.Values, row)
			if !p.skipSymbol(",") {
				break
			}
		}
		return stmt, nil
	}
	query, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	stmt.Query = query
	return stmt, nil
}

func (p *parser) parseDelete() (Statement, error) {
	span := p.span()
	p.advance() // DELETE
	if err := p.expectKw("FROM"); err != nil {
		return nil, err
	}
	schemaName, tableName, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStatement{Span: span, SchemaName: schemaName, TableName: tableName}
	if p.kw("WHERE") {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

// ---- COPY ----

func (p *parser) parseCopy() (Statement, error) {
	span := p.span()
	p.advance() // COPY
	schemaName, tableName, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	switch {
	case p.kw("TO"):
		p.advance()
		target, err := p.expectStringLit()
		if err != nil {
			return nil, err
		}
		format, err := p.parseCopyOptions()
		if err != nil {
			return nil, err
		}
		return &CopyToStatement{Span: span, SchemaName: schemaName, TableName: tableName, Target: target, Format: format}, nil
	case p.kw("FROM"):
		p.advance()
		source, err := p.expectStringLit()
		if err != nil {
			return nil, err
		}
		format, err := p.parseCopyOptions()
		if err != nil {
			return nil, err
		}
		return &CopyFromStatement{Span: span, SchemaName: schemaName, TableName: tableName, Source: source, Format: format}, nil
	default:
		return nil, p.errorf("expected TO or FROM in COPY, got %q", p.cur.text)
	}
}

func (p *parser) expectStringLit() (string, error) {
	if p.cur.kind != tokString {
		return "", p.errorf("expected string literal, got %q", p.cur.text)
	}
	text := p.cur.text
	p.advance()
	return text, nil
}

func (p *parser) parseCopyOptions() (CopyFormat, error) {
	var f CopyFormat
	if !p.kw("WITH") && !p.symbol("(") {
		return f, nil
	}
	if p.kw("WITH") {
		p.advance()
	}
	if err := p.expectSymbol("("); err != nil {
		return f, err
	}
	for !p.symbol(")") {
		opt, err := p.expectIdent()
		if err != nil {
			return f, err
		}
		switch strings.ToUpper(opt) {
		case "DELIMITER":
			v, err := p.expectStringLit()
			if err != nil {
				return f, err
			}
			f.Delimiter = v
		case "QUOTE":
			v, err := p.expectStringLit()
			if err != nil {
				return f, err
			}
			f.Quote = v
		case "ESCAPE":
			v, err := p.expectStringLit()
			if err != nil {
				return f, err
			}
			f.Escape = v
		case "HEADER":
			f.Header = true
			f.HeaderSet = true
			if p.kw("TRUE") || p.kw("FALSE") {
				f.Header = p.kw("TRUE")
				p.advance()
			}
		default:
			return f, p.errorf("unknown COPY option %q", opt)
		}
		if !p.skipSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return f, err
	}
	return f, nil
}

// ---- SELECT ----

func (p *parser) parseSelect() (*SelectStatement, error) {
	span := p.span()
	if err := p.expectKw("SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStatement{Span: span}
	if p.kw("DISTINCT") {
		stmt.Distinct = true
		p.advance()
	} else if p.kw("ALL") {
		p.advance()
	}

	items, err := p.parseSelectItems()
	if err != nil {
		return nil, err
	}
	stmt.Projection = items

	if p.kw("FROM") {
		p.advance()
		from, err := p.parseFromList()
		if err != nil {
			return nil, err
		}
		stmt.From = from
	}
	if p.kw("WHERE") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = e
	}
	if p.kw("GROUP") {
		p.advance()
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if !p.skipSymbol(",") {
				break
			}
		}
	}
	if p.kw("HAVING") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = e
	}
	if p.kw("ORDER") {
		p.advance()
		if err := p.expectKw("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.kw("ASC") {
				p.advance()
			} else if p.kw("DESC") {
				desc = true
				p.advance()
			}
			stmt.OrderBy = append(stmt.OrderBy, OrderItem{Expr: e, Desc: desc})
			if !p.skipSymbol(",") {
				break
			}
		}
	}
	if p.kw("LIMIT") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Limit = e
	}
	if p.kw("OFFSET") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Offset = e
	}
	return stmt, nil
}

func (p *parser) parseSelectItems() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.skipSymbol(",") {
			break
		}
	}
	return items, nil
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.symbol("*") {
		p.advance()
		return SelectItem{Star: true}, nil
	}
	// `alias.*`: only recognizable by lookahead since a bare column ref also
	// starts with an identifier.
	if p.cur.kind == tokIdent && p.toks[p.pos+1].kind == tokSymbol && p.toks[p.pos+1].text == "." &&
		p.toks[p.pos+2].kind == tokSymbol && p.toks[p.pos+2].text == "*" {
		qualifier := p.cur.text
		p.advance()
		p.advance()
		p.advance()
		return SelectItem{Star: true, StarQualifier: qualifier}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: e}
	if p.kw("AS") {
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = name
	} else if p.cur.kind == tokIdent && !p.isClauseKeyword() {
		name, err := p.expectIdent()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = name
	}
	return item, nil
}

// isClauseKeyword reports whether the current token is a keyword that ends
// a select item (so a following bare identifier is not misread as an
// implicit alias).
func (p *parser) isClauseKeyword() bool {
	return p.kwAny("FROM", "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET", "UNION", "AS")
}

func (p *parser) parseFromList() (TableExpr, error) {
	left, err := p.parseTableExpr()
	if err != nil {
		return nil, err
	}
	for p.skipSymbol(",") {
		right, err := p.parseTableExpr()
		if err != nil {
			return nil, err
		}
		left = &JoinExpr{Kind: JoinCross, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTableExpr() (TableExpr, error) {
	left, err := p.parseTablePrimary()
	if err != nil {
		return nil, err
	}
	for {
		kind, ok, err := p.tryJoinKeyword()
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseTablePrimary()
		if err != nil {
			return nil, err
		}
		join := &JoinExpr{Kind: kind, Left: left, Right: right}
		if kind != JoinCross {
			if p.kw("ON") {
				p.advance()
				on, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				join.On = on
			} else if p.kw("USING") {
				p.advance()
				if err := p.expectSymbol("("); err != nil {
					return nil, err
				}
				for {
					name, err := p.expectIdent()
					if err != nil {
						return nil, err
					}
					join.Using = append(join.Using, name)
					if !p.skipSymbol(",") {
						break
					}
				}
				if err := p.expectSymbol(")"); err != nil {
					return nil, err
				}
			}
		}
		left = join
	}
}

func (p *parser) tryJoinKeyword() (JoinKind, bool, error) {
	switch {
	case p.kw("JOIN"):
		p.advance()
		return JoinInner, true, nil
	case p.kw("INNER"):
		p.advance()
		if err := p.expectKw("JOIN"); err != nil {
			return 0, false, err
		}
		return JoinInner, true, nil
	case p.kw("LEFT"):
		p.advance()
		if p.kw("OUTER") {
			p.advance()
		}
		if err := p.expectKw("JOIN"); err != nil {
			return 0, false, err
		}
		return JoinLeftOuter, true, nil
	case p.kw("RIGHT"):
		p.advance()
		if p.kw("OUTER") {
			p.advance()
		}
		if err := p.expectKw("JOIN"); err != nil {
			return 0, false, err
		}
		return JoinRightOuter, true, nil
	case p.kw("FULL"):
		p.advance()
		if p.kw("OUTER") {
			p.advance()
		}
		if err := p.expectKw("JOIN"); err != nil {
			return 0, false, err
		}
		return JoinFullOuter, true, nil
	case p.kw("CROSS"):
		p.advance()
		if err := p.expectKw("JOIN"); err != nil {
			return 0, false, err
		}
		return JoinCross, true, nil
	default:
		return 0, false, nil
	}
}

func (p *parser) parseTablePrimary() (TableExpr, error) {
	span := p.span()
	if p.skipSymbol("(") {
		if p.kw("SELECT") {
			query, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			alias := ""
			if p.kw("AS") {
				p.advance()
			}
			if p.cur.kind == tokIdent {
				alias, _ = p.expectIdent()
			}
			return &SubqueryRef{Span: span, Query: query, Alias: alias}, nil
		}
		inner, err := p.parseTableExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	schemaName, tableName, err := p.qualifiedName()
	if err != nil {
		return nil, err
	}
	ref := &TableRef{Span: span, SchemaName: schemaName, TableName: tableName}
	if p.kw("AS") {
		p.advance()
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		ref.Alias = alias
	} else if p.cur.kind == tokIdent && !p.isClauseKeyword() && !p.kwAny("JOIN", "INNER", "LEFT", "RIGHT", "FULL", "CROSS", "ON", "USING") {
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		ref.Alias = alias
	}
	return ref, nil
}

// ---- expressions ----
//
// Precedence, loosest to tightest: Or > And > Not > Comparison/Between/
// Like/In/IsNull > Additive > Multiplicative > Unary > Primary.

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.kw("OR") {
		span := p.span()
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Span: span, Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.kw("AND") {
		span := p.span()
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Span: span, Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.kw("NOT") {
		span := p.span()
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Span: span, Op: "NOT", Expr: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.symbol("=") || p.symbol("<>") || p.symbol("!=") || p.symbol("<") || p.symbol(">") || p.symbol("<=") || p.symbol(">="):
			op := p.cur.text
			span := p.span()
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{Span: span, Op: op, Left: left, Right: right}

		case p.kw("IS"):
			span := p.span()
			p.advance()
			not := false
			if p.kw("NOT") {
				not = true
				p.advance()
			}
			if err := p.expectKw("NULL"); err != nil {
				return nil, err
			}
			left = &IsNullExpr{Span: span, Expr: left, Not: not}

		case p.kw("BETWEEN"):
			span := p.span()
			p.advance()
			lo, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			if err := p.expectKw("AND"); err != nil {
				return nil, err
			}
			hi, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BetweenExpr{Span: span, Expr: left, Low: lo, High: hi}

		case p.kw("LIKE"):
			span := p.span()
			p.advance()
			pattern, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			like := &LikeExpr{Span: span, Expr: left, Pattern: pattern}
			if p.kw("ESCAPE") {
				p.advance()
				esc, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				like.Escape = esc
			}
			left = like

		case p.kw("IN"):
			span := p.span()
			p.advance()
			in, err := p.parseInTail(span, left, false)
			if err != nil {
				return nil, err
			}
			left = in

		case p.kw("NOT") && (p.peekIsKw(1, "BETWEEN") || p.peekIsKw(1, "LIKE") || p.peekIsKw(1, "IN")):
			span := p.span()
			p.advance() // NOT
			switch {
			case p.kw("BETWEEN"):
				p.advance()
				lo, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				if err := p.expectKw("AND"); err != nil {
					return nil, err
				}
				hi, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				left = &BetweenExpr{Span: span, Expr: left, Low: lo, High: hi, Not: true}
			case p.kw("LIKE"):
				p.advance()
				pattern, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				like := &LikeExpr{Span: span, Expr: left, Pattern: pattern, Not: true}
				if p.kw("ESCAPE") {
					p.advance()
					esc, err := p.parseAdditive()
					if err != nil {
						return nil, err
					}
					like.Escape = esc
				}
				left = like
			case p.kw("IN"):
				p.advance()
				in, err := p.parseInTail(span, left, true)
				if err != nil {
					return nil, err
				}
				left = in
			}

		default:
			return left, nil
		}
	}
}

// peekIsKw looks ahead offset tokens from the current position and reports
// whether that token is an identifier matching word case-insensitively.
func (p *parser) peekIsKw(offset int, word string) bool {
	idx := p.pos + offset
	if idx >= len(p.toks) {
		return false
	}
	t := p.toks[idx]
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (p *parser) parseInTail(span Span, left Expr, not bool) (Expr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	if p.kw("SELECT") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &InExpr{Span: span, Expr: left, Subquery: sub, Not: not}, nil
	}
	var list []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if !p.skipSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &InExpr{Span: span, Expr: left, List: list, Not: not}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.symbol("+") || p.symbol("-") || p.symbol("||") {
		op := p.cur.text
		span := p.span()
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Span: span, Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.symbol("*") || p.symbol("/") || p.symbol("%") {
		op := p.cur.text
		span := p.span()
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Span: span, Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.symbol("-") || p.symbol("+") {
		op := p.cur.text
		span := p.span()
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Span: span, Op: op, Expr: inner}, nil
	}
	if p.kw("EXISTS") {
		span := p.span()
		p.advance()
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &ExistsExpr{Span: span, Subquery: sub}, nil
	}
	if p.kw("NOT") && p.peekIsKw(1, "EXISTS") {
		span := p.span()
		p.advance()
		p.advance()
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &ExistsExpr{Span: span, Subquery: sub, Not: true}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	span := p.span()
	switch {
	case p.cur.kind == tokNumber:
		text := p.cur.text
		p.advance()
		kind := LiteralInteger
		if strings.Contains(text, ".") {
			kind = LiteralFloat
		}
		return &Literal{Span: span, Text: text, Kind: kind}, nil

	case p.cur.kind == tokString:
		text := p.cur.text
		p.advance()
		return &Literal{Span: span, Text: text, Kind: LiteralString}, nil

	case p.kw("NULL"):
		p.advance()
		return &Literal{Span: span, Kind: LiteralNull}, nil

	case p.kw("TRUE") || p.kw("FALSE"):
		text := p.cur.text
		p.advance()
		return &Literal{Span: span, Text: text, Kind: LiteralBool}, nil

	case p.kw("CAST"):
		p.advance()
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKw("AS"); err != nil {
			return nil, err
		}
		typeName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.skipSymbol("(") {
			for !p.symbol(")") {
				p.advance()
			}
			p.advance()
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &CastExpr{Span: span, Expr: inner, TargetType: strings.ToUpper(typeName)}, nil

	case p.kw("CASE"):
		return p.parseCase(span)

	case p.symbol("("):
		p.advance()
		if p.kw("SELECT") {
			sub, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return &SubqueryExpr{Span: span, Query: sub}, nil
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return inner, nil

	case p.cur.kind == tokIdent:
		first, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.skipSymbol("(") {
			return p.parseFunctionCallTail(span, first)
		}
		if p.skipSymbol(".") {
			second, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &ColumnRef{Span: span, Qualifier: first, Name: second}, nil
		}
		return &ColumnRef{Span: span, Name: first}, nil

	default:
		return nil, p.errorf("unexpected token %q in expression", p.cur.text)
	}
}

func (p *parser) parseFunctionCallTail(span Span, name string) (Expr, error) {
	call := &FunctionCall{Span: span, Name: strings.ToUpper(name)}
	if p.symbol("*") {
		p.advance()
		call.Star = true
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
	if p.symbol(")") {
		p.advance()
		return call, nil
	}
	if p.kw("DISTINCT") {
		call.Distinct = true
		p.advance()
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, e)
		if !p.skipSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) parseCase(span Span) (Expr, error) {
	p.advance() // CASE
	ce := &CaseExpr{Span: span}
	if !p.kw("WHEN") {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Operand = operand
	}
	for p.kw("WHEN") {
		p.advance()
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKw("THEN"); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Whens = append(ce.Whens, WhenClause{Condition: cond, Result: result})
	}
	if p.kw("ELSE") {
		p.advance()
		elseExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Else = elseExpr
	}
	if err := p.expectKw("END"); err != nil {
		return nil, err
	}
	return ce, nil
}
