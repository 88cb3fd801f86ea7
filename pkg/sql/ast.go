package sql

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Parsers are not safe for concurrent use.
var parserPool = sync.Pool{
	New: func() any {
		p := parser.New()
		p.SetSQLMode(mysql.ModeANSIQuotes)
		return p
	},
}

// ExtractTablesAST parses query and returns every table name in its parse tree. Double
// quotes are read as identifier quotes. Postgres-only syntax the parser does not know
// returns an error; callers treat that as "no supplement available".
func ExtractTablesAST(query string) ([]TableReference, error) {
	p := parserPool.Get().(*parser.Parser)
	defer parserPool.Put(p)

	stmts, _, err := p.Parse(query, "", "")
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}

	v := newTableVisitor(query)
	for _, stmt := range stmts {
		stmt.Accept(v)
	}
	return v.refs, nil
}

type tableVisitor struct {
	query string
	refs  []TableReference
	seen  map[*ast.TableName]struct{}
}

func newTableVisitor(query string) *tableVisitor {
	return &tableVisitor{query: query, seen: make(map[*ast.TableName]struct{})}
}

func (v *tableVisitor) Enter(n ast.Node) (ast.Node, bool) {
	switch node := n.(type) {
	case *ast.TableSource:
		if table, ok := node.Source.(*ast.TableName); ok {
			v.add(table, node.AsName.O)
		}
	case *ast.TableName:
		v.add(node, "")
	}
	return n, false
}

func (v *tableVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

// asWritten quotes ident only if the query quotes it, since quoting changes how
// Postgres folds the name.
func (v *tableVisitor) asWritten(ident string) string {
	quoted := QuoteIdentifier(ident)
	if strings.Contains(v.query, quoted) {
		return quoted
	}
	return ident
}

func (v *tableVisitor) add(table *ast.TableName, alias string) {
	if _, ok := v.seen[table]; ok {
		return
	}
	v.seen[table] = struct{}{}

	name := table.Name.O
	if name == "" {
		return
	}
	raw := v.asWritten(name)
	if table.Schema.O != "" {
		raw = v.asWritten(table.Schema.O) + "." + raw
	}
	v.refs = append(v.refs, TableReference{
		Name:     name,
		Raw:      raw,
		Alias:    alias,
		Position: -1,
	})
}
