// Package sqlfront parses client SQL into the DDL statements the handlers
// execute.
package sqlfront

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"streamddl/internal/domain"
)

// Statement is a parsed DDL statement.
type Statement interface {
	Kind() domain.StatementKind
}

// DropTable is DROP TABLE [IF EXISTS] <name>.
type DropTable struct {
	Name     domain.TableName
	IfExists bool
}

func (*DropTable) Kind() domain.StatementKind { return domain.StatementDropTable }

// CreateMaterializedView is CREATE MATERIALIZED VIEW <name> [(cols)] AS <select>.
type CreateMaterializedView struct {
	Name domain.TableName
	// ColumnNames renames the query's output columns when set.
	ColumnNames []string
	Query       *pg_query.SelectStmt
	SQL         string
}

func (*CreateMaterializedView) Kind() domain.StatementKind {
	return domain.StatementCreateMaterializedView
}

// Parse parses exactly one supported statement. Anything else is an
// UnsupportedStatementError; text that does not parse is a SyntaxError.
func Parse(sql string) (Statement, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, domain.ErrSyntax("%v", err)
	}
	if len(result.Stmts) != 1 {
		return nil, domain.ErrUnsupportedStatement("expected exactly one statement, got %d", len(result.Stmts))
	}

	switch n := result.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_DropStmt:
		return parseDrop(n.DropStmt)
	case *pg_query.Node_CreateTableAsStmt:
		return parseCreateMaterializedView(n.CreateTableAsStmt, strings.TrimSpace(sql))
	default:
		return nil, domain.ErrUnsupportedStatement("statement is not supported; only DROP TABLE and CREATE MATERIALIZED VIEW are accepted")
	}
}

func parseDrop(stmt *pg_query.DropStmt) (Statement, error) {
	if stmt.RemoveType != pg_query.ObjectType_OBJECT_TABLE {
		return nil, domain.ErrUnsupportedStatement("DROP %s is not supported", objectTypeName(stmt.RemoveType))
	}
	if stmt.Behavior == pg_query.DropBehavior_DROP_CASCADE {
		return nil, domain.ErrUnsupportedStatement("DROP TABLE ... CASCADE is not supported")
	}
	if len(stmt.Objects) != 1 {
		return nil, domain.ErrUnsupportedStatement("DROP TABLE accepts exactly one table, got %d", len(stmt.Objects))
	}
	name, err := nameFromList(stmt.Objects[0])
	if err != nil {
		return nil, err
	}
	return &DropTable{Name: name, IfExists: stmt.MissingOk}, nil
}

func parseCreateMaterializedView(stmt *pg_query.CreateTableAsStmt, sql string) (Statement, error) {
	if stmt.Objtype != pg_query.ObjectType_OBJECT_MATVIEW {
		return nil, domain.ErrUnsupportedStatement("CREATE TABLE AS is not supported")
	}
	if stmt.IfNotExists {
		return nil, domain.ErrUnsupportedStatement("CREATE MATERIALIZED VIEW IF NOT EXISTS is not supported")
	}
	if stmt.Into == nil || stmt.Into.Rel == nil {
		return nil, domain.ErrSyntax("materialized view name is required")
	}
	if stmt.Into.SkipData {
		return nil, domain.ErrUnsupportedStatement("WITH NO DATA is not supported")
	}
	sel := stmt.Query.GetSelectStmt()
	if sel == nil {
		return nil, domain.ErrUnsupportedStatement("materialized view query must be a SELECT")
	}

	cols := make([]string, 0, len(stmt.Into.ColNames))
	for _, c := range stmt.Into.ColNames {
		cols = append(cols, c.GetString_().GetSval())
	}

	rel := stmt.Into.Rel
	return &CreateMaterializedView{
		Name:        domain.TableName{Database: rel.Catalogname, Schema: rel.Schemaname, Table: rel.Relname},
		ColumnNames: cols,
		Query:       sel,
		SQL:         sql,
	}, nil
}

// nameFromList converts a dotted name list (table, schema.table or
// database.schema.table) to a TableName.
func nameFromList(node *pg_query.Node) (domain.TableName, error) {
	items := node.GetList().GetItems()
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.GetString_().GetSval())
	}
	switch len(parts) {
	case 1:
		return domain.TableName{Table: parts[0]}, nil
	case 2:
		return domain.TableName{Schema: parts[0], Table: parts[1]}, nil
	case 3:
		return domain.TableName{Database: parts[0], Schema: parts[1], Table: parts[2]}, nil
	default:
		return domain.TableName{}, domain.ErrSyntax("improper qualified name %q", strings.Join(parts, "."))
	}
}

func objectTypeName(t pg_query.ObjectType) string {
	name := strings.TrimPrefix(t.String(), "OBJECT_")
	return strings.ReplaceAll(name, "_", " ")
}
