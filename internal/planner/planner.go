// Package planner turns the SELECT of a CREATE MATERIALIZED VIEW into a
// streaming plan. It resolves relations against the catalog, infers output
// column types, and names every output column.
package planner

import (
	"context"
	"log/slog"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"streamddl/internal/domain"
	"streamddl/internal/plan"
	"streamddl/internal/sqlfront"
)

// Catalog resolves relation names.
type Catalog interface {
	Lookup(ctx context.Context, name domain.TableName) (*domain.TableEntity, error)
}

// Planner builds streaming plans.
type Planner struct {
	catalog Catalog
	logger  *slog.Logger
}

// New creates a Planner that resolves relations through catalog.
func New(catalog Catalog, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{catalog: catalog, logger: logger}
}

// Plan builds the streaming plan for stmt. Unqualified relation names
// resolve against the session's default schema. The plan's root is a
// MATERIALIZE operator whose columns are the view's columns; expressions
// without a name get a generated placeholder name and the Generated flag.
func (p *Planner) Plan(ctx context.Context, sess domain.Session, stmt *sqlfront.CreateMaterializedView) (*plan.StreamingPlan, error) {
	sel := stmt.Query
	if err := checkShape(sel); err != nil {
		return nil, err
	}

	rv := sel.FromClause[0].GetRangeVar()
	relName := domain.TableName{Database: rv.Catalogname, Schema: rv.Schemaname, Table: rv.Relname}.Qualify(sess.DefaultSchema())
	entity, err := p.catalog.Lookup(ctx, relName)
	if err != nil {
		return nil, err
	}
	alias := rv.Relname
	if rv.Alias != nil && rv.Alias.Aliasname != "" {
		alias = rv.Alias.Aliasname
	}
	sc := &scope{alias: alias, entity: entity}

	ref := entity.Ref
	node := &plan.StreamPlanNode{
		Operator:   plan.OperatorTableScan,
		TableRefID: &ref,
		Columns:    sc.scanColumns(),
	}

	if sel.WhereClause != nil {
		pred, err := sc.render(sel.WhereClause)
		if err != nil {
			return nil, err
		}
		node = &plan.StreamPlanNode{Operator: plan.OperatorFilter, Columns: node.Columns, Predicate: pred, Inputs: []*plan.StreamPlanNode{node}}
	}

	targets, err := sc.expandTargets(sel.TargetList)
	if err != nil {
		return nil, err
	}

	if len(sel.GroupClause) > 0 || sc.hasAggregate(targets) || sel.HavingClause != nil {
		node, err = sc.aggregate(node, sel, targets)
		if err != nil {
			return nil, err
		}
	}

	outputs := make([]plan.OutputColumn, len(targets))
	exprs := make([]string, len(targets))
	for i, t := range targets {
		exprs[i], err = sc.render(t.expr)
		if err != nil {
			return nil, err
		}
		typ, err := sc.typeOf(t.expr)
		if err != nil {
			return nil, err
		}
		outputs[i] = plan.OutputColumn{Name: t.name, Type: typ}
		if t.name == "" {
			outputs[i].Name = plan.PlaceholderName(i)
			outputs[i].Generated = true
		}
	}
	if err := renameColumns(outputs, stmt.ColumnNames); err != nil {
		return nil, err
	}
	if err := checkDuplicates(outputs); err != nil {
		return nil, err
	}

	node = &plan.StreamPlanNode{Operator: plan.OperatorProject, Columns: outputs, Exprs: exprs, Inputs: []*plan.StreamPlanNode{node}}

	root := &plan.StreamPlanNode{Operator: plan.OperatorMaterialize, Columns: outputs, Inputs: []*plan.StreamPlanNode{node}}
	if len(sel.SortClause) > 0 {
		coll, err := collation(sel.SortClause, outputs, targets)
		if err != nil {
			return nil, err
		}
		root.Collation = coll
	}

	sp, err := plan.NewStreamingPlan(root)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("streaming plan built", "view", stmt.Name.String(), "source", relName.String(), "columns", len(outputs))
	return sp, nil
}

func checkShape(sel *pg_query.SelectStmt) error {
	switch {
	case sel == nil:
		return domain.ErrUnsupportedStatement("materialized view query must be a SELECT")
	case sel.Op != pg_query.SetOperation_SETOP_NONE:
		return domain.ErrUnsupportedStatement("set operations are not supported in materialized views")
	case len(sel.ValuesLists) > 0:
		return domain.ErrUnsupportedStatement("VALUES is not supported in materialized views")
	case sel.WithClause != nil:
		return domain.ErrUnsupportedStatement("WITH is not supported in materialized views")
	case len(sel.DistinctClause) > 0:
		return domain.ErrUnsupportedStatement("DISTINCT is not supported in materialized views")
	case sel.LimitCount != nil || sel.LimitOffset != nil:
		return domain.ErrUnsupportedStatement("LIMIT and OFFSET are not supported in materialized views")
	case len(sel.WindowClause) > 0:
		return domain.ErrUnsupportedStatement("window clauses are not supported in materialized views")
	case len(sel.FromClause) == 0:
		return domain.ErrUnsupportedStatement("materialized view query must read from a relation")
	case len(sel.FromClause) > 1:
		return domain.ErrUnsupportedStatement("materialized view query must read from exactly one relation")
	case sel.FromClause[0].GetRangeVar() == nil:
		return domain.ErrUnsupportedStatement("materialized view query must read from a table or source")
	}
	return nil
}

func renameColumns(outputs []plan.OutputColumn, names []string) error {
	if len(names) > len(outputs) {
		return domain.ErrSyntax("too many column names were specified")
	}
	for i, n := range names {
		outputs[i].Name = n
		outputs[i].Generated = false
	}
	return nil
}

func checkDuplicates(outputs []plan.OutputColumn) error {
	seen := make(map[string]bool, len(outputs))
	for _, c := range outputs {
		if c.Generated {
			continue
		}
		if seen[c.Name] {
			return domain.ErrInvalidColumnDefinition("column %q specified more than once", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

func collation(sortClause []*pg_query.Node, outputs []plan.OutputColumn, targets []target) (*domain.Collation, error) {
	coll := &domain.Collation{}
	for _, item := range sortClause {
		sb := item.GetSortBy()
		if sb == nil {
			return nil, domain.ErrUnsupportedStatement("unsupported ORDER BY item")
		}
		idx, err := sortIndex(sb.Node, outputs, targets)
		if err != nil {
			return nil, err
		}
		desc := sb.SortbyDir == pg_query.SortByDir_SORTBY_DESC
		f := domain.FieldCollation{Index: idx, Direction: domain.SortAscending}
		if desc {
			f.Direction = domain.SortDescending
		}
		switch sb.SortbyNulls {
		case pg_query.SortByNulls_SORTBY_NULLS_FIRST:
			f.NullsFirst = true
		case pg_query.SortByNulls_SORTBY_NULLS_LAST:
			f.NullsFirst = false
		default:
			f.NullsFirst = desc
		}
		coll.Fields = append(coll.Fields, f)
	}
	return coll, nil
}

// sortIndex maps an ORDER BY item to an output column: a 1-based position, an
// output name, or a column the select list passes through unchanged.
func sortIndex(n *pg_query.Node, outputs []plan.OutputColumn, targets []target) (int, error) {
	if c := n.GetAConst(); c != nil && c.GetIval() != nil {
		pos := int(c.GetIval().Ival)
		if pos < 1 || pos > len(outputs) {
			return 0, domain.ErrValidation("ORDER BY position %d is not in select list", pos)
		}
		return pos - 1, nil
	}
	if cr := n.GetColumnRef(); cr != nil {
		name := columnRefName(cr)
		for i, o := range outputs {
			if !o.Generated && o.Name == name {
				return i, nil
			}
		}
		for i, t := range targets {
			if tcr := t.expr.GetColumnRef(); tcr != nil && columnRefName(tcr) == name {
				return i, nil
			}
		}
	}
	return 0, domain.ErrUnsupportedStatement("ORDER BY must reference an output column of the materialized view")
}
