package planner

import (
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"streamddl/internal/ddl"
	"streamddl/internal/domain"
	"streamddl/internal/plan"
)

// target is one select-list entry after * expansion. name is empty when the
// query gives the expression no name.
type target struct {
	name string
	expr *pg_query.Node
}

// scope resolves column references against the single FROM relation.
type scope struct {
	alias  string
	entity *domain.TableEntity
}

var aggregateFuncs = map[string]bool{"count": true, "sum": true, "avg": true, "min": true, "max": true}

func (s *scope) scanColumns() []plan.OutputColumn {
	out := make([]plan.OutputColumn, len(s.entity.Columns))
	for i, c := range s.entity.Columns {
		out[i] = plan.OutputColumn{Name: c.Name, Type: c.Type}
	}
	return out
}

func (s *scope) expandTargets(list []*pg_query.Node) ([]target, error) {
	var out []target
	for _, item := range list {
		rt := item.GetResTarget()
		if rt == nil || rt.Val == nil {
			return nil, domain.ErrUnsupportedStatement("unsupported select list item")
		}
		if cr := rt.Val.GetColumnRef(); cr != nil && isStar(cr) {
			if len(cr.Fields) == 2 && fieldName(cr.Fields[0]) != s.alias {
				return nil, domain.ErrUndefinedEntity("missing FROM-clause entry for table %q", fieldName(cr.Fields[0]))
			}
			for _, c := range s.entity.Columns {
				ref := pg_query.MakeColumnRefNode([]*pg_query.Node{pg_query.MakeStrNode(c.Name)}, 0)
				out = append(out, target{name: c.Name, expr: ref})
			}
			continue
		}
		t := target{name: rt.Name, expr: rt.Val}
		if t.name == "" {
			if cr := rt.Val.GetColumnRef(); cr != nil {
				t.name = columnRefName(cr)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *scope) resolve(cr *pg_query.ColumnRef) (domain.ColumnDesc, error) {
	switch len(cr.Fields) {
	case 1:
	case 2:
		if rel := fieldName(cr.Fields[0]); rel != s.alias {
			return domain.ColumnDesc{}, domain.ErrUndefinedEntity("missing FROM-clause entry for table %q", rel)
		}
	default:
		return domain.ColumnDesc{}, domain.ErrUnsupportedStatement("column reference %q is not supported", columnRefName(cr))
	}
	name := columnRefName(cr)
	for _, c := range s.entity.Columns {
		if c.Name == name {
			return c, nil
		}
	}
	return domain.ColumnDesc{}, domain.ErrUndefinedColumn("column %q does not exist in %s", name, s.entity.Name.String())
}

func (s *scope) hasAggregate(targets []target) bool {
	found := false
	for _, t := range targets {
		walk(t.expr, func(n *pg_query.Node) bool {
			if fc := n.GetFuncCall(); fc != nil && isAggregate(fc) {
				found = true
				return false
			}
			return true
		})
	}
	return found
}

// aggregate builds the HASH_AGG (and HAVING filter) above input. Its output
// is the group key columns followed by one column per distinct aggregate call.
func (s *scope) aggregate(input *plan.StreamPlanNode, sel *pg_query.SelectStmt, targets []target) (*plan.StreamPlanNode, error) {
	node := &plan.StreamPlanNode{Operator: plan.OperatorHashAgg, Inputs: []*plan.StreamPlanNode{input}}
	grouped := make(map[string]bool)

	for _, g := range sel.GroupClause {
		cr := g.GetColumnRef()
		if c := g.GetAConst(); c != nil && c.GetIval() != nil {
			pos := int(c.GetIval().Ival)
			if pos < 1 || pos > len(targets) {
				return nil, domain.ErrValidation("GROUP BY position %d is not in select list", pos)
			}
			cr = targets[pos-1].expr.GetColumnRef()
		}
		if cr == nil {
			return nil, domain.ErrUnsupportedStatement("GROUP BY supports column references only")
		}
		col, err := s.resolve(cr)
		if err != nil {
			return nil, err
		}
		if grouped[col.Name] {
			continue
		}
		grouped[col.Name] = true
		node.GroupKeys = append(node.GroupKeys, columnIndex(input.Columns, col.Name))
		node.Columns = append(node.Columns, plan.OutputColumn{Name: col.Name, Type: col.Type})
	}

	exprs := make([]*pg_query.Node, 0, len(targets)+1)
	for _, t := range targets {
		exprs = append(exprs, t.expr)
	}
	if sel.HavingClause != nil {
		exprs = append(exprs, sel.HavingClause)
	}

	seen := make(map[string]bool)
	var walkErr error
	for _, e := range exprs {
		walk(e, func(n *pg_query.Node) bool {
			if walkErr != nil {
				return false
			}
			if fc := n.GetFuncCall(); fc != nil && isAggregate(fc) {
				rendered, err := s.render(n)
				if err != nil {
					walkErr = err
					return false
				}
				if !seen[rendered] {
					typ, err := s.typeOf(n)
					if err != nil {
						walkErr = err
						return false
					}
					seen[rendered] = true
					node.Exprs = append(node.Exprs, rendered)
					node.Columns = append(node.Columns, plan.OutputColumn{Name: rendered, Type: typ})
				}
				return false
			}
			if cr := n.GetColumnRef(); cr != nil {
				col, err := s.resolve(cr)
				if err != nil {
					walkErr = err
					return false
				}
				if !grouped[col.Name] {
					walkErr = domain.ErrValidation("column %q must appear in the GROUP BY clause or be used in an aggregate function", col.Name)
				}
				return false
			}
			return true
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	if sel.HavingClause == nil {
		return node, nil
	}
	pred, err := s.render(sel.HavingClause)
	if err != nil {
		return nil, err
	}
	return &plan.StreamPlanNode{Operator: plan.OperatorFilter, Columns: node.Columns, Predicate: pred, Inputs: []*plan.StreamPlanNode{node}}, nil
}

// render prints a supported expression in DuckDB syntax.
func (s *scope) render(n *pg_query.Node) (string, error) {
	switch {
	case n.GetColumnRef() != nil:
		col, err := s.resolve(n.GetColumnRef())
		if err != nil {
			return "", err
		}
		return ddl.QuoteIdentifier(col.Name), nil

	case n.GetAConst() != nil:
		return renderConst(n.GetAConst())

	case n.GetFuncCall() != nil:
		fc := n.GetFuncCall()
		if fc.Over != nil {
			return "", domain.ErrUnsupportedStatement("window functions are not supported in materialized views")
		}
		name := funcName(fc)
		if fc.AggStar {
			return name + "(*)", nil
		}
		args, err := s.renderList(fc.Args)
		if err != nil {
			return "", err
		}
		if fc.AggDistinct {
			return name + "(DISTINCT " + args + ")", nil
		}
		return name + "(" + args + ")", nil

	case n.GetAExpr() != nil:
		return s.renderAExpr(n.GetAExpr())

	case n.GetBoolExpr() != nil:
		be := n.GetBoolExpr()
		parts := make([]string, len(be.Args))
		for i, a := range be.Args {
			r, err := s.render(a)
			if err != nil {
				return "", err
			}
			parts[i] = r
		}
		switch be.Boolop {
		case pg_query.BoolExprType_AND_EXPR:
			return "(" + strings.Join(parts, " AND ") + ")", nil
		case pg_query.BoolExprType_OR_EXPR:
			return "(" + strings.Join(parts, " OR ") + ")", nil
		default:
			return "(NOT " + strings.Join(parts, "") + ")", nil
		}

	case n.GetNullTest() != nil:
		nt := n.GetNullTest()
		arg, err := s.render(nt.Arg)
		if err != nil {
			return "", err
		}
		if nt.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL {
			return "(" + arg + " IS NOT NULL)", nil
		}
		return "(" + arg + " IS NULL)", nil

	case n.GetTypeCast() != nil:
		tc := n.GetTypeCast()
		arg, err := s.render(tc.Arg)
		if err != nil {
			return "", err
		}
		return "CAST(" + arg + " AS " + castType(tc.TypeName) + ")", nil
	}
	return "", domain.ErrUnsupportedStatement("unsupported expression in materialized view query")
}

func (s *scope) renderList(nodes []*pg_query.Node) (string, error) {
	parts := make([]string, len(nodes))
	for i, a := range nodes {
		r, err := s.render(a)
		if err != nil {
			return "", err
		}
		parts[i] = r
	}
	return strings.Join(parts, ", "), nil
}

func (s *scope) renderAExpr(e *pg_query.A_Expr) (string, error) {
	op := operatorName(e.Name)
	switch e.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		r, err := s.render(e.Rexpr)
		if err != nil {
			return "", err
		}
		if e.Lexpr == nil {
			return "(" + op + r + ")", nil
		}
		l, err := s.render(e.Lexpr)
		if err != nil {
			return "", err
		}
		return "(" + l + " " + op + " " + r + ")", nil

	case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
		l, err := s.render(e.Lexpr)
		if err != nil {
			return "", err
		}
		r, err := s.render(e.Rexpr)
		if err != nil {
			return "", err
		}
		kw := "LIKE"
		if e.Kind == pg_query.A_Expr_Kind_AEXPR_ILIKE {
			kw = "ILIKE"
		}
		if strings.HasPrefix(op, "!") {
			kw = "NOT " + kw
		}
		return "(" + l + " " + kw + " " + r + ")", nil

	case pg_query.A_Expr_Kind_AEXPR_IN:
		l, err := s.render(e.Lexpr)
		if err != nil {
			return "", err
		}
		list, err := s.renderList(e.Rexpr.GetList().GetItems())
		if err != nil {
			return "", err
		}
		kw := "IN"
		if op == "<>" {
			kw = "NOT IN"
		}
		return "(" + l + " " + kw + " (" + list + "))", nil
	}
	return "", domain.ErrUnsupportedStatement("unsupported operator expression in materialized view query")
}

// typeOf infers the DuckDB type of a supported expression.
func (s *scope) typeOf(n *pg_query.Node) (string, error) {
	switch {
	case n.GetColumnRef() != nil:
		col, err := s.resolve(n.GetColumnRef())
		if err != nil {
			return "", err
		}
		return col.Type, nil

	case n.GetAConst() != nil:
		c := n.GetAConst()
		switch {
		case c.Isnull:
			return "VARCHAR", nil
		case c.GetIval() != nil:
			return "INTEGER", nil
		case c.GetFval() != nil:
			return "DOUBLE", nil
		case c.GetBoolval() != nil:
			return "BOOLEAN", nil
		default:
			return "VARCHAR", nil
		}

	case n.GetFuncCall() != nil:
		fc := n.GetFuncCall()
		switch name := funcName(fc); name {
		case "count":
			return "BIGINT", nil
		case "sum", "avg":
			return "DOUBLE", nil
		case "min", "max", "abs", "round", "ceil", "floor", "coalesce":
			if len(fc.Args) == 0 {
				return "", domain.ErrValidation("function %s requires an argument", name)
			}
			return s.typeOf(fc.Args[0])
		case "lower", "upper", "concat", "trim", "substr", "substring":
			return "VARCHAR", nil
		case "length":
			return "BIGINT", nil
		default:
			return "", domain.ErrUnsupportedStatement("function %s is not supported in materialized views", name)
		}

	case n.GetAExpr() != nil:
		e := n.GetAExpr()
		if e.Kind != pg_query.A_Expr_Kind_AEXPR_OP {
			return "BOOLEAN", nil
		}
		switch op := operatorName(e.Name); op {
		case "=", "<>", "!=", "<", ">", "<=", ">=":
			return "BOOLEAN", nil
		case "||":
			return "VARCHAR", nil
		case "+", "-", "*", "/", "%":
			r, err := s.typeOf(e.Rexpr)
			if err != nil {
				return "", err
			}
			if e.Lexpr == nil {
				return r, nil
			}
			l, err := s.typeOf(e.Lexpr)
			if err != nil {
				return "", err
			}
			return numericResult(l, r), nil
		default:
			return "", domain.ErrUnsupportedStatement("operator %s is not supported in materialized views", op)
		}

	case n.GetBoolExpr() != nil, n.GetNullTest() != nil:
		return "BOOLEAN", nil

	case n.GetTypeCast() != nil:
		return castType(n.GetTypeCast().TypeName), nil
	}
	return "", domain.ErrUnsupportedStatement("unsupported expression in materialized view query")
}

func renderConst(c *pg_query.A_Const) (string, error) {
	switch {
	case c.Isnull:
		return "NULL", nil
	case c.GetIval() != nil:
		return strconv.FormatInt(int64(c.GetIval().Ival), 10), nil
	case c.GetFval() != nil:
		return c.GetFval().Fval, nil
	case c.GetBoolval() != nil:
		if c.GetBoolval().Boolval {
			return "TRUE", nil
		}
		return "FALSE", nil
	case c.GetSval() != nil:
		return ddl.QuoteLiteral(c.GetSval().Sval), nil
	}
	return "", domain.ErrUnsupportedStatement("unsupported constant")
}

// walk visits n and its sub-expressions depth-first. fn returning false
// skips n's children.
func walk(n *pg_query.Node, fn func(*pg_query.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	var children []*pg_query.Node
	switch {
	case n.GetFuncCall() != nil:
		children = n.GetFuncCall().Args
	case n.GetAExpr() != nil:
		e := n.GetAExpr()
		children = []*pg_query.Node{e.Lexpr}
		if items := e.Rexpr.GetList().GetItems(); items != nil {
			children = append(children, items...)
		} else {
			children = append(children, e.Rexpr)
		}
	case n.GetBoolExpr() != nil:
		children = n.GetBoolExpr().Args
	case n.GetNullTest() != nil:
		children = []*pg_query.Node{n.GetNullTest().Arg}
	case n.GetTypeCast() != nil:
		children = []*pg_query.Node{n.GetTypeCast().Arg}
	}
	for _, c := range children {
		walk(c, fn)
	}
}

func isAggregate(fc *pg_query.FuncCall) bool {
	return aggregateFuncs[funcName(fc)]
}

func funcName(fc *pg_query.FuncCall) string {
	if len(fc.Funcname) == 0 {
		return ""
	}
	return strings.ToLower(fieldName(fc.Funcname[len(fc.Funcname)-1]))
}

func operatorName(name []*pg_query.Node) string {
	if len(name) == 0 {
		return ""
	}
	return fieldName(name[len(name)-1])
}

func isStar(cr *pg_query.ColumnRef) bool {
	return len(cr.Fields) > 0 && cr.Fields[len(cr.Fields)-1].GetAStar() != nil
}

func columnRefName(cr *pg_query.ColumnRef) string {
	if len(cr.Fields) == 0 {
		return ""
	}
	return fieldName(cr.Fields[len(cr.Fields)-1])
}

func fieldName(n *pg_query.Node) string {
	return n.GetString_().GetSval()
}

func columnIndex(cols []plan.OutputColumn, name string) int {
	for i, c := range cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

var pgTypeNames = map[string]string{
	"int2": "SMALLINT", "int4": "INTEGER", "int8": "BIGINT",
	"float4": "FLOAT", "float8": "DOUBLE", "numeric": "DECIMAL",
	"text": "VARCHAR", "varchar": "VARCHAR", "bpchar": "VARCHAR",
	"bool": "BOOLEAN", "timestamp": "TIMESTAMP", "timestamptz": "TIMESTAMPTZ",
	"date": "DATE",
}

func castType(tn *pg_query.TypeName) string {
	if tn == nil || len(tn.Names) == 0 {
		return "VARCHAR"
	}
	name := fieldName(tn.Names[len(tn.Names)-1])
	if mapped, ok := pgTypeNames[name]; ok {
		return mapped
	}
	return strings.ToUpper(name)
}

func numericResult(l, r string) string {
	for _, t := range []string{l, r} {
		switch strings.ToUpper(t) {
		case "DOUBLE", "FLOAT", "REAL", "DECIMAL", "NUMERIC":
			return "DOUBLE"
		}
	}
	return "BIGINT"
}
