package domain

// StatementKind names a supported DDL statement.
type StatementKind string

// Supported statement kinds.
const (
	StatementDropTable              StatementKind = "DROP_TABLE"
	StatementCreateMaterializedView StatementKind = "CREATE_MATERIALIZED_VIEW"
)

// CommandTag returns the PostgreSQL command tag reported for the statement.
func (k StatementKind) CommandTag() string {
	switch k {
	case StatementDropTable:
		return "DROP TABLE"
	case StatementCreateMaterializedView:
		return "CREATE MATERIALIZED VIEW"
	default:
		return string(k)
	}
}

// DdlResult is the outcome of a DDL statement. RowCount is always zero since
// DDL changes schema, not rows.
type DdlResult struct {
	Kind     StatementKind
	RowCount int64
}

// NewDdlResult returns the result for a completed statement of kind k.
func NewDdlResult(k StatementKind) *DdlResult {
	return &DdlResult{Kind: k}
}

// Session carries the per-connection settings used to qualify names.
type Session struct {
	User     string
	Database string
	Schema   string
}

// DefaultSchema returns the schema unqualified names resolve against.
func (s Session) DefaultSchema() SchemaName {
	return SchemaName{Database: s.Database, Schema: s.Schema}
}
