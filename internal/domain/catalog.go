package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TableKind classifies a catalog relation.
type TableKind string

// Table kinds.
const (
	TableKindTable            TableKind = "TABLE"
	TableKindSource           TableKind = "SOURCE"
	TableKindMaterializedView TableKind = "MATERIALIZED_VIEW"
)

// AssociatedSourcePrefix prefixes the generated source that feeds an
// associated materialized view of the same base name.
const AssociatedSourcePrefix = "__src_"

// SchemaName identifies a schema within a database.
type SchemaName struct {
	Database string
	Schema   string
}

func (s SchemaName) String() string {
	return s.Database + "." + s.Schema
}

// TableName identifies a relation by database, schema, and name. Database and
// Schema may be empty before the name is qualified against a session.
type TableName struct {
	Database string
	Schema   string
	Table    string
}

func (n TableName) String() string {
	parts := make([]string, 0, 3)
	if n.Database != "" {
		parts = append(parts, n.Database)
	}
	if n.Schema != "" {
		parts = append(parts, n.Schema)
	}
	parts = append(parts, n.Table)
	return strings.Join(parts, ".")
}

// SchemaName returns the schema part of the name.
func (n TableName) SchemaName() SchemaName {
	return SchemaName{Database: n.Database, Schema: n.Schema}
}

// Qualify fills missing database and schema parts from def.
func (n TableName) Qualify(def SchemaName) TableName {
	if n.Database == "" {
		n.Database = def.Database
	}
	if n.Schema == "" {
		n.Schema = def.Schema
	}
	return n
}

// AssociatedSourceName returns the name of the generated source paired with
// the materialized view called view.
func AssociatedSourceName(view TableName) TableName {
	view.Table = AssociatedSourcePrefix + view.Table
	return view
}

// AssociatedViewName reverses AssociatedSourceName. ok is false when source
// does not follow the generated naming convention.
func AssociatedViewName(source TableName) (TableName, bool) {
	base, ok := strings.CutPrefix(source.Table, AssociatedSourcePrefix)
	if !ok || base == "" {
		return TableName{}, false
	}
	source.Table = base
	return source, true
}

// TableRefID is the catalog-assigned identity of a relation as it travels in
// plan fragments and stream nodes.
type TableRefID struct {
	DatabaseID int64 `json:"database_id"`
	SchemaID   int64 `json:"schema_id"`
	TableID    int64 `json:"table_id"`
}

func (r TableRefID) String() string {
	return fmt.Sprintf("%d.%d.%d", r.DatabaseID, r.SchemaID, r.TableID)
}

// IsZero reports whether r has not been assigned.
func (r TableRefID) IsZero() bool {
	return r.TableID == 0
}

// SchemaRef is a resolved schema with its catalog ids.
type SchemaRef struct {
	DatabaseID int64
	SchemaID   int64
	Name       SchemaName
}

// ColumnDesc describes one ordered column of a relation.
type ColumnDesc struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
}

// TableEntity is a catalog relation: a table, a source, or a materialized view.
type TableEntity struct {
	Ref     TableRefID
	Name    TableName
	Kind    TableKind
	Columns []ColumnDesc

	// IsSource is set for sources, including the generated half of an
	// associated pair.
	IsSource bool
	// IsAssociatedMaterializedView is set on both halves of a view and
	// generated-source pair. Both halves are dropped through the stream
	// manager, never by broadcast.
	IsAssociatedMaterializedView bool

	CreatedAt time.Time
}

// ID returns the catalog table id.
func (e *TableEntity) ID() int64 { return e.Ref.TableID }

// IsAssociatedSource reports whether e is the generated source half of an
// associated pair.
func (e *TableEntity) IsAssociatedSource() bool {
	return e.IsSource && e.IsAssociatedMaterializedView
}

// DroppedByStreamManager reports whether dropping e tears down a dataflow in
// the stream manager instead of broadcasting to compute nodes. That holds for
// every materialized view, standalone or paired, and for generated sources.
func (e *TableEntity) DroppedByStreamManager() bool {
	return e.Kind == TableKindMaterializedView || e.IsAssociatedMaterializedView
}

// SortDirection orders one collation field.
type SortDirection string

// Sort directions.
const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

// FieldCollation orders a view by one output column.
type FieldCollation struct {
	Index      int           `json:"index"`
	Direction  SortDirection `json:"direction"`
	NullsFirst bool          `json:"nulls_first,omitempty"`
}

// Collation is the ordered list of sort keys a view is kept in.
type Collation struct {
	Fields []FieldCollation `json:"fields,omitempty"`
}

// MaterializedView is a catalog view backed by a streaming dataflow.
type MaterializedView struct {
	TableEntity
	Collation  Collation
	StreamPlan []byte // serialized stream node, set once the plan is bound
}

// MaterializedViewInfo describes a view to register.
type MaterializedViewInfo struct {
	Columns      []ColumnDesc
	Collation    Collation
	Materialized bool
}

// CreateTableRequest holds parameters for registering a table or source.
type CreateTableRequest struct {
	Name                         TableName
	Kind                         TableKind
	Columns                      []ColumnDesc
	IsSource                     bool
	IsAssociatedMaterializedView bool
}

// Validate checks a create request.
func (r CreateTableRequest) Validate() error {
	if r.Name.Table == "" {
		return ErrValidation("table name is required")
	}
	if r.Name.Database == "" || r.Name.Schema == "" {
		return ErrValidation("table name %q must be fully qualified", r.Name.String())
	}
	switch r.Kind {
	case TableKindTable, TableKindSource, TableKindMaterializedView:
	default:
		return ErrValidation("unknown table kind %q", r.Kind)
	}
	if r.IsSource != (r.Kind == TableKindSource) {
		return ErrValidation("source flag does not match kind %s", r.Kind)
	}
	seen := make(map[string]bool, len(r.Columns))
	for _, c := range r.Columns {
		if c.Name == "" {
			return ErrValidation("column name is required")
		}
		if seen[c.Name] {
			return ErrValidation("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// CatalogRepository persists catalog relations. Mutations are visible to
// later lookups through the same repository.
type CatalogRepository interface {
	EnsureSchema(ctx context.Context, name SchemaName) (*SchemaRef, error)
	GetSchema(ctx context.Context, name SchemaName) (*SchemaRef, error)
	GetTable(ctx context.Context, name TableName) (*TableEntity, error)
	GetMaterializedView(ctx context.Context, name TableName) (*MaterializedView, error)
	CreateTable(ctx context.Context, req CreateTableRequest) (*TableEntity, error)
	CreateMaterializedView(ctx context.Context, schema SchemaName, name string, info MaterializedViewInfo) (*MaterializedView, error)
	SetStreamPlan(ctx context.Context, tableID int64, plan []byte) error
	DropTable(ctx context.Context, name TableName) error
	ListTables(ctx context.Context, schema SchemaName) ([]TableEntity, error)
}

// CatalogStore is a CatalogRepository that can scope a unit of work to one
// transaction. fn's repository must be used for every access inside it.
type CatalogStore interface {
	CatalogRepository
	InTx(ctx context.Context, fn func(tx CatalogRepository) error) error
}
