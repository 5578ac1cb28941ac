// Package ddl builds the DuckDB statements a compute node runs against its
// local copy of catalog relations.
package ddl

import (
	"fmt"
	"strings"

	"streamddl/internal/domain"
)

// Node-local storage prefixes. Sources and tables with the same catalog id
// never collide.
const (
	nodeTablePrefix  = "t_"
	nodeSourcePrefix = "src_"
)

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name string
	Type string
}

// NodeTableName returns the name a compute node stores relation ref under.
func NodeTableName(ref domain.TableRefID, source bool) string {
	prefix := nodeTablePrefix
	if source {
		prefix = nodeSourcePrefix
	}
	return fmt.Sprintf("%s%d_%d_%d", prefix, ref.DatabaseID, ref.SchemaID, ref.TableID)
}

// CreateNodeTable returns CREATE TABLE IF NOT EXISTS "<node name>" (...).
func CreateNodeTable(ref domain.TableRefID, source bool, columns []ColumnDef) (string, error) {
	if ref.IsZero() {
		return "", fmt.Errorf("table id is required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return "", fmt.Errorf("invalid type for column %q: %w", c.Name, err)
		}
		defs = append(defs, QuoteIdentifier(c.Name)+" "+c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		QuoteIdentifier(NodeTableName(ref, source)), strings.Join(defs, ", ")), nil
}

// DropNodeTable returns DROP TABLE IF EXISTS "<node name>". Running it twice
// is harmless.
func DropNodeTable(ref domain.TableRefID, source bool) (string, error) {
	if ref.IsZero() {
		return "", fmt.Errorf("table id is required")
	}
	return "DROP TABLE IF EXISTS " + QuoteIdentifier(NodeTableName(ref, source)), nil
}
