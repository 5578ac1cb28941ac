package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamddl/internal/domain"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "simple", input: "users"},
		{name: "underscore_prefix", input: "_temp"},
		{name: "max_length", input: strings.Repeat("a", 128)},
		{name: "empty", input: "", wantErr: "name is required"},
		{name: "too_long", input: strings.Repeat("a", 129), wantErr: "at most 128 characters"},
		{name: "starts_with_digit", input: "1table", wantErr: "must match"},
		{name: "contains_quote", input: `foo"bar`, wantErr: "must match"},
		{name: "sql_injection", input: "foo; DROP TABLE", wantErr: "must match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"my""table"`, QuoteIdentifier(`my"table`))
	assert.Equal(t, `""`, QuoteIdentifier(""))
	assert.Equal(t, "'it''s'", QuoteLiteral("it's"))
}

func TestValidateColumnType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "bigint", input: "BIGINT"},
		{name: "decimal_precision_scale", input: "DECIMAL(10,2)"},
		{name: "varchar_length_array", input: "VARCHAR(100)[]"},
		{name: "double_precision", input: "DOUBLE PRECISION"},
		{name: "empty", input: "", wantErr: "column type is required"},
		{name: "too_long", input: strings.Repeat("A", 65), wantErr: "at most 64 characters"},
		{name: "semicolon_injection", input: "INTEGER); DROP TABLE foo; --", wantErr: "invalid characters"},
		{name: "nested_parens", input: "DECIMAL((10))", wantErr: "not a recognized type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateColumnType(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNodeTableStatements(t *testing.T) {
	ref := domain.TableRefID{DatabaseID: 1, SchemaID: 2, TableID: 30}

	assert.Equal(t, "t_1_2_30", NodeTableName(ref, false))
	assert.Equal(t, "src_1_2_30", NodeTableName(ref, true))

	stmt, err := DropNodeTable(ref, false)
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE IF EXISTS "t_1_2_30"`, stmt)

	stmt, err = DropNodeTable(ref, true)
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE IF EXISTS "src_1_2_30"`, stmt)

	_, err = DropNodeTable(domain.TableRefID{}, false)
	require.Error(t, err)

	stmt, err = CreateNodeTable(ref, false, []ColumnDef{{Name: "id", Type: "BIGINT"}, {Name: "region", Type: "VARCHAR"}})
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "t_1_2_30" ("id" BIGINT, "region" VARCHAR)`, stmt)

	_, err = CreateNodeTable(ref, false, nil)
	require.ErrorContains(t, err, "at least one column")
	_, err = CreateNodeTable(ref, false, []ColumnDef{{Name: "bad-name", Type: "BIGINT"}})
	require.ErrorContains(t, err, "invalid column name")
	_, err = CreateNodeTable(ref, false, []ColumnDef{{Name: "id", Type: "INT; DROP"}})
	require.ErrorContains(t, err, "invalid type")
}
