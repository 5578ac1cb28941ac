package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableName_Qualify(t *testing.T) {
	def := SchemaName{Database: "dev", Schema: "public"}

	tests := []struct {
		name string
		in   TableName
		want TableName
	}{
		{"bare", TableName{Table: "t"}, TableName{Database: "dev", Schema: "public", Table: "t"}},
		{"schema_only", TableName{Schema: "s", Table: "t"}, TableName{Database: "dev", Schema: "s", Table: "t"}},
		{"full", TableName{Database: "d", Schema: "s", Table: "t"}, TableName{Database: "d", Schema: "s", Table: "t"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Qualify(def))
		})
	}
}

func TestAssociatedNames_RoundTrip(t *testing.T) {
	view := TableName{Database: "dev", Schema: "public", Table: "orders"}

	src := AssociatedSourceName(view)
	assert.Equal(t, "__src_orders", src.Table)
	assert.Equal(t, "dev.public.__src_orders", src.String())

	back, ok := AssociatedViewName(src)
	require.True(t, ok)
	assert.Equal(t, view, back)

	_, ok = AssociatedViewName(view)
	assert.False(t, ok)
	_, ok = AssociatedViewName(TableName{Table: AssociatedSourcePrefix})
	assert.False(t, ok)
}

func TestCreateTableRequest_Validate(t *testing.T) {
	full := TableName{Database: "dev", Schema: "public", Table: "t"}

	tests := []struct {
		name    string
		req     CreateTableRequest
		wantErr string
	}{
		{"ok_table", CreateTableRequest{Name: full, Kind: TableKindTable, Columns: []ColumnDesc{{Name: "a", Type: "INTEGER"}}}, ""},
		{"ok_source", CreateTableRequest{Name: full, Kind: TableKindSource, IsSource: true}, ""},
		{"missing_name", CreateTableRequest{Kind: TableKindTable}, "table name is required"},
		{"unqualified", CreateTableRequest{Name: TableName{Table: "t"}, Kind: TableKindTable}, "fully qualified"},
		{"bad_kind", CreateTableRequest{Name: full, Kind: "INDEX"}, "unknown table kind"},
		{"source_flag_mismatch", CreateTableRequest{Name: full, Kind: TableKindTable, IsSource: true}, "source flag"},
		{"dup_column", CreateTableRequest{Name: full, Kind: TableKindTable, Columns: []ColumnDesc{{Name: "a"}, {Name: "a"}}}, "duplicate column"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRegisterWorkerNodeRequest_Validate(t *testing.T) {
	assert.NoError(t, RegisterWorkerNodeRequest{Name: "n1", Endpoint: "grpc://127.0.0.1:9443"}.Validate())
	assert.NoError(t, RegisterWorkerNodeRequest{Name: "n1", Endpoint: "grpcs://compute.example.com:443"}.Validate())
	assert.Error(t, RegisterWorkerNodeRequest{Endpoint: "grpc://127.0.0.1:9443"}.Validate())
	assert.Error(t, RegisterWorkerNodeRequest{Name: "n1", Endpoint: "http://127.0.0.1:9443"}.Validate())
	assert.Error(t, RegisterWorkerNodeRequest{Name: "n1", Endpoint: "grpc://"}.Validate())
}

func TestErrors_SQLState(t *testing.T) {
	tests := []struct {
		err  SQLStateError
		want string
	}{
		{ErrUndefinedEntity("x"), "42P01"},
		{ErrDuplicateEntity("x"), "42P07"},
		{ErrInvalidColumnDefinition("x"), "42611"},
		{ErrInternalExecution("x"), "XX000"},
		{ErrDependentObject("x"), "2BP01"},
		{ErrUnsupportedStatement("x"), "0A000"},
		{ErrValidation("x"), "22023"},
		{ErrSyntax("x"), "42601"},
		{ErrUndefinedColumn("x"), "42703"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.err.SQLState(), "%T", tc.err)
	}
}

func TestStatementKind_CommandTag(t *testing.T) {
	assert.Equal(t, "DROP TABLE", StatementDropTable.CommandTag())
	assert.Equal(t, "CREATE MATERIALIZED VIEW", StatementCreateMaterializedView.CommandTag())
	assert.Equal(t, int64(0), NewDdlResult(StatementDropTable).RowCount)
}

func TestTableEntity_DroppedByStreamManager(t *testing.T) {
	tests := []struct {
		name   string
		entity TableEntity
		want   bool
	}{
		{"table", TableEntity{Kind: TableKindTable}, false},
		{"source", TableEntity{Kind: TableKindSource, IsSource: true}, false},
		{"standalone_view", TableEntity{Kind: TableKindMaterializedView}, true},
		{"paired_view", TableEntity{Kind: TableKindMaterializedView, IsAssociatedMaterializedView: true}, true},
		{"generated_source", TableEntity{Kind: TableKindSource, IsSource: true, IsAssociatedMaterializedView: true}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.entity.DroppedByStreamManager())
		})
	}
}
