package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"streamddl/internal/domain"
)

// CatalogRepo implements domain.CatalogStore on the SQLite metastore.
type CatalogRepo struct {
	db *sql.DB // nil when the repo is bound to a transaction
	q  dbtx
}

// NewCatalogRepo creates a new CatalogRepo. Pass the write pool when the repo
// is used for mutations.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db, q: db}
}

// Compile-time interface check.
var _ domain.CatalogStore = (*CatalogRepo)(nil)

// InTx runs fn with a repository bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calling
// InTx on a transaction-bound repo reuses the outer transaction.
func (r *CatalogRepo) InTx(ctx context.Context, fn func(tx domain.CatalogRepository) error) (err error) {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&CatalogRepo{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback catalog tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}

// EnsureSchema returns the schema, creating it and its database if needed.
func (r *CatalogRepo) EnsureSchema(ctx context.Context, name domain.SchemaName) (*domain.SchemaRef, error) {
	if name.Database == "" || name.Schema == "" {
		return nil, domain.ErrValidation("database and schema names are required")
	}
	if _, err := r.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO catalog_databases (name) VALUES (?)`, name.Database); err != nil {
		return nil, fmt.Errorf("ensure database %q: %w", name.Database, err)
	}
	if _, err := r.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO catalog_schemas (database_id, name)
		SELECT id, ? FROM catalog_databases WHERE name = ?`, name.Schema, name.Database); err != nil {
		return nil, fmt.Errorf("ensure schema %q: %w", name.String(), err)
	}
	return r.GetSchema(ctx, name)
}

// GetSchema resolves a schema by name.
func (r *CatalogRepo) GetSchema(ctx context.Context, name domain.SchemaName) (*domain.SchemaRef, error) {
	ref := &domain.SchemaRef{Name: name}
	err := r.q.QueryRowContext(ctx, `
		SELECT d.id, s.id FROM catalog_schemas s
		JOIN catalog_databases d ON d.id = s.database_id
		WHERE d.name = ? AND s.name = ?`, name.Database, name.Schema).Scan(&ref.DatabaseID, &ref.SchemaID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("schema %q not found", name.String())
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

const tableSelect = `
	SELECT t.id, s.database_id, t.schema_id, d.name, s.name, t.name, t.kind,
	       t.is_source, t.is_associated_mv, t.collation, t.stream_plan, t.created_at
	FROM catalog_tables t
	JOIN catalog_schemas s ON s.id = t.schema_id
	JOIN catalog_databases d ON d.id = s.database_id`

// GetTable resolves any relation by name.
func (r *CatalogRepo) GetTable(ctx context.Context, name domain.TableName) (*domain.TableEntity, error) {
	v, err := r.getView(ctx, tableSelect+` WHERE d.name = ? AND s.name = ? AND t.name = ?`,
		name.Database, name.Schema, name.Table)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound("table %q not found", name.String())
		}
		return nil, err
	}
	return &v.TableEntity, nil
}

// GetMaterializedView resolves a materialized view by name.
func (r *CatalogRepo) GetMaterializedView(ctx context.Context, name domain.TableName) (*domain.MaterializedView, error) {
	v, err := r.getView(ctx, tableSelect+` WHERE d.name = ? AND s.name = ? AND t.name = ? AND t.kind = ?`,
		name.Database, name.Schema, name.Table, string(domain.TableKindMaterializedView))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound("materialized view %q not found", name.String())
		}
		return nil, err
	}
	return v, nil
}

// ListTables returns every relation in a schema ordered by name.
func (r *CatalogRepo) ListTables(ctx context.Context, schema domain.SchemaName) ([]domain.TableEntity, error) {
	rows, err := r.q.QueryContext(ctx, tableSelect+` WHERE d.name = ? AND s.name = ? ORDER BY t.name`,
		schema.Database, schema.Schema)
	if err != nil {
		return nil, err
	}
	var out []domain.TableEntity
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, v.TableEntity)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Columns are loaded after the cursor is closed; inside a transaction
	// there is only one connection.
	for i := range out {
		cols, err := r.loadColumns(ctx, out[i].ID())
		if err != nil {
			return nil, err
		}
		out[i].Columns = cols
	}
	return out, nil
}

// CreateTable registers a table or source.
func (r *CatalogRepo) CreateTable(ctx context.Context, req domain.CreateTableRequest) (*domain.TableEntity, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	schema, err := r.GetSchema(ctx, req.Name.SchemaName())
	if err != nil {
		return nil, err
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO catalog_tables (schema_id, name, kind, is_source, is_associated_mv)
		VALUES (?, ?, ?, ?, ?)`,
		schema.SchemaID, req.Name.Table, string(req.Kind),
		boolToInt(req.IsSource), boolToInt(req.IsAssociatedMaterializedView))
	if err != nil {
		if isConflict(mapDBError(err)) {
			return nil, domain.ErrConflict("relation %q already exists", req.Name.String())
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := r.insertColumns(ctx, id, req.Columns); err != nil {
		return nil, err
	}

	v, err := r.getView(ctx, tableSelect+` WHERE t.id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &v.TableEntity, nil
}

// CreateMaterializedView registers a materialized view in schema and returns
// it with its assigned identity.
func (r *CatalogRepo) CreateMaterializedView(ctx context.Context, schema domain.SchemaName, name string, info domain.MaterializedViewInfo) (*domain.MaterializedView, error) {
	if !info.Materialized {
		return nil, domain.ErrValidation("view %q must be materialized", name)
	}
	if err := (domain.CreateTableRequest{
		Name:    domain.TableName{Database: schema.Database, Schema: schema.Schema, Table: name},
		Kind:    domain.TableKindMaterializedView,
		Columns: info.Columns,
	}).Validate(); err != nil {
		return nil, err
	}
	ref, err := r.GetSchema(ctx, schema)
	if err != nil {
		return nil, err
	}

	collation, err := json.Marshal(info.Collation)
	if err != nil {
		return nil, fmt.Errorf("encode collation: %w", err)
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO catalog_tables (schema_id, name, kind, is_source, is_associated_mv, collation)
		VALUES (?, ?, ?, 0, 0, ?)`,
		ref.SchemaID, name, string(domain.TableKindMaterializedView), string(collation))
	if err != nil {
		if isConflict(mapDBError(err)) {
			return nil, domain.ErrConflict("relation %q already exists", schema.String()+"."+name)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := r.insertColumns(ctx, id, info.Columns); err != nil {
		return nil, err
	}
	return r.getView(ctx, tableSelect+` WHERE t.id = ?`, id)
}

// SetStreamPlan stores the serialized stream node of a materialized view.
func (r *CatalogRepo) SetStreamPlan(ctx context.Context, tableID int64, plan []byte) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE catalog_tables SET stream_plan = ? WHERE id = ? AND kind = ?`,
		plan, tableID, string(domain.TableKindMaterializedView))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("materialized view %d not found", tableID)
	}
	return nil
}

// DropTable removes a relation and its columns.
func (r *CatalogRepo) DropTable(ctx context.Context, name domain.TableName) error {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM catalog_tables WHERE id = (
			SELECT t.id FROM catalog_tables t
			JOIN catalog_schemas s ON s.id = t.schema_id
			JOIN catalog_databases d ON d.id = s.database_id
			WHERE d.name = ? AND s.name = ? AND t.name = ?)`,
		name.Database, name.Schema, name.Table)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("table %q not found", name.String())
	}
	return nil
}

func (r *CatalogRepo) getView(ctx context.Context, query string, args ...any) (*domain.MaterializedView, error) {
	v, err := scanView(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapDBError(err)
	}
	cols, err := r.loadColumns(ctx, v.ID())
	if err != nil {
		return nil, err
	}
	v.Columns = cols
	return v, nil
}

func (r *CatalogRepo) insertColumns(ctx context.Context, tableID int64, cols []domain.ColumnDesc) error {
	for i, c := range cols {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO catalog_columns (table_id, position, name, data_type, nullable)
			VALUES (?, ?, ?, ?, ?)`,
			tableID, i, c.Name, c.Type, boolToInt(c.Nullable)); err != nil {
			return fmt.Errorf("insert column %q: %w", c.Name, err)
		}
	}
	return nil
}

func (r *CatalogRepo) loadColumns(ctx context.Context, tableID int64) ([]domain.ColumnDesc, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT name, data_type, nullable FROM catalog_columns WHERE table_id = ? ORDER BY position`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var cols []domain.ColumnDesc
	for rows.Next() {
		var c domain.ColumnDesc
		var nullable int64
		if err := rows.Scan(&c.Name, &c.Type, &nullable); err != nil {
			return nil, err
		}
		c.Nullable = nullable != 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanView(row rowScanner) (*domain.MaterializedView, error) {
	var (
		v            domain.MaterializedView
		kind         string
		isSource     int64
		isAssociated int64
		collation    sql.NullString
		streamPlan   []byte
		createdAt    string
	)
	if err := row.Scan(
		&v.Ref.TableID, &v.Ref.DatabaseID, &v.Ref.SchemaID,
		&v.Name.Database, &v.Name.Schema, &v.Name.Table, &kind,
		&isSource, &isAssociated, &collation, &streamPlan, &createdAt,
	); err != nil {
		return nil, err
	}
	v.Kind = domain.TableKind(kind)
	v.IsSource = isSource != 0
	v.IsAssociatedMaterializedView = isAssociated != 0
	v.StreamPlan = streamPlan
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		v.CreatedAt = t
	}
	if collation.Valid && collation.String != "" {
		if err := json.Unmarshal([]byte(collation.String), &v.Collation); err != nil {
			return nil, fmt.Errorf("decode collation of %s: %w", v.Name.String(), err)
		}
	}
	return &v, nil
}

func isNotFound(err error) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf)
}

func isConflict(err error) bool {
	var c *domain.ConflictError
	return errors.As(err, &c)
}
