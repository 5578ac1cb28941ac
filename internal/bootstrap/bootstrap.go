// Package bootstrap applies a YAML catalog file at server start: schemas,
// tables, sources, associated materialized view pairs, and worker nodes.
package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"streamddl/internal/ddl"
	"streamddl/internal/domain"
)

// File is the bootstrap document.
type File struct {
	Schemas []SchemaSpec                       `yaml:"schemas"`
	Tables  []TableSpec                        `yaml:"tables"`
	Nodes   []domain.RegisterWorkerNodeRequest `yaml:"nodes"`
}

// SchemaSpec names a schema to create.
type SchemaSpec struct {
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
}

// TableSpec describes one relation. Materialized tables are created as an
// associated view plus its generated source.
type TableSpec struct {
	Name         string              `yaml:"name"`
	Source       bool                `yaml:"source"`
	Materialized bool                `yaml:"materialized"`
	Columns      []domain.ColumnDesc `yaml:"columns"`
}

// Catalog is the catalog surface bootstrap writes through.
type Catalog interface {
	EnsureSchema(ctx context.Context, schema domain.SchemaName) (*domain.SchemaRef, error)
	Lookup(ctx context.Context, name domain.TableName) (*domain.TableEntity, error)
	RegisterTable(ctx context.Context, req domain.CreateTableRequest) (*domain.TableEntity, error)
	RegisterAssociatedPair(ctx context.Context, view domain.TableName, columns []domain.ColumnDesc) (*domain.TableEntity, *domain.TableEntity, error)
}

// NodeRegistrar adds worker nodes.
type NodeRegistrar interface {
	Register(ctx context.Context, req domain.RegisterWorkerNodeRequest) (*domain.WorkerNode, error)
}

// Summary counts what Apply did.
type Summary struct {
	Created int
	Skipped int
}

// Load reads and validates the bootstrap file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied bootstrap file
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a bootstrap document. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks names, column types, and flag combinations.
func (f *File) Validate() error {
	for i, s := range f.Schemas {
		if err := ddl.ValidateIdentifier(s.Database); err != nil {
			return fmt.Errorf("schemas[%d].database: %w", i, err)
		}
		if err := ddl.ValidateIdentifier(s.Schema); err != nil {
			return fmt.Errorf("schemas[%d].schema: %w", i, err)
		}
	}
	for i, t := range f.Tables {
		if _, err := parseName(t.Name); err != nil {
			return fmt.Errorf("tables[%d]: %w", i, err)
		}
		if t.Source && t.Materialized {
			return fmt.Errorf("tables[%d]: %s cannot be both a source and materialized", i, t.Name)
		}
		for _, c := range t.Columns {
			if err := ddl.ValidateIdentifier(c.Name); err != nil {
				return fmt.Errorf("tables[%d] column %q: %w", i, c.Name, err)
			}
			if err := ddl.ValidateColumnType(c.Type); err != nil {
				return fmt.Errorf("tables[%d] column %q: %w", i, c.Name, err)
			}
		}
	}
	for i, n := range f.Nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("nodes[%d]: %w", i, err)
		}
	}
	return nil
}

// Apply creates everything in f that does not exist yet. Unqualified table
// names resolve against def. Applying the same file twice is a no-op.
func Apply(ctx context.Context, f *File, catalog Catalog, nodes NodeRegistrar, def domain.SchemaName, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sum Summary

	for _, s := range f.Schemas {
		if _, err := catalog.EnsureSchema(ctx, domain.SchemaName{Database: s.Database, Schema: s.Schema}); err != nil {
			return sum, fmt.Errorf("ensure schema %s.%s: %w", s.Database, s.Schema, err)
		}
	}

	for _, t := range f.Tables {
		name, err := parseName(t.Name)
		if err != nil {
			return sum, err
		}
		name = name.Qualify(def)

		_, err = catalog.Lookup(ctx, name)
		if err == nil {
			sum.Skipped++
			continue
		}
		var undefined *domain.UndefinedEntityError
		if !errors.As(err, &undefined) {
			return sum, fmt.Errorf("lookup %s: %w", name.String(), err)
		}
		if _, err := catalog.EnsureSchema(ctx, name.SchemaName()); err != nil {
			return sum, fmt.Errorf("ensure schema %s: %w", name.SchemaName().String(), err)
		}

		if t.Materialized {
			_, _, err = catalog.RegisterAssociatedPair(ctx, name, t.Columns)
		} else {
			kind := domain.TableKindTable
			if t.Source {
				kind = domain.TableKindSource
			}
			_, err = catalog.RegisterTable(ctx, domain.CreateTableRequest{Name: name, Kind: kind, Columns: t.Columns, IsSource: t.Source})
		}
		if err != nil {
			return sum, fmt.Errorf("create %s: %w", name.String(), err)
		}
		logger.Info("bootstrap relation created", "table", name.String(), "source", t.Source, "materialized", t.Materialized)
		sum.Created++
	}

	for _, n := range f.Nodes {
		if _, err := nodes.Register(ctx, n); err != nil {
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				sum.Skipped++
				continue
			}
			return sum, fmt.Errorf("register node %s: %w", n.Name, err)
		}
		logger.Info("bootstrap worker node registered", "node", n.Name, "endpoint", n.Endpoint)
		sum.Created++
	}
	return sum, nil
}

func parseName(s string) (domain.TableName, error) {
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if err := ddl.ValidateIdentifier(p); err != nil {
			return domain.TableName{}, fmt.Errorf("table name %q: %w", s, err)
		}
	}
	switch len(parts) {
	case 1:
		return domain.TableName{Table: parts[0]}, nil
	case 2:
		return domain.TableName{Schema: parts[0], Table: parts[1]}, nil
	case 3:
		return domain.TableName{Database: parts[0], Schema: parts[1], Table: parts[2]}, nil
	default:
		return domain.TableName{}, fmt.Errorf("table name %q has too many parts", s)
	}
}
