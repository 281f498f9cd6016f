package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// importsTable records every sheet written by Importer.
const importsTable = "_imports"

// SheetImport is one row of the _imports history.
type SheetImport struct {
	Identity   string    `json:"identity"`
	Sheet      string    `json:"sheet"`
	Rows       int       `json:"rows"`
	ImportedAt time.Time `json:"imported_at"`
}

// Importer copies a workbook snapshot into one table per sheet so the
// postgres source can serve it.
type Importer struct {
	pool *pgxpool.Pool
}

func NewImporter(pool *pgxpool.Pool) *Importer {
	return &Importer{pool: pool}
}

// EnsureSchema creates the target schema and the _imports table if they do
// not exist.
func (im *Importer) EnsureSchema(ctx context.Context, schema string) error {
	query := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s (
    identity TEXT NOT NULL,
    sheet TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    imported_at TIMESTAMPTZ DEFAULT NOW()
)`, pgx.Identifier{schema}.Sanitize(), pgx.Identifier{schema, importsTable}.Sanitize())

	if _, err := im.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("prepare schema %s: %w", schema, err)
	}
	return nil
}

// Import replaces every sheet table in schema with the snapshot's rows.
// Each sheet is written in its own transaction. Returns the sheets written
// before any failure.
func (im *Importer) Import(ctx context.Context, schema string, snap *dataset.Snapshot) ([]SheetImport, error) {
	if err := im.EnsureSchema(ctx, schema); err != nil {
		return nil, err
	}

	var done []SheetImport
	for _, rel := range snap.Relations() {
		n, err := im.importSheet(ctx, schema, snap.Identity, rel)
		if err != nil {
			return done, fmt.Errorf("import sheet %s: %w", rel.Name(), err)
		}
		done = append(done, SheetImport{
			Identity:   snap.Identity,
			Sheet:      rel.Name(),
			Rows:       n,
			ImportedAt: time.Now().UTC(),
		})
	}
	return done, nil
}

func (im *Importer) importSheet(ctx context.Context, schema, identity string, rel *dataset.Relation) (int, error) {
	tx, err := im.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	table := pgx.Identifier{schema, rel.Name()}
	types := columnTypes(rel)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table.Sanitize()); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.Exec(ctx, tableDDL(table, rel.Columns(), types)); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	n, err := tx.CopyFrom(ctx, table, rel.Columns(), pgx.CopyFromRows(copyRows(rel, types)))
	if err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (identity, sheet, row_count) VALUES ($1, $2, $3)", pgx.Identifier{schema, importsTable}.Sanitize()),
		identity, rel.Name(), n,
	); err != nil {
		return 0, fmt.Errorf("record import: %w", err)
	}

	return int(n), tx.Commit(ctx)
}

// History returns past imports into schema, newest first.
func (im *Importer) History(ctx context.Context, schema string) ([]SheetImport, error) {
	query := fmt.Sprintf(`SELECT identity, sheet, row_count, imported_at FROM %s ORDER BY imported_at DESC, sheet`,
		pgx.Identifier{schema, importsTable}.Sanitize())
	rows, err := im.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query import history in %s: %w", schema, err)
	}
	defer rows.Close()

	var out []SheetImport
	for rows.Next() {
		var s SheetImport
		if err := rows.Scan(&s.Identity, &s.Sheet, &s.Rows, &s.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan import history: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import history: %w", err)
	}
	return out, nil
}

// columnTypes picks DOUBLE PRECISION for columns whose non-null values are
// all numbers and TEXT otherwise. An all-null column is TEXT.
func columnTypes(rel *dataset.Relation) []string {
	cols := rel.Columns()
	types := make([]string, len(cols))
	for j, col := range cols {
		numeric, seen := true, false
		for i := 0; i < rel.Len(); i++ {
			v := rel.Get(i, col)
			if v.IsNull() {
				continue
			}
			seen = true
			if !v.IsNumber() {
				numeric = false
				break
			}
		}
		if numeric && seen {
			types[j] = "DOUBLE PRECISION"
		} else {
			types[j] = "TEXT"
		}
	}
	return types
}

func tableDDL(table pgx.Identifier, cols, types []string) string {
	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = pgx.Identifier{col}.Sanitize() + " " + types[i]
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", table.Sanitize(), strings.Join(defs, ", "))
}

func copyRows(rel *dataset.Relation, types []string) [][]any {
	cols := rel.Columns()
	out := make([][]any, rel.Len())
	for i := range out {
		row := make([]any, len(cols))
		for j, col := range cols {
			v := rel.Get(i, col)
			switch {
			case v.IsNull():
				row[j] = nil
			case types[j] == "DOUBLE PRECISION":
				row[j], _ = v.Float()
			default:
				row[j] = v.String()
			}
		}
		out[i] = row
	}
	return out
}
