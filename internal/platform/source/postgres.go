package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Postgres reads one table per sheet, named exactly as the sheet, from a
// schema. Access is read-only.
type Postgres struct {
	q      querier
	schema string
	label  string
}

func NewPostgres(pool *pgxpool.Pool, schema string) *Postgres {
	label := "postgres"
	if cfg := pool.Config(); cfg != nil && cfg.ConnConfig != nil {
		label = fmt.Sprintf("postgres://%s:%d/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database)
	}
	return newPostgres(pool, schema, label)
}

func newPostgres(q querier, schema, label string) *Postgres {
	if schema == "" {
		schema = "public"
	}
	return &Postgres{q: q, schema: schema, label: label}
}

// Identity is the server and schema. The tables are treated as fixed for
// the life of the process.
func (p *Postgres) Identity() (string, error) {
	return p.label + "#" + p.schema, nil
}

func (p *Postgres) Load(ctx context.Context) (*dataset.Snapshot, error) {
	identity, _ := p.Identity()
	rels := make(map[string]*dataset.Relation, len(dataset.Sheets))
	for _, sheet := range dataset.Sheets {
		rel, err := p.readTable(ctx, sheet)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
				err = dataset.ErrSheetMissing
			}
			return nil, &dataset.LoadError{Source: identity, Sheet: sheet, Err: err}
		}
		rels[sheet] = rel
	}
	return dataset.NewSnapshot(identity, rels)
}

func (p *Postgres) readTable(ctx context.Context, sheet string) (*dataset.Relation, error) {
	sql := "SELECT * FROM " + pgx.Identifier{p.schema, sheet}.Sanitize()
	rows, err := p.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var out [][]dataset.Value
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]dataset.Value, len(vals))
		for i, v := range vals {
			row[i] = pgValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dataset.NewRelation(sheet, cols, out)
}

// pgValue converts a decoded column value. Numerics become numbers and
// timestamps their RFC 3339 text; anything else goes through FromAny.
func pgValue(v interface{}) dataset.Value {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return dataset.NullValue()
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return dataset.NullValue()
		}
		return dataset.Num(f.Float64)
	case time.Time:
		return dataset.Str(x.UTC().Format(time.RFC3339))
	default:
		return dataset.FromAny(v)
	}
}
