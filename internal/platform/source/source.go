// Package source loads the seven dataset relations from a workbook, a
// directory of CSV files or a Postgres schema.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// Loader reads a raw snapshot. Identity names the version of the data the
// next Load would read; it changes whenever the underlying data does.
type Loader interface {
	Identity() (string, error)
	Load(ctx context.Context) (*dataset.Snapshot, error)
}

// Kinds accepted by Open.
const (
	KindXLSX     = "xlsx"
	KindCSV      = "csv"
	KindPostgres = "postgres"
)

// Config selects and parameterizes a loader.
type Config struct {
	Kind   string
	Path   string
	Schema string
	Pool   *pgxpool.Pool
}

// Open returns the loader for cfg. An empty Kind is inferred from Path: a
// directory reads CSV files, anything else a workbook.
func Open(cfg Config) (Loader, error) {
	kind, err := ResolveKind(cfg.Kind, cfg.Path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindXLSX:
		return NewXLSX(cfg.Path), nil
	case KindCSV:
		return NewCSVDir(cfg.Path), nil
	case KindPostgres:
		if cfg.Pool == nil {
			return nil, fmt.Errorf("postgres source requires a connection pool")
		}
		return NewPostgres(cfg.Pool, cfg.Schema), nil
	}
	return nil, fmt.Errorf("unknown dataset source %q", kind)
}

// ResolveKind normalizes kind, inferring it from path when empty.
func ResolveKind(kind, path string) (string, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case KindXLSX, KindCSV, KindPostgres:
		return kind, nil
	case "":
	default:
		return "", fmt.Errorf("unknown dataset source %q", kind)
	}
	if path == "" {
		return "", fmt.Errorf("dataset path is required")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return KindCSV, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return KindCSV, nil
	default:
		return KindXLSX, nil
	}
}

// fileIdentity renders path, modification time and size.
func fileIdentity(path string, info os.FileInfo) string {
	return fmt.Sprintf("%s@%d:%d", path, info.ModTime().UnixNano(), info.Size())
}

// buildRelation turns a header and raw text rows into a relation. Trailing
// empty header cells are dropped; ragged rows are padded or cut to the
// header width.
func buildRelation(sheet string, header []string, records [][]string) (*dataset.Relation, error) {
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(h)
	}
	rows := make([][]dataset.Value, 0, len(records))
	for _, rec := range records {
		if blank(rec) {
			continue
		}
		row := make([]dataset.Value, len(cols))
		for j := 0; j < len(cols) && j < len(rec); j++ {
			row[j] = dataset.Parse(rec[j])
		}
		rows = append(rows, row)
	}
	return dataset.NewRelation(sheet, cols, rows)
}

func blank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
