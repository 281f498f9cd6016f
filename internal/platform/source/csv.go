package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// CSVDir reads <sheet>.csv files from a directory.
type CSVDir struct {
	Dir string
}

func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{Dir: dir}
}

func (d *CSVDir) file(sheet string) string {
	return filepath.Join(d.Dir, sheet+".csv")
}

// Identity combines the modification time and size of every sheet file.
func (d *CSVDir) Identity() (string, error) {
	parts := make([]string, 0, len(dataset.Sheets))
	for _, sheet := range dataset.Sheets {
		info, err := os.Stat(d.file(sheet))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", &dataset.LoadError{Source: d.Dir, Sheet: sheet, Err: dataset.ErrSheetMissing}
			}
			return "", &dataset.LoadError{Source: d.Dir, Sheet: sheet, Err: err}
		}
		parts = append(parts, fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size()))
	}
	return d.Dir + "@" + strings.Join(parts, ","), nil
}

func (d *CSVDir) Load(ctx context.Context) (*dataset.Snapshot, error) {
	identity, err := d.Identity()
	if err != nil {
		return nil, err
	}
	rels := make(map[string]*dataset.Relation, len(dataset.Sheets))
	for _, sheet := range dataset.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := d.readSheet(sheet)
		if err != nil {
			return nil, &dataset.LoadError{Source: d.Dir, Sheet: sheet, Err: err}
		}
		rels[sheet] = rel
	}
	return dataset.NewSnapshot(identity, rels)
}

func (d *CSVDir) readSheet(sheet string) (*dataset.Relation, error) {
	f, err := os.Open(d.file(sheet))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("no header row")
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return buildRelation(sheet, header, records)
}

// WriteCSVDir writes a snapshot as one CSV file per relation.
func WriteCSVDir(dir string, snap *dataset.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, rel := range snap.Relations() {
		if err := writeCSV(filepath.Join(dir, rel.Name()+".csv"), rel); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, rel *dataset.Relation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	cols := rel.Columns()
	if err := w.Write(cols); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for i := 0; i < rel.Len(); i++ {
		for j, c := range cols {
			record[j] = ""
			if v := rel.Get(i, c); !v.IsNull() {
				record[j] = v.String()
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
