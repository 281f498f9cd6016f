package source

import (
	"context"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// XLSX reads the seven sheets of a workbook.
type XLSX struct {
	Path string
}

func NewXLSX(path string) *XLSX {
	return &XLSX{Path: path}
}

func (x *XLSX) Identity() (string, error) {
	info, err := os.Stat(x.Path)
	if err != nil {
		return "", &dataset.LoadError{Source: x.Path, Err: err}
	}
	return fileIdentity(x.Path, info), nil
}

func (x *XLSX) Load(ctx context.Context) (*dataset.Snapshot, error) {
	identity, err := x.Identity()
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(x.Path)
	if err != nil {
		return nil, &dataset.LoadError{Source: x.Path, Err: err}
	}
	defer f.Close()

	present := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		present[name] = true
	}

	rels := make(map[string]*dataset.Relation, len(dataset.Sheets))
	for _, sheet := range dataset.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !present[sheet] {
			return nil, &dataset.LoadError{Source: x.Path, Sheet: sheet, Err: dataset.ErrSheetMissing}
		}
		// Stored values, not the number-formatted display text.
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, &dataset.LoadError{Source: x.Path, Sheet: sheet, Err: err}
		}
		if len(rows) == 0 {
			return nil, &dataset.LoadError{Source: x.Path, Sheet: sheet, Err: fmt.Errorf("no header row")}
		}
		rel, err := buildRelation(sheet, rows[0], rows[1:])
		if err != nil {
			return nil, &dataset.LoadError{Source: x.Path, Sheet: sheet, Err: err}
		}
		rels[sheet] = rel
	}
	return dataset.NewSnapshot(identity, rels)
}

// WriteXLSX writes a snapshot as a workbook with one sheet per relation.
func WriteXLSX(path string, snap *dataset.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, rel := range snap.Relations() {
		sheet := rel.Name()
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}

		sw, err := f.NewStreamWriter(sheet)
		if err != nil {
			return fmt.Errorf("stream sheet %s: %w", sheet, err)
		}
		cols := rel.Columns()
		header := make([]interface{}, len(cols))
		for j, c := range cols {
			header[j] = c
		}
		if err := sw.SetRow("A1", header); err != nil {
			return fmt.Errorf("write header %s: %w", sheet, err)
		}
		for r := 0; r < rel.Len(); r++ {
			cells := make([]interface{}, len(cols))
			for j, c := range cols {
				cells[j] = cellValue(rel.Get(r, c))
			}
			axis, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := sw.SetRow(axis, cells); err != nil {
				return fmt.Errorf("write %s row %d: %w", sheet, r, err)
			}
		}
		if err := sw.Flush(); err != nil {
			return fmt.Errorf("flush sheet %s: %w", sheet, err)
		}
	}
	return f.SaveAs(path)
}

func cellValue(v dataset.Value) interface{} {
	if f, ok := v.Float(); ok {
		return f
	}
	if v.IsNull() {
		return nil
	}
	return v.String()
}
