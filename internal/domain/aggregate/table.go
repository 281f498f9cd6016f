package aggregate

import (
	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// Table is a two-dimensional count or percentage matrix. Cells is indexed
// [row][col] in the order of Rows and Cols.
type Table struct {
	RowKey     string      `json:"row_key"`
	ColKey     string      `json:"col_key"`
	Rows       []string    `json:"rows"`
	Cols       []string    `json:"cols"`
	Cells      [][]float64 `json:"cells"`
	Normalized bool        `json:"normalized"`
}

// At returns the cell for a row and column label.
func (t *Table) At(row, col string) (float64, bool) {
	ri, ci := indexOf(t.Rows, row), indexOf(t.Cols, col)
	if ri < 0 || ci < 0 {
		return 0, false
	}
	return t.Cells[ri][ci], true
}

// ColumnSum totals one column.
func (t *Table) ColumnSum(col string) float64 {
	ci := indexOf(t.Cols, col)
	if ci < 0 {
		return 0
	}
	var sum float64
	for _, row := range t.Cells {
		sum += row[ci]
	}
	return sum
}

func indexOf(labels []string, l string) int {
	for i, x := range labels {
		if x == l {
			return i
		}
	}
	return -1
}

// CrossTab counts rows per (rowCol, colCol) pair. Rows with a null in either
// column are left out. With normalize set, every column is scaled to sum to
// 100.
func CrossTab(rel *dataset.Relation, rowCol, colCol string, normalize bool) (*Table, error) {
	if err := Require(rel, rowCol, colCol); err != nil {
		return nil, err
	}
	kept := rel.Where(func(row dataset.Row) bool {
		return !row.Get(rowCol).IsNull() && !row.Get(colCol).IsNull()
	})
	t := &Table{
		RowKey:     rowCol,
		ColKey:     colCol,
		Rows:       distinctOrdered(kept, rowCol),
		Cols:       distinctOrdered(kept, colCol),
		Normalized: normalize,
	}
	rowIdx := make(map[string]int, len(t.Rows))
	for i, l := range t.Rows {
		rowIdx[l] = i
	}
	colIdx := make(map[string]int, len(t.Cols))
	for i, l := range t.Cols {
		colIdx[l] = i
	}
	t.Cells = make([][]float64, len(t.Rows))
	for i := range t.Cells {
		t.Cells[i] = make([]float64, len(t.Cols))
	}
	for i := 0; i < kept.Len(); i++ {
		r := rowIdx[kept.Get(i, rowCol).String()]
		c := colIdx[kept.Get(i, colCol).String()]
		t.Cells[r][c]++
	}
	if normalize {
		for c := range t.Cols {
			var sum float64
			for r := range t.Rows {
				sum += t.Cells[r][c]
			}
			if sum == 0 {
				continue
			}
			for r := range t.Rows {
				t.Cells[r][c] = t.Cells[r][c] / sum * 100
			}
		}
	}
	return t, nil
}
