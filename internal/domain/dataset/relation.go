package dataset

import (
	"fmt"
	"sort"
)

// Relation is an immutable named table keyed by PatientKey. Operations that
// narrow or extend a relation return a new one; row storage may be shared
// between the two since rows are never written after construction.
type Relation struct {
	name    string
	columns []string
	index   map[string]int
	key     int
	rows    [][]Value
}

// NewRelation builds a relation. Short rows are padded with nulls; rows wider
// than the header are rejected, as are duplicate column names and a header
// without PatientKey.
func NewRelation(name string, columns []string, rows [][]Value) (*Relation, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("relation %s: duplicate column %q", name, c)
		}
		index[c] = i
	}
	key, ok := index[PatientKey]
	if !ok {
		return nil, fmt.Errorf("relation %s: missing key column %q", name, PatientKey)
	}
	out := make([][]Value, len(rows))
	for i, row := range rows {
		if len(row) > len(columns) {
			return nil, fmt.Errorf("relation %s: row %d has %d cells, header has %d", name, i, len(row), len(columns))
		}
		if len(row) < len(columns) {
			padded := make([]Value, len(columns))
			copy(padded, row)
			row = padded
		}
		out[i] = row
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Relation{name: name, columns: cols, index: index, key: key, rows: out}, nil
}

// FromRecords builds a relation from loosely typed records, converting each
// cell with FromAny.
func FromRecords(name string, columns []string, records [][]any) (*Relation, error) {
	rows := make([][]Value, len(records))
	for i, rec := range records {
		row := make([]Value, len(rec))
		for j, cell := range rec {
			row[j] = FromAny(cell)
		}
		rows[i] = row
	}
	return NewRelation(name, columns, rows)
}

// Empty returns a relation with the given header and no rows.
func Empty(name string, columns []string) (*Relation, error) {
	return NewRelation(name, columns, nil)
}

func (r *Relation) derive(rows [][]Value) *Relation {
	return &Relation{name: r.name, columns: r.columns, index: r.index, key: r.key, rows: rows}
}

func (r *Relation) Name() string { return r.name }
func (r *Relation) Len() int { return len(r.rows) }

// Columns returns a copy of the header.
func (r *Relation) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Has reports whether col is present.
func (r *Relation) Has(col string) bool {
	_, ok := r.index[col]
	return ok
}

// Missing returns the subset of cols absent from the relation, in order.
func (r *Relation) Missing(cols ...string) []string {
	var missing []string
	for _, c := range cols {
		if !r.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Get returns the cell at row i for col, or null when the column is absent.
func (r *Relation) Get(i int, col string) Value {
	j, ok := r.index[col]
	if !ok {
		return Value{}
	}
	return r.rows[i][j]
}

// ID returns the patient key of row i.
func (r *Relation) ID(i int) string {
	return r.rows[i][r.key].String()
}

// Row returns a read-only view of row i.
func (r *Relation) Row(i int) Row { return Row{rel: r, i: i} }

// Column returns a copy of the values of col.
func (r *Relation) Column(col string) ([]Value, bool) {
	j, ok := r.index[col]
	if !ok {
		return nil, false
	}
	out := make([]Value, len(r.rows))
	for i, row := range r.rows {
		out[i] = row[j]
	}
	return out, true
}

// PatientIDs returns the distinct keys present in the relation.
func (r *Relation) PatientIDs() IDSet {
	ids := make(IDSet, len(r.rows))
	for i := range r.rows {
		if id := r.ID(i); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// WithColumn returns a copy of the relation with an extra column. It refuses
// to replace an existing column.
func (r *Relation) WithColumn(col string, values []Value) (*Relation, error) {
	if r.Has(col) {
		return nil, fmt.Errorf("relation %s: column %q already exists", r.name, col)
	}
	if len(values) != len(r.rows) {
		return nil, fmt.Errorf("relation %s: column %q has %d values for %d rows", r.name, col, len(values), len(r.rows))
	}
	columns := append(r.Columns(), col)
	rows := make([][]Value, len(r.rows))
	for i, row := range r.rows {
		next := make([]Value, len(row)+1)
		copy(next, row)
		next[len(row)] = values[i]
		rows[i] = next
	}
	return NewRelation(r.name, columns, rows)
}

// Where keeps the rows for which keep returns true.
func (r *Relation) Where(keep func(Row) bool) *Relation {
	rows := make([][]Value, 0, len(r.rows))
	for i, row := range r.rows {
		if keep(Row{rel: r, i: i}) {
			rows = append(rows, row)
		}
	}
	return r.derive(rows)
}

// Restrict keeps the rows whose patient key is in ids.
func (r *Relation) Restrict(ids IDSet) *Relation {
	return r.Where(func(row Row) bool { return ids.Has(row.ID()) })
}

// LeftJoin appends the named columns of right to every row of r, matching on
// PatientKey. A left row matching several right rows is repeated once per
// match; unmatched rows get nulls. Columns r already has, and columns right
// does not have, are skipped.
func (r *Relation) LeftJoin(right *Relation, cols ...string) *Relation {
	return r.join(right, cols, true)
}

// InnerJoin is LeftJoin without the unmatched left rows.
func (r *Relation) InnerJoin(right *Relation, cols ...string) *Relation {
	return r.join(right, cols, false)
}

func (r *Relation) join(right *Relation, cols []string, keepUnmatched bool) *Relation {
	var take []int
	columns := r.Columns()
	for _, c := range cols {
		if c == PatientKey || r.Has(c) || !right.Has(c) {
			continue
		}
		take = append(take, right.index[c])
		columns = append(columns, c)
	}

	byID := make(map[string][]int, right.Len())
	for i := range right.rows {
		id := right.ID(i)
		byID[id] = append(byID[id], i)
	}

	rows := make([][]Value, 0, len(r.rows))
	for i, row := range r.rows {
		matches := byID[r.ID(i)]
		if len(matches) == 0 {
			if !keepUnmatched {
				continue
			}
			next := make([]Value, len(columns))
			copy(next, row)
			rows = append(rows, next)
			continue
		}
		for _, m := range matches {
			next := make([]Value, len(columns))
			copy(next, row)
			for k, j := range take {
				next[len(row)+k] = right.rows[m][j]
			}
			rows = append(rows, next)
		}
	}
	// The header was validated when r was built and joined names are unique.
	out, _ := NewRelation(r.name, columns, rows)
	return out
}

// Distinct returns the non-null values of col in ascending order. Values are
// keyed by their rendering, as the count maps in aggregate are, so the number
// 1 and the text "1" are one value; the first one seen is returned.
func (r *Relation) Distinct(col string) []Value {
	j, ok := r.index[col]
	if !ok {
		return nil
	}
	seen := map[string]Value{}
	for _, row := range r.rows {
		v := row[j]
		if v.IsNull() {
			continue
		}
		if _, ok := seen[v.String()]; !ok {
			seen[v.String()] = v
		}
	}
	out := make([]Value, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool { return Less(out[a], out[b]) })
	return out
}

// Row is a read-only cursor over one row of a relation.
type Row struct {
	rel *Relation
	i   int
}

func (r Row) Get(col string) Value { return r.rel.Get(r.i, col) }
func (r Row) ID() string { return r.rel.ID(r.i) }

// Float is shorthand for Get(col).Float().
func (r Row) Float(col string) (float64, bool) { return r.rel.Get(r.i, col).Float() }
