// Package aggregate computes the statistics behind the dashboard views. All
// functions are pure over their input relations and allocate their results.
// A relation lacking a required column yields an error matching
// ErrUnavailable; an empty relation yields zero-valued results.
package aggregate

import (
	"sort"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// Proportion is Count out of Total as a percentage. Percent is 0 when Total
// is 0.
type Proportion struct {
	Count   int     `json:"count"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

func proportion(count, total int) Proportion {
	p := Proportion{Count: count, Total: total}
	if total > 0 {
		p.Percent = float64(count) / float64(total) * 100
	}
	return p
}

// Rate is the share of rows whose flag is set. A null flag counts as unset
// and stays in the denominator.
func Rate(rel *dataset.Relation, flag string) (Proportion, error) {
	if err := Require(rel, flag); err != nil {
		return Proportion{}, err
	}
	n := 0
	for i := 0; i < rel.Len(); i++ {
		if rel.Get(i, flag).Truthy() {
			n++
		}
	}
	return proportion(n, rel.Len()), nil
}

// MeanRate is the share of rows whose flag is set among rows where the flag
// is present. Null flags leave the denominator; with none present the rate
// is 0.
func MeanRate(rel *dataset.Relation, flag string) (Proportion, error) {
	if err := Require(rel, flag); err != nil {
		return Proportion{}, err
	}
	n, present := 0, 0
	for i := 0; i < rel.Len(); i++ {
		v := rel.Get(i, flag)
		if v.IsNull() {
			continue
		}
		present++
		if v.Truthy() {
			n++
		}
	}
	return proportion(n, present), nil
}

// Share is the share of rows matching keep. The columns keep reads must be
// listed in cols so their absence is reported rather than silently read as
// null.
func Share(rel *dataset.Relation, keep func(dataset.Row) bool, cols ...string) (Proportion, error) {
	if err := Require(rel, cols...); err != nil {
		return Proportion{}, err
	}
	n := 0
	for i := 0; i < rel.Len(); i++ {
		if keep(rel.Row(i)) {
			n++
		}
	}
	return proportion(n, rel.Len()), nil
}

// Equals matches rows whose col renders as label.
func Equals(col, label string) func(dataset.Row) bool {
	return func(row dataset.Row) bool {
		v := row.Get(col)
		return !v.IsNull() && v.String() == label
	}
}

// Numeric matches rows whose numeric col satisfies test.
func Numeric(col string, test func(float64) bool) func(dataset.Row) bool {
	return func(row dataset.Row) bool {
		v, ok := row.Float(col)
		return ok && test(v)
	}
}

// In matches rows whose col renders as one of labels.
func In(col string, labels ...string) func(dataset.Row) bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return func(row dataset.Row) bool {
		v := row.Get(col)
		return !v.IsNull() && set[v.String()]
	}
}

// CountWhere counts the rows matching keep.
func CountWhere(rel *dataset.Relation, keep func(dataset.Row) bool, cols ...string) (int, error) {
	p, err := Share(rel, keep, cols...)
	return p.Count, err
}

// CategoryCount is one category with its count and share of the counted
// total.
type CategoryCount struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Distribution counts the rows per non-null value of col, in display order.
func Distribution(rel *dataset.Relation, col string) ([]CategoryCount, error) {
	if err := Require(rel, col); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	total := 0
	for i := 0; i < rel.Len(); i++ {
		v := rel.Get(i, col)
		if v.IsNull() {
			continue
		}
		counts[v.String()]++
		total++
	}
	out := make([]CategoryCount, 0, len(counts))
	for _, l := range distinctOrdered(rel, col) {
		out = append(out, CategoryCount{Label: l, Count: counts[l], Percent: proportion(counts[l], total).Percent})
	}
	return out, nil
}

// Mode returns the most frequent non-null value of col. Ties go to the value
// first in display order. ok is false when col holds no values.
func Mode(rel *dataset.Relation, col string) (label string, ok bool, err error) {
	dist, err := Distribution(rel, col)
	if err != nil || len(dist) == 0 {
		return "", false, err
	}
	best := dist[0]
	for _, c := range dist[1:] {
		if c.Count > best.Count {
			best = c
		}
	}
	return best.Label, true, nil
}

// Stat is a scalar summary. Value is nil when no row contributed.
type Stat struct {
	Value *float64 `json:"value"`
	N     int      `json:"n"`
}

func numbers(rel *dataset.Relation, col string) []float64 {
	var out []float64
	for i := 0; i < rel.Len(); i++ {
		if v, ok := rel.Get(i, col).Float(); ok {
			out = append(out, v)
		}
	}
	return out
}

// Median of the numeric values of col.
func Median(rel *dataset.Relation, col string) (Stat, error) {
	if err := Require(rel, col); err != nil {
		return Stat{}, err
	}
	vals := numbers(rel, col)
	if len(vals) == 0 {
		return Stat{}, nil
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	m := vals[mid]
	if len(vals)%2 == 0 {
		m = (vals[mid-1] + vals[mid]) / 2
	}
	return Stat{Value: &m, N: len(vals)}, nil
}

// TopNByUniquePatients ranks the values of col by the number of distinct
// patients they occur for, not by row count. Ties are broken by label. n <= 0
// returns every value. Percent is relative to the patients in rel.
func TopNByUniquePatients(rel *dataset.Relation, col string, n int) ([]CategoryCount, error) {
	if err := Require(rel, col); err != nil {
		return nil, err
	}
	patients := map[string]dataset.IDSet{}
	for i := 0; i < rel.Len(); i++ {
		v := rel.Get(i, col)
		if v.IsNull() {
			continue
		}
		l := v.String()
		if patients[l] == nil {
			patients[l] = dataset.IDSet{}
		}
		patients[l][rel.ID(i)] = struct{}{}
	}
	total := rel.PatientIDs().Len()
	out := make([]CategoryCount, 0, len(patients))
	for l, ids := range patients {
		out = append(out, CategoryCount{Label: l, Count: ids.Len(), Percent: proportion(ids.Len(), total).Percent})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Labels returns the labels of counts in order.
func Labels(counts []CategoryCount) []string {
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Label
	}
	return out
}
