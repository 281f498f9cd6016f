package aggregate

import (
	"sort"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// distinctOrdered returns the distinct non-null labels of col in display
// order: the column's ordinal order when it has one, numbers ascending, then
// text lexically.
func distinctOrdered(rel *dataset.Relation, col string) []string {
	return orderLabels(col, rel.Distinct(col))
}

func orderLabels(col string, vals []dataset.Value) []string {
	rank := map[string]int{}
	for i, l := range dataset.Ordinal(col) {
		rank[l] = i
	}
	sorted := make([]dataset.Value, len(vals))
	copy(sorted, vals)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, oki := rank[sorted[i].String()]
		rj, okj := rank[sorted[j].String()]
		switch {
		case oki && okj:
			return ri < rj
		case oki != okj:
			return oki
		}
		return dataset.Less(sorted[i], sorted[j])
	})
	out := make([]string, 0, len(sorted))
	seen := map[string]bool{}
	for _, v := range sorted {
		l := v.String()
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
