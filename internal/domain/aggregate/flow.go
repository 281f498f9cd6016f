package aggregate

import (
	"sort"
	"strings"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// FlowGraph is a two-layer flow between the values of a source and a target
// column. Nodes holds the source labels followed by the target labels; links
// refer to node positions.
type FlowGraph struct {
	Nodes []string `json:"nodes"`
	Links []Link   `json:"links"`
}

type Link struct {
	Source int `json:"source"`
	Target int `json:"target"`
	Value  int `json:"value"`
}

// Flow counts rows per (source, target) pair. Rows with a null in either
// column are left out.
func Flow(rel *dataset.Relation, source, target string) (*FlowGraph, error) {
	if err := Require(rel, source, target); err != nil {
		return nil, err
	}
	kept := rel.Where(func(row dataset.Row) bool {
		return !row.Get(source).IsNull() && !row.Get(target).IsNull()
	})
	sources := distinctOrdered(kept, source)
	targets := distinctOrdered(kept, target)

	g := &FlowGraph{Nodes: append(append([]string{}, sources...), targets...)}
	counts := map[[2]int]int{}
	for i := 0; i < kept.Len(); i++ {
		s := indexOf(sources, kept.Get(i, source).String())
		t := len(sources) + indexOf(targets, kept.Get(i, target).String())
		counts[[2]int{s, t}]++
	}
	for s := range sources {
		for t := range targets {
			key := [2]int{s, len(sources) + t}
			if n := counts[key]; n > 0 {
				g.Links = append(g.Links, Link{Source: key[0], Target: key[1], Value: n})
			}
		}
	}
	return g, nil
}

// Marker is a biomarker column with its abnormality test.
type Marker struct {
	Name     string
	Column   string
	Abnormal func(float64) bool
}

// Slice is a named subset of rows.
type Slice struct {
	Name string
	Keep func(dataset.Row) bool
}

// ThresholdMatrix gives, for every slice, the percentage of its rows with an
// abnormal value of each marker. Markers whose column is absent are left out;
// when none is present the matrix is unavailable. An empty slice scores 0.
func ThresholdMatrix(rel *dataset.Relation, slices []Slice, markers []Marker) (*Table, error) {
	var present []Marker
	var missing []string
	for _, m := range markers {
		if rel.Has(m.Column) {
			present = append(present, m)
		} else {
			missing = append(missing, m.Column)
		}
	}
	if len(present) == 0 {
		return nil, &MissingColumnError{Relation: rel.Name(), Columns: missing}
	}

	t := &Table{RowKey: "slice", ColKey: "biomarker", Normalized: true}
	for _, m := range present {
		t.Cols = append(t.Cols, m.Name)
	}
	for _, s := range slices {
		sub := rel.Where(s.Keep)
		row := make([]float64, len(present))
		for j, m := range present {
			p, _ := Share(sub, Numeric(m.Column, m.Abnormal))
			row[j] = p.Percent
		}
		t.Rows = append(t.Rows, s.Name)
		t.Cells = append(t.Cells, row)
	}
	return t, nil
}

// PathCount is the number of rows sharing one path through a hierarchy.
type PathCount struct {
	Path  []string `json:"path"`
	Count int      `json:"count"`
}

// Hierarchy counts rows per combination of the levels' values, outermost
// level first. Rows with a null at any level are left out. Paths are ordered
// level by level in display order.
func Hierarchy(rel *dataset.Relation, levels ...string) ([]PathCount, error) {
	if err := Require(rel, levels...); err != nil {
		return nil, err
	}
	kept := rel.Where(func(row dataset.Row) bool {
		for _, l := range levels {
			if row.Get(l).IsNull() {
				return false
			}
		}
		return true
	})
	ranks := make([]map[string]int, len(levels))
	for i, l := range levels {
		ranks[i] = map[string]int{}
		for j, label := range distinctOrdered(kept, l) {
			ranks[i][label] = j
		}
	}

	counts := map[string]*PathCount{}
	for i := 0; i < kept.Len(); i++ {
		path := make([]string, len(levels))
		for j, l := range levels {
			path[j] = kept.Get(i, l).String()
		}
		key := strings.Join(path, "\x00")
		if pc := counts[key]; pc != nil {
			pc.Count++
			continue
		}
		counts[key] = &PathCount{Path: path, Count: 1}
	}
	out := make([]PathCount, 0, len(counts))
	for _, pc := range counts {
		out = append(out, *pc)
	}
	sort.Slice(out, func(a, b int) bool {
		for j := range levels {
			ra, rb := ranks[j][out[a].Path[j]], ranks[j][out[b].Path[j]]
			if ra != rb {
				return ra < rb
			}
		}
		return false
	})
	return out, nil
}
