package aggregate

import (
	"fmt"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// Group is the flag rate within one value of a grouping column.
type Group struct {
	Label string `json:"label"`
	Proportion
}

// GroupRate computes Rate(flag) within each non-null value of group, in
// display order. Rows with a null group are left out.
func GroupRate(rel *dataset.Relation, group, flag string) ([]Group, error) {
	if err := Require(rel, group, flag); err != nil {
		return nil, err
	}
	type tally struct{ n, total int }
	tallies := map[string]*tally{}
	for i := 0; i < rel.Len(); i++ {
		g := rel.Get(i, group)
		if g.IsNull() {
			continue
		}
		t := tallies[g.String()]
		if t == nil {
			t = &tally{}
			tallies[g.String()] = t
		}
		t.total++
		if rel.Get(i, flag).Truthy() {
			t.n++
		}
	}
	out := make([]Group, 0, len(tallies))
	for _, l := range distinctOrdered(rel, group) {
		t := tallies[l]
		out = append(out, Group{Label: l, Proportion: proportion(t.n, t.total)})
	}
	return out, nil
}

// Subgroup is a named set of patients compared against the whole relation.
type Subgroup struct {
	Name string
	IDs  dataset.IDSet
}

// Metric names an outcome and its flag column at each timepoint.
type Metric struct {
	Name    string
	Columns []string
}

// StratifiedRequest describes a subgroup × metric × timepoint comparison.
// Outcome columns are joined onto Base from Outcomes by patient key; only
// patients present in both take part.
type StratifiedRequest struct {
	Base       *dataset.Relation
	Outcomes   *dataset.Relation
	AllLabel   string
	Subgroups  []Subgroup
	Metrics    []Metric
	Timepoints []string
}

// Comparison holds one rate per group, metric and timepoint.
type Comparison struct {
	Timepoints []string          `json:"timepoints"`
	Metrics    []string          `json:"metrics"`
	Groups     []ComparisonGroup `json:"groups"`
}

// ComparisonGroup carries the size of one group and its rates. Rates maps a
// metric name to percentages aligned with Comparison.Timepoints.
type ComparisonGroup struct {
	Name     string               `json:"name"`
	Rows     int                  `json:"rows"`
	Patients int                  `json:"patients"`
	Rates    map[string][]float64 `json:"rates"`
}

// Group returns the named group.
func (c *Comparison) Group(name string) (ComparisonGroup, bool) {
	for _, g := range c.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return ComparisonGroup{}, false
}

// Stratified runs the comparison described by req. The first group is the
// whole joined relation, labelled AllLabel (default "All patients"). Rates
// here are MeanRate: a patient with a null outcome at one timepoint is left
// out of that timepoint only. The KPI and per-group paths use Rate instead,
// which keeps null flags in the denominator.
func Stratified(req StratifiedRequest) (*Comparison, error) {
	var cols []string
	for _, m := range req.Metrics {
		if len(m.Columns) != len(req.Timepoints) {
			return nil, fmt.Errorf("metric %s: %d columns for %d timepoints", m.Name, len(m.Columns), len(req.Timepoints))
		}
		cols = append(cols, m.Columns...)
	}
	joined := req.Base.InnerJoin(req.Outcomes, cols...)
	if missing := joined.Missing(cols...); len(missing) > 0 {
		return nil, &MissingColumnError{Relation: req.Outcomes.Name(), Columns: missing}
	}

	all := req.AllLabel
	if all == "" {
		all = "All patients"
	}
	groups := append([]Subgroup{{Name: all}}, req.Subgroups...)

	cmp := &Comparison{Timepoints: req.Timepoints}
	for _, m := range req.Metrics {
		cmp.Metrics = append(cmp.Metrics, m.Name)
	}
	for _, sg := range groups {
		rel := joined
		if sg.IDs != nil {
			rel = joined.Restrict(sg.IDs)
		}
		g := ComparisonGroup{
			Name:     sg.Name,
			Rows:     rel.Len(),
			Patients: rel.PatientIDs().Len(),
			Rates:    make(map[string][]float64, len(req.Metrics)),
		}
		for _, m := range req.Metrics {
			rates := make([]float64, len(m.Columns))
			for i, col := range m.Columns {
				p, err := MeanRate(rel, col)
				if err != nil {
					return nil, err
				}
				rates[i] = p.Percent
			}
			g.Rates[m.Name] = rates
		}
		cmp.Groups = append(cmp.Groups, g)
	}
	return cmp, nil
}

// GroupTimepoints computes, for each non-null value of group, the rate of
// every metric at every timepoint. Groups come out in display order and are
// sized by row count.
func GroupTimepoints(rel *dataset.Relation, group string, metrics []Metric, timepoints []string) (*Comparison, error) {
	cols := []string{group}
	for _, m := range metrics {
		if len(m.Columns) != len(timepoints) {
			return nil, fmt.Errorf("metric %s: %d columns for %d timepoints", m.Name, len(m.Columns), len(timepoints))
		}
		cols = append(cols, m.Columns...)
	}
	if err := Require(rel, cols...); err != nil {
		return nil, err
	}

	cmp := &Comparison{Timepoints: timepoints}
	for _, m := range metrics {
		cmp.Metrics = append(cmp.Metrics, m.Name)
	}
	for _, label := range distinctOrdered(rel, group) {
		sub := rel.Where(Equals(group, label))
		g := ComparisonGroup{
			Name:     label,
			Rows:     sub.Len(),
			Patients: sub.PatientIDs().Len(),
			Rates:    make(map[string][]float64, len(metrics)),
		}
		for _, m := range metrics {
			rates := make([]float64, len(m.Columns))
			for i, col := range m.Columns {
				p, _ := Rate(sub, col)
				rates[i] = p.Percent
			}
			g.Rates[m.Name] = rates
		}
		cmp.Groups = append(cmp.Groups, g)
	}
	return cmp, nil
}
