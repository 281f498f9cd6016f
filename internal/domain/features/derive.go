package features

import (
	"fmt"
	"strings"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// MissingColumnWarning reports a derivation that was skipped because one of
// its source columns is absent. It is not fatal: views that need the derived
// column become unavailable, everything else keeps working.
type MissingColumnWarning struct {
	Relation string   `json:"relation"`
	Feature  string   `json:"feature"`
	Missing  []string `json:"missing"`
}

func (w MissingColumnWarning) String() string {
	return fmt.Sprintf("%s.%s not derived: missing %s", w.Relation, w.Feature, strings.Join(w.Missing, ", "))
}

type derivation struct {
	sheet   string
	target  string
	sources []string
	compute func(rel *dataset.Relation) []dataset.Value
}

var derivations = []derivation{
	{
		sheet:   dataset.SheetResponsiveness,
		target:  dataset.ColGCSCategory,
		sources: []string{dataset.ColGCS},
		compute: func(rel *dataset.Relation) []dataset.Value {
			return mapFloat(rel, dataset.ColGCS, func(gcs float64) (string, bool) {
				return GCSCategory(gcs), true
			})
		},
	},
	{
		sheet:   dataset.SheetDemography,
		target:  dataset.ColAgeCat,
		sources: []string{dataset.ColAge},
		compute: func(rel *dataset.Relation) []dataset.Value {
			return mapFloat(rel, dataset.ColAge, AgeCategory)
		},
	},
	{
		sheet:   dataset.SheetHospitalization,
		target:  dataset.ColEmergencyReturnGrp,
		sources: []string{dataset.ColTimeToED},
		compute: func(rel *dataset.Relation) []dataset.Value {
			max, ok := columnMax(rel, dataset.ColTimeToED)
			if !ok {
				return make([]dataset.Value, rel.Len())
			}
			return mapFloat(rel, dataset.ColTimeToED, func(days float64) (string, bool) {
				return EmergencyReturnGroup(days, max)
			})
		},
	},
	{
		sheet:   dataset.SheetLabs,
		target:  dataset.ColTop3Score,
		sources: []string{dataset.ColLactate, dataset.ColSodium, dataset.ColTroponin},
		compute: func(rel *dataset.Relation) []dataset.Value {
			out := make([]dataset.Value, rel.Len())
			for i := range out {
				row := rel.Row(i)
				l, ok1 := row.Float(dataset.ColLactate)
				s, ok2 := row.Float(dataset.ColSodium)
				t, ok3 := row.Float(dataset.ColTroponin)
				if ok1 && ok2 && ok3 {
					out[i] = dataset.Num(float64(HFTop3Score(l, s, t)))
				}
			}
			return out
		},
	},
	{
		sheet:   dataset.SheetCardiac,
		target:  dataset.ColCompBurden,
		sources: []string{dataset.ColMI, dataset.ColCHF, dataset.ColPVD},
		compute: func(rel *dataset.Relation) []dataset.Value {
			out := make([]dataset.Value, rel.Len())
			for i := range out {
				mi := rel.Get(i, dataset.ColMI)
				chf := rel.Get(i, dataset.ColCHF)
				pvd := rel.Get(i, dataset.ColPVD)
				if mi.IsNull() || chf.IsNull() || pvd.IsNull() {
					continue
				}
				out[i] = dataset.Num(float64(ComplicationBurden(mi.Truthy(), chf.Truthy(), pvd.Truthy())))
			}
			return out
		},
	},
}

// Derive returns a snapshot in which every derived column is present unless
// one of its sources is missing. Columns that already exist are left as they
// are, so deriving twice is a no-op.
func Derive(snap *dataset.Snapshot) (*dataset.Snapshot, []MissingColumnWarning, error) {
	var warnings []MissingColumnWarning
	out := snap
	for _, d := range derivations {
		rel := out.Relation(d.sheet)
		if rel.Has(d.target) {
			continue
		}
		if missing := rel.Missing(d.sources...); len(missing) > 0 {
			warnings = append(warnings, MissingColumnWarning{Relation: d.sheet, Feature: d.target, Missing: missing})
			continue
		}
		next, err := rel.WithColumn(d.target, d.compute(rel))
		if err != nil {
			return nil, nil, fmt.Errorf("derive %s.%s: %w", d.sheet, d.target, err)
		}
		if out, err = out.With(d.sheet, next); err != nil {
			return nil, nil, err
		}
	}
	return out, warnings, nil
}

func mapFloat(rel *dataset.Relation, col string, f func(float64) (string, bool)) []dataset.Value {
	out := make([]dataset.Value, rel.Len())
	for i := range out {
		v, ok := rel.Get(i, col).Float()
		if !ok {
			continue
		}
		if label, ok := f(v); ok {
			out[i] = dataset.Str(label)
		}
	}
	return out
}

func columnMax(rel *dataset.Relation, col string) (float64, bool) {
	var max float64
	found := false
	for i := 0; i < rel.Len(); i++ {
		v, ok := rel.Get(i, col).Float()
		if !ok {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max, found
}
