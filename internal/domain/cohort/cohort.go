// Package cohort selects the patients matching a filter and narrows every
// relation of a snapshot to them.
package cohort

import (
	"math"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// Cohort is a snapshot restricted to the patients matching Criteria. The
// embedded snapshot's relations only reference patients in IDs.
type Cohort struct {
	*dataset.Snapshot
	Criteria Criteria
	IDs      dataset.IDSet
	// Total is the number of patients in the unfiltered demography.
	Total int
}

// Size is the number of patients in the cohort.
func (c *Cohort) Size() int { return c.IDs.Len() }

// Apply filters the snapshot. Demography is narrowed by age and gender; the
// surviving patients narrow Hospitalization_Discharge, which is then
// narrowed by ward. A ward filter works on discharge rows, so the patient set
// is taken again from what remains. Every relation is then restricted to that
// final set. A filter whose column is absent is skipped.
//
// An empty result is a valid cohort with empty relations.
func Apply(snap *dataset.Snapshot, c Criteria) *Cohort {
	demog := snap.Demography.Where(func(row dataset.Row) bool {
		if c.Age != nil && snap.Demography.Has(dataset.ColAge) {
			age, ok := row.Float(dataset.ColAge)
			if !ok || !c.Age.Contains(age) {
				return false
			}
		}
		if c.Genders.Restricted() && snap.Demography.Has(dataset.ColGender) {
			g := row.Get(dataset.ColGender)
			if g.IsNull() || !c.Genders.Allows(g.String()) {
				return false
			}
		}
		return true
	})
	ids := demog.PatientIDs()

	hos := snap.Hospitalization.Restrict(ids)
	if c.Wards.Restricted() && hos.Has(dataset.ColWard) {
		hos = hos.Where(func(row dataset.Row) bool {
			w := row.Get(dataset.ColWard)
			return !w.IsNull() && c.Wards.Allows(w.String())
		})
		ids = hos.PatientIDs()
	}

	filtered := &dataset.Snapshot{
		Identity:        snap.Identity,
		LoadedAt:        snap.LoadedAt,
		Demography:      demog.Restrict(ids),
		Hospitalization: hos,
		Cardiac:         snap.Cardiac.Restrict(ids),
		Labs:            snap.Labs.Restrict(ids),
		History:         snap.History.Restrict(ids),
		Responsiveness:  snap.Responsiveness.Restrict(ids),
		Prescriptions:   snap.Prescriptions.Restrict(ids),
	}
	return &Cohort{
		Snapshot: filtered,
		Criteria: c,
		IDs:      ids,
		Total:    snap.Demography.PatientIDs().Len(),
	}
}

// Options describes the filter choices a snapshot offers: the age bounds
// and the distinct gender and ward values.
type Options struct {
	AgeMin  *int     `json:"age_min,omitempty"`
	AgeMax  *int     `json:"age_max,omitempty"`
	Genders []string `json:"genders"`
	Wards   []string `json:"wards"`
}

// OptionsFor reads the filter choices from the unfiltered snapshot.
func OptionsFor(snap *dataset.Snapshot) Options {
	opts := Options{
		Genders: labels(snap.Demography.Distinct(dataset.ColGender)),
		Wards:   labels(snap.Hospitalization.Distinct(dataset.ColWard)),
	}
	lo, hi, ok := bounds(snap.Demography, dataset.ColAge)
	if ok {
		min, max := int(math.Floor(lo)), int(math.Ceil(hi))
		opts.AgeMin, opts.AgeMax = &min, &max
	}
	return opts
}

func labels(vals []dataset.Value) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.String())
	}
	return out
}

func bounds(rel *dataset.Relation, col string) (lo, hi float64, ok bool) {
	for i := 0; i < rel.Len(); i++ {
		v, isNum := rel.Get(i, col).Float()
		if !isNum {
			continue
		}
		if !ok || v < lo {
			lo = v
		}
		if !ok || v > hi {
			hi = v
		}
		ok = true
	}
	return lo, hi, ok
}
