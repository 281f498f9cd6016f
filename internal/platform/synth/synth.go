// Package synth generates a synthetic seven-sheet heart-failure dataset with
// the same headers and value vocabularies as the clinical workbook. It is used
// for demos and smoke tests; the numbers carry no clinical meaning.
package synth

import (
	"fmt"

	"github.com/valyala/fastrand"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// Options control the generator. The same non-zero Seed and Patients always
// produce the same dataset; a zero Seed draws a random one.
type Options struct {
	Patients int
	Seed     uint32
}

const firstPatient = 700000

var (
	bmiCategories = []string{"Underweight", "Normal", "Overweight", "Obese"}
	occupations   = []string{dataset.UrbanResident, "farmer", "Officer", "worker", "Others"}
	wards         = []string{dataset.WardCardiology, "GeneralWard", dataset.WardICU, "Others"}
	drugs         = []string{
		"Furosemide", "Spironolactone", "Digoxin", "Atorvastatin", "Aspirin",
		"Clopidogrel", "Metoprolol", "Isosorbide", "Enalapril", "Warfarin",
		"Torasemide", "Nitroglycerin", "Heparin", "Amiodarone",
	}
)

type generator struct {
	rng fastrand.RNG
}

// between returns a uniform float in [lo, hi).
func (g *generator) between(lo, hi float64) float64 {
	return lo + (hi-lo)*float64(g.rng.Uint32n(1<<20))/float64(1<<20)
}

// chance is true with probability p.
func (g *generator) chance(p float64) bool {
	return g.between(0, 1) < p
}

func (g *generator) pick(options []string) string {
	return options[g.rng.Uint32n(uint32(len(options)))]
}

func (g *generator) intn(lo, hi int) int {
	return lo + int(g.rng.Uint32n(uint32(hi-lo+1)))
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func round(f float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(f*p+0.5)) / p
}

type table struct {
	sheet   string
	columns []string
	records [][]any
}

// Generate builds the dataset.
func Generate(opts Options) (*dataset.Snapshot, error) {
	if opts.Patients <= 0 {
		return nil, fmt.Errorf("patients must be positive, got %d", opts.Patients)
	}
	g := &generator{}
	g.rng.Seed(opts.Seed)

	demog := table{sheet: dataset.SheetDemography, columns: []string{
		dataset.PatientKey, dataset.ColAge, dataset.ColGender, dataset.ColBMICat, dataset.ColOccupation,
	}}
	hos := table{sheet: dataset.SheetHospitalization, columns: []string{
		dataset.PatientKey, dataset.ColWard, dataset.ColAdmissionWay, dataset.ColDischargeDay, dataset.ColOutcome,
		dataset.ColDeath28d, dataset.ColReadmit28d, dataset.ColDeath3m, dataset.ColReadmit3m,
		dataset.ColDeath6m, dataset.ColReadmit6m, dataset.ColEDReturn6m, dataset.ColTimeToED,
	}}
	cardiac := table{sheet: dataset.SheetCardiac, columns: []string{
		dataset.PatientKey, dataset.ColNYHA, dataset.ColKillip, dataset.ColCHF, dataset.ColMI, dataset.ColPVD,
	}}
	labs := table{sheet: dataset.SheetLabs, columns: []string{
		dataset.PatientKey, dataset.ColLactate, dataset.ColSodium, dataset.ColTroponin,
	}}
	history := table{sheet: dataset.SheetHistory, columns: []string{dataset.PatientKey, dataset.ColDiabetes}}
	resp := table{sheet: dataset.SheetResponsiveness, columns: []string{dataset.PatientKey, dataset.ColGCS}}
	presc := table{sheet: dataset.SheetPrescriptions, columns: []string{dataset.PatientKey, dataset.ColDrugName}}

	for i := 0; i < opts.Patients; i++ {
		id := firstPatient + i

		age := g.intn(22, 99)
		gender := dataset.GenderFemale
		if g.chance(0.42) {
			gender = dataset.GenderMale
		}
		demog.records = append(demog.records, []any{id, age, gender, g.pick(bmiCategories), g.pick(occupations)})

		nyha := g.intn(1, 4)
		killip := g.intn(1, 4)
		chf := g.chance(0.35 + 0.1*float64(nyha-1))
		mi := g.chance(0.15)
		pvd := g.chance(0.08)
		cardiac.records = append(cardiac.records, []any{id, nyha, killip, flag(chf), flag(mi), flag(pvd)})

		lactate := round(g.between(0.6, 4.5), 2)
		sodium := round(g.between(126, 147), 1)
		troponin := round(g.between(0, 0.12), 3)
		if g.chance(0.05) {
			labs.records = append(labs.records, []any{id, nil, sodium, troponin})
		} else {
			labs.records = append(labs.records, []any{id, lactate, sodium, troponin})
		}

		gcs := 15
		if g.chance(0.12) {
			gcs = g.intn(3, 14)
		}
		resp.records = append(resp.records, []any{id, gcs})

		history.records = append(history.records, []any{id, flag(g.chance(0.23))})

		// Event risk rises with severity.
		risk := 0.01 + 0.015*float64(nyha-1) + 0.015*float64(killip-1)
		if gcs < 13 {
			risk += 0.2
		}
		if lactate >= 2 && sodium < 135 && troponin > 0.04 {
			risk += 0.05
		}
		dead := g.chance(risk / 2)
		d28 := dead || g.chance(risk/3)
		d3m := d28 || g.chance(risk/3)
		d6m := d3m || g.chance(risk/3)
		r28 := !d28 && g.chance(0.06)
		r3m := r28 || (!d3m && g.chance(0.18))
		r6m := r3m || (!d6m && g.chance(0.15))
		ed := g.chance(0.23)
		var timeToED any
		if ed {
			timeToED = g.intn(1, 180)
		}
		outcome := dataset.OutcomeAlive
		if dead {
			outcome = dataset.OutcomeDead
		}
		way := dataset.WayNonEmergency
		if g.chance(0.58) {
			way = dataset.WayEmergency
		}
		hos.records = append(hos.records, []any{
			id, g.pick(wards), way, g.intn(1, 40), outcome,
			flag(d28), flag(r28), flag(d3m), flag(r3m), flag(d6m), flag(r6m), flag(ed), timeToED,
		})

		for n := g.intn(1, 5); n > 0; n-- {
			presc.records = append(presc.records, []any{id, g.pick(drugs)})
		}
	}

	rels := make(map[string]*dataset.Relation, len(dataset.Sheets))
	for _, t := range []table{demog, hos, cardiac, labs, history, resp, presc} {
		rel, err := dataset.FromRecords(t.sheet, t.columns, t.records)
		if err != nil {
			return nil, err
		}
		rels[t.sheet] = rel
	}
	return dataset.NewSnapshot(fmt.Sprintf("synth:%d:%d", opts.Seed, opts.Patients), rels)
}
