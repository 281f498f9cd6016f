package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

func TestGCSCategory(t *testing.T) {
	tests := []struct {
		gcs  float64
		want string
	}{
		{15, "Normal"},
		{14, "Low-Risk"},
		{13, "Low-Risk"},
		{12.9, "High-Risk"},
		{3, "High-Risk"},
		{16, "Low-Risk"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GCSCategory(tt.gcs), "gcs=%v", tt.gcs)
	}
}

func TestAgeCategory(t *testing.T) {
	tests := []struct {
		age  float64
		want string
		ok   bool
	}{
		{0, "21-29", true},
		{29, "21-29", true},
		{29.5, "29-39", true},
		{39, "29-39", true},
		{60, "59-69", true},
		{89, "79-89", true},
		{95, "89+", true},
		{100, "89+", true},
		{101, "", false},
		{-1, "", false},
	}
	for _, tt := range tests {
		got, ok := AgeCategory(tt.age)
		assert.Equal(t, tt.ok, ok, "age=%v", tt.age)
		assert.Equal(t, tt.want, got, "age=%v", tt.age)
	}
}

func TestEmergencyReturnGroup(t *testing.T) {
	tests := []struct {
		days float64
		want string
		ok   bool
	}{
		{0, "<7 days", true},
		{7, "<7 days", true},
		{8, "8–30 days", true},
		{30, "8–30 days", true},
		{31, "31–90 days", true},
		{90, "31–90 days", true},
		{150, "90+ days", true},
		{180, "90+ days", true},
		{181, "", false},
		{-2, "", false},
	}
	for _, tt := range tests {
		got, ok := EmergencyReturnGroup(tt.days, 180)
		assert.Equal(t, tt.ok, ok, "days=%v", tt.days)
		assert.Equal(t, tt.want, got, "days=%v", tt.days)
	}
}

func TestHFTop3Score(t *testing.T) {
	assert.Equal(t, 3, HFTop3Score(2.0, 130, 0.05))
	assert.Equal(t, 0, HFTop3Score(1.9, 135, 0.04))
	assert.Equal(t, 1, HFTop3Score(1.0, 134.9, 0.01))
	assert.Equal(t, 2, HFTop3Score(5.0, 140, 0.5))
}

func TestComplicationBurden(t *testing.T) {
	assert.Equal(t, 0, ComplicationBurden(false, false, false))
	assert.Equal(t, 2, ComplicationBurden(true, false, true))
	assert.Equal(t, 3, ComplicationBurden(true, true, true))
}

func snapshot(t *testing.T, overrides map[string]*dataset.Relation) *dataset.Snapshot {
	t.Helper()
	rels := map[string]*dataset.Relation{}
	for _, sheet := range dataset.Sheets {
		rel, err := dataset.Empty(sheet, []string{dataset.PatientKey})
		require.NoError(t, err)
		rels[sheet] = rel
	}
	for k, v := range overrides {
		rels[k] = v
	}
	snap, err := dataset.NewSnapshot("test", rels)
	require.NoError(t, err)
	return snap
}

func relation(t *testing.T, name string, columns []string, records ...[]any) *dataset.Relation {
	t.Helper()
	rel, err := dataset.FromRecords(name, columns, records)
	require.NoError(t, err)
	return rel
}

func TestDerive(t *testing.T) {
	snap := snapshot(t, map[string]*dataset.Relation{
		dataset.SheetDemography: relation(t, dataset.SheetDemography,
			[]string{dataset.PatientKey, dataset.ColAge},
			[]any{1, 45}, []any{2, nil}, []any{3, 120},
		),
		dataset.SheetResponsiveness: relation(t, dataset.SheetResponsiveness,
			[]string{dataset.PatientKey, dataset.ColGCS},
			[]any{1, 15}, []any{2, 9}, []any{3, nil},
		),
		dataset.SheetLabs: relation(t, dataset.SheetLabs,
			[]string{dataset.PatientKey, dataset.ColLactate, dataset.ColSodium, dataset.ColTroponin},
			[]any{1, 2.0, 130, 0.05}, []any{2, 1.0, nil, 0.01},
		),
		dataset.SheetHospitalization: relation(t, dataset.SheetHospitalization,
			[]string{dataset.PatientKey, dataset.ColTimeToED},
			[]any{1, 5}, []any{2, 200}, []any{3, nil},
		),
		dataset.SheetCardiac: relation(t, dataset.SheetCardiac,
			[]string{dataset.PatientKey, dataset.ColMI, dataset.ColCHF, dataset.ColPVD},
			[]any{1, 1, 1, 0}, []any{2, 0, 0, 0},
		),
	})

	out, warnings, err := Derive(snap)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "39-49", out.Demography.Get(0, dataset.ColAgeCat).String())
	assert.True(t, out.Demography.Get(1, dataset.ColAgeCat).IsNull())
	assert.True(t, out.Demography.Get(2, dataset.ColAgeCat).IsNull())

	assert.Equal(t, "Normal", out.Responsiveness.Get(0, dataset.ColGCSCategory).String())
	assert.Equal(t, "High-Risk", out.Responsiveness.Get(1, dataset.ColGCSCategory).String())
	assert.True(t, out.Responsiveness.Get(2, dataset.ColGCSCategory).IsNull())

	score, ok := out.Labs.Get(0, dataset.ColTop3Score).Float()
	require.True(t, ok)
	assert.Equal(t, 3.0, score)
	assert.True(t, out.Labs.Get(1, dataset.ColTop3Score).IsNull(), "a null biomarker leaves the score null")

	assert.Equal(t, "<7 days", out.Hospitalization.Get(0, dataset.ColEmergencyReturnGrp).String())
	assert.Equal(t, "90+ days", out.Hospitalization.Get(1, dataset.ColEmergencyReturnGrp).String())

	burden, ok := out.Cardiac.Get(0, dataset.ColCompBurden).Float()
	require.True(t, ok)
	assert.Equal(t, 2.0, burden)

	assert.False(t, snap.Demography.Has(dataset.ColAgeCat), "input snapshot is untouched")
}

func TestDerive_Idempotent(t *testing.T) {
	snap := snapshot(t, map[string]*dataset.Relation{
		dataset.SheetResponsiveness: relation(t, dataset.SheetResponsiveness,
			[]string{dataset.PatientKey, dataset.ColGCS},
			[]any{1, 15}, []any{2, 13},
		),
	})

	once, _, err := Derive(snap)
	require.NoError(t, err)
	twice, _, err := Derive(once)
	require.NoError(t, err)

	assert.Equal(t, once.Responsiveness.Columns(), twice.Responsiveness.Columns())
	for i := 0; i < once.Responsiveness.Len(); i++ {
		assert.True(t, once.Responsiveness.Get(i, dataset.ColGCSCategory).Equal(twice.Responsiveness.Get(i, dataset.ColGCSCategory)))
	}
}

func TestDerive_MissingSourceWarns(t *testing.T) {
	snap := snapshot(t, map[string]*dataset.Relation{
		dataset.SheetLabs: relation(t, dataset.SheetLabs,
			[]string{dataset.PatientKey, dataset.ColLactate, dataset.ColSodium},
			[]any{1, 2.5, 130},
		),
	})

	out, warnings, err := Derive(snap)
	require.NoError(t, err)
	assert.False(t, out.Labs.Has(dataset.ColTop3Score))

	var labs *MissingColumnWarning
	for i := range warnings {
		if warnings[i].Relation == dataset.SheetLabs {
			labs = &warnings[i]
		}
	}
	require.NotNil(t, labs)
	assert.Equal(t, dataset.ColTop3Score, labs.Feature)
	assert.Equal(t, []string{dataset.ColTroponin}, labs.Missing)
}

func TestDerive_KeepsExistingColumn(t *testing.T) {
	snap := snapshot(t, map[string]*dataset.Relation{
		dataset.SheetCardiac: relation(t, dataset.SheetCardiac,
			[]string{dataset.PatientKey, dataset.ColCompBurden},
			[]any{1, 3},
		),
	})
	out, warnings, err := Derive(snap)
	require.NoError(t, err)

	for _, w := range warnings {
		assert.NotEqual(t, dataset.SheetCardiac, w.Relation)
	}
	v, _ := out.Cardiac.Get(0, dataset.ColCompBurden).Float()
	assert.Equal(t, 3.0, v)
}
