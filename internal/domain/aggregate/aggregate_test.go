package aggregate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

func relation(t *testing.T, name string, columns []string, records ...[]any) *dataset.Relation {
	t.Helper()
	rel, err := dataset.FromRecords(name, columns, records)
	require.NoError(t, err)
	return rel
}

func hosDis(t *testing.T) *dataset.Relation {
	return relation(t, dataset.SheetHospitalization,
		[]string{dataset.PatientKey, dataset.ColWard, dataset.ColAdmissionWay, dataset.ColDeath28d, dataset.ColReadmit28d, dataset.ColDischargeDay},
		[]any{1, "Cardiology", "Emergency", 1, 0, 3},
		[]any{2, "Cardiology", "NonEmergency", 0, 1, 10},
		[]any{3, "ICU", "Emergency", 1, 0, 20},
		[]any{4, "ICU", "Emergency", 0, 0, 8},
		[]any{5, "GeneralWard", "NonEmergency", 0, nil, nil},
	)
}

func TestRate(t *testing.T) {
	p, err := Rate(hosDis(t), dataset.ColDeath28d)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, 5, p.Total)
	assert.InDelta(t, 40.0, p.Percent, 1e-9)

	p, err = Rate(hosDis(t), dataset.ColReadmit28d)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, p.Percent, 1e-9, "null flags stay in the denominator")
}

func TestRate_ZeroRows(t *testing.T) {
	empty, err := dataset.Empty(dataset.SheetHospitalization, []string{dataset.PatientKey, dataset.ColDeath28d})
	require.NoError(t, err)

	p, err := Rate(empty, dataset.ColDeath28d)
	require.NoError(t, err)
	assert.Equal(t, Proportion{}, p)
}

func TestRate_MissingColumn(t *testing.T) {
	_, err := Rate(hosDis(t), dataset.ColDeath6m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	var mce *MissingColumnError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, []string{dataset.ColDeath6m}, mce.Columns)
	assert.Equal(t, dataset.SheetHospitalization, mce.Relation)
}

func TestShare(t *testing.T) {
	p, err := Share(hosDis(t), Equals(dataset.ColWard, dataset.WardCardiology), dataset.ColWard)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)

	n, err := CountWhere(hosDis(t), Numeric(dataset.ColDischargeDay, func(v float64) bool { return v > 7 }), dataset.ColDischargeDay)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CountWhere(hosDis(t), In(dataset.ColWard, "ICU", "GeneralWard"), dataset.ColWard)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = Share(hosDis(t), Equals("nope", "x"), "nope")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTopNByUniquePatients(t *testing.T) {
	presc := relation(t, dataset.SheetPrescriptions, []string{dataset.PatientKey, dataset.ColDrugName},
		[]any{"P", "X"},
		[]any{"P", "X"},
		[]any{"P", "X"},
		[]any{"Q", "Y"},
	)
	top, err := TopNByUniquePatients(presc, dataset.ColDrugName, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, CategoryCount{Label: "X", Count: 1, Percent: 50}, top[0])
	assert.Equal(t, CategoryCount{Label: "Y", Count: 1, Percent: 50}, top[1])
}

func TestTopNByUniquePatients_RanksAndTruncates(t *testing.T) {
	presc := relation(t, dataset.SheetPrescriptions, []string{dataset.PatientKey, dataset.ColDrugName},
		[]any{1, "Furosemide"},
		[]any{2, "Furosemide"},
		[]any{3, "Furosemide"},
		[]any{1, "Digoxin"},
		[]any{1, "Digoxin"},
		[]any{1, "Digoxin"},
		[]any{1, "Digoxin"},
		[]any{2, "Spironolactone"},
		[]any{3, "Spironolactone"},
		[]any{3, nil},
	)
	top, err := TopNByUniquePatients(presc, dataset.ColDrugName, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Furosemide", "Spironolactone"}, Labels(top))
	assert.Equal(t, 3, top[0].Count)
}

func TestCrossTab(t *testing.T) {
	tab, err := CrossTab(hosDis(t), dataset.ColAdmissionWay, dataset.ColWard, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Emergency", "NonEmergency"}, tab.Rows)
	assert.Equal(t, []string{"Cardiology", "GeneralWard", "ICU"}, tab.Cols)

	v, ok := tab.At("Emergency", "ICU")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, _ = tab.At("NonEmergency", "ICU")
	assert.Equal(t, 0.0, v)
}

func TestCrossTab_NormalizedColumnsSumTo100(t *testing.T) {
	tab, err := CrossTab(hosDis(t), dataset.ColAdmissionWay, dataset.ColWard, true)
	require.NoError(t, err)
	for _, c := range tab.Cols {
		assert.InDelta(t, 100.0, tab.ColumnSum(c), 1e-9, c)
	}
	v, _ := tab.At("Emergency", "Cardiology")
	assert.InDelta(t, 50.0, v, 1e-9)
}

func TestCrossTab_SkipsNullKeysAndOrdersOrdinals(t *testing.T) {
	rel := relation(t, dataset.SheetResponsiveness, []string{dataset.PatientKey, dataset.ColGCSCategory, dataset.ColAdmissionWay},
		[]any{1, "Low-Risk", "Emergency"},
		[]any{2, "High-Risk", "Emergency"},
		[]any{3, "Normal", nil},
		[]any{4, "Normal", "NonEmergency"},
	)
	tab, err := CrossTab(rel, dataset.ColGCSCategory, dataset.ColAdmissionWay, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Normal", "Low-Risk", "High-Risk"}, tab.Rows)

	var total float64
	for _, c := range tab.Cols {
		total += tab.ColumnSum(c)
	}
	assert.Equal(t, 3.0, total)
}

func TestGroupRate(t *testing.T) {
	rel := relation(t, dataset.SheetCardiac, []string{dataset.PatientKey, dataset.ColNYHA, dataset.ColDeath28d},
		[]any{1, 4, 1},
		[]any{2, 2, 0},
		[]any{3, 4, 0},
		[]any{4, 10, 1},
		[]any{5, nil, 1},
	)
	groups, err := GroupRate(rel, dataset.ColNYHA, dataset.ColDeath28d)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, "2", groups[0].Label, "numeric groups sort numerically")
	assert.Equal(t, "4", groups[1].Label)
	assert.Equal(t, "10", groups[2].Label)
	assert.InDelta(t, 50.0, groups[1].Percent, 1e-9)
	assert.Equal(t, 2, groups[1].Total)
}

func TestStratified(t *testing.T) {
	labs := relation(t, dataset.SheetLabs, []string{dataset.PatientKey, dataset.ColTop3Score},
		[]any{1, 3}, []any{2, 0}, []any{3, 3}, []any{4, 0}, []any{9, 1},
	)
	outcomes := relation(t, dataset.SheetHospitalization,
		[]string{dataset.PatientKey, dataset.ColDeath28d, dataset.ColDeath3m},
		[]any{1, 1, 1}, []any{2, 0, 0}, []any{3, 0, 1}, []any{4, 0, 0},
	)

	cmp, err := Stratified(StratifiedRequest{
		Base:     labs,
		Outcomes: outcomes,
		Subgroups: []Subgroup{
			{Name: "Score 3", IDs: dataset.NewIDSet("1", "3")},
			{Name: "Nobody", IDs: dataset.NewIDSet()},
		},
		Metrics:    []Metric{{Name: "mortality", Columns: []string{dataset.ColDeath28d, dataset.ColDeath3m}}},
		Timepoints: []string{"28d", "3m"},
	})
	require.NoError(t, err)
	require.Len(t, cmp.Groups, 3)

	all, ok := cmp.Group("All patients")
	require.True(t, ok)
	assert.Equal(t, 4, all.Rows, "patient 9 has no outcomes and is dropped by the inner join")
	assert.Equal(t, []float64{25, 50}, all.Rates["mortality"])

	s3, _ := cmp.Group("Score 3")
	assert.Equal(t, 2, s3.Patients)
	assert.Equal(t, []float64{50, 100}, s3.Rates["mortality"])

	nobody, _ := cmp.Group("Nobody")
	assert.Equal(t, 0, nobody.Rows)
	assert.Equal(t, []float64{0, 0}, nobody.Rates["mortality"])
}

func TestStratified_NullOutcomesLeaveDenominator(t *testing.T) {
	labs := relation(t, dataset.SheetLabs, []string{dataset.PatientKey}, []any{1}, []any{2}, []any{3}, []any{4})
	outcomes := relation(t, dataset.SheetHospitalization,
		[]string{dataset.PatientKey, dataset.ColDeath28d, dataset.ColDeath3m},
		[]any{1, 1, nil}, []any{2, 0, 1}, []any{3, 0, nil}, []any{4, 1, nil},
	)

	cmp, err := Stratified(StratifiedRequest{
		Base:       labs,
		Outcomes:   outcomes,
		Metrics:    []Metric{{Name: "mortality", Columns: []string{dataset.ColDeath28d, dataset.ColDeath3m}}},
		Timepoints: []string{"28d", "3m"},
	})
	require.NoError(t, err)
	all, _ := cmp.Group("All patients")
	assert.Equal(t, 4, all.Rows)
	assert.Equal(t, []float64{50, 100}, all.Rates["mortality"])

	// Rate keeps the nulls as unset.
	p, err := Rate(outcomes, dataset.ColDeath3m)
	require.NoError(t, err)
	assert.Equal(t, 25.0, p.Percent)
}

func TestMeanRate_AllNull(t *testing.T) {
	rel := relation(t, dataset.SheetHospitalization, []string{dataset.PatientKey, dataset.ColDeath6m}, []any{1, nil})
	p, err := MeanRate(rel, dataset.ColDeath6m)
	require.NoError(t, err)
	assert.Equal(t, Proportion{Count: 0, Total: 0, Percent: 0}, p)
}

func TestStratified_MissingOutcome(t *testing.T) {
	labs := relation(t, dataset.SheetLabs, []string{dataset.PatientKey}, []any{1})
	outcomes := relation(t, dataset.SheetHospitalization, []string{dataset.PatientKey, dataset.ColDeath28d}, []any{1, 1})

	_, err := Stratified(StratifiedRequest{
		Base:       labs,
		Outcomes:   outcomes,
		Metrics:    []Metric{{Name: "mortality", Columns: []string{dataset.ColDeath28d, dataset.ColDeath6m}}},
		Timepoints: []string{"28d", "6m"},
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDistributionAndMode(t *testing.T) {
	rel := relation(t, dataset.SheetDemography, []string{dataset.PatientKey, dataset.ColAgeCat},
		[]any{1, "69-79"}, []any{2, "29-39"}, []any{3, "69-79"}, []any{4, nil},
	)
	dist, err := Distribution(rel, dataset.ColAgeCat)
	require.NoError(t, err)
	assert.Equal(t, []string{"29-39", "69-79"}, Labels(dist))
	assert.Equal(t, 2, dist[1].Count)

	mode, ok, err := Mode(rel, dataset.ColAgeCat)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "69-79", mode)

	empty, _ := dataset.Empty(dataset.SheetDemography, []string{dataset.PatientKey, dataset.ColAgeCat})
	_, ok, err = Mode(empty, dataset.ColAgeCat)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMedian(t *testing.T) {
	m, err := Median(hosDis(t), dataset.ColDischargeDay)
	require.NoError(t, err)
	require.NotNil(t, m.Value)
	assert.Equal(t, 9.0, *m.Value)
	assert.Equal(t, 4, m.N)

	empty, _ := dataset.Empty(dataset.SheetHospitalization, []string{dataset.PatientKey, dataset.ColDischargeDay})
	m, err = Median(empty, dataset.ColDischargeDay)
	require.NoError(t, err)
	assert.Nil(t, m.Value)
}

func TestBin(t *testing.T) {
	counts, err := Bin(hosDis(t), dataset.ColDischargeDay, []float64{0, 7, 14, 21, 100}, []string{"0-7d", "8-14d", "15-21d", ">21d"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"0-7d", "8-14d", "15-21d", ">21d"}, Labels(counts))
	assert.Equal(t, 1, counts[0].Count)
	assert.Equal(t, 2, counts[1].Count)
	assert.Equal(t, 1, counts[2].Count)
	assert.Equal(t, 0, counts[3].Count)

	_, err = Bin(hosDis(t), dataset.ColDischargeDay, []float64{0, 1}, []string{"a", "b"}, false)
	assert.Error(t, err)
}

func TestHist(t *testing.T) {
	h, err := Hist(hosDis(t), dataset.ColDischargeDay, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 11.5, 20}, h.Edges)
	assert.Equal(t, []int{3, 1}, h.Counts)

	single := relation(t, dataset.SheetHospitalization, []string{dataset.PatientKey, dataset.ColDischargeDay}, []any{1, 5})
	h, err = Hist(single, dataset.ColDischargeDay, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, h.Counts)
}

func TestFlow(t *testing.T) {
	g, err := Flow(hosDis(t), dataset.ColAdmissionWay, dataset.ColWard)
	require.NoError(t, err)
	assert.Equal(t, []string{"Emergency", "NonEmergency", "Cardiology", "GeneralWard", "ICU"}, g.Nodes)

	var total int
	for _, l := range g.Links {
		total += l.Value
		assert.Less(t, l.Source, 2)
		assert.GreaterOrEqual(t, l.Target, 2)
	}
	assert.Equal(t, 5, total)
	assert.Contains(t, g.Links, Link{Source: 0, Target: 4, Value: 2})
}

func TestThresholdMatrix(t *testing.T) {
	rel := relation(t, dataset.SheetLabs,
		[]string{dataset.PatientKey, dataset.ColLactate, dataset.ColSodium, dataset.ColWard},
		[]any{1, 3.0, 130, "ICU"},
		[]any{2, 1.0, 140, "ICU"},
		[]any{3, 2.5, 140, "Cardiology"},
	)
	tab, err := ThresholdMatrix(rel,
		[]Slice{
			{Name: "ICU", Keep: Equals(dataset.ColWard, "ICU")},
			{Name: "Deaths", Keep: Equals(dataset.ColOutcome, "Dead")},
		},
		[]Marker{
			{Name: "Lactate", Column: dataset.ColLactate, Abnormal: func(v float64) bool { return v >= 2 }},
			{Name: "Sodium", Column: dataset.ColSodium, Abnormal: func(v float64) bool { return v < 135 }},
			{Name: "Troponin", Column: dataset.ColTroponin, Abnormal: func(v float64) bool { return v > 0.04 }},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lactate", "Sodium"}, tab.Cols)
	v, _ := tab.At("ICU", "Lactate")
	assert.InDelta(t, 50.0, v, 1e-9)
	v, _ = tab.At("Deaths", "Sodium")
	assert.Equal(t, 0.0, v)

	_, err = ThresholdMatrix(rel, nil, []Marker{{Name: "T", Column: dataset.ColTroponin}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGroupTimepoints(t *testing.T) {
	rel := relation(t, dataset.SheetHospitalization,
		[]string{dataset.PatientKey, dataset.ColWard, dataset.ColReadmit28d, dataset.ColReadmit3m},
		[]any{1, "ICU", 1, 1},
		[]any{2, "ICU", 0, 1},
		[]any{3, "Cardiology", 0, 0},
		[]any{4, nil, 1, 1},
	)
	cmp, err := GroupTimepoints(rel, dataset.ColWard,
		[]Metric{{Name: "readmission", Columns: []string{dataset.ColReadmit28d, dataset.ColReadmit3m}}},
		[]string{"28d", "3m"})
	require.NoError(t, err)
	require.Len(t, cmp.Groups, 2)
	assert.Equal(t, "Cardiology", cmp.Groups[0].Name)

	icu, ok := cmp.Group("ICU")
	require.True(t, ok)
	assert.Equal(t, 2, icu.Rows)
	assert.Equal(t, []float64{50, 100}, icu.Rates["readmission"])

	_, err = GroupTimepoints(rel, dataset.ColWard,
		[]Metric{{Name: "readmission", Columns: []string{dataset.ColReadmit6m}}},
		[]string{"6m"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHierarchy(t *testing.T) {
	rel := relation(t, dataset.SheetDemography,
		[]string{dataset.PatientKey, dataset.ColAdmissionWay, dataset.ColGender, dataset.ColAgeCat},
		[]any{1, "NonEmergency", "Male", "69-79"},
		[]any{2, "Emergency", "Female", "69-79"},
		[]any{3, "Emergency", "Female", "29-39"},
		[]any{4, "Emergency", "Female", "69-79"},
		[]any{5, "Emergency", nil, "69-79"},
	)
	paths, err := Hierarchy(rel, dataset.ColAdmissionWay, dataset.ColGender, dataset.ColAgeCat)
	require.NoError(t, err)
	assert.Equal(t, []PathCount{
		{Path: []string{"Emergency", "Female", "29-39"}, Count: 1},
		{Path: []string{"Emergency", "Female", "69-79"}, Count: 2},
		{Path: []string{"NonEmergency", "Male", "69-79"}, Count: 1},
	}, paths)
}
