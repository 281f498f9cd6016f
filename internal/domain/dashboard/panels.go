package dashboard

import (
	"github.com/ehr/hfanalytics/internal/domain/aggregate"
	"github.com/ehr/hfanalytics/internal/domain/cohort"
	"github.com/ehr/hfanalytics/internal/domain/dataset"
	"github.com/ehr/hfanalytics/internal/domain/features"
)

// Panel ids in display order.
const (
	PanelKPIs          = "kpis"
	PanelDemographics  = "demographics"
	PanelPrescriptions = "prescriptions"
	PanelHospital      = "hospital"
	PanelCardiac       = "cardiac"
	PanelLabs          = "labs"
)

// PanelIDs lists every panel in display order.
var PanelIDs = []string{PanelKPIs, PanelDemographics, PanelPrescriptions, PanelHospital, PanelCardiac, PanelLabs}

var panelBuilders = map[string]func(*cohort.Cohort) Panel{
	PanelKPIs:          buildKPIs,
	PanelDemographics:  buildDemographics,
	PanelPrescriptions: buildPrescriptions,
	PanelHospital:      buildHospital,
	PanelCardiac:       buildCardiac,
	PanelLabs:          buildLabs,
}

// KnownPanel reports whether id names a panel.
func KnownPanel(id string) bool {
	_, ok := panelBuilders[id]
	return ok
}

// BuildPanel computes one panel for a cohort.
func BuildPanel(id string, c *cohort.Cohort) (Panel, bool) {
	build, ok := panelBuilders[id]
	if !ok {
		return Panel{}, false
	}
	return build(c), true
}

var (
	timepoints    = []string{"28d", "3m", "6m"}
	mortality     = aggregate.Metric{Name: "mortality", Columns: []string{dataset.ColDeath28d, dataset.ColDeath3m, dataset.ColDeath6m}}
	readmission   = aggregate.Metric{Name: "readmission", Columns: []string{dataset.ColReadmit28d, dataset.ColReadmit3m, dataset.ColReadmit6m}}
	losEdges      = []float64{0, 7, 14, 21, 100}
	losLabels     = []string{"0-7d", "8-14d", "15-21d", ">21d"}
	biomarkerAxis = []aggregate.Marker{
		{Name: "Lactate", Column: dataset.ColLactate, Abnormal: features.HighLactate},
		{Name: "Sodium", Column: dataset.ColSodium, Abnormal: features.LowSodium},
		{Name: "High Sensitivity Troponin", Column: dataset.ColTroponin, Abnormal: features.HighTroponin},
	}
)

func equalTo(x float64) func(float64) bool { return func(v float64) bool { return v == x } }
func atLeast(x float64) func(float64) bool { return func(v float64) bool { return v >= x } }

func scoreIs(x float64) func(dataset.Row) bool {
	return aggregate.Numeric(dataset.ColTop3Score, equalTo(x))
}

// ---------------------------------------------------------------------------
// KPIs
// ---------------------------------------------------------------------------

func buildKPIs(c *cohort.Cohort) Panel {
	p := newPanel(PanelKPIs, "Executive Summary")
	hos := c.Hospitalization

	p.add("total_patients", "Total Patients", KindScalar, func() (any, error) {
		return aggregate.Proportion{Count: c.Size(), Total: c.Total, Percent: percent(c.Size(), c.Total)}, nil
	})
	p.add("mortality_28d", "28d Mortality", KindScalar, func() (any, error) {
		return aggregate.Rate(hos, dataset.ColDeath28d)
	})
	p.add("readmission_28d", "28d Readmit", KindScalar, func() (any, error) {
		return aggregate.Rate(hos, dataset.ColReadmit28d)
	})
	p.add("mortality_6m", "6m Mortality", KindScalar, func() (any, error) {
		return aggregate.Rate(hos, dataset.ColDeath6m)
	})
	p.add("score_3", "Score 3", KindScalar, func() (any, error) {
		return aggregate.Share(c.Labs, scoreIs(3), dataset.ColTop3Score)
	})
	p.published("triple_biomarker_alert", "Triple Biomarker Risk", KindInsight, Published.TripleBiomarker)
	p.published("cryptic_shock", "Cryptic Shock", KindInsight, Published.CrypticShock)
	return p.build()
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// ---------------------------------------------------------------------------
// Demographics
// ---------------------------------------------------------------------------

func buildDemographics(c *cohort.Cohort) Panel {
	p := newPanel(PanelDemographics, "Demographics Analysis")
	demog := c.Demography
	demogAdm := demog.LeftJoin(c.Hospitalization, dataset.ColAdmissionWay, dataset.ColWard)

	p.add("female_pct", "Female %", KindScalar, func() (any, error) {
		return aggregate.Share(demog, aggregate.Equals(dataset.ColGender, dataset.GenderFemale), dataset.ColGender)
	})
	p.add("most_common_age_group", "Most Common Age Group", KindLabel, func() (any, error) {
		label, ok, err := aggregate.Mode(demog, dataset.ColAgeCat)
		if err != nil || !ok {
			return nil, err
		}
		return label, nil
	})
	p.add("urban_pct", "Urban %", KindScalar, func() (any, error) {
		return aggregate.Share(demog, aggregate.Equals(dataset.ColOccupation, dataset.UrbanResident), dataset.ColOccupation)
	})
	p.add("diabetes_pct", "Diabetes %", KindScalar, func() (any, error) {
		return aggregate.Rate(c.History, dataset.ColDiabetes)
	})
	p.published("diabetes_pct_published", "Diabetes % (published)", KindScalar, aggregate.Proportion{
		Count:   Published.DiabetesCount,
		Total:   Published.DiabetesTotal,
		Percent: Published.DiabetesPercent(),
	})
	p.add("admission_hierarchy", "Emergency vs Non-Emergency by Gender & Age", KindHierarchy, func() (any, error) {
		return aggregate.Hierarchy(demogAdm, dataset.ColAdmissionWay, dataset.ColGender, dataset.ColAgeCat)
	})
	p.add("bmi_distribution", "BMI Category Distribution", KindCategories, func() (any, error) {
		return aggregate.Distribution(demog, dataset.ColBMICat)
	})
	p.add("age_by_admission_way", "Emergency vs Non-Emergency by Age", KindTable, func() (any, error) {
		return aggregate.CrossTab(demogAdm, dataset.ColAgeCat, dataset.ColAdmissionWay, false)
	})
	p.published("readmission_by_patient_group", "Readmission Rates by Patient Group", KindRecords, Published.ReadmissionByGroup)
	p.published("diabetes_impact_published", "Diabetes Impact on Mortality & Readmissions (published)", KindRecords, Published.DiabetesImpact)
	p.add("diabetes_impact", "Diabetes Impact on Mortality & Readmissions", KindComparison, func() (any, error) {
		return diabetesImpact(c)
	})
	return p.build()
}

const colDiedInHospital = "died_in_hospital"

// diabetesImpact compares event rates of diabetic and non-diabetic patients
// at discharge, 28 days, 3 and 6 months, and for 6-month ED returns.
func diabetesImpact(c *cohort.Cohort) (*aggregate.Comparison, error) {
	if err := aggregate.Require(c.History, dataset.ColDiabetes); err != nil {
		return nil, err
	}
	hos := c.Hospitalization
	if err := aggregate.Require(hos, dataset.ColOutcome); err != nil {
		return nil, err
	}
	died := make([]dataset.Value, hos.Len())
	for i := range died {
		died[i] = dataset.NullValue()
		if v := hos.Get(i, dataset.ColOutcome); !v.IsNull() {
			died[i] = boolValue(v.String() == dataset.OutcomeDead)
		}
	}
	outcomes, err := hos.WithColumn(colDiedInHospital, died)
	if err != nil {
		return nil, err
	}

	diabetic := c.History.Where(func(row dataset.Row) bool { return row.Get(dataset.ColDiabetes).Truthy() })
	nonDiabetic := c.History.Where(func(row dataset.Row) bool {
		v := row.Get(dataset.ColDiabetes)
		return !v.IsNull() && !v.Truthy()
	})
	return aggregate.Stratified(aggregate.StratifiedRequest{
		Base:     c.History,
		Outcomes: outcomes,
		Subgroups: []aggregate.Subgroup{
			{Name: "Non-Diabetes", IDs: nonDiabetic.PatientIDs()},
			{Name: "Diabetes", IDs: diabetic.PatientIDs()},
		},
		Metrics: []aggregate.Metric{{
			Name: "events",
			Columns: []string{
				colDiedInHospital, dataset.ColDeath28d, dataset.ColDeath3m, dataset.ColDeath6m, dataset.ColEDReturn6m,
			},
		}},
		Timepoints: []string{"In-Hospital", "28d", "3m", "6m", "6m Emergency Return"},
	})
}

func boolValue(b bool) dataset.Value {
	if b {
		return dataset.Num(1)
	}
	return dataset.Num(0)
}

// ---------------------------------------------------------------------------
// Prescriptions
// ---------------------------------------------------------------------------

func buildPrescriptions(c *cohort.Cohort) Panel {
	p := newPanel(PanelPrescriptions, "Patient Prescriptions Analysis")
	presc := c.Prescriptions.LeftJoin(c.Hospitalization, dataset.ColAdmissionWay, dataset.ColWard)

	top10, topErr := aggregate.TopNByUniquePatients(presc, dataset.ColDrugName, 10)
	p.add("top_drugs", "Top 10 Medications (by Number of Patients)", KindCategories, func() (any, error) {
		return top10, topErr
	})
	p.add("drug_by_ward", "Top 10 Drugs by Admission Ward (% Usage Within Each Ward)", KindTable, func() (any, error) {
		if topErr != nil {
			return nil, topErr
		}
		names := aggregate.Labels(top10)
		return aggregate.CrossTab(presc.Where(aggregate.In(dataset.ColDrugName, names...)), dataset.ColDrugName, dataset.ColWard, true)
	})
	p.add("top5_by_admission_way", "Top 5 Drugs: Emergency vs Non-Emergency", KindTable, func() (any, error) {
		if topErr != nil {
			return nil, topErr
		}
		names := aggregate.Labels(top10)
		if len(names) > 5 {
			names = names[:5]
		}
		return aggregate.CrossTab(presc.Where(aggregate.In(dataset.ColDrugName, names...)), dataset.ColDrugName, dataset.ColAdmissionWay, false)
	})
	return p.build()
}

// ---------------------------------------------------------------------------
// Hospital
// ---------------------------------------------------------------------------

// WardPerformance is one row of the department comparison. Rates are nil when
// the flag column is absent.
type WardPerformance struct {
	Ward           string   `json:"ward"`
	Patients       int      `json:"patients"`
	Mortality28d   *float64 `json:"mortality_28d,omitempty"`
	Readmission28d *float64 `json:"readmission_28d,omitempty"`
}

func buildHospital(c *cohort.Cohort) Panel {
	p := newPanel(PanelHospital, "Hospital Discharge & Outcomes")
	hos := c.Hospitalization

	p.add("cardiology_pct", "Cardiology %", KindScalar, func() (any, error) {
		return aggregate.Share(hos, aggregate.Equals(dataset.ColWard, dataset.WardCardiology), dataset.ColWard)
	})
	p.add("emergency_pct", "Emergency %", KindScalar, func() (any, error) {
		return aggregate.Share(hos, aggregate.Equals(dataset.ColAdmissionWay, dataset.WayEmergency), dataset.ColAdmissionWay)
	})
	p.add("median_los", "Median LOS", KindScalar, func() (any, error) {
		return aggregate.Median(hos, dataset.ColDischargeDay)
	})
	p.add("alive_pct", "Alive %", KindScalar, func() (any, error) {
		return aggregate.Share(hos, aggregate.Equals(dataset.ColOutcome, dataset.OutcomeAlive), dataset.ColOutcome)
	})
	p.add("los_histogram", "LOS Distribution", KindHistogram, func() (any, error) {
		return aggregate.Hist(hos, dataset.ColDischargeDay, 30)
	})
	p.add("los_categories", "LOS Categories", KindCategories, func() (any, error) {
		return aggregate.Bin(hos, dataset.ColDischargeDay, losEdges, losLabels, false)
	})
	p.add("admission_flow", "Patient Flow: Admission Way to Ward", KindFlow, func() (any, error) {
		return aggregate.Flow(hos, dataset.ColAdmissionWay, dataset.ColWard)
	})
	p.add("emergency_return_by_ward", "Emergency Return Timing by Admission Ward", KindTable, func() (any, error) {
		return aggregate.CrossTab(hos, dataset.ColEmergencyReturnGrp, dataset.ColWard, false)
	})
	p.add("ward_performance", "Department Performance Comparison", KindRecords, func() (any, error) {
		return wardPerformance(hos)
	})
	p.add("readmission_trend", "Readmission Trends by Department", KindComparison, func() (any, error) {
		return aggregate.GroupTimepoints(hos, dataset.ColWard, []aggregate.Metric{readmission}, timepoints)
	})
	return p.build()
}

func wardPerformance(hos *dataset.Relation) ([]WardPerformance, error) {
	dist, err := aggregate.Distribution(hos, dataset.ColWard)
	if err != nil {
		return nil, err
	}
	out := make([]WardPerformance, len(dist))
	index := make(map[string]int, len(dist))
	for i, d := range dist {
		out[i] = WardPerformance{Ward: d.Label, Patients: d.Count}
		index[d.Label] = i
	}
	if groups, err := aggregate.GroupRate(hos, dataset.ColWard, dataset.ColDeath28d); err == nil {
		for _, g := range groups {
			v := g.Percent
			out[index[g.Label]].Mortality28d = &v
		}
	}
	if groups, err := aggregate.GroupRate(hos, dataset.ColWard, dataset.ColReadmit28d); err == nil {
		for _, g := range groups {
			v := g.Percent
			out[index[g.Label]].Readmission28d = &v
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Cardiac
// ---------------------------------------------------------------------------

func buildCardiac(c *cohort.Cohort) Panel {
	p := newPanel(PanelCardiac, "Cardiac Complications")
	cardiac := c.Cardiac
	cardiacHos := cardiac.LeftJoin(c.Hospitalization, dataset.ColDeath28d, dataset.ColReadmit6m)

	p.add("nyha_3_4", "NYHA 3-4", KindScalar, func() (any, error) {
		return aggregate.Share(cardiac, aggregate.Numeric(dataset.ColNYHA, atLeast(3)), dataset.ColNYHA)
	})
	p.add("chf", "CHF", KindScalar, func() (any, error) {
		return aggregate.Rate(cardiac, dataset.ColCHF)
	})
	p.add("killip_3_4", "Killip 3-4", KindScalar, func() (any, error) {
		return aggregate.Share(cardiac, killipHigh, dataset.ColKillip)
	})
	p.add("high_burden", "High Burden", KindScalar, func() (any, error) {
		return aggregate.Share(cardiac, aggregate.Numeric(dataset.ColCompBurden, equalTo(3)), dataset.ColCompBurden)
	})
	p.add("nyha_distribution", "NYHA Distribution", KindCategories, func() (any, error) {
		return aggregate.Distribution(cardiac, dataset.ColNYHA)
	})
	p.add("mortality_by_nyha", "Mortality by NYHA", KindGroups, func() (any, error) {
		return aggregate.GroupRate(cardiacHos, dataset.ColNYHA, dataset.ColDeath28d)
	})
	p.add("nyha_by_killip", "Patient Distribution: NYHA vs Killip", KindTable, func() (any, error) {
		return aggregate.CrossTab(cardiac, dataset.ColNYHA, dataset.ColKillip, false)
	})
	p.published("severity_concentration", "NYHA 4 + Killip 4", KindInsight, Published.SeverityConcentration)
	p.add("burden_distribution", "Complication Burden Distribution", KindCategories, func() (any, error) {
		return aggregate.Distribution(cardiac, dataset.ColCompBurden)
	})
	p.add("readmission_by_burden", "6m Readmission by Burden", KindGroups, func() (any, error) {
		return aggregate.GroupRate(cardiacHos, dataset.ColCompBurden, dataset.ColReadmit6m)
	})
	p.add("high_risk_outcomes", "28-Day to 6-Month Mortality and Readmission by Cardiac Subgroup", KindComparison, func() (any, error) {
		return cardiacSubgroupOutcomes(c)
	})
	return p.build()
}

func killipHigh(row dataset.Row) bool {
	v, ok := row.Float(dataset.ColKillip)
	return ok && (v == 3 || v == 4)
}

// cardiacSubgroupOutcomes compares outcomes of the CHF with Killip 3-4 and
// MI with CHF subgroups against every patient with labs.
func cardiacSubgroupOutcomes(c *cohort.Cohort) (*aggregate.Comparison, error) {
	cardiac := c.Cardiac
	if err := aggregate.Require(cardiac, dataset.ColCHF, dataset.ColKillip, dataset.ColMI); err != nil {
		return nil, err
	}
	chfKillip := cardiac.Where(func(row dataset.Row) bool {
		return row.Get(dataset.ColCHF).Truthy() && killipHigh(row)
	})
	miCHF := cardiac.Where(func(row dataset.Row) bool {
		return row.Get(dataset.ColMI).Truthy() && row.Get(dataset.ColCHF).Truthy()
	})
	return aggregate.Stratified(aggregate.StratifiedRequest{
		Base:     c.Labs,
		Outcomes: c.Hospitalization,
		Subgroups: []aggregate.Subgroup{
			{Name: "CHF+Killip3-4", IDs: chfKillip.PatientIDs()},
			{Name: "MI+CHF", IDs: miCHF.PatientIDs()},
		},
		Metrics:    []aggregate.Metric{mortality, readmission},
		Timepoints: timepoints,
	})
}

// ---------------------------------------------------------------------------
// Labs & GCS
// ---------------------------------------------------------------------------

func buildLabs(c *cohort.Cohort) Panel {
	p := newPanel(PanelLabs, "Laboratory Biomarkers & GCS")
	labs := c.Labs
	resp := c.Responsiveness
	labsHos := labs.LeftJoin(c.Hospitalization, dataset.ColDeath28d, dataset.ColWard, dataset.ColOutcome)
	gcsAdm := resp.LeftJoin(c.Hospitalization, dataset.ColAdmissionWay, dataset.ColDeath28d)

	p.add("score_3", "Score 3", KindScalar, func() (any, error) {
		return aggregate.Share(labs, scoreIs(3), dataset.ColTop3Score)
	})
	p.add("high_risk_gcs", "High-Risk GCS", KindScalar, func() (any, error) {
		return aggregate.Share(resp, aggregate.Equals(dataset.ColGCSCategory, "High-Risk"), dataset.ColGCSCategory)
	})
	p.add("high_lactate", "High Lactate", KindScalar, func() (any, error) {
		return aggregate.Share(labs, aggregate.Numeric(dataset.ColLactate, features.HighLactate), dataset.ColLactate)
	})
	p.add("low_sodium", "Low Sodium", KindScalar, func() (any, error) {
		return aggregate.Share(labs, aggregate.Numeric(dataset.ColSodium, features.LowSodium), dataset.ColSodium)
	})
	p.add("score_distribution", "Score Distribution", KindCategories, func() (any, error) {
		return aggregate.Distribution(labs, dataset.ColTop3Score)
	})
	p.add("mortality_by_score", "Mortality by Score", KindGroups, func() (any, error) {
		return aggregate.GroupRate(labsHos, dataset.ColTop3Score, dataset.ColDeath28d)
	})
	p.add("score_comparison", "Score 0 vs Score 3", KindComparison, func() (any, error) {
		if err := aggregate.Require(labs, dataset.ColTop3Score); err != nil {
			return nil, err
		}
		return aggregate.Stratified(aggregate.StratifiedRequest{
			Base:     labs,
			Outcomes: c.Hospitalization,
			Subgroups: []aggregate.Subgroup{
				{Name: "Score 0", IDs: labs.Where(scoreIs(0)).PatientIDs()},
				{Name: "Score 3", IDs: labs.Where(scoreIs(3)).PatientIDs()},
			},
			Metrics:    []aggregate.Metric{mortality, readmission},
			Timepoints: timepoints,
		})
	})
	p.add("biomarker_matrix", "% Abnormal Biomarkers: Deaths vs Cardiology vs ICU", KindTable, func() (any, error) {
		return aggregate.ThresholdMatrix(labsHos, []aggregate.Slice{
			{Name: "Deaths", Keep: aggregate.Equals(dataset.ColOutcome, dataset.OutcomeDead)},
			{Name: "Cardiology", Keep: aggregate.Equals(dataset.ColWard, dataset.WardCardiology)},
			{Name: "ICU", Keep: aggregate.Equals(dataset.ColWard, dataset.WardICU)},
		}, biomarkerAxis)
	})
	p.add("gcs_distribution", "GCS Categories", KindCategories, func() (any, error) {
		return aggregate.Distribution(resp, dataset.ColGCSCategory)
	})
	p.add("mortality_by_gcs", "Mortality by GCS", KindGroups, func() (any, error) {
		return aggregate.GroupRate(gcsAdm, dataset.ColGCSCategory, dataset.ColDeath28d)
	})
	p.add("gcs_by_admission_way", "GCS: Emergency vs Non-Emergency (%)", KindTable, func() (any, error) {
		return aggregate.CrossTab(gcsAdm, dataset.ColGCSCategory, dataset.ColAdmissionWay, true)
	})
	p.published("gcs_predictor", "GCS: Strongest Mortality Predictor", KindInsight, Published.GCSPredictor)
	return p.build()
}
