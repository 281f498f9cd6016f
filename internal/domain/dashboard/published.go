package dashboard

// Figures quoted from the published analysis of the full 2008-patient
// dataset. They do not change with the cohort filter and are served with
// Source "published" next to their live equivalents.

// Insight is a headline finding with its supporting figures.
type Insight struct {
	Headline string             `json:"headline"`
	Figures  map[string]float64 `json:"figures"`
	Notes    []string           `json:"notes,omitempty"`
}

// SeriesSet is a set of named series over shared categories.
type SeriesSet struct {
	Categories []string             `json:"categories"`
	Series     map[string][]float64 `json:"series"`
}

type publishedFigures struct {
	DiabetesCount         int
	DiabetesTotal         int
	ReadmissionByGroup    SeriesSet
	DiabetesImpact        SeriesSet
	TripleBiomarker       Insight
	CrypticShock          Insight
	GCSPredictor          Insight
	SeverityConcentration Insight
}

// DiabetesPercent is the published diabetes prevalence.
func (p publishedFigures) DiabetesPercent() float64 {
	return float64(p.DiabetesCount) / float64(p.DiabetesTotal) * 100
}

// Published holds the quoted figures.
var Published = publishedFigures{
	DiabetesCount: 466,
	DiabetesTotal: 2008,
	ReadmissionByGroup: SeriesSet{
		Categories: []string{"Older+Obese", "Older+Underweight", "Robust Older", "Younger Adults"},
		Series: map[string][]float64{
			"28d": {8.06, 8.30, 6.86, 3.93},
			"3m":  {20.97, 26.60, 24.65, 22.47},
			"6m":  {35.48, 41.06, 38.21, 34.83},
		},
	},
	DiabetesImpact: SeriesSet{
		Categories: []string{"In-Hospital", "28d", "3m", "6m", "6m Emergency Return"},
		Series: map[string][]float64{
			"Non-Diabetes": {
				438.0 / 1452 * 100,
				8.0 / 29 * 100,
				10.0 / 32 * 100,
				13.0 / 44 * 100,
				212.0 / 563 * 100,
			},
			"Diabetes": {
				2.0 / 9 * 100,
				29.0 / 1513 * 100,
				32.0 / 1510 * 100,
				44.0 / 1498 * 100,
				254.0 / 978 * 100,
			},
		},
	},
	TripleBiomarker: Insight{
		Headline: "Triple biomarker risk",
		Figures: map[string]float64{
			"score3_patients":        99,
			"score3_percent":         4.9,
			"mortality_ratio":        40,
			"score3_mortality_pct":   6.1,
			"baseline_mortality_pct": 0.15,
		},
	},
	CrypticShock: Insight{
		Headline: "Cryptic shock",
		Figures:  map[string]float64{"deaths_with_elevated_biomarkers_pct": 73},
	},
	GCSPredictor: Insight{
		Headline: "GCS: strongest mortality predictor",
		Figures: map[string]float64{
			"high_risk_admits_pct":    2.4,
			"high_risk_deaths_pct":    64,
			"abnormal_biomarkers_pct": 92,
			"type2_resp_failure_pct":  25,
			"emergency_high_risk_pct": 3.9,
			"elective_high_risk_pct":  1.9,
		},
	},
	SeverityConcentration: Insight{
		Headline: "NYHA 4 + Killip 4 account for most deaths",
		Figures: map[string]float64{
			"nyha4_killip4_deaths_pct":     64,
			"nyha4_killip3plus_cohort_pct": 31.5,
		},
	},
}
