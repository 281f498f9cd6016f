package dataset

// PatientKey is the only join key across relations.
const PatientKey = "inpatient_number"

// Sheet names as they appear in the source workbook. The spellings are part
// of the dataset contract and must not be corrected.
const (
	SheetDemography      = "Demography"
	SheetHospitalization = "Hospitalization_Discharge"
	SheetCardiac         = "CardiacComplications"
	SheetLabs            = "Labs"
	SheetHistory         = "PatientHistory"
	SheetResponsiveness  = "Responsivenes"
	SheetPrescriptions   = "Patient_Precriptions"
)

// Sheets lists every required sheet in load order.
var Sheets = []string{
	SheetDemography,
	SheetHospitalization,
	SheetCardiac,
	SheetLabs,
	SheetHistory,
	SheetResponsiveness,
	SheetPrescriptions,
}

// Demography columns.
const (
	ColAge        = "age"
	ColGender     = "gender"
	ColAgeCat     = "ageCat"
	ColBMICat     = "BMI_Cat"
	ColOccupation = "occupation"
)

// Hospitalization_Discharge columns.
const (
	ColWard               = "admission_ward"
	ColAdmissionWay       = "admission_way"
	ColDischargeDay       = "dischargeDay"
	ColOutcome            = "outcome_during_hospitalization"
	ColDeath28d           = "death_within_28_days"
	ColReadmit28d         = "re_admission_within_28_days"
	ColDeath3m            = "death_within_3_months"
	ColReadmit3m          = "re_admission_within_3_months"
	ColDeath6m            = "death_within_6_months"
	ColReadmit6m          = "re_admission_within_6_months"
	ColEDReturn6m         = "return_to_emergency_department_within_6_months"
	ColTimeToED           = "time_to_emergency_department_within_6_months"
	ColEmergencyReturnGrp = "emergency_return_group"
)

// CardiacComplications columns.
const (
	ColNYHA       = "NYHA_cardiac_function_classification"
	ColKillip     = "Killip_grade"
	ColCHF        = "congestive_heart_failure"
	ColMI         = "myocardial_infarction"
	ColPVD        = "peripheral_vascular_disease"
	ColCompBurden = "comp_burden"
)

// Labs columns.
const (
	ColLactate   = "lactate"
	ColSodium    = "sodium"
	ColTroponin  = "high_sensitivity_troponin"
	ColTop3Score = "hf_top3_score"
)

// PatientHistory, Responsivenes and Patient_Precriptions columns.
const (
	ColDiabetes    = "diabetes"
	ColGCS         = "GCS"
	ColGCSCategory = "GCS_category"
	ColDrugName    = "Drug_name"
)

// Categorical values the views refer to.
const (
	WayEmergency    = "Emergency"
	WayNonEmergency = "NonEmergency"
	WardCardiology  = "Cardiology"
	WardICU         = "ICU"
	OutcomeAlive    = "Alive"
	OutcomeDead     = "Dead"
	GenderFemale    = "Female"
	GenderMale      = "Male"
	UrbanResident   = "UrbanResident"
)

// AgeCategoryLabels are the age bands in ascending order.
var AgeCategoryLabels = []string{"21-29", "29-39", "39-49", "49-59", "59-69", "69-79", "79-89", "89+"}

// GCSCategoryLabels are the GCS bands from best to worst.
var GCSCategoryLabels = []string{"Normal", "Low-Risk", "High-Risk"}

// EmergencyReturnLabels are the ED return latency buckets in ascending order.
var EmergencyReturnLabels = []string{"<7 days", "8–30 days", "31–90 days", "90+ days"}

var ordinals = map[string][]string{
	ColAgeCat:             AgeCategoryLabels,
	ColGCSCategory:        GCSCategoryLabels,
	ColEmergencyReturnGrp: EmergencyReturnLabels,
}

// Ordinal returns the label order of a categorical derived column, or nil
// when the column has no intrinsic order.
func Ordinal(col string) []string {
	return ordinals[col]
}
