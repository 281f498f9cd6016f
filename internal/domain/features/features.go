// Package features derives the categorical columns the dashboard views group
// by: age band, GCS category, emergency-return latency bucket, the
// three-biomarker score and the complication burden.
package features

import (
	"math"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

var ageEdges = []float64{0, 29, 39, 49, 59, 69, 79, 89, 100}

// AgeCategory maps an age onto its band. Bands are right-closed and the first
// one also holds 0, so 29 is "21-29" and 29.5 is "29-39". Ages outside
// [0, 100] have no band.
func AgeCategory(age float64) (string, bool) {
	if math.IsNaN(age) || age < ageEdges[0] || age > ageEdges[len(ageEdges)-1] {
		return "", false
	}
	for i := 1; i < len(ageEdges); i++ {
		if age <= ageEdges[i] {
			return dataset.AgeCategoryLabels[i-1], true
		}
	}
	return "", false
}

// GCSCategory bands a Glasgow Coma Scale score. Only a score of exactly 15 is
// Normal; everything from 13 up that is not 15 is Low-Risk.
func GCSCategory(gcs float64) string {
	switch {
	case gcs == 15:
		return "Normal"
	case gcs >= 13:
		return "Low-Risk"
	default:
		return "High-Risk"
	}
}

// EmergencyReturnGroup buckets the days until an emergency department return
// using the edges 0, 7, 30, 90 and max, where max is the largest value seen in
// the loaded column. The lowest edge is inclusive, the others right-closed.
func EmergencyReturnGroup(days, max float64) (string, bool) {
	edges := []float64{0, 7, 30, 90, max}
	if math.IsNaN(days) || days < edges[0] || days > max {
		return "", false
	}
	for i := 1; i < len(edges); i++ {
		if days <= edges[i] {
			return dataset.EmergencyReturnLabels[i-1], true
		}
	}
	return "", false
}

// Biomarker thresholds of the HF top-3 score.
const (
	LactateThreshold  = 2.0
	SodiumThreshold   = 135.0
	TroponinThreshold = 0.04
)

// HighLactate reports lactate >= 2.0 mmol/L.
func HighLactate(v float64) bool { return v >= LactateThreshold }

// LowSodium reports sodium < 135 mmol/L.
func LowSodium(v float64) bool { return v < SodiumThreshold }

// HighTroponin reports hs-troponin > 0.04.
func HighTroponin(v float64) bool { return v > TroponinThreshold }

// HFTop3Score counts the abnormal biomarkers among lactate, sodium and
// high-sensitivity troponin.
func HFTop3Score(lactate, sodium, troponin float64) int {
	score := 0
	if HighLactate(lactate) {
		score++
	}
	if LowSodium(sodium) {
		score++
	}
	if HighTroponin(troponin) {
		score++
	}
	return score
}

// ComplicationBurden counts co-occurring MI, CHF and PVD.
func ComplicationBurden(mi, chf, pvd bool) int {
	n := 0
	for _, present := range []bool{mi, chf, pvd} {
		if present {
			n++
		}
	}
	return n
}
