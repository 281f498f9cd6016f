package aggregate

import (
	"fmt"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// Histogram is an equal-width binning. Edges has one more entry than Counts.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// Hist bins the numeric values of col into bins equal-width buckets spanning
// their range. The last bucket is closed on both ends. A column whose values
// are all equal is spread over [v-0.5, v+0.5].
func Hist(rel *dataset.Relation, col string, bins int) (*Histogram, error) {
	if err := Require(rel, col); err != nil {
		return nil, err
	}
	if bins <= 0 {
		return nil, fmt.Errorf("histogram of %s: %d bins", col, bins)
	}
	vals := numbers(rel, col)
	if len(vals) == 0 {
		return &Histogram{}, nil
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)
	h := &Histogram{Edges: make([]float64, bins+1), Counts: make([]int, bins)}
	for i := range h.Edges {
		h.Edges[i] = lo + float64(i)*width
	}
	h.Edges[bins] = hi
	for _, v := range vals {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		h.Counts[i]++
	}
	return h, nil
}

// Bin counts the numeric values of col per labelled interval. Intervals are
// (edges[i], edges[i+1]]; with includeLowest the first one also holds
// edges[0]. Values outside every interval are not counted. Every label is
// reported, empty ones with a zero count.
func Bin(rel *dataset.Relation, col string, edges []float64, labels []string, includeLowest bool) ([]CategoryCount, error) {
	if len(labels) != len(edges)-1 {
		return nil, fmt.Errorf("bin %s: %d labels for %d edges", col, len(labels), len(edges))
	}
	if err := Require(rel, col); err != nil {
		return nil, err
	}
	counts := make([]int, len(labels))
	total := 0
	for _, v := range numbers(rel, col) {
		for i := 0; i < len(labels); i++ {
			lower := v > edges[i] || (includeLowest && i == 0 && v == edges[0])
			if lower && v <= edges[i+1] {
				counts[i]++
				total++
				break
			}
		}
	}
	out := make([]CategoryCount, len(labels))
	for i, l := range labels {
		out[i] = CategoryCount{Label: l, Count: counts[i], Percent: proportion(counts[i], total).Percent}
	}
	return out, nil
}
