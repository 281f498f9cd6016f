// Package dashboard assembles the six analytics panels from a cohort. Each
// panel is a list of views; a view whose inputs lack a column is reported
// unavailable while the rest of the panel is still computed.
package dashboard

import (
	"errors"
	"time"

	"github.com/ehr/hfanalytics/internal/domain/aggregate"
)

// Kind tells a client how to render a view's Data.
type Kind string

const (
	KindScalar     Kind = "scalar"     // aggregate.Proportion or aggregate.Stat
	KindLabel      Kind = "label"      // string
	KindCategories Kind = "categories" // []aggregate.CategoryCount
	KindGroups     Kind = "groups"     // []aggregate.Group
	KindTable      Kind = "table"      // *aggregate.Table
	KindComparison Kind = "comparison" // *aggregate.Comparison
	KindHistogram  Kind = "histogram"  // *aggregate.Histogram
	KindFlow       Kind = "flow"       // *aggregate.FlowGraph
	KindHierarchy  Kind = "hierarchy"  // []aggregate.PathCount
	KindRecords    Kind = "records"    // panel specific rows
	KindInsight    Kind = "insight"    // Insight
)

// Source distinguishes figures computed from the loaded cohort from figures
// quoted from a prior analysis of the full dataset.
type Source string

const (
	SourceComputed  Source = "computed"
	SourcePublished Source = "published"
)

// View is one chart or metric of a panel.
type View struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Kind      Kind     `json:"kind"`
	Source    Source   `json:"source"`
	Available bool     `json:"available"`
	Missing   []string `json:"missing,omitempty"`
	Error     string   `json:"error,omitempty"`
	Data      any      `json:"data,omitempty"`
}

// Panel groups the views of one dashboard tab.
type Panel struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Views []View `json:"views"`
}

// View looks a view up by id.
func (p Panel) View(id string) (View, bool) {
	for _, v := range p.Views {
		if v.ID == id {
			return v, true
		}
	}
	return View{}, false
}

// Unavailable lists the ids of views that could not be computed.
func (p Panel) Unavailable() []string {
	var out []string
	for _, v := range p.Views {
		if !v.Available {
			out = append(out, v.ID)
		}
	}
	return out
}

// Dashboard is every requested panel for one cohort.
type Dashboard struct {
	Identity    string    `json:"dataset"`
	Criteria    string    `json:"criteria"`
	CohortSize  int       `json:"cohort_size"`
	Total       int       `json:"total_patients"`
	GeneratedAt time.Time `json:"generated_at"`
	Panels      []Panel   `json:"panels"`
}

// Panel looks a panel up by id.
func (d *Dashboard) Panel(id string) (Panel, bool) {
	for _, p := range d.Panels {
		if p.ID == id {
			return p, true
		}
	}
	return Panel{}, false
}

type panelBuilder struct {
	panel Panel
}

func newPanel(id, title string) *panelBuilder {
	return &panelBuilder{panel: Panel{ID: id, Title: title}}
}

// add computes one view. A MissingColumnError makes the view unavailable;
// any other error is carried on the view.
func (b *panelBuilder) add(id, title string, kind Kind, compute func() (any, error)) {
	v := View{ID: id, Title: title, Kind: kind, Source: SourceComputed}
	data, err := compute()
	var mce *aggregate.MissingColumnError
	switch {
	case err == nil:
		v.Available = true
		v.Data = data
	case errors.As(err, &mce):
		v.Missing = mce.Columns
	default:
		v.Error = err.Error()
	}
	b.panel.Views = append(b.panel.Views, v)
}

// published adds a view quoting a fixed figure.
func (b *panelBuilder) published(id, title string, kind Kind, data any) {
	b.panel.Views = append(b.panel.Views, View{
		ID: id, Title: title, Kind: kind, Source: SourcePublished, Available: true, Data: data,
	})
}

func (b *panelBuilder) build() Panel { return b.panel }
