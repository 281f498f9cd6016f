package dataset

import (
	"fmt"
	"time"
)

// Snapshot holds the seven relations of one dataset. It is built once and
// shared read-only; With returns a modified copy.
type Snapshot struct {
	Identity string    `json:"identity"`
	LoadedAt time.Time `json:"loaded_at"`

	Demography      *Relation `json:"-"`
	Hospitalization *Relation `json:"-"`
	Cardiac         *Relation `json:"-"`
	Labs            *Relation `json:"-"`
	History         *Relation `json:"-"`
	Responsiveness  *Relation `json:"-"`
	Prescriptions   *Relation `json:"-"`
}

// NewSnapshot assembles a snapshot from relations keyed by sheet name. A
// missing sheet is a LoadError.
func NewSnapshot(identity string, rels map[string]*Relation) (*Snapshot, error) {
	for _, sheet := range Sheets {
		if rels[sheet] == nil {
			return nil, &LoadError{Source: identity, Sheet: sheet, Err: ErrSheetMissing}
		}
	}
	return &Snapshot{
		Identity:        identity,
		LoadedAt:        time.Now().UTC(),
		Demography:      rels[SheetDemography],
		Hospitalization: rels[SheetHospitalization],
		Cardiac:         rels[SheetCardiac],
		Labs:            rels[SheetLabs],
		History:         rels[SheetHistory],
		Responsiveness:  rels[SheetResponsiveness],
		Prescriptions:   rels[SheetPrescriptions],
	}, nil
}

// Relations returns the relations in sheet order.
func (s *Snapshot) Relations() []*Relation {
	return []*Relation{
		s.Demography, s.Hospitalization, s.Cardiac, s.Labs,
		s.History, s.Responsiveness, s.Prescriptions,
	}
}

// Relation looks a relation up by sheet name.
func (s *Snapshot) Relation(sheet string) *Relation {
	switch sheet {
	case SheetDemography:
		return s.Demography
	case SheetHospitalization:
		return s.Hospitalization
	case SheetCardiac:
		return s.Cardiac
	case SheetLabs:
		return s.Labs
	case SheetHistory:
		return s.History
	case SheetResponsiveness:
		return s.Responsiveness
	case SheetPrescriptions:
		return s.Prescriptions
	}
	return nil
}

// With returns a copy of the snapshot with one relation replaced.
func (s *Snapshot) With(sheet string, rel *Relation) (*Snapshot, error) {
	next := *s
	switch sheet {
	case SheetDemography:
		next.Demography = rel
	case SheetHospitalization:
		next.Hospitalization = rel
	case SheetCardiac:
		next.Cardiac = rel
	case SheetLabs:
		next.Labs = rel
	case SheetHistory:
		next.History = rel
	case SheetResponsiveness:
		next.Responsiveness = rel
	case SheetPrescriptions:
		next.Prescriptions = rel
	default:
		return nil, fmt.Errorf("unknown sheet %q", sheet)
	}
	return &next, nil
}

// Map is the inverse of NewSnapshot.
func (s *Snapshot) Map() map[string]*Relation {
	out := make(map[string]*Relation, len(Sheets))
	for _, sheet := range Sheets {
		out[sheet] = s.Relation(sheet)
	}
	return out
}

// RelationSummary describes one relation for health and inspect output.
type RelationSummary struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
}

// Summary lists every relation with its size and header.
func (s *Snapshot) Summary() []RelationSummary {
	out := make([]RelationSummary, 0, len(Sheets))
	for _, rel := range s.Relations() {
		out = append(out, RelationSummary{Name: rel.Name(), Rows: rel.Len(), Columns: rel.Columns()})
	}
	return out
}
