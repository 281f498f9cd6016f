package dashboard

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/hfanalytics/internal/domain/aggregate"
	"github.com/ehr/hfanalytics/internal/domain/cohort"
	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

func relation(t *testing.T, name string, columns []string, records ...[]any) *dataset.Relation {
	t.Helper()
	rel, err := dataset.FromRecords(name, columns, records)
	require.NoError(t, err)
	return rel
}

// tenPatients mirrors the cohort fixture: with age [30,60] and gender Female
// the cohort is patients 2, 3, 4, 8 and 9, two of whom died within 28 days.
// Labs carries no hf_top3_score and discharge carries no 6-month columns.
func tenPatients(t *testing.T, identity string) *dataset.Snapshot {
	t.Helper()
	demog := relation(t, dataset.SheetDemography,
		[]string{dataset.PatientKey, dataset.ColAge, dataset.ColGender},
		[]any{1, 25, "Female"},
		[]any{2, 30, "Female"},
		[]any{3, 45, "Female"},
		[]any{4, 60, "Female"},
		[]any{5, 61, "Female"},
		[]any{6, 40, "Male"},
		[]any{7, 50, "Male"},
		[]any{8, 35, "Female"},
		[]any{9, 55, "Female"},
		[]any{10, 59, nil},
	)
	hos := relation(t, dataset.SheetHospitalization,
		[]string{dataset.PatientKey, dataset.ColWard, dataset.ColAdmissionWay, dataset.ColDeath28d, dataset.ColReadmit28d},
		[]any{1, "Cardiology", "Emergency", 0, 0},
		[]any{2, "Cardiology", "Emergency", 1, 0},
		[]any{3, "ICU", "NonEmergency", 0, 1},
		[]any{4, "Cardiology", "Emergency", 1, 0},
		[]any{5, "ICU", "Emergency", 1, 0},
		[]any{6, "Cardiology", "NonEmergency", 1, 1},
		[]any{7, "ICU", "Emergency", 0, 0},
		[]any{8, "GeneralWard", "NonEmergency", 0, 0},
		[]any{9, "Cardiology", "Emergency", 0, 1},
		[]any{10, "ICU", "Emergency", 1, 0},
	)
	labs := relation(t, dataset.SheetLabs,
		[]string{dataset.PatientKey, dataset.ColLactate},
		[]any{1, 1.0}, []any{3, 2.5}, []any{5, 3.1}, []any{9, 0.8},
	)
	rels := map[string]*dataset.Relation{
		dataset.SheetDemography:      demog,
		dataset.SheetHospitalization: hos,
		dataset.SheetLabs:            labs,
	}
	for _, sheet := range dataset.Sheets {
		if rels[sheet] != nil {
			continue
		}
		ids := make([][]any, 0, 10)
		for i := 1; i <= 10; i++ {
			ids = append(ids, []any{i})
		}
		rels[sheet] = relation(t, sheet, []string{dataset.PatientKey}, ids...)
	}
	snap, err := dataset.NewSnapshot(identity, rels)
	require.NoError(t, err)
	return snap
}

type stubSnapshots struct {
	mu   sync.Mutex
	snap *dataset.Snapshot
	err  error
}

func (s *stubSnapshots) Snapshot(context.Context) (*dataset.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.err
}

func (s *stubSnapshots) set(snap *dataset.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

type countingRecorder struct {
	mu          sync.Mutex
	built       map[string]int
	hits        int
	unavailable map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{built: map[string]int{}, unavailable: map[string]int{}}
}

func (r *countingRecorder) DashboardBuilt(panel string) {
	r.mu.Lock()
	r.built[panel]++
	r.mu.Unlock()
}

func (r *countingRecorder) DashboardCacheHit() {
	r.mu.Lock()
	r.hits++
	r.mu.Unlock()
}

func (r *countingRecorder) ViewUnavailable(view string) {
	r.mu.Lock()
	r.unavailable[view]++
	r.mu.Unlock()
}

func femaleThirtyToSixty() cohort.Criteria {
	return cohort.Criteria{Age: &cohort.Range{Lo: 30, Hi: 60}, Genders: cohort.Only("Female")}
}

func TestBuildPanel_KPIs(t *testing.T) {
	c := cohort.Apply(tenPatients(t, "ten"), femaleThirtyToSixty())

	p, ok := BuildPanel(PanelKPIs, c)
	require.True(t, ok)

	total, ok := p.View("total_patients")
	require.True(t, ok)
	assert.Equal(t, aggregate.Proportion{Count: 5, Total: 10, Percent: 50}, total.Data)

	mort, ok := p.View("mortality_28d")
	require.True(t, ok)
	require.True(t, mort.Available)
	prop := mort.Data.(aggregate.Proportion)
	assert.Equal(t, 2, prop.Count)
	assert.Equal(t, 5, prop.Total)
	assert.InDelta(t, 40.0, prop.Percent, 1e-9)
}

func TestBuildPanel_DegradesIndependently(t *testing.T) {
	c := cohort.Apply(tenPatients(t, "ten"), cohort.Criteria{})

	p, ok := BuildPanel(PanelKPIs, c)
	require.True(t, ok)

	score, _ := p.View("score_3")
	assert.False(t, score.Available)
	assert.Equal(t, []string{dataset.ColTop3Score}, score.Missing)

	m6, _ := p.View("mortality_6m")
	assert.False(t, m6.Available)
	assert.Equal(t, []string{dataset.ColDeath6m}, m6.Missing)

	readmit, _ := p.View("readmission_28d")
	assert.True(t, readmit.Available)
	assert.Equal(t, 3, readmit.Data.(aggregate.Proportion).Count)

	assert.ElementsMatch(t, []string{"score_3", "mortality_6m"}, p.Unavailable())

	insight, _ := p.View("triple_biomarker_alert")
	assert.Equal(t, SourcePublished, insight.Source)
	assert.True(t, insight.Available)
}

func TestBuildPanel_EveryPanelOnSparseData(t *testing.T) {
	c := cohort.Apply(tenPatients(t, "ten"), cohort.Criteria{})
	for _, id := range PanelIDs {
		p, ok := BuildPanel(id, c)
		require.True(t, ok, id)
		assert.Equal(t, id, p.ID)
		assert.NotEmpty(t, p.Views, id)
		for _, v := range p.Views {
			assert.Empty(t, v.Error, "%s.%s", id, v.ID)
		}
	}
}

func TestBuildPanel_EmptyCohort(t *testing.T) {
	c := cohort.Apply(tenPatients(t, "ten"), cohort.Criteria{Genders: cohort.Only()})
	require.Equal(t, 0, c.Size())

	p, _ := BuildPanel(PanelKPIs, c)
	mort, _ := p.View("mortality_28d")
	require.True(t, mort.Available)
	assert.Equal(t, aggregate.Proportion{}, mort.Data)
}

func TestBuildPanel_Unknown(t *testing.T) {
	_, ok := BuildPanel("nope", &cohort.Cohort{})
	assert.False(t, ok)
	assert.False(t, KnownPanel("nope"))
}

func newTestService(t *testing.T, snaps SnapshotProvider, rec Recorder, logger zerolog.Logger) *Service {
	t.Helper()
	svc, err := NewService(snaps, ServiceConfig{CacheSize: 8, Recorder: rec}, logger)
	require.NoError(t, err)
	return svc
}

func TestService_DashboardMemo(t *testing.T) {
	snaps := &stubSnapshots{snap: tenPatients(t, "ten")}
	rec := newCountingRecorder()
	svc := newTestService(t, snaps, rec, zerolog.Nop())

	first, err := svc.Dashboard(context.Background(), femaleThirtyToSixty())
	require.NoError(t, err)
	assert.Len(t, first.Panels, len(PanelIDs))
	assert.Equal(t, 5, first.CohortSize)
	assert.Equal(t, "ten", first.Identity)

	again := cohort.Criteria{Age: &cohort.Range{Lo: 30, Hi: 60}, Genders: cohort.Only("Female")}
	second, err := svc.Dashboard(context.Background(), again)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.built[PanelKPIs])
}

func TestService_MemoDroppedOnIdentityChange(t *testing.T) {
	snaps := &stubSnapshots{snap: tenPatients(t, "v1")}
	svc := newTestService(t, snaps, nil, zerolog.Nop())

	first, err := svc.Dashboard(context.Background(), cohort.Criteria{}, PanelKPIs)
	require.NoError(t, err)

	snaps.set(tenPatients(t, "v2"))
	second, err := svc.Dashboard(context.Background(), cohort.Criteria{}, PanelKPIs)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "v2", second.Identity)
	assert.Equal(t, 1, svc.memo.Len())
}

func TestService_SinglePanel(t *testing.T) {
	svc := newTestService(t, &stubSnapshots{snap: tenPatients(t, "ten")}, nil, zerolog.Nop())

	d, err := svc.Dashboard(context.Background(), cohort.Criteria{}, PanelHospital)
	require.NoError(t, err)
	require.Len(t, d.Panels, 1)
	_, ok := d.Panel(PanelHospital)
	assert.True(t, ok)
}

func TestService_UnknownPanel(t *testing.T) {
	svc := newTestService(t, &stubSnapshots{snap: tenPatients(t, "ten")}, nil, zerolog.Nop())

	_, err := svc.Dashboard(context.Background(), cohort.Criteria{}, "vitals")
	assert.True(t, errors.Is(err, ErrUnknownPanel))
}

func TestService_InvalidCriteria(t *testing.T) {
	svc := newTestService(t, &stubSnapshots{snap: tenPatients(t, "ten")}, nil, zerolog.Nop())

	_, err := svc.Dashboard(context.Background(), cohort.Criteria{Age: &cohort.Range{Lo: 60, Hi: 30}})
	assert.Error(t, err)
	_, err = svc.Cohort(context.Background(), cohort.Criteria{Age: &cohort.Range{Lo: 60, Hi: 30}})
	assert.Error(t, err)
}

func TestService_SnapshotError(t *testing.T) {
	loadErr := &dataset.LoadError{Source: "x.xlsx", Err: errors.New("boom")}
	svc := newTestService(t, &stubSnapshots{err: loadErr}, nil, zerolog.Nop())

	_, err := svc.Dashboard(context.Background(), cohort.Criteria{})
	var target *dataset.LoadError
	assert.True(t, errors.As(err, &target))
}

func TestService_WarnsOncePerView(t *testing.T) {
	var buf bytes.Buffer
	rec := newCountingRecorder()
	svc := newTestService(t, &stubSnapshots{snap: tenPatients(t, "ten")}, rec, zerolog.New(&buf))

	_, err := svc.Dashboard(context.Background(), cohort.Criteria{}, PanelKPIs)
	require.NoError(t, err)
	_, err = svc.Dashboard(context.Background(), femaleThirtyToSixty(), PanelKPIs)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(buf.String(), `"view":"kpis.score_3"`))
	assert.Equal(t, 2, rec.unavailable["kpis.score_3"])
}

func TestService_Options(t *testing.T) {
	svc := newTestService(t, &stubSnapshots{snap: tenPatients(t, "ten")}, nil, zerolog.Nop())

	opts, err := svc.Options(context.Background())
	require.NoError(t, err)
	require.NotNil(t, opts.AgeMin)
	assert.Equal(t, 25, *opts.AgeMin)
	assert.Equal(t, 61, *opts.AgeMax)
	assert.Equal(t, []string{"Female", "Male"}, opts.Genders)
}

func TestNewService_NegativeCacheSize(t *testing.T) {
	_, err := NewService(&stubSnapshots{}, ServiceConfig{CacheSize: -1}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewService_MemoDisabled(t *testing.T) {
	svc, err := NewService(&stubSnapshots{snap: tenPatients(t, "ten")}, ServiceConfig{}, zerolog.Nop())
	require.NoError(t, err)

	first, err := svc.Dashboard(context.Background(), cohort.Criteria{}, PanelKPIs)
	require.NoError(t, err)
	second, err := svc.Dashboard(context.Background(), cohort.Criteria{}, PanelKPIs)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
