package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/exascience/pargo/parallel"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ehr/hfanalytics/internal/domain/cohort"
	"github.com/ehr/hfanalytics/internal/domain/dataset"
)

// ErrUnknownPanel is returned for a panel id outside PanelIDs.
var ErrUnknownPanel = errors.New("unknown panel")

// SnapshotProvider yields the current derived snapshot.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*dataset.Snapshot, error)
}

// Recorder receives dashboard metrics.
type Recorder interface {
	DashboardBuilt(panel string)
	DashboardCacheHit()
	ViewUnavailable(view string)
}

type nopRecorder struct{}

func (nopRecorder) DashboardBuilt(string)  {}
func (nopRecorder) DashboardCacheHit()     {}
func (nopRecorder) ViewUnavailable(string) {}

// ServiceConfig holds Service settings.
type ServiceConfig struct {
	// CacheSize bounds the number of memoized dashboards; 0 disables the memo.
	CacheSize int
	Recorder  Recorder
}

// Service filters cohorts and builds dashboards over the current snapshot.
// Dashboards are memoized by snapshot identity and canonical criteria; the
// memo is dropped whenever the snapshot identity changes.
type Service struct {
	snapshots SnapshotProvider
	recorder  Recorder
	logger    zerolog.Logger

	memo  *lru.Cache[string, *Dashboard]
	group singleflight.Group

	mu       sync.Mutex
	identity string

	warned sync.Map
	now    func() time.Time
}

// NewService creates a Service.
func NewService(snapshots SnapshotProvider, cfg ServiceConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("dashboard cache size must be non-negative, got %d", cfg.CacheSize)
	}
	s := &Service{
		snapshots: snapshots,
		recorder:  cfg.Recorder,
		logger:    logger.With().Str("component", "dashboard").Logger(),
		now:       time.Now,
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if cfg.CacheSize > 0 {
		memo, err := lru.New[string, *Dashboard](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create dashboard memo: %w", err)
		}
		s.memo = memo
	}
	return s, nil
}

// snapshot fetches the current snapshot and drops the memo when its identity
// differs from the one the memo was filled from.
func (s *Service) snapshot(ctx context.Context) (*dataset.Snapshot, error) {
	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.identity != snap.Identity {
		if s.memo != nil && s.identity != "" {
			s.memo.Purge()
			s.logger.Info().Str("identity", snap.Identity).Msg("dataset changed, dashboard memo dropped")
		}
		s.identity = snap.Identity
	}
	s.mu.Unlock()
	return snap, nil
}

// Options returns the filter choices of the current snapshot.
func (s *Service) Options(ctx context.Context) (cohort.Options, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return cohort.Options{}, err
	}
	return cohort.OptionsFor(snap), nil
}

// Cohort applies criteria to the current snapshot.
func (s *Service) Cohort(ctx context.Context, criteria cohort.Criteria) (*cohort.Cohort, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return cohort.Apply(snap, criteria), nil
}

// Dashboard builds the requested panels, or every panel when none is named,
// for the cohort selected by criteria.
func (s *Service) Dashboard(ctx context.Context, criteria cohort.Criteria, panels ...string) (*Dashboard, error) {
	if len(panels) == 0 {
		panels = PanelIDs
	}
	for _, id := range panels {
		if !KnownPanel(id) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPanel, id)
		}
	}
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	key := snap.Identity + "|" + criteria.Key() + "|" + strings.Join(panels, ",")
	if s.memo != nil {
		if d, ok := s.memo.Get(key); ok {
			s.recorder.DashboardCacheHit()
			return d, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		d := s.build(snap, criteria, panels)
		if s.memo != nil {
			s.memo.Add(key, d)
		}
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dashboard), nil
}

func (s *Service) build(snap *dataset.Snapshot, criteria cohort.Criteria, ids []string) *Dashboard {
	c := cohort.Apply(snap, criteria)

	panels := make([]Panel, len(ids))
	parallel.Range(0, len(ids), 0, func(low, high int) {
		for i := low; i < high; i++ {
			panels[i], _ = BuildPanel(ids[i], c)
		}
	})

	for _, p := range panels {
		s.recorder.DashboardBuilt(p.ID)
		for _, v := range p.Views {
			if v.Available {
				continue
			}
			view := p.ID + "." + v.ID
			s.recorder.ViewUnavailable(view)
			if _, seen := s.warned.LoadOrStore(snap.Identity+"|"+view, true); !seen {
				s.logger.Warn().
					Str("view", view).
					Strs("columns", v.Missing).
					Str("error", v.Error).
					Msg("view unavailable")
			}
		}
	}

	return &Dashboard{
		Identity:    snap.Identity,
		Criteria:    criteria.Key(),
		CohortSize:  c.Size(),
		Total:       c.Total,
		GeneratedAt: s.now().UTC(),
		Panels:      panels,
	}
}
