package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ehr/hfanalytics/internal/domain/dataset"
	"github.com/ehr/hfanalytics/internal/domain/features"
)

// Recorder receives load metrics.
type Recorder interface {
	DatasetLoaded(rows map[string]int, err error)
}

// Cache holds the derived snapshot of a loader. The snapshot is reloaded
// and derived again only when the loader's identity changes; concurrent
// callers share one load. Once a snapshot is held it keeps being served when
// the source becomes unreadable or a reload fails. A failed identity is not
// retried until the source changes again.
type Cache struct {
	loader   Loader
	logger   zerolog.Logger
	recorder Recorder

	group singleflight.Group

	mu     sync.RWMutex
	snap   *dataset.Snapshot
	failed string
}

func NewCache(loader Loader, logger zerolog.Logger, recorder Recorder) *Cache {
	return &Cache{
		loader:   loader,
		logger:   logger.With().Str("component", "dataset").Logger(),
		recorder: recorder,
	}
}

// Snapshot returns the derived snapshot for the loader's current identity.
func (c *Cache) Snapshot(ctx context.Context) (*dataset.Snapshot, error) {
	c.mu.RLock()
	snap, failed := c.snap, c.failed
	c.mu.RUnlock()

	identity, err := c.loader.Identity()
	if err != nil {
		if snap != nil {
			c.logger.Warn().Err(err).Str("identity", snap.Identity).Msg("dataset source unreadable, serving cached snapshot")
			return snap, nil
		}
		return nil, err
	}
	if snap != nil && (snap.Identity == identity || failed == identity) {
		return snap, nil
	}

	v, err, _ := c.group.Do(identity, func() (interface{}, error) {
		return c.load(ctx, identity)
	})
	if err != nil {
		if snap != nil {
			c.logger.Warn().Err(err).Str("identity", snap.Identity).Msg("dataset reload failed, serving cached snapshot")
			return snap, nil
		}
		return nil, err
	}
	return v.(*dataset.Snapshot), nil
}

func (c *Cache) load(ctx context.Context, identity string) (*dataset.Snapshot, error) {
	start := time.Now()
	raw, err := c.loader.Load(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("dataset load failed")
		c.fail(identity, err)
		return nil, err
	}
	snap, warnings, err := features.Derive(raw)
	if err != nil {
		c.logger.Error().Err(err).Msg("feature derivation failed")
		c.fail(identity, err)
		return nil, err
	}
	for _, w := range warnings {
		c.logger.Warn().
			Str("relation", w.Relation).
			Str("feature", w.Feature).
			Strs("columns", w.Missing).
			Msg("derived feature skipped")
	}

	rows := make(map[string]int, len(dataset.Sheets))
	for _, rel := range snap.Relations() {
		rows[rel.Name()] = rel.Len()
	}
	c.logger.Info().
		Str("identity", snap.Identity).
		Int("patients", snap.Demography.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("dataset loaded")
	c.record(rows, nil)

	c.mu.Lock()
	c.snap = snap
	c.failed = ""
	c.mu.Unlock()
	return snap, nil
}

func (c *Cache) fail(identity string, err error) {
	c.record(nil, err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.mu.Lock()
	c.failed = identity
	c.mu.Unlock()
}

func (c *Cache) record(rows map[string]int, err error) {
	if c.recorder != nil {
		c.recorder.DatasetLoaded(rows, err)
	}
}
