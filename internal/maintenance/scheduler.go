// Package maintenance runs the periodic decay, graph-building and temporal
// sweeps over all active memory scopes.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/scrypster/bri/internal/engine"
	"github.com/scrypster/bri/internal/storage"
	"github.com/scrypster/bri/pkg/types"
)

const (
	// staleAfter is how long a floored, unaccessed memory survives before
	// the temporal sweep deactivates it.
	staleAfter = 90 * 24 * time.Hour

	// flooredConfidence marks records that decay has fully exhausted.
	flooredConfidence = types.MinConfidence + 0.001

	sweepPageSize = 200
)

// Config tunes the sweeper.
type Config struct {
	// ActivityWindow bounds sweeps to scopes with recent record activity.
	ActivityWindow time.Duration

	// ScopesPerSecond rate-limits scope iteration so sweeps never
	// overwhelm the storage backend.
	ScopesPerSecond float64
}

func DefaultConfig() Config {
	return Config{
		ActivityWindow:  7 * 24 * time.Hour,
		ScopesPerSecond: 2,
	}
}

// Sweeper iterates active scopes and applies decay, connection building and
// temporal cleanup. Per-scope failures are logged and never abort a sweep.
type Sweeper struct {
	store      storage.Store
	confidence *engine.ConfidenceModel
	analyzer   *engine.RelationshipAnalyzer
	limiter    *rate.Limiter
	config     Config
}

func NewSweeper(store storage.Store, eng *engine.Engine, cfg Config) *Sweeper {
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = DefaultConfig().ActivityWindow
	}
	if cfg.ScopesPerSecond <= 0 {
		cfg.ScopesPerSecond = DefaultConfig().ScopesPerSecond
	}
	return &Sweeper{
		store:      store,
		confidence: eng.Confidence(),
		analyzer:   eng.Relationships(),
		limiter:    rate.NewLimiter(rate.Limit(cfg.ScopesPerSecond), 1),
		config:     cfg,
	}
}

// SweepDecay runs the decay and graph-building pass across all recently
// active scopes.
func (s *Sweeper) SweepDecay(ctx context.Context) error {
	return s.forEachScope(ctx, "decay", func(ctx context.Context, scope types.Scope) error {
		decayed, err := s.RunDecay(ctx, scope)
		if err != nil {
			return err
		}
		edges, err := s.analyzer.BuildConnections(ctx, scope)
		if err != nil {
			return err
		}
		if decayed > 0 || edges > 0 {
			log.Printf("maintenance: scope %s decayed %d records, added %d connections", scope.Key(), decayed, edges)
		}
		return nil
	})
}

// SweepTemporal runs the temporal cleanup pass: it deactivates memories
// that decayed to the floor and have not been accessed in a long time, and
// prunes connections left dangling by deactivation.
func (s *Sweeper) SweepTemporal(ctx context.Context) error {
	err := s.forEachScope(ctx, "temporal", func(ctx context.Context, scope types.Scope) error {
		retired, err := s.RunTemporalCleanup(ctx, scope)
		if err != nil {
			return err
		}
		if retired > 0 {
			log.Printf("maintenance: scope %s retired %d stale records", scope.Key(), retired)
		}
		return nil
	})
	if err != nil {
		return err
	}

	pruned, err := s.store.PruneConnections(ctx)
	if err != nil {
		return fmt.Errorf("prune connections: %w", err)
	}
	if pruned > 0 {
		log.Printf("maintenance: pruned %d dangling connections", pruned)
	}
	return nil
}

// RunDecay applies confidence decay to every non-verified record in a
// scope. Returns the number of records whose decayed confidence was
// persisted.
func (s *Sweeper) RunDecay(ctx context.Context, scope types.Scope) (int, error) {
	now := time.Now().UTC()
	decayed := 0
	offset := 0

	for {
		records, err := s.store.ListByScope(ctx, scope, storage.ListOptions{
			Limit:  sweepPageSize,
			Offset: offset,
		})
		if err != nil {
			return decayed, fmt.Errorf("list scope %s: %w", scope.Key(), err)
		}
		if len(records) == 0 {
			return decayed, nil
		}

		for _, record := range records {
			if !s.confidence.Decay(record, now) {
				continue
			}
			if err := s.store.Update(ctx, record); err != nil {
				log.Printf("maintenance: decay update failed for %s: %v", record.ID, err)
				continue
			}
			decayed++
		}

		if len(records) < sweepPageSize {
			return decayed, nil
		}
		offset += sweepPageSize
	}
}

// RunTemporalCleanup deactivates floored records with no recent access.
func (s *Sweeper) RunTemporalCleanup(ctx context.Context, scope types.Scope) (int, error) {
	now := time.Now().UTC()
	retired := 0
	offset := 0

	for {
		records, err := s.store.ListByScope(ctx, scope, storage.ListOptions{
			Limit:  sweepPageSize,
			Offset: offset,
		})
		if err != nil {
			return retired, fmt.Errorf("list scope %s: %w", scope.Key(), err)
		}
		if len(records) == 0 {
			return retired, nil
		}

		for _, record := range records {
			if !stale(record, now) {
				continue
			}
			if err := s.store.Deactivate(ctx, record.ID); err != nil {
				log.Printf("maintenance: deactivate failed for %s: %v", record.ID, err)
				continue
			}
			retired++
		}

		if len(records) < sweepPageSize {
			return retired, nil
		}
		offset += sweepPageSize
	}
}

func stale(record *types.MemoryRecord, now time.Time) bool {
	if record.Verified || record.Confidence > flooredConfidence {
		return false
	}
	lastTouched := record.UpdatedAt
	if record.LastAccessedAt != nil && record.LastAccessedAt.After(lastTouched) {
		lastTouched = *record.LastAccessedAt
	}
	return now.Sub(lastTouched) > staleAfter
}

// forEachScope iterates recently active scopes under the rate limiter.
func (s *Sweeper) forEachScope(ctx context.Context, name string, fn func(ctx context.Context, scope types.Scope) error) error {
	scopes, err := s.store.ActiveScopes(ctx, s.config.ActivityWindow)
	if err != nil {
		return fmt.Errorf("list active scopes: %w", err)
	}
	log.Printf("maintenance: %s sweep over %d scopes", name, len(scopes))

	for _, activity := range scopes {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := fn(ctx, activity.Scope); err != nil {
			log.Printf("maintenance: %s sweep failed for scope %s: %v", name, activity.Scope.Key(), err)
		}
	}
	return nil
}

// Scheduler runs the sweeps on their configured intervals.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
}

// NewScheduler registers the decay and temporal sweeps with the given
// intervals. Zero intervals fall back to 24h and 12h.
func NewScheduler(sweeper *Sweeper, decayInterval, temporalInterval time.Duration) (*Scheduler, error) {
	if decayInterval <= 0 {
		decayInterval = 24 * time.Hour
	}
	if temporalInterval <= 0 {
		temporalInterval = 12 * time.Hour
	}

	s := &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
	}

	if _, err := s.cron.AddFunc("@every "+decayInterval.String(), func() {
		if err := sweeper.SweepDecay(context.Background()); err != nil {
			log.Printf("maintenance: decay sweep aborted: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule decay sweep: %w", err)
	}

	if _, err := s.cron.AddFunc("@every "+temporalInterval.String(), func() {
		if err := sweeper.SweepTemporal(context.Background()); err != nil {
			log.Printf("maintenance: temporal sweep aborted: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule temporal sweep: %w", err)
	}

	return s, nil
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("maintenance: scheduler started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("maintenance: scheduler stopped")
}
