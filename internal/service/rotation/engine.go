// Package rotation selects the next wallpaper for a screen. Every image in
// the eligible pool is shown exactly once before any repeats, selections are
// uniformly random within a cycle, and the shown history is durable so a
// restart never restarts an in-progress cycle.
package rotation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/metrics"
	"github.com/astraldesk/skywall/internal/port"
)

// Engine implements duplicate-free random selection per rotation key
type Engine struct {
	images   port.ImageRepository
	rotation port.RotationRepository
	fetcher  port.ImageFetcher
	metrics  metrics.MetricsCollector
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[domain.RotationKey]*sync.Mutex
	// pending holds rotation history the store has not accepted yet,
	// keyed like the durable state. Selection keeps working from it while
	// persistence is down and flushes it on the next successful write.
	pending map[domain.RotationKey]*pendingState

	rngMu sync.Mutex
	rng   *rand.Rand
}

// pendingState is the in-memory overlay for one key while the store is
// rejecting writes
type pendingState struct {
	resetPending bool
	shown        map[string]struct{}
	lastShown    string
}

// New creates a new Engine
func New(
	images port.ImageRepository,
	rotation port.RotationRepository,
	fetcher port.ImageFetcher,
	collector metrics.MetricsCollector,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		images:   images,
		rotation: rotation,
		fetcher:  fetcher,
		metrics:  collector,
		logger:   logger,
		locks:    make(map[domain.RotationKey]*sync.Mutex),
		pending:  make(map[domain.RotationKey]*pendingState),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectNext picks the next image for a screen and filter, downloads it if
// needed, durably records the showing and returns the record with its cache
// path resolved.
//
// Within a cycle no image repeats; when the pool is exhausted the cycle
// resets and the first pick of the new cycle avoids the previously shown
// image unless it is the only one. A candidate that fails to download is
// dropped for this call and selection retries with the rest.
func (e *Engine) SelectNext(ctx context.Context, screenID string, filter domain.Theme) (*domain.ImageRecord, error) {
	key := domain.RotationKey{ScreenID: screenID, Filter: filter}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	records, err := e.images.ListByTheme(filter)
	if err != nil {
		e.metrics.RecordSelection(metrics.ResultError)
		return nil, domain.NewStorageError("list images", err)
	}
	if len(records) == 0 {
		e.metrics.RecordSelection(metrics.ResultNoEligible)
		return nil, domain.ErrNoEligibleImages
	}

	byID := make(map[string]*domain.ImageRecord, len(records))
	pool := make([]string, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		pool = append(pool, rec.ID)
	}

	state := e.loadState(key)

	if state.Exhausted(pool) {
		e.reset(key, state)
	}

	candidates := make([]string, 0, len(pool))
	for _, id := range pool {
		if !state.IsShown(id) {
			candidates = append(candidates, id)
		}
	}

	// At a cycle boundary the whole pool is eligible again; skip the image
	// still on the screen so the boundary is not an immediate repeat. A
	// one-image pool has nothing else to offer.
	if len(candidates) == len(pool) && len(pool) > 1 && state.LastShown != "" {
		kept := candidates[:0]
		for _, id := range candidates {
			if id != state.LastShown {
				kept = append(kept, id)
			}
		}
		candidates = kept
	}

	for len(candidates) > 0 {
		if err := ctx.Err(); err != nil {
			// Deadline hit mid-selection. Nothing was shown, so the
			// rotation state stays untouched for this tick.
			e.metrics.RecordSelection(metrics.ResultFetchExhausted)
			return nil, fmt.Errorf("%w: %v", domain.ErrFetchExhausted, err)
		}

		idx := e.intn(len(candidates))
		id := candidates[idx]

		path, err := e.fetcher.EnsureCached(ctx, id)
		if err != nil {
			e.logger.Warn("selection candidate failed to fetch",
				zap.String("key", key.String()),
				zap.String("image_id", id),
				zap.Error(err))
			candidates = append(candidates[:idx], candidates[idx+1:]...)
			continue
		}

		e.markShown(key, state, id)

		rec := byID[id]
		rec.CachePath = path

		e.metrics.RecordSelection(metrics.ResultOK)
		e.logger.Debug("image selected",
			zap.String("key", key.String()),
			zap.String("image_id", id),
			zap.Int64("cycle", state.Cycle),
			zap.Int("shown", len(state.Shown)),
			zap.Int("pool", len(pool)))
		return rec, nil
	}

	e.metrics.RecordSelection(metrics.ResultFetchExhausted)
	return nil, domain.ErrFetchExhausted
}

// CycleCount reports the current cycle number for a key, 0 when unknown.
// Used by the status surface.
func (e *Engine) CycleCount(screenID string, filter domain.Theme) int64 {
	key := domain.RotationKey{ScreenID: screenID, Filter: filter}
	lock := e.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.rotation.GetRotationState(key)
	if err != nil {
		return 0
	}
	cycle := state.Cycle
	if ov := e.overlay(key); ov != nil && ov.resetPending {
		cycle++
	}
	return cycle
}

// loadState reads the durable state and merges the in-memory overlay over
// it. Called with the key lock held.
func (e *Engine) loadState(key domain.RotationKey) *domain.RotationState {
	state, err := e.rotation.GetRotationState(key)
	if err != nil {
		e.logger.Error("rotation state unavailable, selecting from memory",
			zap.String("key", key.String()),
			zap.Error(err))
		state = domain.NewRotationState(key)
	}

	ov := e.overlay(key)
	if ov == nil {
		return state
	}

	if ov.resetPending {
		// The durable shown set belongs to the finished cycle. Our truth
		// is the post-reset history held in the overlay.
		state.Reset()
	}
	for id := range ov.shown {
		state.Shown[id] = struct{}{}
	}
	if ov.lastShown != "" {
		state.LastShown = ov.lastShown
	}
	return state
}

// reset starts a new cycle, durably when the store cooperates. Called with
// the key lock held.
func (e *Engine) reset(key domain.RotationKey, state *domain.RotationState) {
	if err := e.rotation.ResetRotation(key); err != nil {
		e.logger.Error("cycle reset not persisted, tracking in memory",
			zap.String("key", key.String()),
			zap.Error(err))
		ov := e.ensureOverlay(key)
		ov.resetPending = true
		ov.shown = make(map[string]struct{})
	} else {
		e.dropOverlay(key)
	}

	state.Reset()
	e.metrics.RecordCycleReset()
	e.logger.Info("rotation cycle complete, starting over",
		zap.String("key", key.String()),
		zap.Int64("cycle", state.Cycle))
}

// markShown records a presentation, falling back to the overlay when the
// store rejects the write. Earlier unflushed history is retried first so
// the durable state never mixes two cycles. Called with the key lock held.
func (e *Engine) markShown(key domain.RotationKey, state *domain.RotationState, id string) {
	state.MarkShown(id)

	ov := e.overlay(key)
	if ov != nil && ov.resetPending {
		if err := e.rotation.ResetRotation(key); err != nil {
			// Still down. Writing the show now would attach it to the
			// finished cycle, so it stays in memory too.
			ov.shown[id] = struct{}{}
			ov.lastShown = id
			return
		}
		ov.resetPending = false
	}

	if ov != nil {
		for pending := range ov.shown {
			if err := e.rotation.MarkShown(key, pending); err != nil {
				break
			}
			delete(ov.shown, pending)
		}
	}

	if err := e.rotation.MarkShown(key, id); err != nil {
		e.logger.Error("showing not persisted, tracking in memory",
			zap.String("key", key.String()),
			zap.String("image_id", id),
			zap.Error(err))
		ov = e.ensureOverlay(key)
		ov.shown[id] = struct{}{}
		ov.lastShown = id
		return
	}

	if ov != nil && len(ov.shown) == 0 && !ov.resetPending {
		e.dropOverlay(key)
	}
}

func (e *Engine) keyLock(key domain.RotationKey) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}

func (e *Engine) overlay(key domain.RotationKey) *pendingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending[key]
}

func (e *Engine) ensureOverlay(key domain.RotationKey) *pendingState {
	e.mu.Lock()
	defer e.mu.Unlock()
	ov, ok := e.pending[key]
	if !ok {
		ov = &pendingState{shown: make(map[string]struct{})}
		e.pending[key] = ov
	}
	return ov
}

func (e *Engine) dropOverlay(key domain.RotationKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, key)
}

// intn serializes access to the shared random source
func (e *Engine) intn(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}
