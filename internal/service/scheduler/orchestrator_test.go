package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/domain/event"
	"github.com/astraldesk/skywall/internal/metrics"
)

// fakeFetcher implements port.ImageFetcher and records prefetch calls
type fakeFetcher struct {
	mu         sync.Mutex
	prefetches []domain.Theme
}

func (f *fakeFetcher) EnsureCached(ctx context.Context, id string) (string, error) {
	return "/cache/" + id + ".jpg", nil
}

func (f *fakeFetcher) Prefetch(ctx context.Context, filter domain.Theme, count int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetches = append(f.prefetches, filter)
	return 0, nil
}

func (f *fakeFetcher) prefetchedFilters() []domain.Theme {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Theme(nil), f.prefetches...)
}

type orchFixture struct {
	orch     *Orchestrator
	selector *fakeSelector
	fetcher  *fakeFetcher
	applier  *fakeApplier
	events   *event.InMemoryDispatcher
}

func newOrchFixture(t *testing.T, screens []domain.ScreenConfig) *orchFixture {
	t.Helper()
	fx := &orchFixture{
		selector: &fakeSelector{},
		fetcher:  &fakeFetcher{},
		applier:  &fakeApplier{},
		events:   event.NewInMemoryDispatcher(false),
	}
	cfg := &Config{TickTimeout: time.Second, PrefetchCount: 2}
	fx.orch = New(cfg, fx.selector, fx.fetcher, fx.applier, fx.events,
		metrics.NewCollector(prometheus.NewRegistry()), zap.NewNop())

	if err := fx.orch.Start(context.Background(), screens); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(fx.orch.Stop)
	return fx
}

func (fx *orchFixture) statusByID(t *testing.T, id string) domain.ScreenStatus {
	t.Helper()
	for _, st := range fx.orch.Statuses() {
		if st.ID == id {
			return st
		}
	}
	t.Fatalf("screen %s not in statuses", id)
	return domain.ScreenStatus{}
}

func TestOrchestrator_StartsEnabledScreens(t *testing.T) {
	disabled := testScreenConfig("screen-2", time.Hour)
	disabled.Enabled = false
	fx := newOrchFixture(t, []domain.ScreenConfig{
		testScreenConfig("screen-0", time.Hour),
		testScreenConfig("screen-1", time.Hour),
		disabled,
	})

	waitUntil(t, 2*time.Second, "both screens applied", func() bool {
		return fx.applier.count() >= 2
	})

	statuses := fx.orch.Statuses()
	if len(statuses) != 3 {
		t.Fatalf("Statuses() returned %d entries, want 3", len(statuses))
	}
	if st := fx.statusByID(t, "screen-0"); st.State != domain.ScreenRunning {
		t.Errorf("screen-0 state = %s, want running", st.State)
	}
	if st := fx.statusByID(t, "screen-2"); st.State != domain.ScreenStopped {
		t.Errorf("disabled screen-2 state = %s, want stopped", st.State)
	}

	if keys := fx.orch.ActiveKeys(); len(keys) != 2 {
		t.Errorf("ActiveKeys() = %d keys, want 2", len(keys))
	}
}

func TestOrchestrator_ApplyConfigsDiff(t *testing.T) {
	fx := newOrchFixture(t, []domain.ScreenConfig{
		testScreenConfig("screen-0", time.Hour),
		testScreenConfig("screen-1", time.Hour),
	})
	waitUntil(t, 2*time.Second, "initial applies", func() bool { return fx.applier.count() >= 2 })

	// screen-0 changes filter, screen-1 disappears, screen-2 is new.
	changed := testScreenConfig("screen-0", time.Hour)
	changed.Theme = domain.ThemeMoon
	fx.orch.ApplyConfigs([]domain.ScreenConfig{
		changed,
		testScreenConfig("screen-2", time.Hour),
	})

	if st := fx.statusByID(t, "screen-0"); st.Theme != domain.ThemeMoon {
		t.Errorf("screen-0 theme = %s after reconfigure, want moon", st.Theme)
	}
	waitUntil(t, 2*time.Second, "screen-2 running", func() bool {
		return fx.statusByID(t, "screen-2").State == domain.ScreenRunning
	})

	for _, st := range fx.orch.Statuses() {
		if st.ID == "screen-1" {
			t.Errorf("removed screen-1 still reported: %+v", st)
		}
	}
	if keys := fx.orch.ActiveKeys(); len(keys) != 2 {
		t.Errorf("ActiveKeys() = %d keys, want 2", len(keys))
	}
}

func TestOrchestrator_ApplyConfigsSkipsInvalid(t *testing.T) {
	fx := newOrchFixture(t, nil)

	invalid := testScreenConfig("", time.Hour)
	fx.orch.ApplyConfigs([]domain.ScreenConfig{invalid, testScreenConfig("screen-0", time.Hour)})

	if keys := fx.orch.ActiveKeys(); len(keys) != 1 {
		t.Errorf("ActiveKeys() = %d, want 1 (invalid config skipped)", len(keys))
	}
}

func TestOrchestrator_AttachDetach(t *testing.T) {
	fx := newOrchFixture(t, nil)

	screen := testScreenConfig("screen-9", time.Hour)
	if err := fx.orch.AttachScreen(screen); err != nil {
		t.Fatalf("AttachScreen() error: %v", err)
	}
	waitUntil(t, 2*time.Second, "attached screen applies", func() bool {
		return fx.applier.count() >= 1
	})

	if err := fx.orch.AttachScreen(screen); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("second AttachScreen() error = %v, want ErrAlreadyRunning", err)
	}

	if err := fx.orch.DetachScreen("screen-9"); err != nil {
		t.Fatalf("DetachScreen() error: %v", err)
	}
	if err := fx.orch.DetachScreen("screen-9"); !errors.Is(err, domain.ErrScreenNotFound) {
		t.Errorf("second DetachScreen() error = %v, want ErrScreenNotFound", err)
	}
}

func TestOrchestrator_ScreenControls(t *testing.T) {
	fx := newOrchFixture(t, []domain.ScreenConfig{testScreenConfig("screen-0", time.Hour)})
	waitUntil(t, 2*time.Second, "initial apply", func() bool { return fx.applier.count() == 1 })

	if err := fx.orch.TriggerNext("screen-0"); err != nil {
		t.Fatalf("TriggerNext() error: %v", err)
	}
	if got := fx.applier.count(); got != 2 {
		t.Errorf("applies after TriggerNext = %d, want 2", got)
	}

	if err := fx.orch.Pause("screen-0"); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	if st := fx.statusByID(t, "screen-0"); st.State != domain.ScreenPaused {
		t.Errorf("state after pause = %s", st.State)
	}
	if err := fx.orch.Resume("screen-0"); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if st := fx.statusByID(t, "screen-0"); st.State != domain.ScreenRunning {
		t.Errorf("state after resume = %s", st.State)
	}

	if err := fx.orch.StopScreen("screen-0"); err != nil {
		t.Fatalf("StopScreen() error: %v", err)
	}
	if st := fx.statusByID(t, "screen-0"); st.State != domain.ScreenStopped {
		t.Errorf("state after stop = %s", st.State)
	}
	if err := fx.orch.TriggerNext("screen-0"); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("TriggerNext() on stopped screen error = %v, want ErrNotRunning", err)
	}

	if err := fx.orch.StartScreen("screen-0"); err != nil {
		t.Fatalf("StartScreen() error: %v", err)
	}
	waitUntil(t, 2*time.Second, "restarted apply", func() bool {
		return fx.statusByID(t, "screen-0").State == domain.ScreenRunning
	})

	if err := fx.orch.TriggerNext("screen-unknown"); !errors.Is(err, domain.ErrScreenNotFound) {
		t.Errorf("TriggerNext() on unknown screen error = %v, want ErrScreenNotFound", err)
	}
}

func TestOrchestrator_ConfigUpdatedEvent(t *testing.T) {
	fx := newOrchFixture(t, []domain.ScreenConfig{testScreenConfig("screen-0", time.Hour)})

	fx.events.Dispatch(event.NewConfigUpdated([]domain.ScreenConfig{
		testScreenConfig("screen-1", time.Hour),
	}))

	waitUntil(t, 2*time.Second, "screen-1 running", func() bool {
		for _, key := range fx.orch.ActiveKeys() {
			if key.ScreenID == "screen-1" {
				return true
			}
		}
		return false
	})
	for _, key := range fx.orch.ActiveKeys() {
		if key.ScreenID == "screen-0" {
			t.Error("screen-0 still active after config replaced it")
		}
	}
}

func TestOrchestrator_CatalogSyncedWarmsCache(t *testing.T) {
	moon := testScreenConfig("screen-1", time.Hour)
	moon.Theme = domain.ThemeMoon
	fx := newOrchFixture(t, []domain.ScreenConfig{
		testScreenConfig("screen-0", time.Hour),
		moon,
	})

	fx.events.Dispatch(event.NewCatalogSynced(10, 10, time.Second))

	waitUntil(t, 2*time.Second, "prefetch per filter", func() bool {
		return len(fx.fetcher.prefetchedFilters()) == 2
	})
	seen := make(map[domain.Theme]bool)
	for _, filter := range fx.fetcher.prefetchedFilters() {
		seen[filter] = true
	}
	if !seen[domain.ThemeMars] || !seen[domain.ThemeMoon] {
		t.Errorf("prefetched filters = %v, want mars and moon", fx.fetcher.prefetchedFilters())
	}
}

func TestOrchestrator_StopShutsDownAllScreens(t *testing.T) {
	fx := newOrchFixture(t, []domain.ScreenConfig{
		testScreenConfig("screen-0", 20*time.Millisecond),
		testScreenConfig("screen-1", 20*time.Millisecond),
	})
	waitUntil(t, 2*time.Second, "screens ticking", func() bool { return fx.applier.count() >= 2 })

	fx.orch.Stop()

	if keys := fx.orch.ActiveKeys(); len(keys) != 0 {
		t.Errorf("ActiveKeys() after stop = %d, want 0", len(keys))
	}
	frozen := fx.applier.count()
	time.Sleep(60 * time.Millisecond)
	if got := fx.applier.count(); got != frozen {
		t.Errorf("applies advanced to %d after Stop() (was %d)", got, frozen)
	}

	if err := fx.orch.TriggerNext("screen-0"); !errors.Is(err, domain.ErrNotRunning) {
		t.Errorf("TriggerNext() after stop error = %v, want ErrNotRunning", err)
	}
}

func TestOrchestrator_ScreenAttachedEvent(t *testing.T) {
	fx := newOrchFixture(t, nil)

	fx.events.Dispatch(event.NewScreenAttached(testScreenConfig("screen-5", time.Hour)))
	waitUntil(t, 2*time.Second, "hot-plugged screen running", func() bool {
		return len(fx.orch.ActiveKeys()) == 1
	})

	fx.events.Dispatch(event.NewScreenDetached("screen-5"))
	waitUntil(t, 2*time.Second, "hot-unplugged screen stopped", func() bool {
		return len(fx.orch.ActiveKeys()) == 0
	})
}
