package maintenance

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/adapter/filesystem"
	"github.com/astraldesk/skywall/internal/adapter/sqlite"
	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/domain/event"
	"github.com/astraldesk/skywall/internal/metrics"
)

// fixedKeys implements port.ActiveKeySource with a static key list
type fixedKeys struct {
	keys []domain.RotationKey
}

func (f *fixedKeys) ActiveKeys() []domain.RotationKey { return f.keys }

// captureDispatcher records dispatched events
type captureDispatcher struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (d *captureDispatcher) Dispatch(e event.DomainEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}
func (d *captureDispatcher) Subscribe(h event.Handler)   {}
func (d *captureDispatcher) Unsubscribe(h event.Handler) {}

func (d *captureDispatcher) evictedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if e.EventName() == event.NameImageEvicted {
			n++
		}
	}
	return n
}

type janitorFixture struct {
	service *Service
	store   *sqlite.Store
	cache   *filesystem.Cache
	keys    *fixedKeys
	events  *captureDispatcher
	config  *Config
}

func newJanitorFixture(t *testing.T, cfg *Config) *janitorFixture {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "skywall.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cache, err := filesystem.NewCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewCache() error: %v", err)
	}

	if cfg == nil {
		cfg = &Config{Interval: time.Hour, PartMaxAge: time.Hour, EvictBatch: 16}
	}

	fx := &janitorFixture{
		store:  store,
		cache:  cache,
		keys:   &fixedKeys{},
		events: &captureDispatcher{},
		config: cfg,
	}
	fx.service = New(cfg, store, store, cache, fx.keys, fx.events,
		metrics.NewCollector(prometheus.NewRegistry()), zap.NewNop())
	return fx
}

// jpegBody builds sniffable image bytes with a payload for distinct hashes
func jpegBody(payload string) []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, []byte(payload)...)
}

// seedCached registers an image in the catalog with its bytes on disk
func (fx *janitorFixture) seedCached(t *testing.T, url string, theme domain.Theme, body []byte) (string, string) {
	t.Helper()

	rec := domain.NewImageRecord(url, theme, filepath.Base(url))
	if _, err := fx.store.UpsertImages([]domain.ImageRecord{rec}); err != nil {
		t.Fatalf("UpsertImages() error: %v", err)
	}

	staged, err := fx.cache.Stage(rec.ID, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	path, err := fx.cache.Promote(staged, ".jpg")
	if err != nil {
		t.Fatalf("Promote() error: %v", err)
	}
	if err := fx.store.SetCached(rec.ID, path, staged.Hash, staged.Size); err != nil {
		t.Fatalf("SetCached() error: %v", err)
	}
	return rec.ID, path
}

func (fx *janitorFixture) cachedCount(t *testing.T) int {
	t.Helper()
	records, err := fx.store.ListCached()
	if err != nil {
		t.Fatalf("ListCached() error: %v", err)
	}
	return len(records)
}

func TestService_CleansStaleParts(t *testing.T) {
	fx := newJanitorFixture(t, nil)

	stale := filepath.Join(fx.cache.RootDir(), "abandoned.part")
	if err := os.WriteFile(stale, []byte("xx"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes() error: %v", err)
	}
	fresh := filepath.Join(fx.cache.RootDir(), "active.part")
	if err := os.WriteFile(fresh, []byte("yy"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	fx.service.RunOnce()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale .part file survived the janitor")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh .part file removed: %v", err)
	}
}

func TestService_ClearsRecordsWithMissingFiles(t *testing.T) {
	fx := newJanitorFixture(t, nil)
	lostID, lostPath := fx.seedCached(t, "https://a.test/mars/lost.jpg", domain.ThemeMars, jpegBody("lost"))
	keptID, _ := fx.seedCached(t, "https://a.test/mars/kept.jpg", domain.ThemeMars, jpegBody("kept"))

	if err := os.Remove(lostPath); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	fx.service.RunOnce()

	lost, err := fx.store.GetImage(lostID)
	if err != nil {
		t.Fatalf("GetImage() error: %v", err)
	}
	if lost.Cached() {
		t.Error("record still points at a missing file")
	}

	kept, err := fx.store.GetImage(keptID)
	if err != nil {
		t.Fatalf("GetImage() error: %v", err)
	}
	if !kept.Cached() {
		t.Error("record with intact file was cleared")
	}
}

func TestService_EnforcesCacheBudget(t *testing.T) {
	fx := newJanitorFixture(t, &Config{
		Interval:   time.Hour,
		PartMaxAge: time.Hour,
		EvictBatch: 16,
	})

	// Three equally sized images; squeeze the budget so exactly one must go.
	var size int64
	for i := 0; i < 3; i++ {
		_, path := fx.seedCached(t,
			fmt.Sprintf("https://a.test/mars/b%d.jpg", i), domain.ThemeMars,
			jpegBody(fmt.Sprintf("body%d", i)))
		if size == 0 {
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("Stat() error: %v", err)
			}
			size = info.Size()
		}
	}
	fx.config.MaxCacheBytes = 2*size + size/2

	fx.service.RunOnce()

	if got := fx.cachedCount(t); got != 2 {
		t.Errorf("cached records after eviction = %d, want 2", got)
	}
	total, err := fx.cache.Size()
	if err != nil {
		t.Fatalf("Size() error: %v", err)
	}
	if total > fx.config.MaxCacheBytes {
		t.Errorf("cache size %d still over budget %d", total, fx.config.MaxCacheBytes)
	}
	if got := fx.events.evictedCount(); got != 1 {
		t.Errorf("ImageEvicted events = %d, want 1", got)
	}
}

func TestService_EvictionSparesUnshownImages(t *testing.T) {
	fx := newJanitorFixture(t, &Config{
		Interval:      time.Hour,
		PartMaxAge:    time.Hour,
		EvictBatch:    16,
		MaxCacheBytes: 1, // force eviction pressure
	})

	shownID, _ := fx.seedCached(t, "https://a.test/mars/shown.jpg", domain.ThemeMars, jpegBody("shown"))
	unshownID, _ := fx.seedCached(t, "https://a.test/mars/unshown.jpg", domain.ThemeMars, jpegBody("unshown"))

	key := domain.RotationKey{ScreenID: "screen-0", Filter: domain.ThemeMars}
	if err := fx.store.MarkShown(key, shownID); err != nil {
		t.Fatalf("MarkShown() error: %v", err)
	}
	fx.keys.keys = []domain.RotationKey{key}

	fx.service.RunOnce()

	shown, _ := fx.store.GetImage(shownID)
	if shown.Cached() {
		t.Error("already-shown image survived eviction pressure")
	}
	unshown, _ := fx.store.GetImage(unshownID)
	if !unshown.Cached() {
		t.Error("unshown image was evicted from an active rotation")
	}
}

func TestService_SharedBlobSurvivesUntilLastReference(t *testing.T) {
	fx := newJanitorFixture(t, &Config{
		Interval:      time.Hour,
		PartMaxAge:    time.Hour,
		EvictBatch:    1, // one eviction per run
		MaxCacheBytes: 1,
	})

	// Identical bytes under two source URLs share one cache file.
	body := jpegBody("same bytes")
	_, pathA := fx.seedCached(t, "https://a.test/mars/a.jpg", domain.ThemeMars, body)
	_, pathB := fx.seedCached(t, "https://a.test/moon/b.jpg", domain.ThemeMoon, body)
	if pathA != pathB {
		t.Fatalf("identical bytes produced distinct paths %q and %q", pathA, pathB)
	}

	fx.service.RunOnce()

	// One record detached, but the file still backs the other.
	if got := fx.cachedCount(t); got != 1 {
		t.Fatalf("cached records after first run = %d, want 1", got)
	}
	if !fx.cache.Exists(pathA) {
		t.Fatal("shared cache file removed while still referenced")
	}

	fx.service.RunOnce()

	if got := fx.cachedCount(t); got != 0 {
		t.Errorf("cached records after second run = %d, want 0", got)
	}
	if fx.cache.Exists(pathA) {
		t.Error("cache file survived its last reference")
	}
}

func TestService_StartStop(t *testing.T) {
	fx := newJanitorFixture(t, &Config{
		Interval:   20 * time.Millisecond,
		PartMaxAge: time.Hour,
		EvictBatch: 16,
	})

	stale := filepath.Join(fx.cache.RootDir(), "leftover.part")
	if err := os.WriteFile(stale, []byte("xx"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fx.service.Start(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(stale); os.IsNotExist(err) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("initial janitor run never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	fx.service.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
