package domain

import "testing"

func TestImageID_Stable(t *testing.T) {
	a := ImageID("https://archive.example/photos/mars/olympus.jpg")
	b := ImageID("https://archive.example/photos/mars/olympus.jpg")
	c := ImageID("https://archive.example/photos/mars/valles.jpg")

	if a != b {
		t.Errorf("ImageID not stable: %q != %q", a, b)
	}
	if a == c {
		t.Error("distinct URLs produced the same identifier")
	}
	if len(a) != idHexLen {
		t.Errorf("identifier length = %d, want %d", len(a), idHexLen)
	}
}

func TestImageRecord_CacheLifecycle(t *testing.T) {
	rec := NewImageRecord("https://archive.example/photos/moon/tycho.jpg", ThemeMoon, "tycho.jpg")

	if rec.Cached() {
		t.Fatal("new record should not be cached")
	}

	rec.MarkCached("/var/cache/ab12.jpg", "ab12", 2048)
	if !rec.Cached() {
		t.Fatal("record should be cached after MarkCached")
	}
	if rec.ByteSize != 2048 || rec.FetchedAt == nil || rec.VerifiedAt == nil {
		t.Errorf("MarkCached left fields unset: size=%d fetched=%v verified=%v",
			rec.ByteSize, rec.FetchedAt, rec.VerifiedAt)
	}

	rec.ClearCache()
	if rec.Cached() || rec.ContentHash != "" || rec.FetchedAt != nil {
		t.Error("ClearCache should detach the record from local bytes")
	}
}

func TestRotationState_MarkShownAndReset(t *testing.T) {
	state := NewRotationState(RotationKey{ScreenID: "screen-0", Filter: ThemeMars})

	state.MarkShown("a")
	state.MarkShown("b")

	if !state.IsShown("a") || !state.IsShown("b") {
		t.Error("marked identifiers should be reported as shown")
	}
	if state.IsShown("c") {
		t.Error("unmarked identifier reported as shown")
	}
	if state.LastShown != "b" {
		t.Errorf("LastShown = %q, want %q", state.LastShown, "b")
	}

	state.Reset()
	if state.IsShown("a") || state.IsShown("b") {
		t.Error("Reset should clear the shown set")
	}
	if state.LastShown != "b" {
		t.Error("Reset should preserve LastShown for repeat avoidance")
	}
	if state.Cycle != 2 {
		t.Errorf("Cycle = %d, want 2", state.Cycle)
	}
}

func TestRotationState_Exhausted(t *testing.T) {
	state := NewRotationState(RotationKey{ScreenID: "screen-0", Filter: ThemeAll})
	pool := []string{"a", "b", "c"}

	if state.Exhausted(pool) {
		t.Error("fresh state should not be exhausted")
	}

	state.MarkShown("a")
	state.MarkShown("b")
	if state.Exhausted(pool) {
		t.Error("partially shown pool should not be exhausted")
	}

	state.MarkShown("c")
	if !state.Exhausted(pool) {
		t.Error("fully shown pool should be exhausted")
	}

	if state.Exhausted(nil) {
		t.Error("empty pool should never be exhausted")
	}

	// Catalog shrinkage: shown entries outside the current pool are ignored.
	if !state.Exhausted([]string{"a", "b"}) {
		t.Error("pool shrink should still report exhaustion when all members shown")
	}
}
