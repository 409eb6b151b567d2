package domain

import "time"

// RotationKey identifies one rotation: a screen paired with its theme filter.
// Changing a screen's filter moves it to a different key; the old key's state
// is abandoned, never mutated further.
type RotationKey struct {
	ScreenID string
	Filter   Theme
}

func (k RotationKey) String() string {
	return k.ScreenID + "/" + string(k.Filter)
}

// RotationState tracks one cycle of duplicate-free selection. The eligible
// pool is not stored here; it is recomputed from the catalog on every
// selection and Shown is intersected with it, which keeps the shown set a
// subset of the pool as the catalog gains or loses matching images.
type RotationState struct {
	Key       RotationKey
	Shown     map[string]struct{}
	LastShown string
	Cycle     int64
	UpdatedAt time.Time
}

// NewRotationState returns an empty first-cycle state for a key.
func NewRotationState(key RotationKey) *RotationState {
	return &RotationState{
		Key:   key,
		Shown: make(map[string]struct{}),
		Cycle: 1,
	}
}

// IsShown reports whether id was already presented in the current cycle.
func (s *RotationState) IsShown(id string) bool {
	_, ok := s.Shown[id]
	return ok
}

// MarkShown records a presentation in the current cycle.
func (s *RotationState) MarkShown(id string) {
	if s.Shown == nil {
		s.Shown = make(map[string]struct{})
	}
	s.Shown[id] = struct{}{}
	s.LastShown = id
}

// Reset starts the next cycle. LastShown survives so the first pick of the
// new cycle can avoid an immediate visual repeat.
func (s *RotationState) Reset() {
	s.Shown = make(map[string]struct{})
	s.Cycle++
}

// Exhausted reports whether every identifier in pool has been shown.
// An empty pool is never considered exhausted.
func (s *RotationState) Exhausted(pool []string) bool {
	if len(pool) == 0 {
		return false
	}
	for _, id := range pool {
		if !s.IsShown(id) {
			return false
		}
	}
	return true
}
