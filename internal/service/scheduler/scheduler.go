// Package scheduler runs one rotation loop per screen and the orchestrator
// that owns them. Each screen ticks on its own timer so a slow fetch for one
// monitor never delays the others.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/domain/event"
	"github.com/astraldesk/skywall/internal/metrics"
	"github.com/astraldesk/skywall/internal/port"
)

type ctrlKind int

const (
	ctrlPause ctrlKind = iota
	ctrlResume
	ctrlTrigger
	ctrlReconfigure
)

// ctrlMsg is a control message for a running scheduler loop. ack is closed
// once the loop has acted on it.
type ctrlMsg struct {
	kind   ctrlKind
	screen domain.ScreenConfig
	ack    chan struct{}
}

// Scheduler drives the rotation for a single screen: an immediate selection
// on start, then one every configured delay. A scheduler is started once and
// discarded after Stop.
type Scheduler struct {
	selector    port.Selector
	applier     port.Applier
	events      event.Dispatcher
	metrics     metrics.MetricsCollector
	logger      *zap.Logger
	tickTimeout time.Duration

	ctrl chan ctrlMsg
	done chan struct{}

	mu            sync.Mutex
	screen        domain.ScreenConfig
	state         domain.ScreenState
	cancel        context.CancelFunc
	lastImageID   string
	lastImagePath string
	lastAppliedAt *time.Time
}

// NewScheduler creates a scheduler for one screen
func NewScheduler(
	screen domain.ScreenConfig,
	selector port.Selector,
	applier port.Applier,
	events event.Dispatcher,
	collector metrics.MetricsCollector,
	logger *zap.Logger,
	tickTimeout time.Duration,
) *Scheduler {
	return &Scheduler{
		selector:    selector,
		applier:     applier,
		events:      events,
		metrics:     collector,
		logger:      logger,
		tickTimeout: tickTimeout,
		ctrl:        make(chan ctrlMsg),
		done:        make(chan struct{}),
		screen:      screen,
		state:       domain.ScreenStopped,
	}
}

// Start launches the rotation loop. The first selection fires immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.ScreenStopped {
		s.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	s.state = domain.ScreenRunning
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop cancels the loop, including any in-flight selection, and waits for
// it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// Pause suspends ticking. The current wallpaper stays. Returns false when
// the loop is not running.
func (s *Scheduler) Pause() bool {
	return s.send(ctrlMsg{kind: ctrlPause, ack: make(chan struct{})})
}

// Resume restarts ticking after a pause; the next change happens a full
// delay from now.
func (s *Scheduler) Resume() bool {
	return s.send(ctrlMsg{kind: ctrlResume, ack: make(chan struct{})})
}

// TriggerNow fires a selection immediately. Works while paused without
// unpausing; while running it also restarts the delay from now.
func (s *Scheduler) TriggerNow() bool {
	return s.send(ctrlMsg{kind: ctrlTrigger, ack: make(chan struct{})})
}

// Reconfigure swaps the screen settings. The pending tick is cancelled and
// rescheduled at the new delay; the next selection uses the new filter.
func (s *Scheduler) Reconfigure(screen domain.ScreenConfig) bool {
	return s.send(ctrlMsg{kind: ctrlReconfigure, screen: screen, ack: make(chan struct{})})
}

// Config returns the current screen settings
func (s *Scheduler) Config() domain.ScreenConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

// State returns the lifecycle state
func (s *Scheduler) State() domain.ScreenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Key returns the rotation key this scheduler currently selects under
func (s *Scheduler) Key() domain.RotationKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.RotationKey{ScreenID: s.screen.ID, Filter: s.screen.Theme}
}

// Status returns a snapshot for the status surface
func (s *Scheduler) Status() domain.ScreenStatus {
	s.mu.Lock()
	status := domain.ScreenStatus{
		ID:            s.screen.ID,
		Name:          s.screen.Name,
		State:         s.state,
		Theme:         s.screen.Theme,
		Delay:         s.screen.Delay.String(),
		LastImageID:   s.lastImageID,
		LastImagePath: s.lastImagePath,
		LastAppliedAt: s.lastAppliedAt,
	}
	screenID, filter := s.screen.ID, s.screen.Theme
	s.mu.Unlock()

	status.Cycle = s.selector.CycleCount(screenID, filter)
	return status
}

// send delivers a control message to the loop and waits until it has been
// applied. Returns false when the loop is not running.
func (s *Scheduler) send(msg ctrlMsg) bool {
	s.mu.Lock()
	running := s.state != domain.ScreenStopped
	s.mu.Unlock()
	if !running {
		return false
	}

	select {
	case s.ctrl <- msg:
		select {
		case <-msg.ack:
		case <-s.done:
		}
		return true
	case <-s.done:
		return false
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		s.setState(domain.ScreenStopped)
		close(s.done)
	}()

	cfg := s.Config()
	s.logger.Info("screen scheduler started",
		zap.String("screen_id", cfg.ID),
		zap.String("theme", cfg.Theme.String()),
		zap.Duration("delay", cfg.Delay),
		zap.Bool("slideshow", cfg.Slideshow))

	// Fires immediately for the first selection.
	timer := time.NewTimer(0)
	defer timer.Stop()
	paused := false

	// park suspends ticking after a tick on a non-slideshow screen, or
	// reschedules the next one.
	park := func() {
		if paused {
			return
		}
		cfg := s.Config()
		if !cfg.Slideshow {
			paused = true
			s.setState(domain.ScreenPaused)
			s.logger.Info("single image applied, screen parked",
				zap.String("screen_id", cfg.ID))
			return
		}
		timer.Reset(cfg.Delay)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("screen scheduler stopped", zap.String("screen_id", s.Config().ID))
			return

		case msg := <-s.ctrl:
			switch msg.kind {
			case ctrlPause:
				if !paused {
					paused = true
					stopTimer(timer)
					s.setState(domain.ScreenPaused)
					s.logger.Info("screen paused", zap.String("screen_id", s.Config().ID))
				}
			case ctrlResume:
				if paused {
					paused = false
					s.setState(domain.ScreenRunning)
					stopTimer(timer)
					timer.Reset(s.Config().Delay)
					s.logger.Info("screen resumed", zap.String("screen_id", s.Config().ID))
				}
			case ctrlTrigger:
				stopTimer(timer)
				s.tick(ctx)
				park()
			case ctrlReconfigure:
				s.setConfig(msg.screen)
				stopTimer(timer)
				if !paused {
					timer.Reset(msg.screen.Delay)
				}
				s.logger.Info("screen reconfigured",
					zap.String("screen_id", msg.screen.ID),
					zap.String("theme", msg.screen.Theme.String()),
					zap.Duration("delay", msg.screen.Delay))
			}
			close(msg.ack)

		case <-timer.C:
			if paused {
				continue
			}
			s.tick(ctx)
			park()
		}
	}
}

// tick selects the next image and hands it to the apply collaborator. All
// failures are logged and retried on the next tick, never fatal.
func (s *Scheduler) tick(ctx context.Context) {
	cfg := s.Config()

	tctx := ctx
	if s.tickTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, s.tickTimeout)
		defer cancel()
	}

	rec, err := s.selector.SelectNext(tctx, cfg.ID, cfg.Theme)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoEligibleImages):
			s.logger.Warn("no eligible images for screen",
				zap.String("screen_id", cfg.ID),
				zap.String("theme", cfg.Theme.String()))
		case errors.Is(err, domain.ErrFetchExhausted):
			s.logger.Warn("no selection candidate could be fetched",
				zap.String("screen_id", cfg.ID),
				zap.Error(err))
		default:
			s.logger.Error("selection failed",
				zap.String("screen_id", cfg.ID),
				zap.Error(err))
		}
		return
	}

	if err := s.applier.Apply(tctx, cfg, rec.CachePath); err != nil {
		// The showing is already recorded; a broken apply command must not
		// stall the rotation.
		s.metrics.RecordApply(metrics.ResultError)
		s.logger.Error("wallpaper apply failed",
			zap.String("screen_id", cfg.ID),
			zap.String("image_id", rec.ID),
			zap.Error(err))
		return
	}
	s.metrics.RecordApply(metrics.ResultOK)

	now := time.Now()
	s.mu.Lock()
	s.lastImageID = rec.ID
	s.lastImagePath = rec.CachePath
	s.lastAppliedAt = &now
	s.mu.Unlock()

	s.events.Dispatch(event.NewWallpaperApplied(
		cfg.ID, rec.ID, rec.CachePath, s.selector.CycleCount(cfg.ID, cfg.Theme)))
	s.logger.Info("wallpaper changed",
		zap.String("screen_id", cfg.ID),
		zap.String("image_id", rec.ID),
		zap.String("path", rec.CachePath))
}

func (s *Scheduler) setState(state domain.ScreenState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) setConfig(screen domain.ScreenConfig) {
	s.mu.Lock()
	s.screen = screen
	s.mu.Unlock()
}

// stopTimer stops a timer and drains a fired-but-unread tick
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
