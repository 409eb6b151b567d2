package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/domain/event"
	"github.com/astraldesk/skywall/internal/metrics"
	"github.com/astraldesk/skywall/internal/port"
)

// Config contains orchestrator configuration
type Config struct {
	TickTimeout   time.Duration // budget for one selection + apply
	PrefetchCount int           // images warmed per filter after a catalog sync
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		TickTimeout:   2 * time.Minute,
		PrefetchCount: 3,
	}
}

// Orchestrator owns the screen-to-scheduler mapping. It reacts to
// configuration changes and monitor hot-plug by starting, reconfiguring and
// stopping per-screen schedulers, and warms the cache after catalog syncs.
type Orchestrator struct {
	config   *Config
	selector port.Selector
	fetcher  port.ImageFetcher
	applier  port.Applier
	events   event.Dispatcher
	metrics  metrics.MetricsCollector
	logger   *zap.Logger

	mu         sync.Mutex
	schedulers map[string]*Scheduler
	configs    map[string]domain.ScreenConfig
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a new Orchestrator
func New(
	cfg *Config,
	selector port.Selector,
	fetcher port.ImageFetcher,
	applier port.Applier,
	events event.Dispatcher,
	collector metrics.MetricsCollector,
	logger *zap.Logger,
) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TickTimeout == 0 {
		cfg.TickTimeout = 2 * time.Minute
	}

	return &Orchestrator{
		config:     cfg,
		selector:   selector,
		fetcher:    fetcher,
		applier:    applier,
		events:     events,
		metrics:    collector,
		logger:     logger,
		schedulers: make(map[string]*Scheduler),
		configs:    make(map[string]domain.ScreenConfig),
	}
}

// Start brings up schedulers for the given screens and subscribes to
// configuration and catalog events. Returns once all screens are running.
func (o *Orchestrator) Start(ctx context.Context, screens []domain.ScreenConfig) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	o.running = true
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	o.events.Subscribe(o)
	o.ApplyConfigs(screens)

	o.logger.Info("orchestrator started", zap.Int("screens", len(screens)))
	return nil
}

// Stop shuts down every scheduler and waits for their loops to exit
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.cancel()
	schedulers := o.schedulers
	o.schedulers = make(map[string]*Scheduler)
	o.mu.Unlock()

	o.events.Unsubscribe(o)
	for _, sched := range schedulers {
		sched.Stop()
	}
	o.logger.Info("orchestrator stopped")
}

// ApplyConfigs reconciles the running schedulers against the desired screen
// list: new enabled screens start, removed or disabled ones stop, changed
// ones are reconfigured in place. No tick ever observes a half-applied
// configuration.
func (o *Orchestrator) ApplyConfigs(screens []domain.ScreenConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}

	desired := make(map[string]domain.ScreenConfig, len(screens))
	for _, sc := range screens {
		if err := sc.Validate(); err != nil {
			o.logger.Error("skipping invalid screen configuration",
				zap.String("screen_id", sc.ID),
				zap.Error(err))
			continue
		}
		desired[sc.ID] = sc
	}

	for id, sched := range o.schedulers {
		sc, ok := desired[id]
		if ok && sc.Enabled {
			continue
		}
		delete(o.schedulers, id)
		sched.Stop()
		o.logger.Info("screen scheduler removed", zap.String("screen_id", id))
	}

	for id, sc := range desired {
		if !sc.Enabled {
			continue
		}
		if sched, ok := o.schedulers[id]; ok {
			if sched.Config() != sc {
				sched.Reconfigure(sc)
			}
			continue
		}
		o.startScheduler(sc)
	}

	o.configs = desired
}

// AttachScreen starts rotation for a newly appeared monitor. Rotation rows
// for the key survive detach, so a re-attach resumes its cycle.
func (o *Orchestrator) AttachScreen(screen domain.ScreenConfig) error {
	if err := screen.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return domain.ErrNotRunning
	}

	if _, ok := o.schedulers[screen.ID]; ok {
		return domain.ErrAlreadyRunning
	}
	o.configs[screen.ID] = screen
	if !screen.Enabled {
		return nil
	}
	o.startScheduler(screen)
	return nil
}

// DetachScreen stops rotation for a disappeared monitor
func (o *Orchestrator) DetachScreen(screenID string) error {
	o.mu.Lock()
	sched, ok := o.schedulers[screenID]
	if ok {
		delete(o.schedulers, screenID)
	}
	o.mu.Unlock()

	if !ok {
		return domain.ErrScreenNotFound
	}
	sched.Stop()
	o.logger.Info("screen detached", zap.String("screen_id", screenID))
	return nil
}

// TriggerNext advances a screen to its next wallpaper immediately
func (o *Orchestrator) TriggerNext(screenID string) error {
	sched, err := o.scheduler(screenID)
	if err != nil {
		return err
	}
	if !sched.TriggerNow() {
		return domain.ErrNotRunning
	}
	return nil
}

// Pause suspends a screen's rotation
func (o *Orchestrator) Pause(screenID string) error {
	sched, err := o.scheduler(screenID)
	if err != nil {
		return err
	}
	if !sched.Pause() {
		return domain.ErrNotRunning
	}
	return nil
}

// Resume restarts a paused screen's rotation
func (o *Orchestrator) Resume(screenID string) error {
	sched, err := o.scheduler(screenID)
	if err != nil {
		return err
	}
	if !sched.Resume() {
		return domain.ErrNotRunning
	}
	return nil
}

// StartScreen starts a stopped screen's scheduler from its known
// configuration
func (o *Orchestrator) StartScreen(screenID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return domain.ErrNotRunning
	}
	if _, ok := o.schedulers[screenID]; ok {
		return domain.ErrAlreadyRunning
	}
	sc, ok := o.configs[screenID]
	if !ok {
		return domain.ErrScreenNotFound
	}
	o.startScheduler(sc)
	return nil
}

// StopScreen stops a screen's scheduler; its rotation state stays durable
// for a later start
func (o *Orchestrator) StopScreen(screenID string) error {
	o.mu.Lock()
	sched, ok := o.schedulers[screenID]
	if ok {
		delete(o.schedulers, screenID)
	}
	o.mu.Unlock()

	if !ok {
		return domain.ErrScreenNotFound
	}
	sched.Stop()
	return nil
}

// Statuses returns a snapshot of every known screen, running or not,
// ordered by identifier
func (o *Orchestrator) Statuses() []domain.ScreenStatus {
	o.mu.Lock()
	statuses := make([]domain.ScreenStatus, 0, len(o.configs))
	covered := make(map[string]bool, len(o.schedulers))
	schedulers := make([]*Scheduler, 0, len(o.schedulers))
	for id, sched := range o.schedulers {
		covered[id] = true
		schedulers = append(schedulers, sched)
	}
	for id, sc := range o.configs {
		if covered[id] {
			continue
		}
		statuses = append(statuses, domain.ScreenStatus{
			ID:    id,
			Name:  sc.Name,
			State: domain.ScreenStopped,
			Theme: sc.Theme,
			Delay: sc.Delay.String(),
		})
	}
	o.mu.Unlock()

	// Status() reads the store for the cycle counter, so collect outside
	// the orchestrator lock.
	for _, sched := range schedulers {
		statuses = append(statuses, sched.Status())
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// ActiveKeys returns the rotation keys of all running schedulers. The
// maintenance evictor keeps these keys' unshown images safe.
func (o *Orchestrator) ActiveKeys() []domain.RotationKey {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]domain.RotationKey, 0, len(o.schedulers))
	for _, sched := range o.schedulers {
		keys = append(keys, sched.Key())
	}
	return keys
}

// Handle reacts to dispatched domain events
func (o *Orchestrator) Handle(e event.DomainEvent) error {
	switch ev := e.(type) {
	case event.ConfigUpdated:
		o.ApplyConfigs(ev.Screens)
	case event.CatalogSynced:
		o.prefetch()
	case event.ScreenAttached:
		if err := o.AttachScreen(ev.Screen); err != nil {
			o.logger.Warn("screen attach ignored",
				zap.String("screen_id", ev.Screen.ID),
				zap.Error(err))
		}
	case event.ScreenDetached:
		if err := o.DetachScreen(ev.ScreenID); err != nil {
			o.logger.Warn("screen detach ignored",
				zap.String("screen_id", ev.ScreenID),
				zap.Error(err))
		}
	}
	return nil
}

// HandledEvents subscribes the orchestrator to config and catalog events
func (o *Orchestrator) HandledEvents() []string {
	return []string{
		event.NameConfigUpdated,
		event.NameCatalogSynced,
		event.NameScreenAttached,
		event.NameScreenDetached,
	}
}

// scheduler looks up the running scheduler for a screen
func (o *Orchestrator) scheduler(screenID string) (*Scheduler, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sched, ok := o.schedulers[screenID]
	if !ok {
		if _, known := o.configs[screenID]; known {
			return nil, domain.ErrNotRunning
		}
		return nil, domain.ErrScreenNotFound
	}
	return sched, nil
}

// startScheduler creates and starts a scheduler. Called with o.mu held.
func (o *Orchestrator) startScheduler(sc domain.ScreenConfig) {
	sched := NewScheduler(sc, o.selector, o.applier, o.events, o.metrics, o.logger, o.config.TickTimeout)
	if err := sched.Start(o.ctx); err != nil {
		o.logger.Error("failed to start screen scheduler",
			zap.String("screen_id", sc.ID),
			zap.Error(err))
		return
	}
	o.schedulers[sc.ID] = sched
}

// prefetch warms the cache for every filter in use after a catalog sync
func (o *Orchestrator) prefetch() {
	if o.config.PrefetchCount <= 0 {
		return
	}

	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	ctx := o.ctx
	filters := make(map[domain.Theme]struct{})
	for _, sched := range o.schedulers {
		filters[sched.Config().Theme] = struct{}{}
	}
	o.mu.Unlock()

	if len(filters) == 0 {
		return
	}

	go func() {
		for filter := range filters {
			if _, err := o.fetcher.Prefetch(ctx, filter, o.config.PrefetchCount); err != nil {
				o.logger.Warn("prefetch failed",
					zap.String("filter", filter.String()),
					zap.Error(err))
			}
		}
	}()
}
