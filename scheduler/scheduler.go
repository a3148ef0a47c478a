package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitrina/pulso/errors"
	"github.com/vitrina/pulso/metric"
	"github.com/vitrina/pulso/scoring"
)

// SubscriberChannelBufferSize is the buffer size for work-item update channels
const SubscriberChannelBufferSize = 100

// Config contains tuning for the scheduler tick loop
type Config struct {
	TickInterval time.Duration // How often the queues are drained (default: 1s)
	MaxAttempts  int           // Attempts before a work item fails terminally (default: 3)

	// GuardedTicks skips a tick while the previous one is still executing.
	// Off by default: the reference behavior lets a tick whose store calls
	// stall overlap the next scheduled tick.
	GuardedTicks bool
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		TickInterval: 1 * time.Second,
		MaxAttempts:  DefaultMaxAttempts,
		GuardedTicks: false,
	}
}

// Scheduler owns the three work queues and the tick loop that drains them.
//
// All queue access and flag mutation happens under one mutex, so control
// surface calls are serialized relative to tick bookkeeping. The execution of
// a work item itself happens outside the lock; stop is cooperative and lets
// in-flight work finish.
type Scheduler struct {
	store  *metric.Store
	engine *scoring.Engine
	cfg    Config
	logger *zap.SugaredLogger

	mu          sync.Mutex
	queues      map[WorkType]*JobQueue
	running     bool
	paused      bool
	tickBusy    bool
	ticks       int64
	lastTickAt  time.Time
	cancel      context.CancelFunc
	parentCtx   context.Context
	wg          sync.WaitGroup
	subscribers []chan WorkItem
}

// New creates a scheduler with empty queues. The tick loop starts on Start().
func New(store *metric.Store, engine *scoring.Engine, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	return NewWithContext(context.Background(), store, engine, cfg, logger)
}

// NewWithContext creates a scheduler whose tick loop is bound to a parent context
func NewWithContext(ctx context.Context, store *metric.Store, engine *scoring.Engine, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 1 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	queues := make(map[WorkType]*JobQueue, len(WorkTypes))
	for _, t := range WorkTypes {
		queues[t] = NewJobQueue(t)
	}

	return &Scheduler{
		store:     store,
		engine:    engine,
		cfg:       cfg,
		logger:    logger.Named("scheduler"),
		queues:    queues,
		parentCtx: ctx,
	}
}

// EnqueueAll clears all three queues and schedules one work item of each type
// for every active catalog item. Returns the number of items scheduled.
func (s *Scheduler) EnqueueAll() (int, error) {
	items, err := s.store.ListActiveItems()
	if err != nil {
		return 0, errors.Wrap(err, "failed to list active items")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.queues {
		q.Reset()
	}
	for _, item := range items {
		for _, t := range WorkTypes {
			s.queues[t].Enqueue(NewWorkItem(t, item.ID, item.Label, s.cfg.MaxAttempts))
		}
	}

	s.logger.Infow("Scheduled full re-scoring pass",
		"items", len(items),
		"work_items", len(items)*len(WorkTypes))
	return len(items), nil
}

// EnqueueOne schedules one work item of each type for a single item without
// touching existing queue contents. Rejects unknown or inactive items.
func (s *Scheduler) EnqueueOne(itemID string) ([]string, error) {
	item, err := s.store.GetItem(itemID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up item")
	}
	if item == nil {
		return nil, errors.Newf("catalog item %s not found", itemID)
	}
	if !item.Active {
		return nil, errors.Newf("catalog item %s is not active", itemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(WorkTypes))
	for _, t := range WorkTypes {
		w := NewWorkItem(t, item.ID, item.Label, s.cfg.MaxAttempts)
		s.queues[t].Enqueue(w)
		ids = append(ids, w.ID)
	}

	s.logger.Infow("Scheduled single item", "item_id", item.ID, "item_label", item.Label)
	return ids, nil
}

// Start sets the scheduler running and begins the tick loop if not already
// active. Idempotent: starting a running scheduler is a reported no-op.
func (s *Scheduler) Start() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false, "scheduler already running"
	}

	ctx, cancel := context.WithCancel(s.parentCtx)
	s.cancel = cancel
	s.running = true
	s.paused = false

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Infow("Scheduler started", "tick_interval", s.cfg.TickInterval, "guarded_ticks", s.cfg.GuardedTicks)
	return true, "scheduler started"
}

// Stop clears the running flag; the tick loop observes it and exits before its
// next scheduled tick. Work already executing is allowed to finish.
func (s *Scheduler) Stop() (bool, string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false, "scheduler not running"
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.logger.Infow("Scheduler stopped")
	return true, "scheduler stopped"
}

// Pause keeps the tick loop alive but makes it skip processing
func (s *Scheduler) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return false
	}
	s.paused = true
	s.logger.Infow("Scheduler paused")
	return true
}

// Resume re-enables processing after a pause
func (s *Scheduler) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return false
	}
	s.paused = false
	s.logger.Infow("Scheduler resumed")
	return true
}

// Clear removes all work items except terminal failures, which stay for
// operator inspection. Returns total counts removed and retained.
func (s *Scheduler) Clear() (removed int, retained int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range WorkTypes {
		r, k := s.queues[t].Clear()
		removed += r
		retained += k
	}
	s.logger.Infow("Queues cleared", "removed", removed, "retained_failed", retained)
	return removed, retained
}

// StatsSnapshot is a read-only view of scheduler state
type StatsSnapshot struct {
	Running    bool                     `json:"running"`
	Paused     bool                     `json:"paused"`
	Ticks      int64                    `json:"ticks"`
	LastTickAt *time.Time               `json:"last_tick_at,omitempty"`
	Queues     map[WorkType]QueueCounts `json:"queues"`
	Totals     QueueCounts              `json:"totals"`
}

// Stats returns per-queue and global counts plus the run/pause flags.
// Side-effect free.
func (s *Scheduler) Stats() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Running: s.running,
		Paused:  s.paused,
		Ticks:   s.ticks,
		Queues:  make(map[WorkType]QueueCounts, len(WorkTypes)),
	}
	if !s.lastTickAt.IsZero() {
		t := s.lastTickAt
		snap.LastTickAt = &t
	}
	for _, t := range WorkTypes {
		c := s.queues[t].Counts()
		snap.Queues[t] = c
		snap.Totals.Pending += c.Pending
		snap.Totals.Running += c.Running
		snap.Totals.Completed += c.Completed
		snap.Totals.Failed += c.Failed
		snap.Totals.Total += c.Total
	}
	return snap
}

// JobsOfType returns a snapshot of all work items currently in one queue
func (s *Scheduler) JobsOfType(t WorkType) ([]WorkItem, error) {
	if !IsValidWorkType(string(t)) {
		return nil, errors.Newf("unknown work type %q", t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queues[t].Snapshot(), nil
}

// Subscribe returns a buffered channel receiving work-item updates.
// The caller must Unsubscribe when done; sends never block.
func (s *Scheduler) Subscribe() chan WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan WorkItem, SubscriberChannelBufferSize)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel. The channel is not closed here;
// the caller owns its lifecycle.
func (s *Scheduler) Unsubscribe(ch chan WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a work-item update to all subscribers.
// REQUIRES: s.mu held by caller. Non-blocking: a full channel is skipped.
func (s *Scheduler) notifySubscribers(item *WorkItem) {
	snapshot := *item
	for _, ch := range s.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// runLoop is the periodic tick driver.
//
// Ticks fire on a fixed schedule regardless of how long the previous tick
// took: with GuardedTicks off, a tick whose store calls stall can overlap the
// next one, matching the reference behavior. With GuardedTicks on, a tick
// that finds the previous one still busy is skipped entirely.
func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tickTime := <-ticker.C:
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}
			if s.paused {
				s.mu.Unlock()
				continue
			}
			if s.cfg.GuardedTicks && s.tickBusy {
				s.mu.Unlock()
				s.logger.Debugw("Tick skipped, previous tick still busy")
				continue
			}
			s.tickBusy = true
			s.ticks++
			s.lastTickAt = tickTime
			s.mu.Unlock()

			s.tick()

			s.mu.Lock()
			s.tickBusy = false
			s.mu.Unlock()
		}
	}
}

// tick processes at most one pending work item per queue. The three queues
// are drained independently; one queue's failure never affects another.
func (s *Scheduler) tick() {
	for _, t := range WorkTypes {
		s.mu.Lock()
		item := s.queues[t].PeekNextPending()
		if item == nil {
			s.mu.Unlock()
			continue
		}
		item.Start()
		s.notifySubscribers(item)
		s.mu.Unlock()

		// Execute outside the lock; store calls are the suspension points
		result, err := s.execute(item)

		s.mu.Lock()
		switch {
		case err == nil && result == ResultSkipped:
			item.Skip("item no longer active")
			s.logger.Infow("Work item skipped",
				"work_id", item.ID,
				"item_label", item.ItemLabel,
				"type", item.Type)
		case err == nil:
			item.Complete(result)
			s.logger.Debugw("Work item completed",
				"work_id", item.ID,
				"item_label", item.ItemLabel,
				"type", item.Type)
		default:
			item.RecordFailure(err)
			if item.Status == StatusFailed {
				s.logger.Errorw("Work item failed terminally",
					"work_id", item.ID,
					"item_label", item.ItemLabel,
					"type", item.Type,
					"attempts", item.Attempts,
					"error", err)
			} else {
				s.logger.Warnw("Work item failed, will retry",
					"work_id", item.ID,
					"item_label", item.ItemLabel,
					"type", item.Type,
					"attempts", item.Attempts,
					"max_attempts", item.MaxAttempts,
					"error", err)
			}
		}
		s.notifySubscribers(item)
		s.mu.Unlock()
	}
}

// execute runs the type-specific computation for one work item.
// Returns ResultSkipped when the target item is gone or inactive.
func (s *Scheduler) execute(item *WorkItem) (string, error) {
	switch item.Type {
	case WorkPopularity:
		return s.executeScore(item, scoring.PopularityScore, func(score float64, now time.Time) metric.Update {
			return metric.Update{PopularityScore: &score, LastCalculated: &now}
		})
	case WorkFeatured:
		return s.executeScore(item, scoring.FeaturedScore, func(score float64, now time.Time) metric.Update {
			return metric.Update{FeaturedScore: &score, LastCalculated: &now}
		})
	case WorkClassification:
		return s.executeClassification()
	default:
		return "", errors.Newf("unknown work type %q", item.Type)
	}
}

// executeScore computes one weighted score for the item and writes it back
func (s *Scheduler) executeScore(item *WorkItem, compute func(*metric.Metric) float64, update func(float64, time.Time) metric.Update) (string, error) {
	target, err := s.store.GetItem(item.ItemID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to look up item %s", item.ItemID)
	}
	if target == nil || !target.Active {
		return ResultSkipped, nil
	}

	// Metric rows are created lazily on first scheduling pass or first click
	if err := s.store.UpsertMetric(item.ItemID); err != nil {
		return "", err
	}
	m, err := s.store.GetMetric(item.ItemID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", errors.Newf("metric for item %s missing after upsert", item.ItemID)
	}

	score := compute(m)
	if err := s.store.UpdateMetric(item.ItemID, update(score, time.Now())); err != nil {
		return "", err
	}
	return ResultScored, nil
}

// executeClassification reclassifies the whole active population.
// An empty population is a logged no-op, not an error.
func (s *Scheduler) executeClassification() (string, error) {
	metrics, err := s.store.ListActiveMetricsOrderedByScore()
	if err != nil {
		return "", errors.Wrap(err, "failed to list active metrics")
	}
	if len(metrics) == 0 {
		s.logger.Infow("Classification skipped, empty population")
		return ResultScored, nil
	}

	popular, featured := s.engine.ClassifyPopulation(metrics)

	now := time.Now()
	for _, m := range metrics {
		isPopular := m.IsPopular
		isFeatured := m.IsFeatured
		if err := s.store.UpdateMetric(m.ItemID, metric.Update{
			IsPopular:      &isPopular,
			IsFeatured:     &isFeatured,
			LastCalculated: &now,
		}); err != nil {
			return "", errors.Wrapf(err, "failed to persist classification for item %s", m.ItemID)
		}
	}

	s.logger.Infow("Population reclassified",
		"population", len(metrics),
		"popular", popular,
		"featured", featured)
	return ResultScored, nil
}

// RunTick drains each queue once, synchronously. Exposed for the daily
// pipeline runner and tests; the live loop calls the same path.
func (s *Scheduler) RunTick() {
	s.mu.Lock()
	s.ticks++
	s.lastTickAt = time.Now()
	s.mu.Unlock()
	s.tick()
}

// IsRunning reports the running flag
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsPaused reports the paused flag
func (s *Scheduler) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetConfig swaps tuning at runtime; used by the config reload watcher.
// The new tick interval applies from the next Start.
func (s *Scheduler) SetConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.TickInterval > 0 {
		s.cfg.TickInterval = cfg.TickInterval
	}
	if cfg.MaxAttempts > 0 {
		s.cfg.MaxAttempts = cfg.MaxAttempts
	}
	s.cfg.GuardedTicks = cfg.GuardedTicks
	s.logger.Infow("Scheduler config updated",
		"tick_interval", s.cfg.TickInterval,
		"max_attempts", s.cfg.MaxAttempts,
		"guarded_ticks", s.cfg.GuardedTicks)
}

func (s *Scheduler) String() string {
	snap := s.Stats()
	return fmt.Sprintf("scheduler{running:%t paused:%t pending:%d failed:%d}",
		snap.Running, snap.Paused, snap.Totals.Pending, snap.Totals.Failed)
}
