package scheduler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitrina/pulso/errors"
)

// TriggerConfig configures the daily trigger
type TriggerConfig struct {
	FireAt   string // Local wall-clock fire time, "HH:MM"
	Timezone string // IANA timezone name
}

// DefaultTriggerConfig returns the stock 06:00 Managua trigger
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		FireAt:   "06:00",
		Timezone: "America/Managua",
	}
}

// DailyTrigger fires once per day at a fixed local wall-clock time.
//
// On fire it ensures the scheduler's tick loop is running, enqueues a full
// re-scoring pass over the active catalog, and runs the daily pipeline. The
// loop computes the next fire time, sleeps until then, fires, and repeats;
// no external scheduling library is involved.
type DailyTrigger struct {
	sched    *Scheduler
	pipeline *Pipeline
	hour     int
	minute   int
	loc      *time.Location
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastFireAt time.Time
}

// NewDailyTrigger creates a trigger from "HH:MM" + IANA timezone configuration
func NewDailyTrigger(sched *Scheduler, pipeline *Pipeline, cfg TriggerConfig, logger *zap.SugaredLogger) (*DailyTrigger, error) {
	hour, minute, err := parseFireAt(cfg.FireAt)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown timezone %q", cfg.Timezone)
	}

	return &DailyTrigger{
		sched:    sched,
		pipeline: pipeline,
		hour:     hour,
		minute:   minute,
		loc:      loc,
		logger:   logger.Named("trigger"),
	}, nil
}

// Start begins the fire loop
func (d *DailyTrigger) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return // already started
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.run(loopCtx)

	d.logger.Infow("Daily trigger started",
		"fire_at", d.fireAtString(),
		"timezone", d.loc.String(),
		"next_fire", d.NextFire(time.Now()).Format(time.RFC3339))
}

// Stop stops the fire loop
func (d *DailyTrigger) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()
	d.logger.Infow("Daily trigger stopped")
}

// NextFire computes the next fire instant strictly after now
func (d *DailyTrigger) NextFire(now time.Time) time.Time {
	local := now.In(d.loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !fire.After(local) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}

// LastFireAt returns when the trigger last fired, zero if never
func (d *DailyTrigger) LastFireAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFireAt
}

func (d *DailyTrigger) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		next := d.NextFire(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.fire(next)
		}
	}
}

// fire runs one daily pass. Failures are logged, never fatal to the loop.
func (d *DailyTrigger) fire(at time.Time) {
	d.mu.Lock()
	d.lastFireAt = at
	d.mu.Unlock()

	d.logger.Infow("Daily trigger fired", "at", at.Format(time.RFC3339))

	// Ensure the tick loop is running so the enqueued pass actually drains
	if started, msg := d.sched.Start(); started {
		d.logger.Infow("Tick loop started by trigger", "message", msg)
	}

	if _, err := d.sched.EnqueueAll(); err != nil {
		d.logger.Errorw("Daily trigger failed to enqueue full pass", "error", err)
		return
	}

	// The pipeline recomputes the same pure scores the queued pass will; the
	// direct run gives the catalog fresh tiers immediately, the queued pass
	// keeps them fresh as clicks land during the day.
	if err := d.pipeline.Run(at); err != nil {
		d.logger.Errorw("Daily pipeline failed", "error", err)
	}
}

func (d *DailyTrigger) fireAtString() string {
	return strconv.Itoa(d.hour) + ":" + twoDigit(d.minute)
}

// parseFireAt parses "HH:MM" into hour and minute
func parseFireAt(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, errors.Newf("invalid fire time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.Newf("invalid fire hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.Newf("invalid fire minute in %q", s)
	}
	return hour, minute, nil
}

func twoDigit(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
