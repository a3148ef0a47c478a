package scheduler

import (
	"time"

	"go.uber.org/zap"

	"github.com/vitrina/pulso/errors"
	"github.com/vitrina/pulso/metric"
	"github.com/vitrina/pulso/scoring"
)

// ClickHistoryRetention is how long raw click events are kept before the
// weekly purge removes them
const ClickHistoryRetention = 365 * 24 * time.Hour

// PipelineConfig tunes the daily pass
type PipelineConfig struct {
	// ConditionalReset zeroes a window counter only when its calendar window
	// has rolled over since the item was last scored, instead of on every
	// pass. Off by default: the unconditional reset is what the score
	// weights were tuned against.
	ConditionalReset bool
}

// Pipeline runs the ordered daily pass: reset periodic counters, recompute
// both scores for every active metric, reclassify the population, and on
// Sundays purge click history older than a year.
//
// Stages fail fast: a failure aborts the remaining stages of that run but
// does not roll back writes already committed by earlier stages.
type Pipeline struct {
	store  *metric.Store
	engine *scoring.Engine
	cfg    PipelineConfig
	logger *zap.SugaredLogger
}

// NewPipeline creates a daily pipeline runner
func NewPipeline(store *metric.Store, engine *scoring.Engine, cfg PipelineConfig, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		store:  store,
		engine: engine,
		cfg:    cfg,
		logger: logger.Named("pipeline"),
	}
}

// Run executes one full daily pass at the given time
func (p *Pipeline) Run(now time.Time) error {
	started := time.Now()
	p.logger.Infow("Daily pipeline starting", "run_at", now.Format(time.RFC3339))

	if err := p.resetPeriodicCounters(now); err != nil {
		return errors.Wrap(err, "reset stage failed")
	}
	if err := p.recomputeScores(now); err != nil {
		return errors.Wrap(err, "scoring stage failed")
	}
	if err := p.reclassify(now); err != nil {
		return errors.Wrap(err, "classification stage failed")
	}
	if now.Weekday() == time.Sunday {
		if err := p.purgeClickHistory(now); err != nil {
			return errors.Wrap(err, "purge stage failed")
		}
	}

	p.logger.Infow("Daily pipeline complete", "duration", time.Since(started).Round(time.Millisecond))
	return nil
}

// resetPeriodicCounters zeroes the weekly/monthly/yearly window counters for
// every active metric. The default reset is unconditional per invocation (see
// scoring.PeriodicReset); with ConditionalReset on, a counter is only zeroed
// once its calendar window has rolled over.
func (p *Pipeline) resetPeriodicCounters(now time.Time) error {
	metrics, err := p.store.ListActiveMetricsOrderedByScore()
	if err != nil {
		return err
	}

	if p.cfg.ConditionalReset {
		zeroed := 0
		for _, m := range metrics {
			update, ok := scoring.ConditionalReset(m, now)
			if !ok {
				continue
			}
			if err := p.store.UpdateMetric(m.ItemID, update); err != nil {
				return errors.Wrapf(err, "failed to reset counters for item %s", m.ItemID)
			}
			zeroed++
		}
		p.logger.Infow("Periodic counters reset", "metrics", len(metrics), "zeroed", zeroed)
		return nil
	}

	reset := scoring.PeriodicReset()
	for _, m := range metrics {
		if err := p.store.UpdateMetric(m.ItemID, reset); err != nil {
			return errors.Wrapf(err, "failed to reset counters for item %s", m.ItemID)
		}
	}

	p.logger.Infow("Periodic counters reset", "metrics", len(metrics))
	return nil
}

// recomputeScores writes fresh popularity and featured scores for every
// active item, lazily creating metric rows for items that never got a click
func (p *Pipeline) recomputeScores(now time.Time) error {
	items, err := p.store.ListActiveItems()
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := p.store.UpsertMetric(item.ID); err != nil {
			return err
		}
		m, err := p.store.GetMetric(item.ID)
		if err != nil {
			return err
		}
		if m == nil {
			return errors.Newf("metric for item %s missing after upsert", item.ID)
		}

		popularity := scoring.PopularityScore(m)
		featured := scoring.FeaturedScore(m)
		if err := p.store.UpdateMetric(item.ID, metric.Update{
			PopularityScore: &popularity,
			FeaturedScore:   &featured,
			LastCalculated:  &now,
		}); err != nil {
			return errors.Wrapf(err, "failed to write scores for item %s", item.ID)
		}
	}

	p.logger.Infow("Scores recomputed", "items", len(items))
	return nil
}

// reclassify runs the percentile classification over the active population
func (p *Pipeline) reclassify(now time.Time) error {
	metrics, err := p.store.ListActiveMetricsOrderedByScore()
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		p.logger.Infow("Classification skipped, empty population")
		return nil
	}

	popular, featured := p.engine.ClassifyPopulation(metrics)

	for _, m := range metrics {
		isPopular := m.IsPopular
		isFeatured := m.IsFeatured
		if err := p.store.UpdateMetric(m.ItemID, metric.Update{
			IsPopular:      &isPopular,
			IsFeatured:     &isFeatured,
			LastCalculated: &now,
		}); err != nil {
			return errors.Wrapf(err, "failed to persist classification for item %s", m.ItemID)
		}
	}

	p.logger.Infow("Population reclassified",
		"population", len(metrics),
		"popular", popular,
		"featured", featured)
	return nil
}

// purgeClickHistory removes click events older than the retention window
func (p *Pipeline) purgeClickHistory(now time.Time) error {
	cutoff := now.Add(-ClickHistoryRetention)
	count, err := p.store.DeleteClickEventsOlderThan(cutoff)
	if err != nil {
		return err
	}

	p.logger.Infow("Click history purged",
		"removed", count,
		"cutoff", cutoff.Format(time.RFC3339))
	return nil
}
