// Package scoring computes popularity and featured scores from click aggregates
// and classifies the active population into tiers by percentile cutoff.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/vitrina/pulso/metric"
)

// Score weights. Contact-intent clicks dominate: they signal a buyer, not a browser.
const (
	popWeeklyWeight   = 0.4
	popMonthlyWeight  = 0.3
	popContactWeight  = 2.0
	popFavoriteWeight = 1.5
	popTotalWeight    = 0.1

	featContactWeight  = 3.0
	featFavoriteWeight = 1.0
	featWeeklyWeight   = 0.5
	featMonthlyWeight  = 0.3
)

// Default population cutoffs: top 20% popular, top 15% featured
const (
	DefaultPopularCutoff  = 0.20
	DefaultFeaturedCutoff = 0.15
)

// PopularityScore computes an item's popularity score from its current counters.
// Pure function; counters are not reset.
func PopularityScore(m *metric.Metric) float64 {
	score := float64(m.WeeklyClicks)*popWeeklyWeight +
		float64(m.MonthlyClicks)*popMonthlyWeight +
		float64(m.ContactClicks)*popContactWeight +
		float64(m.FavoriteClicks)*popFavoriteWeight +
		float64(m.TotalClicks)*popTotalWeight
	return round2(score)
}

// FeaturedScore computes an item's featured score from its current counters.
// Pure function; counters are not reset.
func FeaturedScore(m *metric.Metric) float64 {
	score := float64(m.ContactClicks)*featContactWeight +
		float64(m.FavoriteClicks)*featFavoriteWeight +
		float64(m.WeeklyClicks)*featWeeklyWeight +
		float64(m.MonthlyClicks)*featMonthlyWeight
	return round2(score)
}

// Engine classifies the active population using percentile cutoffs
type Engine struct {
	popularCutoff  float64
	featuredCutoff float64
}

// NewEngine creates a classification engine with the given cutoffs.
// Values outside (0, 1] fall back to the defaults.
func NewEngine(popularCutoff, featuredCutoff float64) *Engine {
	if popularCutoff <= 0 || popularCutoff > 1 {
		popularCutoff = DefaultPopularCutoff
	}
	if featuredCutoff <= 0 || featuredCutoff > 1 {
		featuredCutoff = DefaultFeaturedCutoff
	}
	return &Engine{popularCutoff: popularCutoff, featuredCutoff: featuredCutoff}
}

// ClassifyPopulation assigns popular/featured tiers to the given metrics in place.
// Returns the number of items marked popular and featured.
//
// Both tiers are drawn from the same popularity-sorted ranking: the featured
// cutoff deliberately does NOT re-sort by featured score, to stay compatible
// with the behavior the rest of the system was built against. An item with the
// top featured score but mid-pack popularity will not be featured.
// Flagged as an open product question; do not "fix" without clearing it first.
func (e *Engine) ClassifyPopulation(metrics []*metric.Metric) (popular int, featured int) {
	if len(metrics) == 0 {
		return 0, 0
	}

	sort.SliceStable(metrics, func(i, j int) bool {
		if metrics[i].PopularityScore != metrics[j].PopularityScore {
			return metrics[i].PopularityScore > metrics[j].PopularityScore
		}
		return metrics[i].FeaturedScore > metrics[j].FeaturedScore
	})

	for _, m := range metrics {
		m.IsPopular = false
		m.IsFeatured = false
	}

	n := len(metrics)
	popularCount := int(math.Ceil(float64(n) * e.popularCutoff))
	featuredCount := int(math.Ceil(float64(n) * e.featuredCutoff))

	for i := 0; i < popularCount && i < n; i++ {
		metrics[i].IsPopular = true
	}
	for i := 0; i < featuredCount && i < n; i++ {
		metrics[i].IsFeatured = true
	}

	return popularCount, featuredCount
}

// PeriodicReset returns the counter update for one daily pass.
//
// The weekly, monthly and yearly windows are each zeroed unconditionally on
// every invocation, not when their window actually rolls over. This matches
// the behavior the scores were tuned against; ConditionalReset is the
// window-aware variant, opt-in via scoring.conditional_reset.
func PeriodicReset() metric.Update {
	zero := 0
	return metric.Update{
		WeeklyClicks:  &zero,
		MonthlyClicks: &zero,
		YearlyClicks:  &zero,
	}
}

// ConditionalReset returns the counter update for one daily pass when
// window-aware resets are enabled: a counter is zeroed only if its calendar
// window has rolled over since the item was last scored. A metric that was
// never scored keeps all of its counters. The second return is false when
// there is nothing to zero.
func ConditionalReset(m *metric.Metric, now time.Time) (metric.Update, bool) {
	if m.LastCalculated == nil {
		return metric.Update{}, false
	}

	last := *m.LastCalculated
	zero := 0
	var update metric.Update
	changed := false

	if last.Before(StartOfWeek(now)) {
		update.WeeklyClicks = &zero
		changed = true
	}
	if last.Before(StartOfMonth(now)) {
		update.MonthlyClicks = &zero
		changed = true
	}
	if last.Before(StartOfYear(now)) {
		update.YearlyClicks = &zero
		changed = true
	}

	return update, changed
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
