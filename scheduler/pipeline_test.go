package scheduler

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vitrinatest "github.com/vitrina/pulso/internal/testing"
	"github.com/vitrina/pulso/logger"
	"github.com/vitrina/pulso/metric"
	"github.com/vitrina/pulso/scoring"
)

// A Monday, so the weekly purge stage stays out of the way unless wanted
var pipelineRunAt = time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T) (*Pipeline, *metric.Store, *sql.DB) {
	t.Helper()

	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	return NewPipeline(store, engine, PipelineConfig{}, logger.Logger), store, db
}

func TestPipelineRun_FullPass(t *testing.T) {
	pipeline, store, _ := newTestPipeline(t)

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_hot", Label: "Hot", Active: true}))
	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_cold", Label: "Cold", Active: true}))
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordClick("itm_hot", metric.ClickContact))
	}

	require.NoError(t, pipeline.Run(pipelineRunAt))

	hot, err := store.GetMetric("itm_hot")
	require.NoError(t, err)
	require.NotNil(t, hot)

	// Window counters were zeroed before scoring, so only the contact and
	// total weights contribute: 5*2.0 + 5*0.1 = 10.5 and 5*3.0 = 15
	assert.Zero(t, hot.WeeklyClicks)
	assert.Zero(t, hot.MonthlyClicks)
	assert.Zero(t, hot.YearlyClicks)
	assert.Equal(t, 5, hot.TotalClicks, "total clicks survive the periodic reset")
	assert.Equal(t, 10.5, hot.PopularityScore)
	assert.Equal(t, 15.0, hot.FeaturedScore)
	assert.True(t, hot.IsPopular)
	assert.True(t, hot.IsFeatured)

	// The cold item got a lazily created metric row and landed outside the tiers
	cold, err := store.GetMetric("itm_cold")
	require.NoError(t, err)
	require.NotNil(t, cold)
	assert.Zero(t, cold.PopularityScore)
	assert.False(t, cold.IsPopular)
	assert.False(t, cold.IsFeatured)
}

func TestPipelineRun_EmptyCatalog(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t)
	require.NoError(t, pipeline.Run(pipelineRunAt))
}

func TestPipelineRun_IgnoresInactiveItems(t *testing.T) {
	pipeline, store, _ := newTestPipeline(t)

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_off", Label: "Off", Active: true}))
	require.NoError(t, store.RecordClick("itm_off", metric.ClickView))
	require.NoError(t, store.SetItemActive("itm_off", false))

	require.NoError(t, pipeline.Run(pipelineRunAt))

	// The inactive item's counters and scores are left exactly as they were
	m, err := store.GetMetric("itm_off")
	require.NoError(t, err)
	assert.Equal(t, 1, m.WeeklyClicks)
	assert.Zero(t, m.PopularityScore)
	assert.Nil(t, m.LastCalculated)
}

func TestPipelineRun_SundayPurgesOldClickHistory(t *testing.T) {
	pipeline, store, db := newTestPipeline(t)

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_1", Label: "Shop", Active: true}))
	require.NoError(t, store.RecordClick("itm_1", metric.ClickView))
	require.NoError(t, store.RecordClick("itm_1", metric.ClickView))

	sunday := time.Date(2026, 9, 6, 6, 0, 0, 0, time.UTC)
	require.Equal(t, time.Sunday, sunday.Weekday())

	// Backdate one event beyond the retention window
	old := sunday.Add(-ClickHistoryRetention - 24*time.Hour).Format(time.RFC3339)
	_, err := db.Exec("UPDATE click_events SET created_at = ? WHERE id = (SELECT MIN(id) FROM click_events)", old)
	require.NoError(t, err)

	require.NoError(t, pipeline.Run(sunday))

	_, _, events, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, events)
}

func TestPipelineRun_WeekdaySkipsPurge(t *testing.T) {
	pipeline, store, db := newTestPipeline(t)

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_1", Label: "Shop", Active: true}))
	require.NoError(t, store.RecordClick("itm_1", metric.ClickView))

	old := pipelineRunAt.Add(-ClickHistoryRetention - 24*time.Hour).Format(time.RFC3339)
	_, err := db.Exec("UPDATE click_events SET created_at = ?", old)
	require.NoError(t, err)

	require.Equal(t, time.Monday, pipelineRunAt.Weekday())
	require.NoError(t, pipeline.Run(pipelineRunAt))

	_, _, events, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, events, "ancient events survive a weekday run")
}

func TestPipelineRun_ConditionalResetHonorsWindows(t *testing.T) {
	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	pipeline := NewPipeline(store, engine, PipelineConfig{ConditionalReset: true}, logger.Logger)

	// Thursday; the current week opened on Monday 2026-08-24
	runAt := time.Date(2026, 8, 27, 6, 0, 0, 0, time.UTC)

	for _, id := range []string{"itm_fresh", "itm_stale"} {
		require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: id, Label: id, Active: true}))
		require.NoError(t, store.RecordClick(id, metric.ClickView))
		require.NoError(t, store.RecordClick(id, metric.ClickView))
	}

	lastWed := time.Date(2026, 8, 26, 6, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateMetric("itm_fresh", metric.Update{LastCalculated: &lastWed}))
	lastYear := time.Date(2025, 12, 30, 6, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateMetric("itm_stale", metric.Update{LastCalculated: &lastYear}))

	require.NoError(t, pipeline.Run(runAt))

	// Scored yesterday: every window is still open, so the counters survive
	// the reset stage and feed the scores. 2*0.4 + 2*0.3 + 2*0.1 = 1.6 and
	// 2*0.5 + 2*0.3 = 1.6
	fresh, err := store.GetMetric("itm_fresh")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, 2, fresh.WeeklyClicks)
	assert.Equal(t, 2, fresh.MonthlyClicks)
	assert.Equal(t, 1.6, fresh.PopularityScore)
	assert.Equal(t, 1.6, fresh.FeaturedScore)

	// Scored last year: every window rolled over, leaving only the total
	stale, err := store.GetMetric("itm_stale")
	require.NoError(t, err)
	require.NotNil(t, stale)
	assert.Zero(t, stale.WeeklyClicks)
	assert.Zero(t, stale.MonthlyClicks)
	assert.Zero(t, stale.YearlyClicks)
	assert.Equal(t, 2, stale.TotalClicks)
	assert.Equal(t, 0.2, stale.PopularityScore)
	assert.Zero(t, stale.FeaturedScore)
}

func TestPipelineRun_ClassificationQuirk(t *testing.T) {
	pipeline, store, db := newTestPipeline(t)

	// itm_fav has the best featured signal but sits mid-pack on popularity;
	// the tiers are both drawn from the popularity ranking, so it stays out
	ids := []string{"itm_a", "itm_b", "itm_c", "itm_d", "itm_e", "itm_f", "itm_g", "itm_h", "itm_i", "itm_fav"}
	for _, id := range ids {
		require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: id, Label: id, Active: true}))
		require.NoError(t, store.UpsertMetric(id))
	}

	// itm_a and itm_b dominate on totals; itm_fav on favorites only
	clicks := map[string]int{"itm_a": 300, "itm_b": 200, "itm_c": 100}
	for id, n := range clicks {
		_, err := db.Exec("UPDATE item_metrics SET total_clicks = ? WHERE item_id = ?", n, id)
		require.NoError(t, err)
	}
	_, err := db.Exec("UPDATE item_metrics SET favorite_clicks = 10 WHERE item_id = 'itm_fav'")
	require.NoError(t, err)

	require.NoError(t, pipeline.Run(pipelineRunAt))

	fav, err := store.GetMetric("itm_fav")
	require.NoError(t, err)
	a, err := store.GetMetric("itm_a")
	require.NoError(t, err)
	b, err := store.GetMetric("itm_b")
	require.NoError(t, err)

	// ceil(10*0.20)=2 popular, ceil(10*0.15)=2 featured, both off the popularity head.
	// itm_fav's featured score (10*1.0=10) beats itm_b's (0), yet itm_b is featured.
	assert.True(t, a.IsPopular)
	assert.True(t, b.IsPopular)
	assert.True(t, a.IsFeatured)
	assert.True(t, b.IsFeatured)
	assert.False(t, fav.IsPopular)
	assert.False(t, fav.IsFeatured)
	assert.Greater(t, fav.FeaturedScore, b.FeaturedScore)
}

