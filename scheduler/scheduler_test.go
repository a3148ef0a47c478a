package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vitrinatest "github.com/vitrina/pulso/internal/testing"
	"github.com/vitrina/pulso/logger"
	"github.com/vitrina/pulso/metric"
	"github.com/vitrina/pulso/scoring"
)

func newTestScheduler(t *testing.T) (*Scheduler, *metric.Store) {
	t.Helper()

	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	sched := New(store, engine, DefaultConfig(), logger.Logger)
	return sched, store
}

func createActiveItems(t *testing.T, store *metric.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: id, Label: "Item " + id, Active: true}))
	}
}

func TestEnqueueAll_SchedulesEveryTypeForEveryActiveItem(t *testing.T) {
	sched, store := newTestScheduler(t)
	createActiveItems(t, store, "itm_1", "itm_2", "itm_3")
	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_off", Label: "Inactive", Active: false}))

	count, err := sched.EnqueueAll()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stats := sched.Stats()
	assert.Equal(t, 9, stats.Totals.Total, "one work item per type per active item")
	for _, workType := range WorkTypes {
		assert.Equal(t, 3, stats.Queues[workType].Pending)
	}
}

func TestEnqueueAll_ResetsPreviousContents(t *testing.T) {
	sched, store := newTestScheduler(t)
	createActiveItems(t, store, "itm_1")

	_, err := sched.EnqueueAll()
	require.NoError(t, err)
	_, err = sched.EnqueueAll()
	require.NoError(t, err)

	// A second full pass replaces the first wholesale, it never doubles up
	stats := sched.Stats()
	assert.Equal(t, 3, stats.Totals.Total)
}

func TestEnqueueAll_EmptyCatalog(t *testing.T) {
	sched, _ := newTestScheduler(t)

	count, err := sched.EnqueueAll()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, sched.Stats().Totals.Total)
}

func TestEnqueueOne(t *testing.T) {
	sched, store := newTestScheduler(t)
	createActiveItems(t, store, "itm_1", "itm_2")

	ids, err := sched.EnqueueOne("itm_1")
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	// Does not disturb anything already queued
	ids, err = sched.EnqueueOne("itm_2")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, 6, sched.Stats().Totals.Total)
}

func TestEnqueueOne_RejectsUnknownAndInactive(t *testing.T) {
	sched, store := newTestScheduler(t)

	_, err := sched.EnqueueOne("itm_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_off", Label: "Inactive", Active: false}))
	_, err = sched.EnqueueOne("itm_off")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")
}

func TestRunTick_ProcessesOneItemPerQueue(t *testing.T) {
	sched, store := newTestScheduler(t)
	createActiveItems(t, store, "itm_1", "itm_2")

	_, err := sched.EnqueueAll()
	require.NoError(t, err)

	sched.RunTick()

	stats := sched.Stats()
	assert.Equal(t, 3, stats.Totals.Completed, "one completion per queue per tick")
	assert.Equal(t, 3, stats.Totals.Pending)

	sched.RunTick()
	stats = sched.Stats()
	assert.Equal(t, 6, stats.Totals.Completed)
	assert.Zero(t, stats.Totals.Pending)
}

func TestRunTick_WritesScoresAndTiers(t *testing.T) {
	sched, store := newTestScheduler(t)
	createActiveItems(t, store, "itm_1")

	require.NoError(t, store.RecordClick("itm_1", metric.ClickContact))
	require.NoError(t, store.RecordClick("itm_1", metric.ClickView))

	_, err := sched.EnqueueAll()
	require.NoError(t, err)
	sched.RunTick()

	m, err := store.GetMetric("itm_1")
	require.NoError(t, err)
	require.NotNil(t, m)

	// weekly=2, monthly=2, contact=1, favorite=0, total=2
	// popularity: 2*0.4 + 2*0.3 + 1*2.0 + 0 + 2*0.1 = 3.6
	// featured:   1*3.0 + 0 + 2*0.5 + 2*0.3 = 4.6
	assert.Equal(t, 3.6, m.PopularityScore)
	assert.Equal(t, 4.6, m.FeaturedScore)

	// Sole member of the population lands in both tiers
	assert.True(t, m.IsPopular)
	assert.True(t, m.IsFeatured)
	assert.NotNil(t, m.LastCalculated)
}

func TestRunTick_SkipsDeactivatedItem(t *testing.T) {
	sched, store := newTestScheduler(t)
	createActiveItems(t, store, "itm_1")

	_, err := sched.EnqueueAll()
	require.NoError(t, err)

	// Deactivate between scheduling and processing
	require.NoError(t, store.SetItemActive("itm_1", false))

	sched.RunTick()

	jobs, err := sched.JobsOfType(WorkPopularity)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusCompleted, jobs[0].Status)
	assert.Equal(t, ResultSkipped, jobs[0].Result)
	assert.Zero(t, jobs[0].Attempts, "skips never consume a retry attempt")

	// Skipped items never got a metric row written
	m, err := store.GetMetric("itm_1")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRunTick_RetriesUntilTerminalFailure(t *testing.T) {
	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	sched := New(store, engine, Config{MaxAttempts: 3}, logger.Logger)

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_1", Label: "Shop", Active: true}))
	_, err := sched.EnqueueAll()
	require.NoError(t, err)

	// Break the metric storage underneath the scheduler
	_, err = db.Exec("DROP TABLE item_metrics")
	require.NoError(t, err)

	sched.RunTick()
	sched.RunTick()

	jobs, err := sched.JobsOfType(WorkPopularity)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusPending, jobs[0].Status, "still retryable before max attempts")
	assert.Equal(t, 2, jobs[0].Attempts)

	sched.RunTick()

	jobs, err = sched.JobsOfType(WorkPopularity)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, jobs[0].Status)
	assert.Equal(t, 3, jobs[0].Attempts)
	assert.NotEmpty(t, jobs[0].Error)

	// A further tick leaves the terminal item alone
	sched.RunTick()
	jobs, _ = sched.JobsOfType(WorkPopularity)
	assert.Equal(t, 3, jobs[0].Attempts)
}

func TestRunTick_RetryThenSucceed(t *testing.T) {
	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	sched := New(store, engine, Config{MaxAttempts: 3}, logger.Logger)

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_1", Label: "Shop", Active: true}))
	_, err := sched.EnqueueAll()
	require.NoError(t, err)

	// Break the metric storage, fail twice, then restore it
	_, err = db.Exec("ALTER TABLE item_metrics RENAME TO item_metrics_broken")
	require.NoError(t, err)
	sched.RunTick()
	sched.RunTick()
	_, err = db.Exec("ALTER TABLE item_metrics_broken RENAME TO item_metrics")
	require.NoError(t, err)

	sched.RunTick()

	jobs, err := sched.JobsOfType(WorkPopularity)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusCompleted, jobs[0].Status)
	assert.Equal(t, ResultScored, jobs[0].Result)
	assert.Equal(t, jobs[0].MaxAttempts-1, jobs[0].Attempts)
}

func TestClear_RetainsFailedAcrossQueues(t *testing.T) {
	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	sched := New(store, engine, Config{MaxAttempts: 1}, logger.Logger)

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_1", Label: "Shop", Active: true}))
	_, err := sched.EnqueueAll()
	require.NoError(t, err)

	_, err = db.Exec("DROP TABLE item_metrics")
	require.NoError(t, err)
	sched.RunTick()

	stats := sched.Stats()
	require.Equal(t, 3, stats.Totals.Failed, "all three work types hit the broken storage")

	removed, retained := sched.Clear()
	assert.Zero(t, removed)
	assert.Equal(t, 3, retained)
	assert.Equal(t, 3, sched.Stats().Totals.Failed)
}

func TestStartStop(t *testing.T) {
	sched, _ := newTestScheduler(t)

	ok, msg := sched.Start()
	assert.True(t, ok)
	assert.Equal(t, "scheduler started", msg)
	assert.True(t, sched.IsRunning())

	ok, msg = sched.Start()
	assert.False(t, ok)
	assert.Equal(t, "scheduler already running", msg)

	ok, _ = sched.Stop()
	assert.True(t, ok)
	assert.False(t, sched.IsRunning())

	ok, msg = sched.Stop()
	assert.False(t, ok)
	assert.Equal(t, "scheduler not running", msg)
}

func TestPauseResume(t *testing.T) {
	sched, _ := newTestScheduler(t)

	assert.True(t, sched.Pause())
	assert.False(t, sched.Pause(), "pausing twice is a no-op")
	assert.True(t, sched.IsPaused())

	assert.True(t, sched.Resume())
	assert.False(t, sched.Resume())
	assert.False(t, sched.IsPaused())
}

func TestTickLoop_DrainsQueues(t *testing.T) {
	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	sched := New(store, engine, Config{TickInterval: 10 * time.Millisecond}, logger.Logger)

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_1", Label: "Shop", Active: true}))
	_, err := sched.EnqueueAll()
	require.NoError(t, err)

	sched.Start()
	defer sched.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sched.Stats().Totals.Pending == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := sched.Stats()
	assert.Zero(t, stats.Totals.Pending)
	assert.Equal(t, 3, stats.Totals.Completed)
	assert.Positive(t, stats.Ticks)
	assert.NotNil(t, stats.LastTickAt)
}

func TestJobsOfType_RejectsUnknownType(t *testing.T) {
	sched, _ := newTestScheduler(t)

	_, err := sched.JobsOfType(WorkType("bogus"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown work type")
}

func TestSubscribe_ReceivesWorkItemUpdates(t *testing.T) {
	sched, store := newTestScheduler(t)
	createActiveItems(t, store, "itm_1")

	ch := sched.Subscribe()
	defer sched.Unsubscribe(ch)

	_, err := sched.EnqueueAll()
	require.NoError(t, err)
	sched.RunTick()

	// Each processed item emits a running update then a terminal update
	var updates []WorkItem
	for len(updates) < 6 {
		select {
		case u := <-ch:
			updates = append(updates, u)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d updates", len(updates))
		}
	}

	assert.Equal(t, StatusRunning, updates[0].Status)
	assert.Equal(t, StatusCompleted, updates[1].Status)
	assert.Equal(t, WorkPopularity, updates[0].Type)
}

func TestClassification_EmptyPopulationIsNoOp(t *testing.T) {
	sched, store := newTestScheduler(t)
	createActiveItems(t, store, "itm_1")

	_, err := sched.EnqueueAll()
	require.NoError(t, err)

	// Deactivate so the classification pass sees an empty population
	require.NoError(t, store.SetItemActive("itm_1", false))
	sched.RunTick()

	jobs, err := sched.JobsOfType(WorkClassification)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusCompleted, jobs[0].Status)
	assert.Equal(t, ResultScored, jobs[0].Result)
}

func TestSetConfig(t *testing.T) {
	sched, _ := newTestScheduler(t)

	sched.SetConfig(Config{TickInterval: 5 * time.Second, MaxAttempts: 7, GuardedTicks: true})

	sched.mu.Lock()
	defer sched.mu.Unlock()
	assert.Equal(t, 5*time.Second, sched.cfg.TickInterval)
	assert.Equal(t, 7, sched.cfg.MaxAttempts)
	assert.True(t, sched.cfg.GuardedTicks)
}
