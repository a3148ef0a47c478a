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

func newTestTrigger(t *testing.T, cfg TriggerConfig) (*DailyTrigger, *Scheduler, *metric.Store) {
	t.Helper()

	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	sched := New(store, engine, DefaultConfig(), logger.Logger)
	pipeline := NewPipeline(store, engine, PipelineConfig{}, logger.Logger)

	trigger, err := NewDailyTrigger(sched, pipeline, cfg, logger.Logger)
	require.NoError(t, err)
	return trigger, sched, store
}

func TestNewDailyTrigger_RejectsBadConfig(t *testing.T) {
	db := vitrinatest.CreateTestDB(t)
	store := metric.NewStore(db)
	engine := scoring.NewEngine(scoring.DefaultPopularCutoff, scoring.DefaultFeaturedCutoff)
	sched := New(store, engine, DefaultConfig(), logger.Logger)
	pipeline := NewPipeline(store, engine, PipelineConfig{}, logger.Logger)

	cases := []TriggerConfig{
		{FireAt: "6am", Timezone: "America/Managua"},
		{FireAt: "25:00", Timezone: "America/Managua"},
		{FireAt: "06:70", Timezone: "America/Managua"},
		{FireAt: "", Timezone: "America/Managua"},
		{FireAt: "06:00", Timezone: "Mars/Olympus"},
	}
	for _, cfg := range cases {
		_, err := NewDailyTrigger(sched, pipeline, cfg, logger.Logger)
		assert.Error(t, err, "config %+v should be rejected", cfg)
	}
}

func TestNextFire_SameDayWhenBeforeFireTime(t *testing.T) {
	trigger, _, _ := newTestTrigger(t, DefaultTriggerConfig())

	managua, err := time.LoadLocation("America/Managua")
	require.NoError(t, err)

	// 03:30 local, fire time still ahead today
	now := time.Date(2026, 8, 31, 3, 30, 0, 0, managua)
	next := trigger.NextFire(now)

	assert.Equal(t, time.Date(2026, 8, 31, 6, 0, 0, 0, managua), next)
}

func TestNextFire_NextDayWhenPastFireTime(t *testing.T) {
	trigger, _, _ := newTestTrigger(t, DefaultTriggerConfig())

	managua, err := time.LoadLocation("America/Managua")
	require.NoError(t, err)

	// 10:00 local, today's fire already happened
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, managua)
	next := trigger.NextFire(now)

	assert.Equal(t, time.Date(2026, 9, 1, 6, 0, 0, 0, managua), next)
}

func TestNextFire_ExactFireInstantRollsToNextDay(t *testing.T) {
	trigger, _, _ := newTestTrigger(t, DefaultTriggerConfig())

	managua, err := time.LoadLocation("America/Managua")
	require.NoError(t, err)

	// Strictly after now: at the instant itself, the next fire is tomorrow
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, managua)
	next := trigger.NextFire(now)

	assert.Equal(t, time.Date(2026, 9, 1, 6, 0, 0, 0, managua), next)
}

func TestNextFire_ConvertsFromOtherZones(t *testing.T) {
	trigger, _, _ := newTestTrigger(t, DefaultTriggerConfig())

	managua, err := time.LoadLocation("America/Managua")
	require.NoError(t, err)

	// Managua is UTC-6 year round. 11:00 UTC = 05:00 local, so the fire is
	// still ahead on the same local day.
	now := time.Date(2026, 8, 31, 11, 0, 0, 0, time.UTC)
	next := trigger.NextFire(now)

	assert.Equal(t, time.Date(2026, 8, 31, 6, 0, 0, 0, managua).Unix(), next.Unix())
}

func TestTriggerFire_EnqueuesAndRunsPipeline(t *testing.T) {
	trigger, sched, store := newTestTrigger(t, DefaultTriggerConfig())

	require.NoError(t, store.CreateItem(&metric.CatalogItem{ID: "itm_1", Label: "Shop", Active: true}))
	require.NoError(t, store.RecordClick("itm_1", metric.ClickContact))

	trigger.fire(time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC))
	defer sched.Stop()

	// The fire starts the tick loop, queues a full pass, and the pipeline ran
	assert.True(t, sched.IsRunning())
	assert.Equal(t, 3, sched.Stats().Totals.Total)
	assert.False(t, trigger.LastFireAt().IsZero())

	m, err := store.GetMetric("itm_1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.NotNil(t, m.LastCalculated, "pipeline scored the catalog directly")
	assert.True(t, m.IsPopular)
}

func TestTriggerStartStop(t *testing.T) {
	trigger, _, _ := newTestTrigger(t, DefaultTriggerConfig())

	ctx := t.Context()
	trigger.Start(ctx)
	trigger.Start(ctx) // second start is a no-op
	trigger.Stop()
	trigger.Stop() // second stop is a no-op
}
