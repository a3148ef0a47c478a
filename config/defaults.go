package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "vitrina.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
	})

	// Scheduler defaults
	v.SetDefault("scheduler.tick_interval_ms", 1000)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.guarded_ticks", false)

	// Scoring defaults: top 20% popular, top 15% featured
	v.SetDefault("scoring.popular_cutoff", 0.20)
	v.SetDefault("scoring.featured_cutoff", 0.15)
	v.SetDefault("scoring.conditional_reset", false)

	// Daily trigger defaults
	v.SetDefault("trigger.fire_at", "06:00")
	v.SetDefault("trigger.timezone", "America/Managua")
}
