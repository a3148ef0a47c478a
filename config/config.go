// Package config holds the Vitrina configuration, loaded with Viper from a TOML
// file and environment variables.
package config

// Config represents the core Vitrina configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Trigger   TriggerConfig   `mapstructure:"trigger"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the admin HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Default server port, above the privileged range and easy to type
const DefaultServerPort = 8710

// SchedulerConfig configures the work-item scheduler
type SchedulerConfig struct {
	TickIntervalMs int `mapstructure:"tick_interval_ms"` // How often the tick loop drains the queues (default: 1000)
	MaxAttempts    int `mapstructure:"max_attempts"`     // Attempts before a work item is marked failed (default: 3)

	// GuardedTicks skips a tick while the previous one is still executing.
	// Off by default: the reference behavior lets a slow tick overlap the next.
	GuardedTicks bool `mapstructure:"guarded_ticks"`
}

// ScoringConfig configures population classification cutoffs
type ScoringConfig struct {
	PopularCutoff  float64 `mapstructure:"popular_cutoff"`  // Fraction of the population marked popular (default: 0.20)
	FeaturedCutoff float64 `mapstructure:"featured_cutoff"` // Fraction marked featured (default: 0.15)

	// ConditionalReset zeroes each periodic counter only when its calendar
	// window has rolled over since the item was last scored. Off by default:
	// the daily pass zeroes every window counter unconditionally.
	ConditionalReset bool `mapstructure:"conditional_reset"`
}

// TriggerConfig configures the daily re-scoring trigger
type TriggerConfig struct {
	FireAt   string `mapstructure:"fire_at"`  // Local wall-clock fire time, "HH:MM" (default: "06:00")
	Timezone string `mapstructure:"timezone"` // IANA timezone name (default: "America/Managua")
}
