// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

// Store backend names accepted by the Store field.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the document store backend: memory or sqlite.
	Store string `koanf:"store"`

	// SQLitePath locates the database file when Store is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// RosterPath locates a YAML roster seed (formations, assignments,
	// national roles). Empty means the process starts with an empty
	// roster and waits for an external resolver deployment.
	RosterPath string `koanf:"roster_path"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:   "info",
		Addr:       ":9080",
		Store:      StoreMemory,
		SQLitePath: "jury.db",
		RosterPath: "",
	}
}
