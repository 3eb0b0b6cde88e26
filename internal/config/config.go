// Package config provides configuration persistence for vaultgc.
//
// Store persists and reloads the desired system configuration across
// restarts. This is control-plane state, not data-plane state: it
// describes which repositories to garbage-collect and on what schedule,
// never chunk or archive content itself.
//
// Store does not inspect chunks, perform fossilisation, or manage the
// scheduler's lifecycle; see internal/schedule for that. Watching the
// config file for live changes is the CLI's responsibility (internal/config
// itself is load/save only).
package config

import "context"

// Store persists and loads the system configuration.
type Store interface {
	// Load reads the configuration. Returns nil config if none exists.
	Load(ctx context.Context) (*Config, error)

	// Save persists the configuration.
	Save(ctx context.Context, cfg *Config) error
}

// Config describes the desired system shape: which repositories to run the
// fossil-collection protocol against, the client roster used for
// uncollectible diagnostics, the schedule for each repository's collect and
// delete passes, and optional audit event publication settings.
//
// Config is declarative: it defines what should exist, not how to create
// it.
type Config struct {
	Repositories []RepositoryConfig
	Clients      []ClientConfig
	Schedules    []ScheduleConfig
	Audit        AuditConfig
}

// RepositoryConfig describes one repository to run the protocol against.
type RepositoryConfig struct {
	// ID uniquely identifies this repository within the configuration.
	ID string

	// Backend selects the repository implementation ("memory" or "blob").
	Backend string

	// Params contains backend-specific configuration (bucket name,
	// endpoint, credentials reference, ignore globs, and so on).
	Params map[string]string
}

// ClientConfig names one registered repository client. The CLI registers
// every roster entry as a client of each repository it builds, so the roster
// is the set of clients whose fresh archives a deletion pass waits for.
type ClientConfig struct {
	ID          string
	DisplayName string
}

// ScheduleConfig binds a repository to cron expressions for its collection
// and deletion passes, plus the grace period deletion must wait past a
// collection's timestamp before attempting quiescence.
type ScheduleConfig struct {
	RepositoryID string

	// CollectCron and DeleteCron are standard 5-field cron expressions.
	CollectCron string
	DeleteCron  string

	// DeleteGracePeriod is the minimum duration, encoded as a
	// time.ParseDuration string (e.g. "24h"), that must elapse after a
	// collection's timestamp before a deletion pass is attempted.
	DeleteGracePeriod string
}

// AuditConfig configures best-effort publication of collection/deletion
// lifecycle events to an external event stream. A zero value disables
// publication.
type AuditConfig struct {
	Enabled    bool
	Brokers    []string
	Topic      string
	SASLUser   string
	SASLPass   string
	TLSEnabled bool
}
