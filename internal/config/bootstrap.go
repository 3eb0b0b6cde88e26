package config

import "context"

// DefaultConfig returns the bootstrap configuration for first-run: one
// in-memory repository, a once-a-day collection schedule, and a 24-hour
// deletion grace period.
func DefaultConfig() *Config {
	return &Config{
		Repositories: []RepositoryConfig{
			{ID: "default", Backend: "memory"},
		},
		Schedules: []ScheduleConfig{
			{
				RepositoryID:      "default",
				CollectCron:       "0 2 * * *",
				DeleteCron:        "0 3 * * *",
				DeleteGracePeriod: "24h",
			},
		},
	}
}

// Bootstrap writes the default configuration to store. Call this when Load
// returns nil (no config exists).
func Bootstrap(ctx context.Context, store Store) error {
	existing, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return store.Save(ctx, DefaultConfig())
}
