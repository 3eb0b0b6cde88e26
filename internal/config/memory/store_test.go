package memory

import (
	"context"
	"testing"

	"vaultgc/internal/config"
)

func TestStoreLoadBeforeSaveReturnsNil(t *testing.T) {
	s := NewStore()
	cfg, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil before any Save")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	want := &config.Config{
		Repositories: []config.RepositoryConfig{
			{ID: "repo-1", Backend: "blob", Params: map[string]string{"bucket": "backups"}},
		},
		Clients: []config.ClientConfig{{ID: "alice", DisplayName: "Alice"}},
		Schedules: []config.ScheduleConfig{
			{RepositoryID: "repo-1", CollectCron: "0 2 * * *", DeleteCron: "0 3 * * *", DeleteGracePeriod: "24h"},
		},
		Audit: config.AuditConfig{Enabled: true, Brokers: []string{"broker:9092"}, Topic: "vaultgc.audit"},
	}

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Repositories) != 1 || got.Repositories[0].Params["bucket"] != "backups" {
		t.Fatalf("Repositories = %+v", got.Repositories)
	}
	if len(got.Clients) != 1 || got.Clients[0].ID != "alice" {
		t.Fatalf("Clients = %+v", got.Clients)
	}
	if len(got.Schedules) != 1 || got.Schedules[0].DeleteGracePeriod != "24h" {
		t.Fatalf("Schedules = %+v", got.Schedules)
	}
	if !got.Audit.Enabled || len(got.Audit.Brokers) != 1 {
		t.Fatalf("Audit = %+v", got.Audit)
	}
}

func TestStoreIsolation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	orig := &config.Config{
		Repositories: []config.RepositoryConfig{{ID: "repo-1", Backend: "memory", Params: map[string]string{"key": "value"}}},
	}
	if err := s.Save(ctx, orig); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's struct after Save must not affect the store.
	orig.Repositories[0].Params["key"] = "mutated"

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Repositories[0].Params["key"] != "value" {
		t.Fatalf("Save did not deep-copy: got %q", got.Repositories[0].Params["key"])
	}

	// Mutating a loaded copy must not affect a subsequent Load.
	got.Repositories[0].Params["key"] = "mutated-again"
	got2, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got2.Repositories[0].Params["key"] != "value" {
		t.Fatalf("Load did not deep-copy: got %q", got2.Repositories[0].Params["key"])
	}
}
