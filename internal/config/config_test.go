package config_test

import (
	"context"
	"testing"

	"vaultgc/internal/config"
	"vaultgc/internal/config/memory"
)

func TestStoreInterfaceRoundTrip(t *testing.T) {
	var store config.Store = memory.NewStore()
	ctx := context.Background()

	cfg := &config.Config{
		Repositories: []config.RepositoryConfig{{ID: "repo-1", Backend: "memory"}},
	}
	if err := store.Save(ctx, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Repositories) != 1 || got.Repositories[0].ID != "repo-1" {
		t.Fatalf("Load() = %+v", got)
	}
}
