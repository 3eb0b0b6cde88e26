package config_test

import (
	"context"
	"testing"

	"vaultgc/internal/config"
	"vaultgc/internal/config/memory"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if len(cfg.Repositories) != 1 {
		t.Errorf("expected 1 repository, got %d", len(cfg.Repositories))
	}
	if cfg.Repositories[0].Backend != "memory" {
		t.Errorf("expected backend 'memory', got %q", cfg.Repositories[0].Backend)
	}
	if len(cfg.Schedules) != 1 {
		t.Errorf("expected 1 schedule, got %d", len(cfg.Schedules))
	}
	if cfg.Schedules[0].DeleteGracePeriod != "24h" {
		t.Errorf("expected 24h grace period, got %q", cfg.Schedules[0].DeleteGracePeriod)
	}
}

func TestBootstrap(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	cfg, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil before bootstrap")
	}

	if err := config.Bootstrap(ctx, s); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	cfg, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config after bootstrap, got nil")
	}
	if len(cfg.Repositories) != 1 {
		t.Errorf("expected 1 repository, got %d", len(cfg.Repositories))
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()

	custom := &config.Config{Repositories: []config.RepositoryConfig{{ID: "custom", Backend: "blob"}}}
	if err := s.Save(ctx, custom); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := config.Bootstrap(ctx, s); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	cfg, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Repositories) != 1 || cfg.Repositories[0].ID != "custom" {
		t.Fatalf("Bootstrap must not overwrite an existing config, got %+v", cfg)
	}
}
