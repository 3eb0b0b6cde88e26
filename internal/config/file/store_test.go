package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vaultgc/internal/config"
)

func TestStoreLoadBeforeSaveReturnsNil(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "config.json"))

	cfg, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil before any Save")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "config.json"))
	ctx := context.Background()

	want := &config.Config{
		Repositories: []config.RepositoryConfig{
			{ID: "repo-1", Backend: "blob", Params: map[string]string{"bucket": "backups"}},
		},
		Clients: []config.ClientConfig{{ID: "alice", DisplayName: "Alice"}},
		Schedules: []config.ScheduleConfig{
			{RepositoryID: "repo-1", CollectCron: "0 2 * * *", DeleteCron: "0 3 * * *", DeleteGracePeriod: "24h"},
		},
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
}

func TestStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "subdir", "nested")
	configPath := filepath.Join(dir, "config.json")

	s := NewStore(configPath)
	ctx := context.Background()

	if err := s.Save(ctx, &config.Config{Repositories: []config.RepositoryConfig{{ID: "r1", Backend: "memory"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config file should exist: %v", err)
	}
}

func TestStoreInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	if err := os.WriteFile(configPath, []byte("{invalid}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewStore(configPath)
	_, err := s.Load(context.Background())
	if err == nil {
		t.Fatal("expected error loading invalid JSON, got nil")
	}
}

func TestStoreUnversionedFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	data := `{"repositories": [{"id": "r1", "backend": "memory"}]}`
	if err := os.WriteFile(configPath, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewStore(configPath)
	_, err := s.Load(context.Background())
	if err == nil {
		t.Fatal("expected error for unversioned config, got nil")
	}
	if !strings.Contains(err.Error(), "unversioned") {
		t.Errorf("expected error mentioning 'unversioned', got: %v", err)
	}
}

func TestStoreJSONIsHumanReadable(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	s := NewStore(configPath)
	ctx := context.Background()

	if err := s.Save(ctx, &config.Config{
		Repositories: []config.RepositoryConfig{{ID: "repo-1", Backend: "memory"}},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "\n") {
		t.Error("expected indented JSON with newlines")
	}
	if !strings.Contains(content, `"version"`) {
		t.Error("expected versioned envelope with 'version' field")
	}
}

func TestStoreReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	s1 := NewStore(configPath)
	ctx := context.Background()

	if err := s1.Save(ctx, &config.Config{Repositories: []config.RepositoryConfig{{ID: "r1", Backend: "memory"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2 := NewStore(configPath)
	got, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("Load from new store: %v", err)
	}
	if got == nil || len(got.Repositories) != 1 || got.Repositories[0].ID != "r1" {
		t.Fatalf("Load() = %+v", got)
	}
}

func TestStoreVersionNewerThanSupportedErrors(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	data := `{"version": 99, "config": {}}`
	if err := os.WriteFile(configPath, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewStore(configPath)
	_, err := s.Load(context.Background())
	if err == nil {
		t.Fatal("expected error for config version newer than supported")
	}
}
