package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsFileAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
database:
  driver: sqlite
  dsn: ./custlight.sqlite
  command_timeout: 5s
catalog:
  path: ./views.toml
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "./custlight.sqlite" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Database.CommandTimeout != 5*time.Second {
		t.Fatalf("command_timeout = %s", cfg.Database.CommandTimeout)
	}
	if cfg.Database.ConnectRetries != 3 {
		t.Fatalf("connect_retries default = %d", cfg.Database.ConnectRetries)
	}
	if cfg.State.DSN != ".eavview/state.sqlite" {
		t.Fatalf("state.dsn default = %q", cfg.State.DSN)
	}
	if !cfg.Projector.VerifyColumns || !cfg.Projector.AuditCoercions {
		t.Fatalf("projector defaults = %+v", cfg.Projector)
	}
	if cfg.Catalog.Path != "./views.toml" {
		t.Fatalf("catalog.path = %q", cfg.Catalog.Path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  env: test\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("EAVVIEW_DATABASE_DSN", "app:secret@tcp(db:3306)/custlight")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.DSN != "app:secret@tcp(db:3306)/custlight" {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load() expected error for missing explicit file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Database: DatabaseConfig{DSN: "x", ConnectRetries: 1},
		State:    StateConfig{DSN: "y"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	noRetries := base
	noRetries.Database.ConnectRetries = 0
	if err := noRetries.Validate(); err == nil {
		t.Fatalf("Validate() expected error for zero retries")
	}

	noState := base
	noState.State.DSN = " "
	if err := noState.Validate(); err == nil {
		t.Fatalf("Validate() expected error for empty state dsn")
	}
}
