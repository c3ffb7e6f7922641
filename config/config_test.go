package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"session": {"jwt_secret": "from-file"}}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvJWTSecret, "from-env")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Session.JWTSecret != "from-env" {
		t.Errorf("expected env to override jwt secret, got %q", cfg.Session.JWTSecret)
	}
	if cfg.AI.APIKey != "sk-test" {
		t.Errorf("expected AI key from env, got %q", cfg.AI.APIKey)
	}
	if cfg.Storage.Type != StorageSQLite {
		t.Errorf("expected default storage sqlite, got %q", cfg.Storage.Type)
	}
	if want := filepath.Join(dir, "collabhub.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("expected database path %q, got %q", want, cfg.Storage.DatabasePath)
	}
	if cfg.GitHub.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", cfg.GitHub.PageSize)
	}
	if cfg.Sync.Workers != 5 {
		t.Errorf("expected 5 sync workers, got %d", cfg.Sync.Workers)
	}
	if cfg.SessionTTL() != 7*24*time.Hour {
		t.Errorf("expected 7 day session TTL, got %v", cfg.SessionTTL())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Type: StorageSQLite}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing jwt secret to fail validation")
	}

	cfg.Session.JWTSecret = "secret"
	cfg.Storage.Type = StoragePostgres
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected postgres without dsn to fail validation")
	}

	cfg.Storage.Type = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown storage type to fail validation")
	}
}

func TestCreateDefaultConfigDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	if err := CreateDefaultConfig(path); err != nil {
		t.Fatalf("CreateDefaultConfig: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"http": {"addr": ":9999"}}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := CreateDefaultConfig(path); err != nil {
		t.Fatalf("CreateDefaultConfig second call: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Addr != ":9999" {
		t.Errorf("existing config was overwritten, addr=%q", cfg.HTTP.Addr)
	}
}
