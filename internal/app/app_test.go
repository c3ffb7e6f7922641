package app

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/wesm/collabhub/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		HTTP:    config.HTTPConfig{Addr: "127.0.0.1:0", FrontendURL: "http://localhost:3000"},
		Storage: config.StorageConfig{Type: config.StorageSQLite, DatabasePath: filepath.Join(t.TempDir(), "app.db")},
		AI:      config.AIConfig{Model: "gpt-4o", MaxTokens: 100, MaxDiffBytes: 1000},
		Session: config.SessionConfig{JWTSecret: "secret"},
	}
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + a.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-a.Done(); err != nil {
		t.Errorf("server exited with %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.JWTSecret = ""
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected missing jwt secret to be rejected")
	}

	cfg = testConfig(t)
	cfg.Storage.Type = "mongo"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected unknown storage type to be rejected")
	}
}
