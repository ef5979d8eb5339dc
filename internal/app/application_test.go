package app

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"attendancehub/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "app.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	return cfg
}

func TestNewApplicationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.TTL = 0

	if _, err := NewApplication(cfg); err == nil {
		t.Fatal("Expected invalid configuration to be rejected")
	}
}

func TestNewApplicationRejectsUnreachableNATS(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS.URL = "nats://127.0.0.1:1"

	if _, err := NewApplication(cfg); err == nil {
		t.Fatal("Expected an unreachable nats server to fail startup")
	}
}

func TestApplicationLifecycle(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + application.Addr() + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from /health, got %d", resp.StatusCode)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Status != "healthy" {
		t.Errorf("Unexpected health response %+v, %v", health, err)
	}

	jobs := application.Pending()
	sort.Strings(jobs)
	want := []string{"ledger-sweep", "pending-student-sweep", "rate-limiter-cleanup"}
	if len(jobs) != len(want) {
		t.Fatalf("Expected jobs %v, got %v", want, jobs)
	}
	for i := range want {
		if jobs[i] != want[i] {
			t.Errorf("Expected jobs %v, got %v", want, jobs)
			break
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
