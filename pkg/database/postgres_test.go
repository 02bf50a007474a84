package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/wangshuile/jb-quant/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	_, err := New(&config.Config{})
	if err == nil {
		t.Fatal("Expected error without DATABASE_URL")
	}
}

func TestNew_BadURL(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: "://not-a-url"}}
	if _, err := New(cfg); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestSchemaCoversReportTables(t *testing.T) {
	joined := strings.Join(schema, "\n")
	for _, table := range []string{"market.daily_bars", "market.instruments", "market.index_constituents", "report.daily_snapshots", "report.trades"} {
		if !strings.Contains(joined, table) {
			t.Errorf("schema missing %s", table)
		}
	}
}

func TestEnsureSchema(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	if status := db.HealthCheck(ctx); !status.Healthy {
		t.Errorf("Expected healthy database, got %s", status.Error)
	}
}
