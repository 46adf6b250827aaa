package backend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"famledger/internal/config"
	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/remote"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                    "8081",
		StoreBackend:            config.BackendSQLite,
		SQLiteDBPath:            filepath.Join(t.TempDir(), "famledger.db"),
		StoreKey:                "famledger-storage",
		RemoteBackend:           config.BackendMemory,
		MaxTransactionAmount:    core.DefaultMaxTransactionAmount,
		MonthlyExpenseSoftLimit: 20_000_000,
		WriteQueueCapacity:      16,
		WriteQueueMaxRetries:    3,
	}
}

func TestBuild_SQLiteMemory(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	b, err := NewFactory(log.Discard()).Build(ctx, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if b.Feed != nil {
		t.Error("change feed enabled without AMQP_URL")
	}
	if b.Exporter.Enabled() {
		t.Error("sheets export enabled without spreadsheet id")
	}
	if b.Origin == "" {
		t.Error("empty origin")
	}

	b.Store.SetUserID(ctx, "u1")
	if _, err := b.Store.AddTask(ctx, core.Task{Title: "Pay rent"}); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	b.Queue.Flush(ctx)
	recs, err := b.Remote.Query(ctx, "tasks", nil, remote.OrderBy{})
	if err != nil || len(recs) != 1 {
		t.Fatalf("remote tasks = %v, %v", recs, err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// the snapshot survives a restart
	b2, err := NewFactory(log.Discard()).Build(ctx, cfg)
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	defer b2.Close()
	if b2.Store.UserID() != "u1" || len(b2.Store.Tasks()) != 1 {
		t.Errorf("rehydrated user %q with %d tasks", b2.Store.UserID(), len(b2.Store.Tasks()))
	}
}

func TestBuild_NuclearReset(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	b, err := NewFactory(log.Discard()).Build(ctx, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b.Store.SetUserID(ctx, "u1")
	b.Close()

	cfg.NuclearReset = true
	b2, err := NewFactory(log.Discard()).Build(ctx, cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer b2.Close()
	if b2.Store.UserID() != "" {
		t.Errorf("UserID() = %q after nuclear reset", b2.Store.UserID())
	}
}

func TestBuild_DefaultCategoriesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = config.BackendMemory
	cats := []core.Category{{ID: "rice", Name: "Rice", Type: core.Expense, Color: "#fff"}}
	data, _ := json.Marshal(cats)
	cfg.DefaultCategoriesFile = filepath.Join(t.TempDir(), "cats.json")
	if err := os.WriteFile(cfg.DefaultCategoriesFile, data, 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := NewFactory(log.Discard()).Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer b.Close()
	if got := b.Store.Categories(); len(got) != 1 || got[0].ID != "rice" {
		t.Errorf("Categories() = %+v", got)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown store", func(c *config.Config) { c.StoreBackend = "redis" }, "unsupported store backend"},
		{"unknown remote", func(c *config.Config) { c.RemoteBackend = "mongo" }, "unsupported remote backend"},
		{"missing categories file", func(c *config.Config) { c.DefaultCategoriesFile = "/nonexistent/cats.json" }, "load default categories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := NewFactory(log.Discard()).Build(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Build() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestBuild_NilConfig(t *testing.T) {
	if _, err := NewFactory(nil).Build(context.Background(), nil); err == nil {
		t.Error("expected error for nil config")
	}
}
