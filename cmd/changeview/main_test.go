package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfig_RequiresDB(t *testing.T) {
	if _, err := resolveConfig(options{}); !errors.Is(err, errUsage) {
		t.Fatalf("err = %v, want errUsage", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(context.Background(), logger, options{}); !errors.Is(err, errUsage) {
		t.Fatalf("run err = %v, want errUsage", err)
	}
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changeview.yaml")
	if err := os.WriteFile(path, []byte("db_path: file.db\nhttp:\n  addr: \":9090\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := resolveConfig(options{configPath: path, addr: ":7070"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "file.db" || cfg.HTTP.Addr != ":7070" {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg, err = resolveConfig(options{configPath: path, dbPath: "flag.db"})
	if err != nil || cfg.DBPath != "flag.db" {
		t.Errorf("db override: %v %+v", err, cfg)
	}
}
