package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepositoryMigrationsLoad(t *testing.T) {
	migrations, err := LoadMigrations(filepath.Join("..", "..", "db", "migrations"))
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations discovered")
	}
	if migrations[0].Version != "0001" || migrations[0].Name != "qa_core" {
		t.Fatalf("unexpected first migration %+v", migrations[0])
	}

	up, err := os.ReadFile(migrations[0].Up)
	if err != nil {
		t.Fatalf("read up script: %v", err)
	}
	for _, table := range []string{"users", "lawyer_profiles", "questions", "answers"} {
		if !strings.Contains(string(up), "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("core migration does not create %s", table)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	cases := []struct {
		name     string
		files    []string
		wantErr  string
		wantVers []string
	}{
		{
			name:     "ordered by version",
			files:    []string{"0002_views.up.sql", "0002_views.down.sql", "0001_core.up.sql", "0001_core.down.sql", "README.md"},
			wantVers: []string{"0001", "0002"},
		},
		{
			name:    "missing down",
			files:   []string{"0001_core.up.sql"},
			wantErr: "needs both up and down",
		},
		{
			name:    "conflicting names",
			files:   []string{"0001_core.up.sql", "0001_other.down.sql"},
			wantErr: "conflicting names",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, name := range tc.files {
				if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
					t.Fatalf("write %s: %v", name, err)
				}
			}
			migrations, err := LoadMigrations(dir)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadMigrations() error = %v", err)
			}
			if len(migrations) != len(tc.wantVers) {
				t.Fatalf("got %d migrations, want %d", len(migrations), len(tc.wantVers))
			}
			for i, want := range tc.wantVers {
				if migrations[i].Version != want {
					t.Fatalf("migration %d = %s, want %s", i, migrations[i].Version, want)
				}
			}
		})
	}
}

func TestApplyMigrationsRejectsUnsafeTableName(t *testing.T) {
	_, err := ApplyMigrations(context.Background(), nil, t.TempDir(), WithMigrationsTable("versions; DROP TABLE users"))
	if err == nil || !strings.Contains(err.Error(), "invalid migrations table name") {
		t.Fatalf("expected table name error, got %v", err)
	}
}
