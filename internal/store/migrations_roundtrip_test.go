package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var coreTables = []string{"users", "lawyer_profiles", "questions", "answers"}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("LA_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("LA_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	const table = "roundtrip_migrations"

	applied, err := ApplyMigrations(ctx, db, migrationsDir, WithMigrationsTable(table))
	if err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if len(applied) == 0 || applied[0] != "0001" {
		t.Fatalf("unexpected applied versions %v", applied)
	}
	assertTables(ctx, t, db, true)
	assertAnswerLawyerRequired(ctx, t, db)

	again, err := ApplyMigrations(ctx, db, migrationsDir, WithMigrationsTable(table))
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("re-apply ran %v, want nothing", again)
	}

	if err := applyDownMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	assertTables(ctx, t, db, false)

	if _, err := db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		t.Fatalf("clear %s: %v", table, err)
	}
	if _, err := ApplyMigrations(ctx, db, migrationsDir, WithMigrationsTable(table)); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
	assertTables(ctx, t, db, true)
}

func assertTables(ctx context.Context, t *testing.T, db *sql.DB, want bool) {
	t.Helper()
	for _, table := range coreTables {
		var exists bool
		err := db.QueryRowContext(ctx, `SELECT to_regclass('public.' || $1) IS NOT NULL`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if exists != want {
			t.Fatalf("table %s exists = %v, want %v", table, exists, want)
		}
	}
}

// Answers without a lawyer must be rejected by the schema itself.
func assertAnswerLawyerRequired(ctx context.Context, t *testing.T, db *sql.DB) {
	t.Helper()
	var nullable string
	err := db.QueryRowContext(ctx, `
		SELECT is_nullable FROM information_schema.columns
		WHERE table_name = 'answers' AND column_name = 'lawyer_id'
	`).Scan(&nullable)
	if err != nil {
		t.Fatalf("inspect answers.lawyer_id: %v", err)
	}
	if nullable != "NO" {
		t.Fatalf("answers.lawyer_id nullable = %s", nullable)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

func applyDownMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		script, err := os.ReadFile(migrations[i].Down)
		if err != nil {
			return err
		}
		if text := strings.TrimSpace(string(script)); text != "" {
			if _, err := db.ExecContext(ctx, text); err != nil {
				return err
			}
		}
	}
	return nil
}
