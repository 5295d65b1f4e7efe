package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const defaultMigrationsTable = "la_schema_migrations"

var (
	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)
	tableNamePattern     = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// Migration is one numbered schema step with its up and down scripts.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

type migrateOptions struct {
	table  string
	logger *zap.Logger
}

type MigrateOption func(*migrateOptions)

// WithMigrationsTable records applied versions in table instead of the
// default. The name must be a plain lower-case identifier.
func WithMigrationsTable(table string) MigrateOption {
	return func(o *migrateOptions) {
		o.table = table
	}
}

func WithMigrationLogger(logger *zap.Logger) MigrateOption {
	return func(o *migrateOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// LoadMigrations reads migrationsDir and pairs up and down scripts by
// version, ordered by version. A version missing either script is an error.
func LoadMigrations(migrationsDir string) ([]Migration, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, name, direction := match[1], match[2], match[3]
		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %s has conflicting names %q and %q", version, m.Name, name)
		}
		path := filepath.Join(migrationsDir, entry.Name())
		if direction == "up" {
			m.Up = path
		} else {
			m.Down = path
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s_%s needs both up and down scripts", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ApplyMigrations runs every pending up script in its own transaction and
// returns the versions it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string, opts ...MigrateOption) ([]string, error) {
	options := migrateOptions{table: defaultMigrationsTable, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&options)
	}
	if !tableNamePattern.MatchString(options.table) {
		return nil, fmt.Errorf("invalid migrations table name %q", options.table)
	}

	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db, options.table); err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migrations {
		migrated, err := isMigrated(ctx, db, options.table, m.Version)
		if err != nil {
			return applied, err
		}
		if migrated {
			continue
		}
		if err := applyMigration(ctx, db, options.table, m); err != nil {
			return applied, err
		}
		options.logger.Info("migration applied", zap.String("version", m.Version), zap.String("name", m.Name))
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, table string, m Migration) error {
	contents, err := os.ReadFile(m.Up)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.Version, err)
	}
	script := strings.TrimSpace(string(contents))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", m.Version, err)
	}
	if script != "" {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+`(version, name) VALUES($1, $2)`, m.Version, m.Name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB, table string) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+table+` (
			version TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure %s: %w", table, err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, table, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
