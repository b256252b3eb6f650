package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Migration is one numbered schema change for the Postgres signal store:
// an NNN_description.sql file applied in its own transaction, recorded in
// the schema_version bookkeeping table.
type Migration struct {
	Version     int
	Description string
	SQL         string
	Filename    string
}

// Migrator applies pending migrations from a directory to a *sql.DB.
type Migrator struct {
	db            *sql.DB
	migrationsDir string
}

// NewMigrator builds a Migrator reading .sql files from migrationsDir.
func NewMigrator(db *sql.DB, migrationsDir string) *Migrator {
	return &Migrator{db: db, migrationsDir: migrationsDir}
}

// currentVersion ensures the bookkeeping table exists and returns the
// highest applied version, 0 when nothing has been applied yet.
func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			description TEXT
		);
	`)
	if err != nil {
		return 0, fmt.Errorf("store: create schema_version table: %w", err)
	}
	var version int
	if err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

// loadMigrations reads every up-migration file, sorted by version.
// "_down.sql" files are skipped so a directory may carry reversals
// without the migrator ever applying them.
func (m *Migrator) loadMigrations() ([]Migration, error) {
	entries, err := os.ReadDir(m.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("store: read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, "_down.sql") {
			continue
		}

		version, description, err := parseMigrationName(name)
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(filepath.Join(m.migrationsDir, name))
		if err != nil {
			return nil, fmt.Errorf("store: read migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         string(content),
			Filename:    name,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationName splits "NNN_some_description.sql" into its version
// number and a human-readable description.
func parseMigrationName(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	numPart, descPart, ok := strings.Cut(base, "_")
	if !ok {
		return 0, "", fmt.Errorf("store: migration filename %q does not match NNN_description.sql", filename)
	}
	version, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, "", fmt.Errorf("store: migration filename %q does not match NNN_description.sql", filename)
	}
	return version, strings.ReplaceAll(descPart, "_", " "), nil
}

// Migrate applies every pending migration in version order, one
// transaction per migration.
func (m *Migrator) Migrate(ctx context.Context) error {
	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}
	migrations, err := m.loadMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("store: migration %d (%s): %w", migration.Version, migration.Filename, err)
		}
		applied++
	}

	if applied == 0 {
		log.Info().Int("version", current).Msg("signal store schema is up to date")
		return nil
	}
	final, _ := m.currentVersion(ctx)
	log.Info().Int("applied", applied).Int("version", final).Msg("signal store migrations complete")
	return nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration) error {
	log.Info().Int("version", migration.Version).Str("description", migration.Description).Msg("applying migration")

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		migration.Version, migration.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Status logs the current migration state without applying anything.
func (m *Migrator) Status(ctx context.Context) error {
	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}
	migrations, err := m.loadMigrations()
	if err != nil {
		return err
	}

	log.Info().Int("current_version", current).Int("available", len(migrations)).Msg("signal store migration status")
	for _, migration := range migrations {
		status := "pending"
		if migration.Version <= current {
			status = "applied"
		}
		log.Info().Int("version", migration.Version).Str("status", status).Str("description", migration.Description).Msg("migration")
	}
	return nil
}
