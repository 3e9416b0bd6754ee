package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Migration flow:
// 1. preMigrate: if the DB has no tables yet, apply LATEST.sql and record the
//    highest patch number as the schema version.
// 2. applyMigrations: apply every NN__description.sql whose NN is greater than
//    the recorded schema version, in one transaction.
//
// Migration files live in store/migration/{driver}/NN__description.sql.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the patch version and the description in the migration file name.
	// For example, "01__create_table.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the name of the latest schema file.
	LatestSchemaFileName = "LATEST.sql"

	schemaVersionSetting = "schema_version"
)

// validateMigrationFileName checks if a migration file follows the expected naming convention.
func validateMigrationFileName(filename string) error {
	if !strings.Contains(filename, MigrateFileNameSplit) {
		return errors.Errorf("invalid migration filename format (missing %s): %s", MigrateFileNameSplit, filename)
	}
	parts := strings.Split(filename, MigrateFileNameSplit)
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return errors.Errorf("migration filename must start with a number: %s", filename)
	}
	return nil
}

func patchOf(filePath string) (int, error) {
	filename := filepath.Base(filePath)
	if err := validateMigrationFileName(filename); err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.Split(filename, MigrateFileNameSplit)[0])
}

// Migrate brings the database schema to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	current, err := s.currentSchemaVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}
	if err := s.applyMigrations(ctx, current); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}

func (s *Store) migrationFiles() ([]string, error) {
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("%s*.sql", s.getMigrationBasePath()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migration files")
	}
	out := filePaths[:0]
	for _, p := range filePaths {
		if !strings.HasSuffix(p, LatestSchemaFileName) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// latestSchemaVersion is the highest patch number among migration files.
func (s *Store) latestSchemaVersion() (int, error) {
	files, err := s.migrationFiles()
	if err != nil {
		return 0, err
	}
	latest := 0
	for _, f := range files {
		patch, err := patchOf(f)
		if err != nil {
			return 0, err
		}
		if patch > latest {
			latest = patch
		}
	}
	return latest, nil
}

// applyMigrations applies all migration files newer than current in a single transaction.
func (s *Store) applyMigrations(ctx context.Context, current int) error {
	files, err := s.migrationFiles()
	if err != nil {
		return err
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	applied, target := 0, current
	for _, filePath := range files {
		patch, err := patchOf(filePath)
		if err != nil {
			return err
		}
		if patch <= current {
			continue
		}

		slog.Info("applying migration", slog.String("file", filePath), slog.Int("version", patch))
		bytes, err := migrationFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file: %s", filePath)
		}
		if _, err := tx.ExecContext(ctx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", filePath)
		}
		applied++
		target = patch
	}

	if applied == 0 {
		return nil
	}
	if err := setSchemaVersion(ctx, tx, target); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}
	slog.Info("migration completed", slog.Int("migrationsApplied", applied), slog.Int("schemaVersion", target))
	return nil
}

// preMigrate checks if the database is initialized and applies the latest schema if not.
func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Errorf("failed to read latest schema file: %s", err)
	}
	latest, err := s.latestSchemaVersion()
	if err != nil {
		return err
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if _, err := tx.ExecContext(ctx, string(bytes)); err != nil {
		return errors.Errorf("failed to execute SQL file %s, err %s", filePath, err)
	}
	if err := setSchemaVersion(ctx, tx, latest); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	slog.Info("database initialized successfully", slog.Int("schemaVersion", latest))
	return nil
}

func (s *Store) currentSchemaVersion(ctx context.Context) (int, error) {
	var raw string
	err := s.driver.GetDB().QueryRowContext(ctx,
		"SELECT value FROM system_setting WHERE name = ?", schemaVersionSetting).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO system_setting (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		schemaVersionSetting, strconv.Itoa(version))
	if err != nil {
		return errors.Wrap(err, "failed to update schema version")
	}
	return nil
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}
