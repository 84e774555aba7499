package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/logging"
)

// migration is one ordered schema step. Statements must be written so that
// re-running them is harmless; versioning skips applied steps but a crash
// between the DDL and the version bump must not wedge the next open.
type migration struct {
	version    int
	name       string
	statements []string
}

// dialect carries the backend-specific SQL the migration runner needs.
type dialect struct {
	// metadataDDL creates the api_metadata table if missing.
	metadataDDL string
	// selectVersion reads the version value, one placeholder for the key.
	selectVersion string
	// upsertVersion writes the version, placeholders for key and value.
	upsertVersion string
}

// runMigrations brings a database up to the latest schema version. The
// metadata table is created unconditionally first so the version lookup always
// has somewhere to read from; each pending step then runs in its own
// transaction together with its version bump.
func runMigrations(ctx context.Context, db *sql.DB, d dialect, steps []migration, logger logging.Logger) error {
	if _, err := db.ExecContext(ctx, d.metadataDDL); err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}

	current, err := readSchemaVersion(ctx, db, d)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if step.version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", step.version, err)
		}
		if err := applyMigration(ctx, tx, d, step); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", step.version, err)
		}
		logger.Debug("applied schema migration", "version", step.version, "name", step.name)
		current = step.version
	}
	return nil
}

func applyMigration(ctx context.Context, tx *sql.Tx, d dialect, step migration) error {
	for _, stmt := range step.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", step.version, step.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, d.upsertVersion, SchemaVersionKey, strconv.Itoa(step.version)); err != nil {
		return fmt.Errorf("migration %d: record version: %w", step.version, err)
	}
	return nil
}

func readSchemaVersion(ctx context.Context, db *sql.DB, d dialect) (int, error) {
	var raw string
	err := db.QueryRowContext(ctx, d.selectVersion, SchemaVersionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed schema version %q: %w", raw, err)
	}
	return version, nil
}
