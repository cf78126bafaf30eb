package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"time"
)

// MigrationType is the direction of a schema migration.
type MigrationType string

// Migration types.
const (
	MigrationUp   MigrationType = "up"
	MigrationDown MigrationType = "down"
)

type migration struct {
	name    string
	applied bool
	up      sql.Null[string]
	down    sql.Null[string]
}

var migrationRx = regexp.MustCompile(`^(?P<name>\d{1,}-[a-z0-9-_]+)\.(?P<type>up|down)\.sql$`)

// loadMigrations reads the SQL files in dir, and returns them sorted by
// migration name.
func loadMigrations(dir fs.FS) ([]*migration, error) {
	byName := make(map[string]*migration)

	err := fs.WalkDir(dir, ".", func(p string, d fs.DirEntry, e error) error {
		if e != nil {
			return e
		}
		if !d.Type().IsRegular() || path.Ext(d.Name()) != ".sql" {
			return nil
		}

		matched := migrationRx.FindStringSubmatch(d.Name())
		if len(matched) == 0 {
			return fmt.Errorf("invalid migration file name '%s'", p)
		}
		data, err := fs.ReadFile(dir, p)
		if err != nil {
			return err
		}
		name := matched[migrationRx.SubexpIndex("name")]
		m, ok := byName[name]
		if !ok {
			m = &migration{name: name}
			byName[name] = m
		}
		val := sql.Null[string]{V: string(data), Valid: true}
		if matched[migrationRx.SubexpIndex("type")] == string(MigrationUp) {
			m.up = val
		} else {
			m.down = val
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed loading migrations: %w", err)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	migrations := make([]*migration, 0, len(byName))
	for _, name := range names {
		migrations = append(migrations, byName[name])
	}

	return migrations, nil
}

func loadHistory(ctx context.Context, db *sql.DB, migrations []*migration) error {
	byName := make(map[string]*migration)
	for _, m := range migrations {
		byName[m.name] = m
	}

	rows, err := db.QueryContext(ctx, `SELECT name, type FROM _migration_history
		ORDER BY rowid;`)
	if err != nil {
		return fmt.Errorf("failed retrieving migration history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return fmt.Errorf("failed reading migration history: %w", err)
		}
		m, ok := byName[name]
		if !ok {
			return fmt.Errorf("found unknown migration in history: '%s'", name)
		}
		m.applied = MigrationType(typ) == MigrationUp
	}

	return rows.Err()
}

// runMigrations applies or rolls back migrations up to and including the
// named one. to can either be a migration name, or "all".
func runMigrations(
	ctx context.Context, db *sql.DB, migrations []*migration, typ MigrationType,
	to string, logger *slog.Logger,
) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migration_history (
			name VARCHAR(128) NOT NULL,
			type VARCHAR(32) CHECK( type IN ('up','down') ) NOT NULL,
			time TIMESTAMP NOT NULL
		);`)
	if err != nil {
		return fmt.Errorf("failed creating migration history table: %w", err)
	}

	if err = loadHistory(ctx, db, migrations); err != nil {
		return err
	}

	plan, err := createMigrationPlan(migrations, typ, to)
	if err != nil {
		return err
	}

	for _, run := range plan {
		if err = applyMigration(ctx, db, run); err != nil {
			return fmt.Errorf("failed running %s migration '%s': %w", run.typ, run.name, err)
		}
		msg := "applied"
		if run.typ == MigrationDown {
			msg = "rolled back"
		}
		logger.Debug(fmt.Sprintf("%s schema migration", msg), "name", run.name)
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, run migrationRun) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, run.sql); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO _migration_history (name, type, time)
		VALUES ($1, $2, $3);`, run.name, string(run.typ), time.Now().UTC())
	if err != nil {
		return err
	}

	return tx.Commit()
}

type migrationRun struct {
	name string
	typ  MigrationType
	sql  string
}

func createMigrationPlan(
	migrations []*migration, typ MigrationType, to string,
) ([]migrationRun, error) {
	plan := []migrationRun{}

	toIdx := -1
	for i, m := range migrations {
		if m.name == to {
			toIdx = i
			break
		}
	}

	if toIdx < 0 && to != "all" {
		return nil, fmt.Errorf("migration '%s' doesn't exist", to)
	}

	for idx, m := range migrations {
		if !m.applied && typ == MigrationUp && (toIdx >= idx || to == "all") {
			if !m.up.Valid {
				return nil, fmt.Errorf("migration '%s' has no up script", m.name)
			}
			plan = append(plan, migrationRun{name: m.name, typ: MigrationUp, sql: m.up.V})
		} else if m.applied && typ == MigrationDown && (toIdx < idx || to == "all") {
			if !m.down.Valid {
				return nil, fmt.Errorf("migration '%s' has no down script", m.name)
			}
			// Roll back in reverse order.
			plan = append([]migrationRun{{name: m.name, typ: MigrationDown, sql: m.down.V}}, plan...)
		}
	}

	return plan, nil
}
