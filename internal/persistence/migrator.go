package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the schema migrations compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// migrationLockKey is the pg_advisory_lock key held while migrating, so two
// vaultd instances starting together do not race on the schema.
const migrationLockKey int64 = 0x5641554c54 // "VAULT"

// ErrMigrationDrift is returned when an applied migration's file no longer
// matches the checksum recorded when it ran.
var ErrMigrationDrift = errors.New("applied migration was modified")

// Migration is one {version}_{name}.up.sql file and its .down.sql pair.
type Migration struct {
	Version  string
	Name     string
	Up       string
	Down     string
	Checksum string
}

// MigrationStatus is a migration and whether (and when) it was applied.
type MigrationStatus struct {
	Version   string
	Name      string
	Applied   bool
	AppliedAt time.Time
	Drifted   bool
}

// Migrator runs SQL migrations in version order. File naming follows
// golang-migrate: {version}_{name}.up.sql / .down.sql.
type Migrator struct {
	db     *sql.DB
	files  fs.FS
	logger zerolog.Logger
}

// NewMigrator runs the migrations in files. Pass Migrations() for the
// embedded schema or os.DirFS(dir) for an override directory.
func NewMigrator(db *sql.DB, files fs.FS, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, files: files, logger: logger}
}

// LoadMigrations reads every up migration in files with its down pair.
func LoadMigrations(files fs.FS) ([]Migration, error) {
	ups, err := ListMigrationFiles(files, ".up.sql")
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(ups))
	for _, f := range ups {
		up, err := fs.ReadFile(files, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		down, err := fs.ReadFile(files, strings.TrimSuffix(f, ".up.sql")+".down.sql")
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read down pair of %s: %w", f, err)
		}
		sum := sha256.Sum256(up)
		out = append(out, Migration{
			Version:  extractVersion(f),
			Name:     strings.TrimSuffix(f, ".up.sql"),
			Up:       string(up),
			Down:     string(down),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	return out, nil
}

// Up applies every pending migration in order, each in its own
// transaction. It refuses to run if an applied migration has drifted.
func (m *Migrator) Up(ctx context.Context) error {
	return m.locked(ctx, func(conn *sql.Conn) error {
		migrations, err := LoadMigrations(m.files)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		applied, err := appliedMigrations(ctx, conn)
		if err != nil {
			return fmt.Errorf("read applied migrations: %w", err)
		}

		for _, mig := range migrations {
			mig := mig
			if rec, ok := applied[mig.Version]; ok {
				if rec.checksum != mig.Checksum {
					return fmt.Errorf("%w: %s", ErrMigrationDrift, mig.Name)
				}
				continue
			}

			err := inTx(ctx, conn, func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, mig.Up); err != nil {
					return fmt.Errorf("exec %s: %w", mig.Name, err)
				}
				_, err := tx.ExecContext(ctx, `
					INSERT INTO public.schema_migrations (version, name, checksum)
					VALUES ($1, $2, $3)
				`, mig.Version, mig.Name, mig.Checksum)
				return err
			})
			if err != nil {
				return err
			}
			m.logger.Info().Str("migration", mig.Name).Msg("applied migration")
		}
		return nil
	})
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.locked(ctx, func(conn *sql.Conn) error {
		var version, name string
		err := conn.QueryRowContext(ctx, `
			SELECT version, name FROM public.schema_migrations ORDER BY version DESC LIMIT 1
		`).Scan(&version, &name)
		if errors.Is(err, sql.ErrNoRows) {
			m.logger.Info().Msg("no migrations to roll back")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get latest migration: %w", err)
		}

		migrations, err := LoadMigrations(m.files)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		var down string
		for _, mig := range migrations {
			if mig.Version == version {
				down = mig.Down
			}
		}
		if down == "" {
			return fmt.Errorf("no down migration for %s", name)
		}

		err = inTx(ctx, conn, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, down); err != nil {
				return fmt.Errorf("exec down %s: %w", name, err)
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM public.schema_migrations WHERE version = $1`, version)
			return err
		})
		if err != nil {
			return err
		}
		m.logger.Info().Str("migration", name).Msg("rolled back migration")
		return nil
	})
}

// Status lists every known migration in order with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	migrations, err := LoadMigrations(m.files)
	if err != nil {
		return nil, err
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if rec, ok := applied[mig.Version]; ok {
			st.Applied = true
			st.AppliedAt = rec.appliedAt
			st.Drifted = rec.checksum != mig.Checksum
		}
		out = append(out, st)
	}
	return out, nil
}

// locked runs fn on a dedicated connection holding the migration advisory
// lock.
func (m *Migrator) locked(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			m.logger.Warn().Err(err).Msg("release migration lock")
		}
	}()

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn)
}

func inTx(ctx context.Context, conn *sql.Conn, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func ensureMigrationTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

type appliedMigration struct {
	checksum  string
	appliedAt time.Time
}

func appliedMigrations(ctx context.Context, conn *sql.Conn) (map[string]appliedMigration, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum, applied_at FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]appliedMigration)
	for rows.Next() {
		var (
			version string
			rec     appliedMigration
		)
		if err := rows.Scan(&version, &rec.checksum, &rec.appliedAt); err != nil {
			return nil, err
		}
		applied[version] = rec
	}
	return applied, rows.Err()
}

// ListMigrationFiles returns the file names in files with suffix, sorted.
func ListMigrationFiles(files fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			out = append(out, e.Name())
		}
	}

	sort.Strings(out)
	return out, nil
}

// extractVersion returns the numeric prefix of a migration file name:
// "000001_event_log.up.sql" -> "000001".
func extractVersion(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}
