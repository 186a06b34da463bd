package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"StrategyVault/internal/observability"
	"StrategyVault/internal/persistence"
	"StrategyVault/internal/projection"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

type subcommand struct {
	help string
	run  func(ctx context.Context, db *sql.DB, m *persistence.Migrator, logger zerolog.Logger) error
}

var subcommands = map[string]subcommand{
	"up": {"apply all pending migrations", func(ctx context.Context, _ *sql.DB, m *persistence.Migrator, _ zerolog.Logger) error {
		return m.Up(ctx)
	}},
	"down": {"roll back the last migration", func(ctx context.Context, _ *sql.DB, m *persistence.Migrator, _ zerolog.Logger) error {
		return m.Down(ctx)
	}},
	"status": {"list migrations and whether they are applied", func(ctx context.Context, _ *sql.DB, m *persistence.Migrator, _ zerolog.Logger) error {
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED\tNOTE")
		for _, st := range statuses {
			applied, note := "-", ""
			if st.Applied {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			if st.Drifted {
				note = "modified since applied"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.Version, st.Name, applied, note)
		}
		return w.Flush()
	}},
	"rebuild-projections": {"truncate projections and replay the event log", func(ctx context.Context, db *sql.DB, _ *persistence.Migrator, logger zerolog.Logger) error {
		return projection.RebuildProjections(ctx, db, logger)
	}},
}

func usage() {
	fmt.Println("Usage: migrate <up|down|status|rebuild-projections>")
	for _, name := range []string{"up", "down", "status", "rebuild-projections"} {
		fmt.Printf("  %-20s %s\n", name, subcommands[name].help)
	}
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  VAULT_POSTGRES_DSN  Postgres connection string")
	fmt.Println("  MIGRATIONS_DIR      read migrations from this directory instead of the embedded set")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, ok := subcommands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	logger := observability.NewLogger("migrate")

	dsn := os.Getenv("VAULT_POSTGRES_DSN")
	if dsn == "" {
		dsn = "postgres://localhost:5432/strategyvault?sslmode=disable"
	}

	var files fs.FS = persistence.Migrations()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		files = os.DirFS(dir)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := cmd.run(ctx, db, persistence.NewMigrator(db, files, logger), logger); err != nil {
		logger.Error().Err(err).Str("command", os.Args[1]).Msg("failed")
		os.Exit(1)
	}
	logger.Info().Str("command", os.Args[1]).Msg("done")
}
