package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/migrations"
)

func main() {
	var (
		dsn       = flag.String("dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
		direction = flag.String("direction", "up", "Migration direction: up or down")
		steps     = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if *dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	if *direction != "up" && *direction != "down" {
		log.Fatalf("direction must be 'up' or 'down', got: %s", *direction)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	count, err := migrate(ctx, pool, migrations.FS, *direction, *steps)
	if err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	if count == 0 {
		slog.Info("no migrations to apply")
	} else {
		slog.Info("migrations applied", "count", count, "direction", *direction)
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, direction string, steps int) (int, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return 0, err
	}

	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to list migrations: %w", err)
	}

	count := 0
	for _, name := range pending(files, applied, direction, steps) {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return count, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		version := migrationVersion(name)
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", name, err)
			}
			if direction == "up" {
				_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
			} else {
				_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", version)
			}
			if err != nil {
				return fmt.Errorf("failed to update migrations table: %w", err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}

		slog.Info("applied migration", "version", version, "direction", direction)
		count++
	}
	return count, nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan migration versions: %w", err)
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// pending returns the files to run, in execution order: ascending for up,
// descending for down. steps <= 0 means all of them.
func pending(files []string, applied map[string]bool, direction string, steps int) []string {
	suffix := ".up.sql"
	if direction == "down" {
		suffix = ".down.sql"
	}

	var out []string
	for _, f := range files {
		name := path.Base(f)
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		if applied[migrationVersion(name)] == (direction == "up") {
			continue
		}
		out = append(out, f)
	}

	sort.Strings(out)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(out)))
	}
	if steps > 0 && len(out) > steps {
		out = out[:steps]
	}
	return out
}

// migrationVersion strips the direction suffix: 000001_key_shares.up.sql -> 000001_key_shares
func migrationVersion(name string) string {
	name = path.Base(name)
	name = strings.TrimSuffix(name, ".up.sql")
	return strings.TrimSuffix(name, ".down.sql")
}
