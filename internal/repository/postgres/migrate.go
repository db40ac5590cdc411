package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Version string
	SQL     string
}

func migrationFS() (fs.FS, error) {
	return fs.Sub(migrationFiles, "migrations")
}

// Migrations lists the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	fsys, err := migrationFS()
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(e.Name(), ".sql"),
			SQL:     string(body),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies every pending migration with goose and returns the
// versions it applied. A postgres advisory lock is held for the whole run,
// so concurrent callers apply each file once.
func Migrate(ctx context.Context, db *sqlx.DB) ([]string, error) {
	fsys, err := migrationFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("failed to create migration lock: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db.DB, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	applied := make([]string, 0, len(results))
	for _, r := range results {
		if r.Source != nil {
			applied = append(applied, strings.TrimSuffix(path.Base(r.Source.Path), ".sql"))
		}
	}
	if err != nil {
		return applied, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return applied, nil
}
