package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// RunSQLiteMigrations executes all SQLite migrations in order.
// Every script is written with IF NOT EXISTS so reruns are harmless.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	return run(sqliteFS, "sqlite", func(name, script string) error {
		_, err := db.ExecContext(ctx, script)
		return err
	})
}

// RunPostgresMigrations executes all PostgreSQL migrations in order.
func RunPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	return run(postgresFS, "postgres", func(name, script string) error {
		_, err := pool.Exec(ctx, script)
		return err
	})
}

func run(fsys fs.ReadDirFS, dir string, exec func(name, script string) error) error {
	files, err := upFiles(fsys, dir)
	if err != nil {
		return err
	}

	for _, file := range files {
		script, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if err := exec(file, string(script)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}
	return nil
}

func upFiles(fsys fs.ReadDirFS, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
