package infra

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations exposes the embedded schema migrations.
func Migrations() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}
}

// Migrate applies (Up) or rolls back (Down) the schema and returns the number
// of migrations executed. max limits the count; 0 means all.
func Migrate(url string, dir migrate.MigrationDirection, max int) (int, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return 0, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := migrate.ExecMax(db, "postgres", Migrations(), dir, max)
	if err != nil {
		return n, fmt.Errorf("run migrations: %w", err)
	}
	return n, nil
}
