package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/xxxsen/paperbrief/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func ApplyMigrations(db *sql.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		if err := applyMigrationFile(db, file); err != nil {
			return err
		}
	}
	return nil
}

func applyMigrationFile(db *sql.DB, file string) error {
	content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
	if err != nil {
		return err
	}
	queries := strings.Split(string(content), ";")
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, err := db.Exec(q); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("execute query in %s: %w", file, err)
		}
	}
	return nil
}

// CheckVectorDimension verifies the embeddings column width matches the
// configured index dimension. The vector(N) width is fixed by migration, so
// a mismatch must fail at startup, not on the first insert.
func CheckVectorDimension(db *sql.DB, dimension int) error {
	const query = `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON a.attrelid = c.oid
		WHERE c.relname = 'embeddings' AND a.attname = 'embedding'
	`
	var typmod int
	if err := db.QueryRow(query).Scan(&typmod); err != nil {
		return fmt.Errorf("read embeddings column width: %w", err)
	}
	if typmod != dimension {
		return fmt.Errorf("index.dimension is %d but embeddings.embedding is vector(%d)", dimension, typmod)
	}
	return nil
}
