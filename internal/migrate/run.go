// Package migrate applies the embedded catalog schema migrations.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marketplace/catalog-api/internal/data/pgxutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockID serialises migrations across replicas that all migrate on start.
const advisoryLockID int64 = 0x636174616c6f67 // "catalog"

// Migration is one embedded SQL file.
type Migration struct {
	Version  string
	Checksum string
	SQL      string
}

// Load returns the embedded migrations ordered by version.
func Load() ([]Migration, error) {
	return loadFrom(migrationsFS, "migrations")
}

func loadFrom(fsys fs.FS, dir string) ([]Migration, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		body, readErr := fs.ReadFile(fsys, name)
		if readErr != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, readErr)
		}
		sum := sha256.Sum256(body)
		out = append(out, Migration{
			Version:  strings.TrimSuffix(path.Base(name), ".sql"),
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(body),
		})
	}
	return out, nil
}

// Run applies every pending migration, each in its own transaction. It is safe to call
// repeatedly and from several processes at once. A migration whose file changed after it was
// applied is reported as an error rather than silently skipped.
func Run(ctx context.Context, db *sql.DB) error {
	migrations, err := Load()
	if err != nil {
		return err
	}
	logger := slog.Default().With("component", "migrations")

	return pgxutil.WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		if _, lockErr := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockID); lockErr != nil {
			return fmt.Errorf("acquire migration lock: %w", lockErr)
		}
		defer func() {
			// A fresh context so the unlock still runs when ctx has been cancelled.
			if _, unlockErr := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockID); unlockErr != nil {
				logger.WarnContext(ctx, "release migration lock failed", "error", unlockErr)
			}
		}()

		if _, createErr := conn.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version    TEXT PRIMARY KEY,
				checksum   TEXT NOT NULL DEFAULT '',
				applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`); createErr != nil {
			return fmt.Errorf("create schema_migrations table: %w", createErr)
		}

		applied, loadErr := appliedChecksums(ctx, conn)
		if loadErr != nil {
			return loadErr
		}

		pending, planErr := plan(migrations, applied)
		if planErr != nil {
			return planErr
		}
		for _, m := range pending {
			logger.InfoContext(ctx, "applying migration", "version", m.Version)
			if applyErr := apply(ctx, conn, m); applyErr != nil {
				return applyErr
			}
		}
		return nil
	})
}

func appliedChecksums(ctx context.Context, conn *pgx.Conn) (map[string]string, error) {
	rows, err := conn.Query(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	applied := map[string]string{}
	var version, checksum string
	_, err = pgx.ForEachRow(rows, []any{&version, &checksum}, func() error {
		applied[version] = checksum
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return applied, nil
}

// plan returns the migrations not yet applied. Rows recorded without a checksum are trusted.
func plan(migrations []Migration, applied map[string]string) ([]Migration, error) {
	var pending []Migration
	for _, m := range migrations {
		sum, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if sum != "" && sum != m.Checksum {
			return nil, fmt.Errorf("migration %s changed after it was applied", m.Version)
		}
	}
	return pending, nil
}

func apply(ctx context.Context, conn *pgx.Conn, m Migration) error {
	err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, execErr := tx.Exec(ctx, m.SQL); execErr != nil {
			return execErr
		}
		_, recErr := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`, m.Version, m.Checksum)
		return recErr
	})
	if err != nil {
		return fmt.Errorf("apply migration %s: %w", m.Version, err)
	}
	return nil
}
