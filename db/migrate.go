package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/linkpulse/errors"
	"github.com/teranos/linkpulse/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationDir = "sqlite/migrations"

// migration is one embedded schema file. Version is the numeric file prefix.
type migration struct {
	file    string
	version string
}

// Migrate applies every embedded migration not yet recorded in schema_migrations.
// A nil log runs silently.
func Migrate(conn *sql.DB, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = logger.AddDBSymbol(log)

	pending, err := pendingMigrations(conn)
	if err != nil {
		return err
	}
	for _, m := range pending {
		log.Infow("Applying migration", "migration", m.file, "version", m.version)
		if err := applyMigration(conn, m); err != nil {
			return err
		}
	}
	log.Infow("Migrations complete", "applied", len(pending))
	return nil
}

func embeddedMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, _, _ := strings.Cut(e.Name(), "_")
		out = append(out, migration{file: e.Name(), version: version})
	}
	// 000 creates schema_migrations and sorts first
	sort.Slice(out, func(i, j int) bool { return out[i].file < out[j].file })
	return out, nil
}

// pendingMigrations lists migrations whose version is not recorded yet.
// A database without schema_migrations has nothing applied.
func pendingMigrations(conn *sql.DB) ([]migration, error) {
	all, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}

	var tables int
	if err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'",
	).Scan(&tables); err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}

	applied := make(map[string]bool)
	if tables > 0 {
		rows, err := conn.Query("SELECT version FROM schema_migrations")
		if err != nil {
			return nil, errors.Wrap(err, "read applied migrations")
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return nil, errors.Wrap(err, "scan applied migration")
			}
			applied[v] = true
		}
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "read applied migrations")
		}
	}

	var pending []migration
	for _, m := range all {
		if !applied[m.version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// applyMigration runs one file and records its version in the same transaction.
func applyMigration(conn *sql.DB, m migration) error {
	body, err := migrations.ReadFile(path.Join(migrationDir, m.file))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.file)
	}

	tx, err := conn.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.file)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(body)); err != nil {
		return errors.Wrapf(err, "execute %s", m.file)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return errors.Wrapf(err, "record %s", m.file)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.file)
}
