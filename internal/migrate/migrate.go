package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Migrator applies versioned .sql files from a directory and records them
// in schema_migrations.
type Migrator struct {
	db  *sqlx.DB
	dir string
	log *logrus.Entry
}

func New(db *sqlx.DB, dir string) *Migrator {
	return &Migrator{db: db, dir: dir, log: logrus.WithField("component", "migrate")}
}

// Up applies every file not yet recorded and returns the applied versions.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if _, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at timestamptz NOT NULL DEFAULT now()
)`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := collectSQLFiles(m.dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		m.log.Info("no migration files found")
		return nil, nil
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, f := range files {
		name := filepath.Base(f)
		if done[name] {
			continue
		}
		upSQL, err := extractUp(f)
		if err != nil {
			return ran, fmt.Errorf("read %s: %w", name, err)
		}
		if strings.TrimSpace(upSQL) != "" {
			m.log.WithField("version", name).Info("applying migration")
			if err := m.execStatements(ctx, upSQL); err != nil {
				return ran, fmt.Errorf("migration %s: %w", name, err)
			}
		}
		if _, err := m.db.ExecContext(ctx, "INSERT INTO schema_migrations(version, applied_at) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING", name, time.Now()); err != nil {
			return ran, fmt.Errorf("mark %s applied: %w", name, err)
		}
		ran = append(ran, name)
	}
	return ran, nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]bool, error) {
	var versions []string
	if err := m.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	out := make(map[string]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}

// execStatements splits on ';' and ignores "already exists" errors so
// re-runs against a hand-built schema succeed.
func (m *Migrator) execStatements(ctx context.Context, sql string) error {
	for _, raw := range strings.Split(sql, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate") {
				m.log.WithError(err).WithField("stmt", short(stmt)).Warn("ignoring idempotent error")
				continue
			}
			return err
		}
	}
	return nil
}

func collectSQLFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// extractUp returns the "-- +goose Up" section, or the whole file when
// there are no markers.
func extractUp(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(b)
	lower := strings.ToLower(content)
	upIdx := strings.Index(lower, "-- +goose up")
	if upIdx == -1 {
		return content, nil
	}
	rest := content[upIdx:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		rest = rest[nl+1:]
	} else {
		rest = ""
	}
	if down := strings.Index(strings.ToLower(rest), "-- +goose down"); down != -1 {
		rest = rest[:down]
	}
	return rest, nil
}

func short(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
