// Package migrate applies the SQL files in migrations/ in name order and
// records each applied file in schema_migrations.
package migrate

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cacaowallet/internal/logger"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const downMarker = "-- +migrate Down"

type Migration struct {
	Name      string     `db:"filename"`
	AppliedAt *time.Time `db:"applied_at"`
}

func (m Migration) Applied() bool {
	return m.AppliedAt != nil
}

func ensureTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

// Files lists the migration files of dir sorted by name.
func Files(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Up applies every pending migration, each in its own transaction, and
// returns the names applied.
func Up(ctx context.Context, db *sqlx.DB, dir string) ([]string, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return applied, fmt.Errorf("read migration state: %w", err)
		}
		if exists {
			continue
		}
		if err := applyFile(ctx, db, file); err != nil {
			return applied, fmt.Errorf("apply %s: %w", filename, err)
		}
		logger.Info("migration applied", zap.String("file", filename))
		applied = append(applied, filename)
	}
	return applied, nil
}

// Status reports every migration file with its applied time, if any.
func Status(ctx context.Context, db *sqlx.DB, dir string) ([]Migration, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	var rows []Migration
	if err := db.SelectContext(ctx, &rows, `SELECT filename, applied_at FROM schema_migrations`); err != nil {
		return nil, err
	}
	appliedAt := make(map[string]*time.Time, len(rows))
	for _, row := range rows {
		appliedAt[row.Name] = row.AppliedAt
	}
	status := make([]Migration, 0, len(files))
	for _, file := range files {
		name := filepath.Base(file)
		status = append(status, Migration{Name: name, AppliedAt: appliedAt[name]})
	}
	return status, nil
}

func applyFile(ctx context.Context, db *sqlx.DB, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, stmt := range SplitStatements(UpSection(string(content))) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filepath.Base(path)); err != nil {
		return err
	}
	return tx.Commit()
}

// UpSection returns the part of a migration before the down marker.
func UpSection(content string) string {
	up, _, _ := strings.Cut(content, downMarker)
	return up
}

// SplitStatements splits SQL text into statements ending on a line with a
// semicolon. Comment lines are dropped.
func SplitStatements(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.Contains(line, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
