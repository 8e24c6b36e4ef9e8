package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where create and validate work on disk, relative to the repo
// root.
const DefaultDir = "pkg/migrate/migrations"

// Embedded selects the migrations compiled into the binary, so deployed
// services migrate without the source tree.
const Embedded = ""

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its dialect and base FS in package state.
var gooseMu sync.Mutex

// use points goose at dir, or at the embedded set when dir is Embedded, and
// returns the directory name to pass to goose.
func use(dir string) (string, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	if dir == Embedded {
		sub, err := fs.Sub(embedded, "migrations")
		if err != nil {
			return "", err
		}
		goose.SetBaseFS(sub)
		return ".", nil
	}
	goose.SetBaseFS(nil)
	return dir, nil
}

// Run executes a goose command (up, down, status, ...) against db.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()
	path, err := use(dir)
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, path, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to version, a
// YYYYMMDDHHMMSS migration stamp.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, version string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if _, err := time.Parse(versionLayout, version); err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", version)
	}
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", version, err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	path, err := use(dir)
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, path, target)
	case current > target:
		err = goose.DownToContext(ctx, db, path, target)
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

// EmbeddedVersions lists the migration versions compiled into the binary in
// order.
func EmbeddedVersions() ([]string, error) {
	entries, err := fs.ReadDir(embedded, "migrations")
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if m := migrationFileRe.FindStringSubmatch(entry.Name()); m != nil {
			versions = append(versions, m[1])
		}
	}
	return versions, nil
}
