package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeNameRe    = regexp.MustCompile(`[^a-z0-9_]+`)
	createTableRe   = regexp.MustCompile(`(?is)CREATE TABLE(?: IF NOT EXISTS)?\s+([a-z0-9_]+)\s*\((.*?)\n\);`)
	mirrorKeyRe     = regexp.MustCompile(`(?i)\bstripe_[a-z_]+_id\s+TEXT\s+PRIMARY KEY`)
)

// Columns every table mirrored from Stripe needs so upserts can order
// concurrent deliveries of the same object.
var mirrorColumns = map[string]*regexp.Regexp{
	"source_event_at": regexp.MustCompile(`(?im)^\s*source_event_at\s`),
	"state_rank":      regexp.MustCompile(`(?im)^\s*state_rank\s`),
}

// CreateSQLMigration writes <dir>/<version>_<name>.sql stamped with now.
// A name of the form create_<table> gets a mirror table skeleton keyed by
// a Stripe id; any other name gets empty Up and Down sections.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now.UTC().Format(versionLayout), slug))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	defer file.Close()

	if _, err := file.WriteString(migrationTemplate(slug)); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = unsafeNameRe.ReplaceAllString(slug, "_")
	return strings.Trim(slug, "_")
}

func migrationTemplate(slug string) string {
	table, ok := strings.CutPrefix(slug, "create_")
	if !ok || table == "" {
		return fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
-- %s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %s
-- +goose StatementEnd
`, slug, slug)
	}
	key := "stripe_" + strings.TrimSuffix(table, "s") + "_id"
	return fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
CREATE TABLE IF NOT EXISTS %[1]s (
    %[2]s TEXT PRIMARY KEY,
    status          TEXT NOT NULL,
    source_event_at TIMESTAMPTZ NOT NULL,
    state_rank      INTEGER NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
DROP TABLE IF EXISTS %[1]s;
-- +goose StatementEnd
`, table, key)
}

// ValidateDir checks every .sql file in dir: name and version format,
// unique versions, goose sections, and the ordering columns on tables keyed
// by a Stripe id.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		match := migrationFileRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if _, err := time.Parse(versionLayout, match[1]); err != nil {
			return fmt.Errorf("migration %q: version is not a timestamp", name)
		}
		if prev, dup := versions[match[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", match[1], prev, name)
		}
		versions[match[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %q: %w", name, err)
		}
		if err := validateMigration(string(body)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func validateMigration(body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf(`missing "-- +goose Up"`)
	case down < 0:
		return fmt.Errorf(`missing "-- +goose Down"`)
	case down < up:
		return fmt.Errorf("goose Down section precedes Up")
	}
	if begins, ends := strings.Count(body, "-- +goose StatementBegin"), strings.Count(body, "-- +goose StatementEnd"); begins != ends {
		return fmt.Errorf("%d StatementBegin markers but %d StatementEnd", begins, ends)
	}

	for _, table := range createTableRe.FindAllStringSubmatch(body[up:down], -1) {
		if !mirrorKeyRe.MatchString(table[2]) {
			continue
		}
		for column, re := range mirrorColumns {
			if !re.MatchString(table[2]) {
				return fmt.Errorf("table %s is keyed by a Stripe id but lacks %s", table[1], column)
			}
		}
	}
	return nil
}
