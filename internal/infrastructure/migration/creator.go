package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/golang-migrate/migrate/v4/source"
)

var fileTemplates = template.Must(template.New("migration").Parse(`
{{- define "up" -}}
-- Migration: {{.Name}}
-- Created: {{.Timestamp}}
{{- with .Description}}
-- Description: {{.}}
{{- end}}

BEGIN;

COMMIT;
{{end}}
{{- define "down" -}}
-- Migration: {{.Name}} (Rollback)
-- Created: {{.Timestamp}}

BEGIN;

COMMIT;
{{end}}`))

// versionWidth matches the zero padded prefix of the shipped migrations
const versionWidth = 6

var (
	slugDrop = regexp.MustCompile(`[^a-z0-9 _-]+`)
	slugSep  = regexp.MustCompile(`[ _-]+`)
)

// MigrationFile is a freshly created up/down pair
type MigrationFile struct {
	Version     string
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an up/down pair numbered one past the highest
// version already in migrationsDir
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	slug := sanitizeName(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}

	files, err := scan(os.DirFS(migrationsDir))
	if err != nil {
		return nil, err
	}
	next := uint(1)
	if n := len(files); n > 0 {
		next = files[n-1].version + 1
	}

	version := fmt.Sprintf("%0*d", versionWidth, next)
	base := filepath.Join(migrationsDir, version+"_"+slug)
	mf := &MigrationFile{
		Version:     version,
		Name:        name,
		Description: description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		UpPath:      base + ".up.sql",
		DownPath:    base + ".down.sql",
	}

	if err := writeTemplate(mf.UpPath, "up", mf); err != nil {
		return nil, err
	}
	if err := writeTemplate(mf.DownPath, "down", mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, err
	}
	return mf, nil
}

// writeTemplate refuses to overwrite an existing file
func writeTemplate(path, name string, mf *MigrationFile) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fileTemplates.ExecuteTemplate(f, name, mf); err != nil {
		_ = f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	return f.Close()
}

// sanitizeName turns a free-form name into a lower snake case slug
func sanitizeName(name string) string {
	slug := slugDrop.ReplaceAllString(strings.ToLower(name), "")
	slug = slugSep.ReplaceAllString(slug, "_")
	return strings.Trim(slug, "_")
}

type upFile struct {
	base    string
	version uint
}

// scan returns the up migrations in fsys ordered by version. Names that
// golang-migrate would not parse are skipped.
func scan(fsys fs.FS) ([]upFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []upFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok {
			continue
		}
		m, err := source.Parse(entry.Name())
		if err != nil || m.Direction != source.Up {
			continue
		}
		files = append(files, upFile{base: base, version: m.Version})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].version != files[j].version {
			return files[i].version < files[j].version
		}
		return files[i].base < files[j].base
	})
	return files, nil
}

// ListMigrations returns the base names of the up migrations in fsys,
// ordered by version
func ListMigrations(fsys fs.FS) ([]string, error) {
	files, err := scan(fsys)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.base
	}
	return names, nil
}
