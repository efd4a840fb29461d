// Package migrations resolves the embedded credential schema per dialect and
// hands each filesystem to a caller supplied registration function.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-drive-gateway"

	embeddedRoot = "data/sql/migrations"
)

// dialectDirs lists each dialect tree relative to the migrations root.
// Postgres files sit at the root; sqlite overrides live in a subdirectory.
var dialectDirs = []struct {
	dialect string
	dir     string
}{
	{dialect: DialectPostgres, dir: "."},
	{dialect: DialectSQLite, dir: "sqlite"},
}

var driverDialects = map[string]string{
	"sqlite":     DialectSQLite,
	"sqlite3":    DialectSQLite,
	"postgres":   DialectPostgres,
	"postgresql": DialectPostgres,
	"pg":         DialectPostgres,
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	if dialect, ok := driverDialects[normalize(driver)]; ok {
		return dialect, nil
	}
	return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
}

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if next := uniqueDialects(targets); len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

// WithFilesystems replaces the embedded trees, e.g. with an fstest.MapFS.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		next := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			if spec.FS == nil || normalize(spec.Dialect) == "" {
				continue
			}
			spec.Dialect = normalize(spec.Dialect)
			next = append(next, spec)
		}
		if len(next) > 0 {
			r.Filesystems = next
		}
	}
}

// Filesystems splits source (the embedded tree by default) into one
// filesystem per dialect. Each must contain at least one *.up.sql file.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	source := GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		source = sources[0]
	}
	root, rootPath, err := locateRoot(source)
	if err != nil {
		return nil, err
	}

	out := make([]FilesystemSpec, 0, len(dialectDirs))
	for _, entry := range dialectDirs {
		tree := root
		if entry.dir != "." {
			if tree, err = fs.Sub(root, entry.dir); err != nil {
				return nil, fmt.Errorf("migrations: resolve %s filesystem: %w", entry.dialect, err)
			}
		}
		spec := FilesystemSpec{Dialect: entry.dialect, Path: path.Join(rootPath, entry.dir), FS: tree}
		if err := requireUpMigrations(spec); err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// Register calls registerFn once per targeted dialect filesystem.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       DefaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

// locateRoot accepts either a tree containing data/sql/migrations or a flat
// directory of .sql files.
func locateRoot(source fs.FS) (fs.FS, string, error) {
	if info, err := fs.Stat(source, embeddedRoot); err == nil && info.IsDir() {
		sub, err := fs.Sub(source, embeddedRoot)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: %w", err)
		}
		return sub, embeddedRoot, nil
	}
	if matches, _ := fs.Glob(source, "*.sql"); len(matches) > 0 {
		return source, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", embeddedRoot)
}

func requireUpMigrations(spec FilesystemSpec) error {
	matches, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	return nil
}

func uniqueDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = normalize(value); value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
