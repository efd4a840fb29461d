package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}
	dialects := map[string]bool{}
	for _, entry := range filesystems {
		matches, err := fs.Glob(entry.FS, "*.up.sql")
		if err != nil || len(matches) == 0 {
			t.Fatalf("expected %s migration files, got %v (%v)", entry.Dialect, matches, err)
		}
		dialects[entry.Dialect] = true
	}
	if !dialects[DialectPostgres] || !dialects[DialectSQLite] {
		t.Fatalf("expected postgres and sqlite filesystems, got %v", dialects)
	}
}

func TestRegister_UsesValidationTargetsAndLabel(t *testing.T) {
	var calls []string
	var label string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, sourceLabel string, _ fs.FS) error {
		calls = append(calls, dialect)
		label = sourceLabel
		return nil
	}, WithValidationTargets(DialectSQLite), WithDialectSourceLabel("custom"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected one sqlite registration, got %v", calls)
	}
	if label != "custom" {
		t.Fatalf("expected custom source label, got %q", label)
	}
}

func TestRegister_DefaultLabel(t *testing.T) {
	reg, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error { return nil })
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.SourceLabel != DefaultSourceLabel || len(reg.ValidationTargets) != 2 {
		t.Fatalf("unexpected registration %#v", reg)
	}
}

func TestFilesystems_RejectsTreeWithoutUpMigrations(t *testing.T) {
	tree := fstest.MapFS{
		"data/sql/migrations/00001_x.up.sql":          {Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00001_x.down.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := Filesystems(tree); err == nil {
		t.Fatalf("expected sqlite tree without up migrations to fail")
	}
}

func TestWithFilesystems_Overrides(t *testing.T) {
	custom := fstest.MapFS{"00001_x.up.sql": {Data: []byte("SELECT 1;")}}
	var seen fs.FS
	_, err := Register(context.Background(), func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		seen = fsys
		return nil
	}, WithValidationTargets(DialectSQLite), WithFilesystems(FilesystemSpec{Dialect: "SQLite", Path: "custom", FS: custom}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := fs.Stat(seen, "00001_x.up.sql"); err != nil {
		t.Fatalf("expected custom filesystem to be registered: %v", err)
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{"sqlite3": DialectSQLite, "SQLite": DialectSQLite, "postgres": DialectPostgres, "pg": DialectPostgres}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %q: expected %q, got %q (%v)", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("mysql"); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}

func TestSQLiteCredentialMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-gateway-credentials?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_gateway_credentials.up.sql"); err != nil {
		t.Fatalf("apply up: %v", err)
	}

	insert := `INSERT INTO gateway_credentials (id, account, version, payload, payload_format, payload_version, status) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "a", "default", 1, []byte("{}"), "json", 1, "active"); err != nil {
		t.Fatalf("insert first active row: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "b", "default", 2, []byte("{}"), "json", 1, "active"); err == nil {
		t.Fatalf("expected second active row for the same account to violate the unique index")
	}
	if _, err := db.ExecContext(ctx, insert, "c", "default", 1, []byte("{}"), "json", 1, "revoked"); err == nil {
		t.Fatalf("expected duplicate version to violate the unique constraint")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_gateway_credentials.down.sql"); err != nil {
		t.Fatalf("apply down: %v", err)
	}
	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'gateway_credentials'").Scan(&name)
	if err != sql.ErrNoRows {
		t.Fatalf("expected table dropped after rollback, got %q (%v)", name, err)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, name string) error {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	for _, statement := range strings.Split(string(content), ";") {
		if strings.TrimSpace(statement) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}
