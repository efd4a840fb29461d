package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-drive-gateway/core"
	gatewaymigrations "github.com/goliatone/go-drive-gateway/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-drive-gateway" }

// OpenClient connects to the configured database and applies the embedded
// credential migrations for its dialect.
func OpenClient(ctx context.Context, driver, dsn string) (*persistence.Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}

	migrationDialect, err := gatewaymigrations.DialectForDriver(driver)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}
	var dialect schema.Dialect
	switch migrationDialect {
	case gatewaymigrations.DialectSQLite:
		driver = DriverSQLite
		dialect = sqlitedialect.New()
	default:
		driver = DriverPostgres
		dialect = pgdialect.New()
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	_, err = gatewaymigrations.Register(ctx, func(_ context.Context, target string, _ string, fsys fs.FS) error {
		if target != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, gatewaymigrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}

// Open builds a migrated Store from the store section of the gateway config.
// The returned close function releases the database connection.
func Open(ctx context.Context, cfg core.StoreConfig, opts ...Option) (*Store, func() error, error) {
	client, err := OpenClient(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	store, err := New(client, cfg.Account, opts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client.Close, nil
}
