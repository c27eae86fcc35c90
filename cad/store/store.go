// Package store implements the persistent store: transactional storage
// of workspaces, entities, constraints, the operation journal, and
// derived geometry metadata, on top of GORM so the store is portable
// across sqlite (the default, file-backed workspace directory),
// postgres, and mysql.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/internal/cache"
	"github.com/BaSui01/agentcad/internal/database"
	"github.com/BaSui01/agentcad/internal/metrics"
	"github.com/BaSui01/agentcad/internal/migration"
)

// ErrNotFound is a sentinel for a lookup that finds no matching row. The
// lookups in this package do not return or wrap it: they report a
// missing row with their own message containing "not found", so
// errors.Is(err, ErrNotFound) does not match their errors.
var ErrNotFound = errors.New("not found")

// ErrCorrupt is returned when a stored JSON property blob cannot be
// parsed; this is a fatal error surfaced to the agent, not recovered.
var ErrCorrupt = errors.New("corrupt stored record")

// Driver identifies the backing SQL engine.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config configures a Store.
type Config struct {
	Driver Driver
	// DSN is the connection string for postgres/mysql, or the sqlite
	// file path (materialized under the workspace directory) for sqlite.
	DSN         string
	Pool        database.PoolConfig
	Logger      *zap.Logger
	SkipMigrate bool
}

// Store is the persistent store handle. It owns the GORM connection, the
// connection-lifecycle pool manager, and runs schema migration once at
// open, rather than evolving the schema ad hoc at runtime.
type Store struct {
	db     *gorm.DB
	pool   *database.PoolManager
	logger *zap.Logger

	// optional read-through entity cache, attached after Open
	cache     *cache.Manager
	collector *metrics.Collector
}

// Open establishes the database connection, runs the explicit migration
// step, and returns a ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	poolCfg := cfg.Pool
	if poolCfg == (database.PoolConfig{}) {
		poolCfg = database.DefaultPoolConfig()
	}
	poolManager, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("configure connection pool: %w", err)
	}

	s := &Store{db: db, pool: poolManager, logger: logger}

	// SkipMigrate defers schema setup to the caller (tests use
	// AutoMigrateForTest), so the main-workspace bootstrap waits too.
	if !cfg.SkipMigrate {
		if err := s.migrate(ctx, string(cfg.Driver), cfg.DSN); err != nil {
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
		if err := s.ensureMainWorkspace(ctx); err != nil {
			return nil, fmt.Errorf("ensure main workspace: %w", err)
		}
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context, driverName, dsn string) error {
	dbType := migration.DatabaseTypeSQLite
	switch Driver(driverName) {
	case DriverPostgres:
		dbType = migration.DatabaseTypePostgres
	case DriverMySQL:
		dbType = migration.DatabaseTypeMySQL
	}

	m, err := migration.NewMigrator(&migration.Config{
		DatabaseType: dbType,
		DatabaseURL:  dsn,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			s.logger.Warn("closing migrator", zap.Error(cerr))
		}
	}()
	return m.Up(ctx)
}

func (s *Store) ensureMainWorkspace(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&workspaceRow{}).Where("workspace_id = ?", model.MainWorkspaceID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	row := workspaceRow{
		WorkspaceID:   model.MainWorkspaceID,
		WorkspaceName: model.MainWorkspaceID,
		WorkspaceType: string(model.WorkspaceMain),
		CreatedAt:     time.Now().UTC(),
		BranchStatus:  string(model.BranchClean),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// AutoMigrateForTest builds the schema from the GORM row types instead
// of the embedded migration sets. Only tests use it (together with
// SkipMigrate), so an in-memory database needs no migration driver.
func (s *Store) AutoMigrateForTest(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&workspaceRow{},
		&entityRow{},
		&constraintRow{},
		&entityConstraintRow{},
		&operationRow{},
		&geometryShapeRow{},
		&solidPropertiesRow{},
	); err != nil {
		return err
	}
	return s.ensureMainWorkspace(ctx)
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.pool.Close()
}

// DB exposes the underlying *gorm.DB for components (e.g. the merge
// engine) that need to compose multi-table transactions directly.
func (s *Store) DB() *gorm.DB { return s.db }

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(b), nil
}

func unmarshalJSON[T any](s string, out *T) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
