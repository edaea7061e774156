package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/openberth/openberth/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.Store using SQLite. The instance_info
// table's primary key is the application id, so attaching instance info is
// a compare-and-set: a second insert for the same application fails, which
// is the atomicity boundary the controller relies on.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// AddApp inserts a new application record.
func (s *SQLiteStore) AddApp(ctx context.Context, record engine.ApplicationRecord) error {
	query := `
		INSERT INTO applications (
			id, instance_config_id, instance_config,
			provider_config_id, provider_config, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.InstanceConfig.ID,
		string(record.InstanceConfig.Config),
		record.ProviderConfig.ID,
		string(record.ProviderConfig.Config),
		now,
		now,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return engine.NewAlreadyExistsError(record.ID)
		}
		return engine.NewStoreError("addApp", err)
	}

	return nil
}

// GetApp retrieves an application with its attached instance info.
func (s *SQLiteStore) GetApp(ctx context.Context, id string) (*engine.ApplicationRecordFull, error) {
	query := `
		SELECT a.id, a.instance_config_id, a.instance_config,
		       a.provider_config_id, a.provider_config,
		       i.status, i.ref
		FROM applications a
		LEFT JOIN instance_info i ON i.app_id = a.id
		WHERE a.id = ?
	`

	row := applicationRow{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID,
		&row.InstanceConfigID,
		&row.InstanceConfig,
		&row.ProviderConfigID,
		&row.ProviderConfig,
		&row.InstanceStatus,
		&row.InstanceRef,
	)

	if err == sql.ErrNoRows {
		return nil, engine.NewNotFoundError(id)
	}
	if err != nil {
		return nil, engine.NewStoreError("getApp", err)
	}

	return row.toFull(), nil
}

// GetAllApps retrieves every application with its attached instance info.
func (s *SQLiteStore) GetAllApps(ctx context.Context) ([]engine.ApplicationRecordFull, error) {
	query := `
		SELECT a.id, a.instance_config_id, a.instance_config,
		       a.provider_config_id, a.provider_config,
		       i.status, i.ref
		FROM applications a
		LEFT JOIN instance_info i ON i.app_id = a.id
		ORDER BY a.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, engine.NewStoreError("getAllApps", err)
	}
	defer rows.Close()

	apps := []engine.ApplicationRecordFull{}
	for rows.Next() {
		row := applicationRow{}
		err := rows.Scan(
			&row.ID,
			&row.InstanceConfigID,
			&row.InstanceConfig,
			&row.ProviderConfigID,
			&row.ProviderConfig,
			&row.InstanceStatus,
			&row.InstanceRef,
		)
		if err != nil {
			return nil, engine.NewStoreError("getAllApps", err)
		}
		apps = append(apps, *row.toFull())
	}

	if err := rows.Err(); err != nil {
		return nil, engine.NewStoreError("getAllApps", err)
	}

	return apps, nil
}

// UpdateApp overwrites the configuration fields of the record stored
// under id. Attached instance info is not touched.
func (s *SQLiteStore) UpdateApp(ctx context.Context, id string, record engine.ApplicationRecord) error {
	query := `
		UPDATE applications
		SET instance_config_id = ?, instance_config = ?,
		    provider_config_id = ?, provider_config = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		record.InstanceConfig.ID,
		string(record.InstanceConfig.Config),
		record.ProviderConfig.ID,
		string(record.ProviderConfig.Config),
		time.Now().UTC(),
		id,
	)

	if err != nil {
		return engine.NewStoreError("updateApp", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return engine.NewStoreError("updateApp", err)
	}
	if rows == 0 {
		return engine.NewNotFoundError(id)
	}

	return nil
}

// RemoveApp deletes the record stored under id. Attached instance info
// goes with it through the foreign key cascade.
func (s *SQLiteStore) RemoveApp(ctx context.Context, id string) error {
	query := `DELETE FROM applications WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return engine.NewStoreError("removeApp", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return engine.NewStoreError("removeApp", err)
	}
	if rows == 0 {
		return engine.NewNotFoundError(id)
	}

	return nil
}

// AddInstanceInfo attaches instance info to the record stored under id.
// The insert races on the primary key: whichever caller loses gets a
// conflict instead of overwriting the winner's instance.
func (s *SQLiteStore) AddInstanceInfo(ctx context.Context, id string, info engine.InstanceInfo) error {
	query := `
		INSERT INTO instance_info (app_id, status, ref, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		id,
		string(info.Status),
		string(info.Ref),
		time.Now().UTC(),
	)

	if err != nil {
		switch {
		case isUniqueViolation(err):
			return engine.NewAppRunningError(id)
		case isForeignKeyViolation(err):
			return engine.NewNotFoundError(id)
		}
		return engine.NewStoreError("addInstanceInfo", err)
	}

	return nil
}

// RemoveInstanceInfo detaches the instance info of the record stored
// under id, failing with a conflict when none is attached.
func (s *SQLiteStore) RemoveInstanceInfo(ctx context.Context, id string) error {
	query := `DELETE FROM instance_info WHERE app_id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return engine.NewStoreError("removeInstanceInfo", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return engine.NewStoreError("removeInstanceInfo", err)
	}
	if rows == 0 {
		return engine.NewAppNotRunningError(id)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a unique or primary key
// constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether err is a foreign key constraint
// failure.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
