// Package sqlite implements the unified Store interface using SQLite via GORM.
// Uses modernc.org/sqlite (pure Go, no CGO) through the glebarez/sqlite GORM driver.
//
// Key differences from the PostgreSQL backend:
//   - WAL mode enabled by default for concurrent reads
//   - Row locking degrades to the database write lock (single writer)
//   - JSONB columns use TEXT type (SQLite stores JSON as text natively)
//   - No connection pooling (single file, WAL handles concurrency)
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/omnilypro/omnily/internal/audit"
	"github.com/omnilypro/omnily/internal/permissions"
	"github.com/omnilypro/omnily/internal/storage"
	pgstore "github.com/omnilypro/omnily/internal/storage/postgres"
	"github.com/omnilypro/omnily/internal/team"
	"github.com/omnilypro/omnily/internal/wallet"
)

// Config holds SQLite-specific configuration.
type Config struct {
	Path        string // Database file path.
	JournalMode string // WAL mode by default.
}

// Store implements storage.Store backed by SQLite.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	path   string

	// Sub-store instances (created lazily on first access).
	mu          sync.Mutex
	customers   wallet.CustomerStore
	staff       team.Store
	perms       permissions.Store
	wallets     wallet.Store
	auditEvents audit.Store
}

// Open creates a new SQLite-backed Store.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "wal"
	}

	// Build DSN with pragmas.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path, journalMode)

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slogger,
		path:   cfg.Path,
	}

	slogger.Info("sqlite store opened", slog.String("path", cfg.Path), slog.String("journal_mode", journalMode))
	return s, nil
}

// Migrate runs GORM AutoMigrate to create/update tables.
// Uses the same models as the PostgreSQL backend.
func (s *Store) Migrate(_ context.Context) error {
	return s.db.AutoMigrate(
		&pgstore.OrgModel{},
		&pgstore.CustomerModel{},
		&pgstore.StaffModel{},
		&pgstore.RolePermissionModel{},
		&pgstore.StaffOverrideModel{},
		&pgstore.WalletModel{},
		&pgstore.WalletTransactionModel{},
		&pgstore.AuditEventModel{},
	)
}

// Ping verifies the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns "sqlite".
func (s *Store) Driver() string {
	return storage.DriverSQLite
}

// GormDB returns the underlying GORM DB for sub-store construction.
func (s *Store) GormDB() *gorm.DB {
	return s.db
}

// EnsureOrg creates or retrieves an organization by name.
func (s *Store) EnsureOrg(ctx context.Context, name string) (uuid.UUID, error) {
	repo := pgstore.NewOrgRepository(s.db)
	return repo.EnsureDefaultOrg(ctx, name)
}

// --- Sub-store accessors ---
// All sub-stores reuse the existing PostgreSQL repository implementations
// since they operate on the same GORM models. GORM's SQLite dialect
// handles the SQL differences transparently; the FOR UPDATE clause is a
// no-op under SQLite, where the single-writer lock gives the same
// serialization.

func (s *Store) Customers() wallet.CustomerStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customers == nil {
		s.customers = pgstore.NewCustomerRepository(s.db)
	}
	return s.customers
}

func (s *Store) Staff() team.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staff == nil {
		s.staff = pgstore.NewStaffRepository(s.db)
	}
	return s.staff
}

func (s *Store) Permissions() permissions.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perms == nil {
		s.perms = pgstore.NewPermissionRepository(s.db)
	}
	return s.perms
}

func (s *Store) Wallets() wallet.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallets == nil {
		s.wallets = pgstore.NewWalletRepository(s.db)
	}
	return s.wallets
}

func (s *Store) Audit() audit.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditEvents == nil {
		s.auditEvents = pgstore.NewAuditRepository(s.db)
	}
	return s.auditEvents
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
