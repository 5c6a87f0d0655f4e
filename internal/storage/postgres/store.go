package postgres

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/omnilypro/omnily/internal/audit"
	"github.com/omnilypro/omnily/internal/permissions"
	"github.com/omnilypro/omnily/internal/storage"
	"github.com/omnilypro/omnily/internal/team"
	"github.com/omnilypro/omnily/internal/wallet"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	pgDB *DB

	mu          sync.Mutex
	customers   wallet.CustomerStore
	staff       team.Store
	perms       permissions.Store
	wallets     wallet.Store
	auditEvents audit.Store
}

// NewStore wraps an existing DB as a unified Store.
func NewStore(pgDB *DB) *Store {
	return &Store{pgDB: pgDB}
}

func (s *Store) Migrate(_ context.Context) error {
	// PostgreSQL migration is done in Open() via autoMigrate.
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pgDB.Ping(ctx)
}

func (s *Store) Close() error {
	return s.pgDB.Close()
}

func (s *Store) Driver() string {
	return storage.DriverPostgres
}

// GormDB returns the underlying GORM DB for direct access when needed.
func (s *Store) GormDB() *DB {
	return s.pgDB
}

func (s *Store) EnsureOrg(ctx context.Context, name string) (uuid.UUID, error) {
	repo := NewOrgRepository(s.pgDB.GormDB())
	return repo.EnsureDefaultOrg(ctx, name)
}

// --- Sub-store accessors ---

func (s *Store) Customers() wallet.CustomerStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customers == nil {
		s.customers = NewCustomerRepository(s.pgDB.GormDB())
	}
	return s.customers
}

func (s *Store) Staff() team.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staff == nil {
		s.staff = NewStaffRepository(s.pgDB.GormDB())
	}
	return s.staff
}

func (s *Store) Permissions() permissions.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perms == nil {
		s.perms = NewPermissionRepository(s.pgDB.GormDB())
	}
	return s.perms
}

func (s *Store) Wallets() wallet.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallets == nil {
		s.wallets = NewWalletRepository(s.pgDB.GormDB())
	}
	return s.wallets
}

func (s *Store) Audit() audit.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditEvents == nil {
		s.auditEvents = NewAuditRepository(s.pgDB.GormDB())
	}
	return s.auditEvents
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
