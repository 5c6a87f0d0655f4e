package team

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/omnilypro/omnily/internal/domain"
	"github.com/omnilypro/omnily/internal/permissions"
)

type memStaffStore struct {
	mu      sync.Mutex
	members map[uuid.UUID]*domain.StaffMember
}

func newMemStaffStore() *memStaffStore {
	return &memStaffStore{members: make(map[uuid.UUID]*domain.StaffMember)}
}

func (m *memStaffStore) Create(_ context.Context, member *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *member
	m.members[member.ID] = &cp
	return nil
}

func (m *memStaffStore) Get(_ context.Context, _ uuid.UUID, id uuid.UUID) (*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return nil, ErrStaffNotFound
	}
	cp := *member
	return &cp, nil
}

func (m *memStaffStore) ByEmail(_ context.Context, _ uuid.UUID, email string) (*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.members {
		if member.Email == email {
			cp := *member
			return &cp, nil
		}
	}
	return nil, ErrStaffNotFound
}

func (m *memStaffStore) Update(_ context.Context, member *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[member.ID]; !ok {
		return ErrStaffNotFound
	}
	cp := *member
	m.members[member.ID] = &cp
	return nil
}

func (m *memStaffStore) List(_ context.Context, _ uuid.UUID, includeInactive bool) ([]*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.StaffMember
	for _, member := range m.members {
		if !member.Active && !includeInactive {
			continue
		}
		cp := *member
		out = append(out, &cp)
	}
	return out, nil
}

// memPermStore backs the resolver in service tests.
type memPermStore struct {
	mu        sync.Mutex
	defaults  map[permissions.Role]permissions.Defaults
	overrides map[uuid.UUID]permissions.Overrides
}

func newMemPermStore() *memPermStore {
	return &memPermStore{
		defaults:  make(map[permissions.Role]permissions.Defaults),
		overrides: make(map[uuid.UUID]permissions.Overrides),
	}
}

func (m *memPermStore) RoleDefaults(_ context.Context, _ uuid.UUID, role permissions.Role) (permissions.Defaults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.defaults[role]; ok {
		return d, nil
	}
	return permissions.Defaults{}, nil
}

func (m *memPermStore) SaveRoleDefaults(_ context.Context, _ uuid.UUID, role permissions.Role, d permissions.Defaults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[role] = d
	return nil
}

func (m *memPermStore) Overrides(_ context.Context, _ uuid.UUID, staffID uuid.UUID) (permissions.Overrides, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.overrides[staffID]; ok {
		return o, nil
	}
	return permissions.Overrides{}, nil
}

func (m *memPermStore) SaveOverrides(_ context.Context, _ uuid.UUID, staffID uuid.UUID, o permissions.Overrides) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[staffID] = o
	return nil
}

func (m *memPermStore) ClearOverrides(_ context.Context, _ uuid.UUID, staffID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, staffID)
	return nil
}

func testService(t *testing.T) (*Service, *memPermStore) {
	t.Helper()
	orgID := uuid.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	permStore := newMemPermStore()
	resolver := permissions.NewResolver(permStore, orgID, logger)
	return NewService(newMemStaffStore(), resolver, orgID, logger), permStore
}

func TestService_CreateAndList(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	member, err := s.Create(ctx, "Anna", "Anna@Example.com", permissions.RoleCashier)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if member.Email != "anna@example.com" {
		t.Errorf("email normalized to %q, want anna@example.com", member.Email)
	}
	if !member.Active {
		t.Error("new member should be active")
	}

	roster, err := s.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("roster size = %d, want 1", len(roster))
	}
}

func TestService_CreateDuplicateEmail(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "Anna", "anna@example.com", permissions.RoleStaff); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create(ctx, "Other Anna", "anna@example.com", permissions.RoleStaff)
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_CreateUnknownRole(t *testing.T) {
	s, _ := testService(t)
	_, err := s.Create(context.Background(), "Anna", "anna@example.com", "intern")
	if !errors.Is(err, permissions.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestService_ChangeRoleKeepsOverrides(t *testing.T) {
	s, permStore := testService(t)
	ctx := context.Background()

	member, err := s.Create(ctx, "Luca", "luca@example.com", permissions.RoleStaff)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	permStore.overrides[member.ID] = permissions.Overrides{permissions.KeyRefund: permissions.Grant}

	updated, err := s.ChangeRole(ctx, member.ID, permissions.RoleCashier)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if updated.Role != permissions.RoleCashier {
		t.Errorf("role = %q, want cashier", updated.Role)
	}
	if len(permStore.overrides[member.ID]) != 1 {
		t.Error("role change should not touch overrides")
	}
}

func TestService_DeactivateClearsOverrides(t *testing.T) {
	s, permStore := testService(t)
	ctx := context.Background()

	member, err := s.Create(ctx, "Luca", "luca@example.com", permissions.RoleCashier)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	permStore.overrides[member.ID] = permissions.Overrides{permissions.KeyRefund: permissions.Grant}

	if err := s.Deactivate(ctx, member.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, err := s.Get(ctx, member.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Active {
		t.Error("member should be inactive")
	}
	if len(permStore.overrides[member.ID]) != 0 {
		t.Error("deactivation should clear overrides")
	}

	roster, err := s.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(roster) != 0 {
		t.Errorf("active roster size = %d, want 0", len(roster))
	}
}

func TestService_Reactivate(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	member, err := s.Create(ctx, "Luca", "luca@example.com", permissions.RoleCashier)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Deactivate(ctx, member.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := s.Reactivate(ctx, member.ID); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	got, err := s.Get(ctx, member.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Active {
		t.Error("member should be active again")
	}
}
