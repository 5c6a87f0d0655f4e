package permissions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// memStore is an in-memory Store for resolver tests.
type memStore struct {
	mu        sync.Mutex
	defaults  map[Role]Defaults
	overrides map[uuid.UUID]Overrides

	defaultLoads int
	saveErr      error
}

func newMemStore() *memStore {
	return &memStore{
		defaults:  make(map[Role]Defaults),
		overrides: make(map[uuid.UUID]Overrides),
	}
}

func (m *memStore) RoleDefaults(_ context.Context, _ uuid.UUID, role Role) (Defaults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultLoads++
	d, ok := m.defaults[role]
	if !ok {
		return Defaults{}, nil
	}
	return cloneDefaults(d), nil
}

func (m *memStore) SaveRoleDefaults(_ context.Context, _ uuid.UUID, role Role, d Defaults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.defaults[role] = cloneDefaults(d)
	return nil
}

func (m *memStore) Overrides(_ context.Context, _ uuid.UUID, staffID uuid.UUID) (Overrides, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides[staffID]
	if !ok {
		return Overrides{}, nil
	}
	return cloneOverrides(o), nil
}

func (m *memStore) SaveOverrides(_ context.Context, _ uuid.UUID, staffID uuid.UUID, o Overrides) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.overrides[staffID] = cloneOverrides(o)
	return nil
}

func (m *memStore) ClearOverrides(_ context.Context, _ uuid.UUID, staffID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, staffID)
	return nil
}

func testResolver(t *testing.T) (*Resolver, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(store, uuid.New(), logger), store
}

// --- Bootstrap and caching ---

func TestResolver_BootstrapsBuiltinDefaults(t *testing.T) {
	r, store := testResolver(t)
	ctx := context.Background()

	d, err := r.RoleDefaults(ctx, RoleCashier)
	if err != nil {
		t.Fatalf("RoleDefaults: %v", err)
	}
	if !d[KeyProcessSales] {
		t.Error("bootstrapped cashier should process sales")
	}
	if len(store.defaults[RoleCashier]) == 0 {
		t.Error("bootstrap should persist the builtin matrix")
	}
}

func TestResolver_CachesDefaults(t *testing.T) {
	r, store := testResolver(t)
	ctx := context.Background()

	if _, err := r.RoleDefaults(ctx, RoleStaff); err != nil {
		t.Fatalf("first load: %v", err)
	}
	loads := store.defaultLoads
	if _, err := r.RoleDefaults(ctx, RoleStaff); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if store.defaultLoads != loads {
		t.Errorf("second resolve hit the store (%d loads, want %d)", store.defaultLoads, loads)
	}
}

func TestResolver_UnknownRole(t *testing.T) {
	r, _ := testResolver(t)
	if _, err := r.RoleDefaults(context.Background(), "intern"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

// --- Check ---

func TestResolver_CheckAllowsAndDenies(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()
	staffID := uuid.New()

	if err := r.Check(ctx, RoleCashier, staffID, KeyProcessSales); err != nil {
		t.Errorf("cashier process sales: %v", err)
	}
	err := r.Check(ctx, RoleCashier, staffID, KeyVoidTransactions)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("cashier void transactions = %v, want ErrPermissionDenied", err)
	}
}

func TestResolver_CheckUnknownKey(t *testing.T) {
	r, _ := testResolver(t)
	err := r.Check(context.Background(), RoleAdmin, uuid.New(), "can_fly")
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

// --- Override lifecycle ---

func TestResolver_ToggleOverrideLifecycle(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()
	staffID := uuid.New()

	// Cashier defaults deny voiding; the first toggle grants it.
	snap, err := r.ToggleOverride(ctx, RoleCashier, staffID, KeyVoidTransactions)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !snap.Effective[KeyVoidTransactions] {
		t.Error("expected effective true after grant toggle")
	}
	if err := r.Check(ctx, RoleCashier, staffID, KeyVoidTransactions); err != nil {
		t.Errorf("check after grant: %v", err)
	}

	// Second toggle returns to inherit.
	snap, err = r.ToggleOverride(ctx, RoleCashier, staffID, KeyVoidTransactions)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if IsOverridden(snap.Overrides, KeyVoidTransactions) {
		t.Error("expected override cleared after second toggle")
	}
	if snap.Effective[KeyVoidTransactions] {
		t.Error("expected effective false back on role default")
	}
}

func TestResolver_ClearOverrides(t *testing.T) {
	r, store := testResolver(t)
	ctx := context.Background()
	staffID := uuid.New()

	if _, err := r.ToggleOverride(ctx, RoleStaff, staffID, KeyAddPoints); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := r.ClearOverrides(ctx, staffID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(store.overrides[staffID]) != 0 {
		t.Error("expected overrides removed from store")
	}
}

func TestResolver_ToggleUnknownKey(t *testing.T) {
	r, _ := testResolver(t)
	if _, err := r.ToggleOverride(context.Background(), RoleStaff, uuid.New(), "can_fly"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

// --- Role default mutation ---

func TestResolver_ToggleRoleDefaultInvalidatesCache(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()
	staffID := uuid.New()

	if err := r.Check(ctx, RoleStaff, staffID, KeyAddPoints); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("staff add points before flip = %v, want ErrPermissionDenied", err)
	}
	if _, err := r.ToggleRoleDefault(ctx, RoleStaff, KeyAddPoints); err != nil {
		t.Fatalf("toggle role default: %v", err)
	}
	if err := r.Check(ctx, RoleStaff, staffID, KeyAddPoints); err != nil {
		t.Errorf("staff add points after flip: %v", err)
	}
}

func TestResolver_RoleDefaultFlipPreservesOverrides(t *testing.T) {
	r, _ := testResolver(t)
	ctx := context.Background()
	withOverride := uuid.New()
	inheriting := uuid.New()

	// Grant refunds to one cashier, then flip the role default on.
	if _, err := r.ToggleOverride(ctx, RoleCashier, withOverride, KeyRefund); err != nil {
		t.Fatalf("toggle override: %v", err)
	}
	if _, err := r.ToggleRoleDefault(ctx, RoleCashier, KeyRefund); err != nil {
		t.Fatalf("toggle role default: %v", err)
	}

	snap, err := r.Resolve(ctx, RoleCashier, withOverride)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !IsOverridden(snap.Overrides, KeyRefund) {
		t.Error("override should survive a role default flip")
	}
	if err := r.Check(ctx, RoleCashier, inheriting, KeyRefund); err != nil {
		t.Errorf("inheriting cashier should observe flipped default: %v", err)
	}
}
