package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists role default matrices and per-member override sets.
// Implementations must return empty (never nil-error) maps when nothing is
// stored yet, so the resolver can detect an unseeded role and bootstrap it.
type Store interface {
	// RoleDefaults loads the stored default matrix for a role.
	// An unseeded role returns an empty matrix and no error.
	RoleDefaults(ctx context.Context, orgID uuid.UUID, role Role) (Defaults, error)
	// SaveRoleDefaults replaces the stored default matrix for a role.
	SaveRoleDefaults(ctx context.Context, orgID uuid.UUID, role Role, defaults Defaults) error
	// Overrides loads the sparse override set for a staff member.
	Overrides(ctx context.Context, orgID, staffID uuid.UUID) (Overrides, error)
	// SaveOverrides replaces the stored override set for a staff member.
	SaveOverrides(ctx context.Context, orgID, staffID uuid.UUID, overrides Overrides) error
	// ClearOverrides deletes every override for a staff member.
	ClearOverrides(ctx context.Context, orgID, staffID uuid.UUID) error
}

// Resolver resolves and mutates effective permissions for one organization.
// Role default matrices are cached in memory and refreshed after cacheTTL;
// override sets are small and read per call. On first access to an unseeded
// role the resolver bootstraps the database from the builtin defaults.
type Resolver struct {
	store  Store
	orgID  uuid.UUID
	logger *slog.Logger

	mu       sync.RWMutex
	cached   map[Role]Defaults
	loadedAt map[Role]time.Time
	cacheTTL time.Duration
}

// NewResolver creates a permission resolver bound to one organization.
func NewResolver(store Store, orgID uuid.UUID, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:    store,
		orgID:    orgID,
		logger:   logger,
		cached:   make(map[Role]Defaults),
		loadedAt: make(map[Role]time.Time),
		cacheTTL: 60 * time.Second,
	}
}

// Effective resolves a single permission for a staff member.
func (r *Resolver) Effective(ctx context.Context, role Role, staffID uuid.UUID, key Key) (bool, error) {
	if !KnownKey(key) {
		return false, fmt.Errorf("resolving permission %q: %w", key, ErrUnknownKey)
	}
	defaults, err := r.roleDefaults(ctx, role)
	if err != nil {
		return false, err
	}
	overrides, err := r.store.Overrides(ctx, r.orgID, staffID)
	if err != nil {
		return false, fmt.Errorf("loading overrides for staff %s: %w", staffID, err)
	}
	return Effective(defaults, overrides, key), nil
}

// Check enforces a permission: it returns nil when the staff member holds
// the permission and ErrPermissionDenied otherwise.
func (r *Resolver) Check(ctx context.Context, role Role, staffID uuid.UUID, key Key) error {
	allowed, err := r.Effective(ctx, role, staffID, key)
	if err != nil {
		return err
	}
	if !allowed {
		r.logger.WarnContext(ctx, "permission denied",
			slog.String("staff_id", staffID.String()),
			slog.String("role", string(role)),
			slog.String("permission", string(key)),
		)
		return fmt.Errorf("%s for role %s: %w", key, role, ErrPermissionDenied)
	}
	return nil
}

// Snapshot is the full resolved permission state of one staff member.
type Snapshot struct {
	Role      Role         `json:"role"`
	Defaults  Defaults     `json:"defaults"`
	Overrides Overrides    `json:"overrides"`
	Effective map[Key]bool `json:"effective"`
}

// Resolve returns the complete permission snapshot for a staff member:
// role defaults, explicit overrides, and the resulting effective set.
func (r *Resolver) Resolve(ctx context.Context, role Role, staffID uuid.UUID) (*Snapshot, error) {
	defaults, err := r.roleDefaults(ctx, role)
	if err != nil {
		return nil, err
	}
	overrides, err := r.store.Overrides(ctx, r.orgID, staffID)
	if err != nil {
		return nil, fmt.Errorf("loading overrides for staff %s: %w", staffID, err)
	}
	return &Snapshot{
		Role:      role,
		Defaults:  defaults,
		Overrides: overrides,
		Effective: EffectiveSet(defaults, overrides),
	}, nil
}

// ToggleOverride advances a staff member's override for key through the
// tri-state cycle, persists the result, and returns the updated snapshot.
func (r *Resolver) ToggleOverride(ctx context.Context, role Role, staffID uuid.UUID, key Key) (*Snapshot, error) {
	if !KnownKey(key) {
		return nil, fmt.Errorf("toggling override %q: %w", key, ErrUnknownKey)
	}
	defaults, err := r.roleDefaults(ctx, role)
	if err != nil {
		return nil, err
	}
	overrides, err := r.store.Overrides(ctx, r.orgID, staffID)
	if err != nil {
		return nil, fmt.Errorf("loading overrides for staff %s: %w", staffID, err)
	}
	next := ToggleOverride(defaults, overrides, key)
	if err := r.store.SaveOverrides(ctx, r.orgID, staffID, next); err != nil {
		return nil, fmt.Errorf("saving overrides for staff %s: %w", staffID, err)
	}
	r.logger.InfoContext(ctx, "permission override toggled",
		slog.String("staff_id", staffID.String()),
		slog.String("permission", string(key)),
		slog.String("override", next[key].String()),
	)
	return &Snapshot{
		Role:      role,
		Defaults:  defaults,
		Overrides: next,
		Effective: EffectiveSet(defaults, next),
	}, nil
}

// ClearOverrides deletes every override for a staff member, reverting them
// to pure role defaults.
func (r *Resolver) ClearOverrides(ctx context.Context, staffID uuid.UUID) error {
	if err := r.store.ClearOverrides(ctx, r.orgID, staffID); err != nil {
		return fmt.Errorf("clearing overrides for staff %s: %w", staffID, err)
	}
	r.logger.InfoContext(ctx, "permission overrides cleared",
		slog.String("staff_id", staffID.String()),
	)
	return nil
}

// ToggleRoleDefault flips one key in a role's default matrix, persists the
// result, and returns the new matrix. Existing member overrides are never
// touched; members inheriting the key observe the new value immediately.
func (r *Resolver) ToggleRoleDefault(ctx context.Context, role Role, key Key) (Defaults, error) {
	if !KnownKey(key) {
		return nil, fmt.Errorf("toggling role default %q: %w", key, ErrUnknownKey)
	}
	if !KnownRole(role) {
		return nil, fmt.Errorf("toggling role default for %q: %w", role, ErrUnknownRole)
	}
	defaults, err := r.roleDefaults(ctx, role)
	if err != nil {
		return nil, err
	}
	next := ToggleRoleDefault(defaults, key)
	if err := r.store.SaveRoleDefaults(ctx, r.orgID, role, next); err != nil {
		return nil, fmt.Errorf("saving defaults for role %s: %w", role, err)
	}
	r.invalidate(role)
	r.logger.InfoContext(ctx, "role default toggled",
		slog.String("role", string(role)),
		slog.String("permission", string(key)),
		slog.Bool("allowed", next[key]),
	)
	return next, nil
}

// RoleDefaults returns the (possibly cached) default matrix for a role.
func (r *Resolver) RoleDefaults(ctx context.Context, role Role) (Defaults, error) {
	if !KnownRole(role) {
		return nil, fmt.Errorf("loading defaults for %q: %w", role, ErrUnknownRole)
	}
	return r.roleDefaults(ctx, role)
}

// roleDefaults returns the cached matrix for role, refreshing if stale and
// bootstrapping from the builtin defaults when the database has no rows yet.
func (r *Resolver) roleDefaults(ctx context.Context, role Role) (Defaults, error) {
	r.mu.RLock()
	if d, ok := r.cached[role]; ok && time.Since(r.loadedAt[role]) < r.cacheTTL {
		r.mu.RUnlock()
		return d, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if d, ok := r.cached[role]; ok && time.Since(r.loadedAt[role]) < r.cacheTTL {
		return d, nil
	}

	defaults, err := r.store.RoleDefaults(ctx, r.orgID, role)
	if err != nil {
		return nil, fmt.Errorf("loading defaults for role %s: %w", role, err)
	}

	// Bootstrap: seed an unseeded role from the builtin matrix.
	if len(defaults) == 0 {
		defaults = BuiltinDefaults(role)
		r.logger.InfoContext(ctx, "bootstrapping role defaults",
			slog.String("role", string(role)),
			slog.Int("keys", len(defaults)),
		)
		if err := r.store.SaveRoleDefaults(ctx, r.orgID, role, defaults); err != nil {
			return nil, fmt.Errorf("bootstrapping defaults for role %s: %w", role, err)
		}
	}

	r.cached[role] = defaults
	r.loadedAt[role] = time.Now()
	return defaults, nil
}

// invalidate drops the cached matrix for role after a mutation.
func (r *Resolver) invalidate(role Role) {
	r.mu.Lock()
	delete(r.cached, role)
	delete(r.loadedAt, role)
	r.mu.Unlock()
}
