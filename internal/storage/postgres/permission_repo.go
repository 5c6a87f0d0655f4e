package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/omnilypro/omnily/internal/permissions"
)

// PermissionRepository implements permissions.Store with PostgreSQL.
// Role defaults are one row per (org, role, key); overrides are one row per
// (org, staff, key), where row presence means the key is overridden.
type PermissionRepository struct {
	db *gorm.DB
}

// NewPermissionRepository creates a PermissionRepository.
func NewPermissionRepository(db *gorm.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// RoleDefaults loads the stored default matrix for a role.
// Returns an empty matrix (no error) when the role is unseeded.
func (r *PermissionRepository) RoleDefaults(ctx context.Context, orgID uuid.UUID, role permissions.Role) (permissions.Defaults, error) {
	var models []RolePermissionModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("role = ?", string(role)).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("loading defaults for role %q: %w", role, err)
	}

	defaults := make(permissions.Defaults, len(models))
	for i := range models {
		defaults[permissions.Key(models[i].PermissionKey)] = models[i].Allowed
	}
	return defaults, nil
}

// SaveRoleDefaults replaces the stored matrix for a role in one transaction.
func (r *PermissionRepository) SaveRoleDefaults(ctx context.Context, orgID uuid.UUID, role permissions.Role, defaults permissions.Defaults) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Scopes(TenantScope(orgID)).
			Where("role = ?", string(role)).
			Delete(&RolePermissionModel{}).Error
		if err != nil {
			return fmt.Errorf("clearing defaults for role %q: %w", role, err)
		}

		models := make([]RolePermissionModel, 0, len(defaults))
		for key, allowed := range defaults {
			models = append(models, RolePermissionModel{
				ID:            uuid.New(),
				OrgID:         orgID,
				Role:          string(role),
				PermissionKey: string(key),
				Allowed:       allowed,
			})
		}
		if len(models) == 0 {
			return nil
		}
		if err := tx.Create(&models).Error; err != nil {
			return fmt.Errorf("saving defaults for role %q: %w", role, err)
		}
		return nil
	})
}

// Overrides loads the sparse override set for a staff member.
func (r *PermissionRepository) Overrides(ctx context.Context, orgID, staffID uuid.UUID) (permissions.Overrides, error) {
	var models []StaffOverrideModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("staff_id = ?", staffID).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("loading overrides for staff %s: %w", staffID, err)
	}

	overrides := make(permissions.Overrides, len(models))
	for i := range models {
		o := permissions.Deny
		if models[i].Allowed {
			o = permissions.Grant
		}
		overrides[permissions.Key(models[i].PermissionKey)] = o
	}
	return overrides, nil
}

// SaveOverrides replaces a staff member's override rows in one transaction.
// Inherit entries are never written; they are represented by row absence.
func (r *PermissionRepository) SaveOverrides(ctx context.Context, orgID, staffID uuid.UUID, overrides permissions.Overrides) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Scopes(TenantScope(orgID)).
			Where("staff_id = ?", staffID).
			Delete(&StaffOverrideModel{}).Error
		if err != nil {
			return fmt.Errorf("clearing overrides for staff %s: %w", staffID, err)
		}

		var models []StaffOverrideModel
		for key, o := range overrides {
			if o == permissions.Inherit {
				continue
			}
			models = append(models, StaffOverrideModel{
				ID:            uuid.New(),
				OrgID:         orgID,
				StaffID:       staffID,
				PermissionKey: string(key),
				Allowed:       o == permissions.Grant,
			})
		}
		if len(models) == 0 {
			return nil
		}
		if err := tx.Create(&models).Error; err != nil {
			return fmt.Errorf("saving overrides for staff %s: %w", staffID, err)
		}
		return nil
	})
}

// ClearOverrides deletes every override row for a staff member.
func (r *PermissionRepository) ClearOverrides(ctx context.Context, orgID, staffID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("staff_id = ?", staffID).
		Delete(&StaffOverrideModel{}).Error
	if err != nil {
		return fmt.Errorf("clearing overrides for staff %s: %w", staffID, err)
	}
	return nil
}
