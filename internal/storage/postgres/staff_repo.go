package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/omnilypro/omnily/internal/domain"
	"github.com/omnilypro/omnily/internal/team"
)

// StaffRepository implements team.Store with PostgreSQL.
type StaffRepository struct {
	db *gorm.DB
}

// NewStaffRepository creates a StaffRepository.
func NewStaffRepository(db *gorm.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// Create inserts a staff member record.
func (r *StaffRepository) Create(ctx context.Context, member *domain.StaffMember) error {
	model := toStaffModel(member)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("creating staff %q: %w", member.Email, err)
	}
	return nil
}

// Get retrieves a staff member by ID.
func (r *StaffRepository) Get(ctx context.Context, orgID, id uuid.UUID) (*domain.StaffMember, error) {
	var model StaffModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		First(&model, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("staff %s: %w", id, team.ErrStaffNotFound)
		}
		return nil, fmt.Errorf("looking up staff %s: %w", id, err)
	}
	return toStaffDomain(&model), nil
}

// ByEmail retrieves a staff member by org and email.
func (r *StaffRepository) ByEmail(ctx context.Context, orgID uuid.UUID, email string) (*domain.StaffMember, error) {
	var model StaffModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("email = ?", email).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("staff %q: %w", email, team.ErrStaffNotFound)
		}
		return nil, fmt.Errorf("looking up staff %q: %w", email, err)
	}
	return toStaffDomain(&model), nil
}

// Update persists changes to a staff member record.
func (r *StaffRepository) Update(ctx context.Context, member *domain.StaffMember) error {
	model := toStaffModel(member)
	result := r.db.WithContext(ctx).
		Scopes(TenantScope(member.OrgID)).
		Where("id = ?", member.ID).
		Updates(map[string]any{
			"email":      model.Email,
			"name":       model.Name,
			"role":       model.Role,
			"active":     model.Active,
			"updated_at": model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("updating staff %s: %w", member.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("staff %s: %w", member.ID, team.ErrStaffNotFound)
	}
	return nil
}

// List returns an organization's staff, newest first.
func (r *StaffRepository) List(ctx context.Context, orgID uuid.UUID, includeInactive bool) ([]*domain.StaffMember, error) {
	q := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Order("created_at DESC")
	if !includeInactive {
		q = q.Where("active = ?", true)
	}

	var models []StaffModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing staff: %w", err)
	}

	members := make([]*domain.StaffMember, len(models))
	for i := range models {
		members[i] = toStaffDomain(&models[i])
	}
	return members, nil
}
