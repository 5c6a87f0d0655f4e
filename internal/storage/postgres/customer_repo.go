package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/omnilypro/omnily/internal/domain"
	"github.com/omnilypro/omnily/internal/wallet"
)

// CustomerRepository implements wallet.CustomerStore with PostgreSQL.
type CustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a CustomerRepository.
func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Ensure creates a customer record on first contact and returns it.
// Uses the combination of (org_id, external_id) as the unique key.
func (r *CustomerRepository) Ensure(ctx context.Context, orgID uuid.UUID, externalID string) (*domain.Customer, error) {
	var model CustomerModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("external_id = ?", externalID).
		First(&model).Error
	if err == nil {
		return toCustomerDomain(&model), nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("looking up customer %q: %w", externalID, err)
	}

	model = CustomerModel{
		ID:         uuid.New(),
		OrgID:      orgID,
		ExternalID: externalID,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating customer %q: %w", externalID, err)
	}
	return toCustomerDomain(&model), nil
}

// ByExternalID retrieves a customer by org and external ID.
func (r *CustomerRepository) ByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) (*domain.Customer, error) {
	var model CustomerModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("external_id = ?", externalID).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("customer %q: %w", externalID, wallet.ErrCustomerNotFound)
		}
		return nil, fmt.Errorf("looking up customer %q: %w", externalID, err)
	}
	return toCustomerDomain(&model), nil
}
