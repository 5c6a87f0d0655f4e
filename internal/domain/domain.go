// Package domain defines cross-cutting entity types used across the system.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/omnilypro/omnily/internal/permissions"
)

type Organization struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Customer represents a loyalty program member within an organization.
// ExternalID is the opaque string ID used by client surfaces (e.g. the POS
// terminal card ID or the mobile app account ID).
type Customer struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	ExternalID string
	Name       string
	Email      string
	CreatedAt  time.Time
}

// StaffMember represents an employee account within an organization.
// Role selects the default permission matrix; per-member overrides are
// stored separately and resolved by the permissions package.
type StaffMember struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	Email     string
	Name      string
	Role      permissions.Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewID generates a new random UUID.
func NewID() uuid.UUID {
	return uuid.New()
}
