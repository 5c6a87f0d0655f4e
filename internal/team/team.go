// Package team manages staff member accounts within an organization.
package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnilypro/omnily/internal/domain"
	"github.com/omnilypro/omnily/internal/permissions"
)

var (
	ErrStaffNotFound  = errors.New("staff member not found")
	ErrDuplicateEmail = errors.New("email already in use")
	ErrInvalidStaff   = errors.New("invalid staff member")
)

// Store persists staff member records.
type Store interface {
	Create(ctx context.Context, member *domain.StaffMember) error
	Get(ctx context.Context, orgID, id uuid.UUID) (*domain.StaffMember, error)
	ByEmail(ctx context.Context, orgID uuid.UUID, email string) (*domain.StaffMember, error)
	Update(ctx context.Context, member *domain.StaffMember) error
	List(ctx context.Context, orgID uuid.UUID, includeInactive bool) ([]*domain.StaffMember, error)
}

// Service manages the staff roster for one organization. Role changes keep
// any per-member permission overrides: an override is a deliberate
// deviation for that person, not a property of the role they happened to
// hold when it was set.
type Service struct {
	store    Store
	resolver *permissions.Resolver
	orgID    uuid.UUID
	logger   *slog.Logger
}

// NewService creates a staff service bound to one organization.
func NewService(store Store, resolver *permissions.Resolver, orgID uuid.UUID, logger *slog.Logger) *Service {
	return &Service{store: store, resolver: resolver, orgID: orgID, logger: logger}
}

// Create adds a staff member with the given role. Email must be unique
// within the organization.
func (s *Service) Create(ctx context.Context, name, email string, role permissions.Role) (*domain.StaffMember, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || name == "" {
		return nil, fmt.Errorf("name and email are required: %w", ErrInvalidStaff)
	}
	if !permissions.KnownRole(role) {
		return nil, fmt.Errorf("creating staff %q: %w", email, permissions.ErrUnknownRole)
	}
	if existing, err := s.store.ByEmail(ctx, s.orgID, email); err == nil && existing != nil {
		return nil, fmt.Errorf("creating staff %q: %w", email, ErrDuplicateEmail)
	} else if err != nil && !errors.Is(err, ErrStaffNotFound) {
		return nil, fmt.Errorf("checking staff email %q: %w", email, err)
	}

	now := time.Now().UTC()
	member := &domain.StaffMember{
		ID:        domain.NewID(),
		OrgID:     s.orgID,
		Email:     email,
		Name:      name,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, member); err != nil {
		return nil, fmt.Errorf("creating staff %q: %w", email, err)
	}
	s.logger.InfoContext(ctx, "staff member created",
		slog.String("staff_id", member.ID.String()),
		slog.String("role", string(role)),
	)
	return member, nil
}

// Get returns a staff member by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.StaffMember, error) {
	return s.store.Get(ctx, s.orgID, id)
}

// ByEmail returns a staff member by their normalized email address.
func (s *Service) ByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	return s.store.ByEmail(ctx, s.orgID, strings.ToLower(strings.TrimSpace(email)))
}

// List returns the roster; inactive members are included on request.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]*domain.StaffMember, error) {
	return s.store.List(ctx, s.orgID, includeInactive)
}

// ChangeRole moves a staff member to a new role. Their permission
// overrides are preserved and now apply against the new role's defaults.
func (s *Service) ChangeRole(ctx context.Context, id uuid.UUID, role permissions.Role) (*domain.StaffMember, error) {
	if !permissions.KnownRole(role) {
		return nil, fmt.Errorf("changing role for staff %s: %w", id, permissions.ErrUnknownRole)
	}
	member, err := s.store.Get(ctx, s.orgID, id)
	if err != nil {
		return nil, fmt.Errorf("loading staff %s: %w", id, err)
	}
	member.Role = role
	member.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("updating staff %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "staff role changed",
		slog.String("staff_id", id.String()),
		slog.String("role", string(role)),
	)
	return member, nil
}

// Deactivate disables a staff member's account and clears their permission
// overrides so a later reactivation starts from clean role defaults.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	member, err := s.store.Get(ctx, s.orgID, id)
	if err != nil {
		return fmt.Errorf("loading staff %s: %w", id, err)
	}
	member.Active = false
	member.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, member); err != nil {
		return fmt.Errorf("updating staff %s: %w", id, err)
	}
	if err := s.resolver.ClearOverrides(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "staff member deactivated",
		slog.String("staff_id", id.String()),
	)
	return nil
}

// Reactivate re-enables a previously deactivated account.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) error {
	member, err := s.store.Get(ctx, s.orgID, id)
	if err != nil {
		return fmt.Errorf("loading staff %s: %w", id, err)
	}
	member.Active = true
	member.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, member); err != nil {
		return fmt.Errorf("updating staff %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "staff member reactivated",
		slog.String("staff_id", id.String()),
	)
	return nil
}
