package postgres

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrgModel maps to the "organizations" table.
type OrgModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;uniqueIndex"`
	Slug      string    `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (OrgModel) TableName() string { return "organizations" }

// CustomerModel maps to the "customers" table.
// ExternalID is the card/app identifier presented at the till; unique per org.
type CustomerModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_customers_org_external"`
	ExternalID string    `gorm:"not null;uniqueIndex:idx_customers_org_external"`
	Name       string
	Email      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (CustomerModel) TableName() string { return "customers" }

// StaffModel maps to the "staff_members" table.
type StaffModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_staff_org_email"`
	Email     string    `gorm:"not null;uniqueIndex:idx_staff_org_email"`
	Name      string    `gorm:"not null"`
	Role      string    `gorm:"not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (StaffModel) TableName() string { return "staff_members" }

// RolePermissionModel maps to the "role_permissions" table.
// One row per (org, role, key); Allowed is the role default for that key.
type RolePermissionModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_role_perms"`
	Role          string    `gorm:"not null;uniqueIndex:idx_role_perms"`
	PermissionKey string    `gorm:"not null;uniqueIndex:idx_role_perms"`
	Allowed       bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (RolePermissionModel) TableName() string { return "role_permissions" }

// StaffOverrideModel maps to the "staff_permission_overrides" table.
// Row presence means the key is explicitly overridden; Allowed carries the
// grant/deny value. Reverting to inherit deletes the row.
type StaffOverrideModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_staff_overrides"`
	StaffID       uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_staff_overrides"`
	PermissionKey string    `gorm:"not null;uniqueIndex:idx_staff_overrides"`
	Allowed       bool      `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (StaffOverrideModel) TableName() string { return "staff_permission_overrides" }

// WalletModel maps to the "wallets" table. One wallet per customer per org.
type WalletModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrgID      uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_wallets_org_customer"`
	CustomerID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_wallets_org_customer"`
	Balance    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Status     string          `gorm:"not null;default:'active'"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (WalletModel) TableName() string { return "wallets" }

// WalletTransactionModel maps to the "wallet_transactions" table.
// No UpdatedAt or DeletedAt — the ledger is append-only and immutable.
type WalletTransactionModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrgID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	WalletID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Type          string          `gorm:"not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Description   string
	ReferenceID   string `gorm:"index"`
	ReferenceType string
	PerformedBy   uuid.UUID `gorm:"type:uuid"`
	CreatedAt     time.Time `gorm:"index"`
}

func (WalletTransactionModel) TableName() string { return "wallet_transactions" }

// JSONB is a json.RawMessage stored in a JSONB column (TEXT under SQLite).
type JSONB json.RawMessage

// AuditEventModel maps to the "audit_events" table.
// No UpdatedAt or DeletedAt — audit log is append-only and immutable.
type AuditEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID         uuid.UUID `gorm:"type:uuid;not null;index"`
	CorrelationID string    `gorm:"index"`
	StaffID       string    `gorm:"not null"`
	Action        string    `gorm:"not null"`
	TargetID      string
	Details       JSONB  `gorm:"type:jsonb;not null;default:'{}'"`
	Result        string `gorm:"not null"`
	Error         string
	CreatedAt     time.Time `gorm:"index"`
}

func (AuditEventModel) TableName() string { return "audit_events" }
