// Package wallet implements the prepaid customer wallet ledger.
//
// Every balance change goes through one atomic path: the store locks the
// wallet row, the ledger computes the mutation, and the wallet balance plus
// an append-only transaction record (carrying the balance before and after)
// commit together or not at all. Balances are never updated outside this
// path, so the transaction log always replays to the stored balance.
package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentinel errors for ledger operations.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrInvalidStatus       = errors.New("invalid wallet status")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrWalletNotActive     = errors.New("wallet not active")
)

// Status is the lifecycle state of a wallet.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusClosed    Status = "closed"
)

// Type classifies a ledger transaction.
type Type string

const (
	TypeCredit                Type = "credit"
	TypeDebit                 Type = "debit"
	TypeTopUp                 Type = "top_up"
	TypePayment               Type = "payment"
	TypeRefund                Type = "refund"
	TypeGiftCertificateRedeem Type = "gift_certificate_redeem"
)

// IsDebit reports whether the type decreases the wallet balance.
// Gift certificate redemption is a credit: the certificate's face value
// is loaded onto the wallet.
func (t Type) IsDebit() bool {
	switch t {
	case TypeDebit, TypePayment:
		return true
	}
	return false
}

// KnownType reports whether t is a recognized transaction type.
func KnownType(t Type) bool {
	switch t {
	case TypeCredit, TypeDebit, TypeTopUp, TypePayment, TypeRefund, TypeGiftCertificateRedeem:
		return true
	}
	return false
}

// Wallet is a customer's prepaid balance within an organization.
type Wallet struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	CustomerID uuid.UUID
	Balance    decimal.Decimal
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Transaction is one append-only ledger entry. Amount is always positive;
// Type carries the direction. BalanceBefore and BalanceAfter snapshot the
// wallet balance around the mutation, so the log is self-verifying.
type Transaction struct {
	ID            uuid.UUID
	OrgID         uuid.UUID
	WalletID      uuid.UUID
	Type          Type
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	ReferenceID   string
	ReferenceType string
	PerformedBy   uuid.UUID
	CreatedAt     time.Time
}

// Stats is an aggregate snapshot of an organization's wallets.
type Stats struct {
	TotalWallets      int64           `json:"total_wallets"`
	ActiveWallets     int64           `json:"active_wallets"`
	TotalBalance      decimal.Decimal `json:"total_balance"`
	TransactionsToday int64           `json:"total_transactions_today"`
	AmountToday       decimal.Decimal `json:"total_amount_today"`
}
