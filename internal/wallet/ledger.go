package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnilypro/omnily/internal/domain"
)

// ApplyFunc computes one balance mutation against the locked wallet state.
// It must validate the wallet, build the transaction record, and return it
// with BalanceBefore and BalanceAfter filled in. Returning an error aborts
// the mutation; nothing is written.
type ApplyFunc func(w *Wallet) (*Transaction, error)

// Store persists wallets and their transaction log.
//
// Apply is the single mutation path: the implementation must open a
// database transaction, lock the wallet row, invoke fn with the current
// state, and commit the new balance together with the returned transaction
// record. Concurrent Apply calls on the same wallet serialize on the lock.
type Store interface {
	// Ensure returns the wallet for a customer, creating an active wallet
	// with a zero balance if none exists.
	Ensure(ctx context.Context, orgID, customerID uuid.UUID) (*Wallet, error)
	// ByCustomer returns a customer's wallet or ErrWalletNotFound.
	ByCustomer(ctx context.Context, orgID, customerID uuid.UUID) (*Wallet, error)
	// Apply atomically mutates a customer's wallet through fn.
	// Returns ErrWalletNotFound if the customer has no wallet.
	Apply(ctx context.Context, orgID, customerID uuid.UUID, fn ApplyFunc) (*Transaction, error)
	// SetStatus changes a wallet's lifecycle state.
	SetStatus(ctx context.Context, orgID, walletID uuid.UUID, status Status) error
	// List returns an organization's wallets, newest first.
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Wallet, error)
	// Transactions returns a wallet's ledger entries, newest first.
	Transactions(ctx context.Context, orgID, walletID uuid.UUID, limit, offset int) ([]*Transaction, error)
	// Stats aggregates wallet counts and balances; "today" is the UTC day
	// containing now.
	Stats(ctx context.Context, orgID uuid.UUID, now time.Time) (*Stats, error)
}

// CustomerStore resolves external customer IDs, creating customer records
// on first contact.
type CustomerStore interface {
	Ensure(ctx context.Context, orgID uuid.UUID, externalID string) (*domain.Customer, error)
	ByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) (*domain.Customer, error)
}

// Ledger exposes the wallet operations for one organization. All balance
// logic lives here; the store only provides locked read-modify-write.
type Ledger struct {
	store  Store
	orgID  uuid.UUID
	logger *slog.Logger
}

// NewLedger creates a wallet ledger bound to one organization.
func NewLedger(store Store, orgID uuid.UUID, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, orgID: orgID, logger: logger}
}

// Ensure returns the customer's wallet, creating an empty active one if
// this is their first wallet interaction.
func (l *Ledger) Ensure(ctx context.Context, customerID uuid.UUID) (*Wallet, error) {
	w, err := l.store.Ensure(ctx, l.orgID, customerID)
	if err != nil {
		return nil, fmt.Errorf("ensuring wallet for customer %s: %w", customerID, err)
	}
	return w, nil
}

// Balance returns the customer's wallet or ErrWalletNotFound.
func (l *Ledger) Balance(ctx context.Context, customerID uuid.UUID) (*Wallet, error) {
	return l.store.ByCustomer(ctx, l.orgID, customerID)
}

// TopUp credits a customer's wallet, creating the wallet on first top-up.
// method is the payment instrument used at the till ("cash", "card", ...).
func (l *Ledger) TopUp(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, method string, performedBy uuid.UUID) (*Transaction, error) {
	if _, err := l.Ensure(ctx, customerID); err != nil {
		return nil, err
	}
	return l.apply(ctx, customerID, entry{
		Type:          TypeTopUp,
		Amount:        amount,
		Description:   fmt.Sprintf("Ricarica tramite %s", method),
		ReferenceType: "top_up",
		PerformedBy:   performedBy,
	})
}

// ProcessPayment debits a sale from a customer's wallet. The wallet must
// already exist, be active, and hold at least the sale amount.
func (l *Ledger) ProcessPayment(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, description, referenceID string, performedBy uuid.UUID) (*Transaction, error) {
	return l.apply(ctx, customerID, entry{
		Type:          TypePayment,
		Amount:        amount,
		Description:   description,
		ReferenceID:   referenceID,
		ReferenceType: "sale",
		PerformedBy:   performedBy,
	})
}

// Refund credits a previously debited amount back onto the wallet.
func (l *Ledger) Refund(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, description, referenceID string, performedBy uuid.UUID) (*Transaction, error) {
	return l.apply(ctx, customerID, entry{
		Type:          TypeRefund,
		Amount:        amount,
		Description:   description,
		ReferenceID:   referenceID,
		ReferenceType: "sale",
		PerformedBy:   performedBy,
	})
}

// RedeemGiftCertificate loads the face value of a gift certificate onto
// the wallet.
func (l *Ledger) RedeemGiftCertificate(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, certificateID string, performedBy uuid.UUID) (*Transaction, error) {
	return l.apply(ctx, customerID, entry{
		Type:          TypeGiftCertificateRedeem,
		Amount:        amount,
		Description:   fmt.Sprintf("Gift certificate %s", certificateID),
		ReferenceID:   certificateID,
		ReferenceType: "gift_certificate",
		PerformedBy:   performedBy,
	})
}

// Adjust applies a manual credit or debit with a free-form description.
func (l *Ledger) Adjust(ctx context.Context, customerID uuid.UUID, typ Type, amount decimal.Decimal, description string, performedBy uuid.UUID) (*Transaction, error) {
	if typ != TypeCredit && typ != TypeDebit {
		return nil, fmt.Errorf("adjustment type %q: %w", typ, ErrInvalidType)
	}
	return l.apply(ctx, customerID, entry{
		Type:          typ,
		Amount:        amount,
		Description:   description,
		ReferenceType: "adjustment",
		PerformedBy:   performedBy,
	})
}

// SetStatus changes a wallet's lifecycle state.
func (l *Ledger) SetStatus(ctx context.Context, walletID uuid.UUID, status Status) error {
	switch status {
	case StatusActive, StatusSuspended, StatusClosed:
	default:
		return fmt.Errorf("wallet status %q: %w", status, ErrInvalidStatus)
	}
	if err := l.store.SetStatus(ctx, l.orgID, walletID, status); err != nil {
		return fmt.Errorf("setting wallet %s status: %w", walletID, err)
	}
	l.logger.InfoContext(ctx, "wallet status changed",
		slog.String("wallet_id", walletID.String()),
		slog.String("status", string(status)),
	)
	return nil
}

// List returns the organization's wallets, newest first.
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]*Wallet, error) {
	return l.store.List(ctx, l.orgID, limit, offset)
}

// Transactions returns a wallet's ledger entries, newest first.
func (l *Ledger) Transactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	return l.store.Transactions(ctx, l.orgID, walletID, limit, offset)
}

// Stats aggregates wallet counts and balances for the organization.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	return l.store.Stats(ctx, l.orgID, time.Now().UTC())
}

// entry is the caller-supplied part of a ledger transaction.
type entry struct {
	Type          Type
	Amount        decimal.Decimal
	Description   string
	ReferenceID   string
	ReferenceType string
	PerformedBy   uuid.UUID
}

// apply validates the entry and runs it through the store's atomic path.
func (l *Ledger) apply(ctx context.Context, customerID uuid.UUID, e entry) (*Transaction, error) {
	amount := e.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%s of %s: %w", e.Type, e.Amount, ErrInvalidAmount)
	}

	txn, err := l.store.Apply(ctx, l.orgID, customerID, func(w *Wallet) (*Transaction, error) {
		// Closed wallets accept nothing. Suspended wallets still accept
		// credits (a dormant customer's top-up must not bounce) but
		// cannot be spent from.
		if w.Status == StatusClosed || (e.Type.IsDebit() && w.Status != StatusActive) {
			return nil, fmt.Errorf("wallet %s is %s: %w", w.ID, w.Status, ErrWalletNotActive)
		}

		before := w.Balance
		var after decimal.Decimal
		if e.Type.IsDebit() {
			if before.LessThan(amount) {
				return nil, fmt.Errorf("%s of %s exceeds balance %s: %w",
					e.Type, amount, before, ErrInsufficientBalance)
			}
			after = before.Sub(amount)
		} else {
			after = before.Add(amount)
		}

		return &Transaction{
			ID:            domain.NewID(),
			OrgID:         l.orgID,
			WalletID:      w.ID,
			Type:          e.Type,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Description:   e.Description,
			ReferenceID:   e.ReferenceID,
			ReferenceType: e.ReferenceType,
			PerformedBy:   e.PerformedBy,
			CreatedAt:     time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("applying %s for customer %s: %w", e.Type, customerID, err)
	}

	l.logger.InfoContext(ctx, "wallet transaction applied",
		slog.String("wallet_id", txn.WalletID.String()),
		slog.String("type", string(txn.Type)),
		slog.String("amount", txn.Amount.String()),
		slog.String("balance_after", txn.BalanceAfter.String()),
	)
	return txn, nil
}
