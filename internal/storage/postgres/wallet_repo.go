package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omnilypro/omnily/internal/wallet"
)

// WalletRepository implements wallet.Store with PostgreSQL.
// Apply uses SELECT ... FOR UPDATE so concurrent mutations of the same
// wallet serialize on the row lock.
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a WalletRepository.
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Ensure returns the wallet for a customer, creating an active zero-balance
// wallet if none exists.
func (r *WalletRepository) Ensure(ctx context.Context, orgID, customerID uuid.UUID) (*wallet.Wallet, error) {
	var model WalletModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("customer_id = ?", customerID).
		First(&model).Error
	if err == nil {
		return toWalletDomain(&model), nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("looking up wallet for customer %s: %w", customerID, err)
	}

	model = WalletModel{
		ID:         uuid.New(),
		OrgID:      orgID,
		CustomerID: customerID,
		Balance:    decimal.Zero,
		Status:     string(wallet.StatusActive),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("creating wallet for customer %s: %w", customerID, err)
	}
	return toWalletDomain(&model), nil
}

// ByCustomer returns a customer's wallet or wallet.ErrWalletNotFound.
func (r *WalletRepository) ByCustomer(ctx context.Context, orgID, customerID uuid.UUID) (*wallet.Wallet, error) {
	var model WalletModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("customer_id = ?", customerID).
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("customer %s: %w", customerID, wallet.ErrWalletNotFound)
		}
		return nil, fmt.Errorf("looking up wallet for customer %s: %w", customerID, err)
	}
	return toWalletDomain(&model), nil
}

// Apply atomically mutates a customer's wallet through fn.
//
// The wallet row is locked with FOR UPDATE for the duration of the
// transaction; the new balance and the ledger record commit together.
func (r *WalletRepository) Apply(ctx context.Context, orgID, customerID uuid.UUID, fn wallet.ApplyFunc) (*wallet.Transaction, error) {
	var txn *wallet.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model WalletModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(TenantScope(orgID)).
			Where("customer_id = ?", customerID).
			First(&model).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("customer %s: %w", customerID, wallet.ErrWalletNotFound)
			}
			return fmt.Errorf("locking wallet for customer %s: %w", customerID, err)
		}

		txn, err = fn(toWalletDomain(&model))
		if err != nil {
			return err
		}

		err = tx.Model(&WalletModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"balance":    txn.BalanceAfter,
				"updated_at": txn.CreatedAt,
			}).Error
		if err != nil {
			return fmt.Errorf("updating wallet balance: %w", err)
		}

		record := toTransactionModel(txn)
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("appending wallet transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// SetStatus changes a wallet's lifecycle state.
func (r *WalletRepository) SetStatus(ctx context.Context, orgID, walletID uuid.UUID, status wallet.Status) error {
	result := r.db.WithContext(ctx).
		Model(&WalletModel{}).
		Scopes(TenantScope(orgID)).
		Where("id = ?", walletID).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("updating wallet status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("wallet %s: %w", walletID, wallet.ErrWalletNotFound)
	}
	return nil
}

// List returns an organization's wallets, newest first.
func (r *WalletRepository) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*wallet.Wallet, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []WalletModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}

	wallets := make([]*wallet.Wallet, len(models))
	for i := range models {
		wallets[i] = toWalletDomain(&models[i])
	}
	return wallets, nil
}

// Transactions returns a wallet's ledger entries, newest first.
func (r *WalletRepository) Transactions(ctx context.Context, orgID, walletID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []WalletTransactionModel
	err := r.db.WithContext(ctx).
		Scopes(TenantScope(orgID)).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions: %w", err)
	}

	txns := make([]*wallet.Transaction, len(models))
	for i := range models {
		txns[i] = toTransactionDomain(&models[i])
	}
	return txns, nil
}

// Stats aggregates wallet counts and balances for an organization.
// "Today" is the UTC calendar day containing now.
func (r *WalletRepository) Stats(ctx context.Context, orgID uuid.UUID, now time.Time) (*wallet.Stats, error) {
	stats := &wallet.Stats{
		TotalBalance: decimal.Zero,
		AmountToday:  decimal.Zero,
	}

	err := r.db.WithContext(ctx).
		Model(&WalletModel{}).
		Scopes(TenantScope(orgID)).
		Count(&stats.TotalWallets).Error
	if err != nil {
		return nil, fmt.Errorf("counting wallets: %w", err)
	}

	err = r.db.WithContext(ctx).
		Model(&WalletModel{}).
		Scopes(TenantScope(orgID)).
		Where("status = ?", string(wallet.StatusActive)).
		Count(&stats.ActiveWallets).Error
	if err != nil {
		return nil, fmt.Errorf("counting active wallets: %w", err)
	}

	var totalBalance decimal.NullDecimal
	err = r.db.WithContext(ctx).
		Model(&WalletModel{}).
		Scopes(TenantScope(orgID)).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&totalBalance).Error
	if err != nil {
		return nil, fmt.Errorf("summing balances: %w", err)
	}
	if totalBalance.Valid {
		stats.TotalBalance = totalBalance.Decimal
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	err = r.db.WithContext(ctx).
		Model(&WalletTransactionModel{}).
		Scopes(TenantScope(orgID)).
		Where("created_at >= ?", dayStart).
		Count(&stats.TransactionsToday).Error
	if err != nil {
		return nil, fmt.Errorf("counting today's transactions: %w", err)
	}

	var amountToday decimal.NullDecimal
	err = r.db.WithContext(ctx).
		Model(&WalletTransactionModel{}).
		Scopes(TenantScope(orgID)).
		Where("created_at >= ?", dayStart).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&amountToday).Error
	if err != nil {
		return nil, fmt.Errorf("summing today's amounts: %w", err)
	}
	if amountToday.Valid {
		stats.AmountToday = amountToday.Decimal
	}

	return stats, nil
}
