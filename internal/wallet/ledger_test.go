package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store. Apply serializes on a single mutex, the
// same guarantee the row lock gives the SQL implementation.
type memStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*Wallet // by customer ID
	txns    []*Transaction
}

func newMemStore() *memStore {
	return &memStore{wallets: make(map[uuid.UUID]*Wallet)}
}

func (m *memStore) Ensure(_ context.Context, orgID, customerID uuid.UUID) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[customerID]; ok {
		cp := *w
		return &cp, nil
	}
	w := &Wallet{
		ID:         uuid.New(),
		OrgID:      orgID,
		CustomerID: customerID,
		Balance:    decimal.Zero,
		Status:     StatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	m.wallets[customerID] = w
	cp := *w
	return &cp, nil
}

func (m *memStore) ByCustomer(_ context.Context, _ uuid.UUID, customerID uuid.UUID) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[customerID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) Apply(_ context.Context, _ uuid.UUID, customerID uuid.UUID, fn ApplyFunc) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[customerID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	cp := *w
	txn, err := fn(&cp)
	if err != nil {
		return nil, err
	}
	w.Balance = txn.BalanceAfter
	w.UpdatedAt = txn.CreatedAt
	m.txns = append(m.txns, txn)
	return txn, nil
}

func (m *memStore) SetStatus(_ context.Context, _ uuid.UUID, walletID uuid.UUID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.ID == walletID {
			w.Status = status
			return nil
		}
	}
	return ErrWalletNotFound
}

func (m *memStore) List(_ context.Context, _ uuid.UUID, _, _ int) ([]*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Wallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) Transactions(_ context.Context, _ uuid.UUID, walletID uuid.UUID, _, _ int) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Transaction
	for i := len(m.txns) - 1; i >= 0; i-- {
		if m.txns[i].WalletID == walletID {
			out = append(out, m.txns[i])
		}
	}
	return out, nil
}

func (m *memStore) Stats(_ context.Context, _ uuid.UUID, now time.Time) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Stats{TotalBalance: decimal.Zero, AmountToday: decimal.Zero}
	for _, w := range m.wallets {
		s.TotalWallets++
		if w.Status == StatusActive {
			s.ActiveWallets++
		}
		s.TotalBalance = s.TotalBalance.Add(w.Balance)
	}
	day := now.Truncate(24 * time.Hour)
	for _, t := range m.txns {
		if !t.CreatedAt.Before(day) {
			s.TransactionsToday++
			s.AmountToday = s.AmountToday.Add(t.Amount)
		}
	}
	return s, nil
}

func testLedger(t *testing.T) (*Ledger, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLedger(store, uuid.New(), logger), store
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// --- Top up ---

func TestLedger_TopUpCreatesWallet(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()

	txn, err := l.TopUp(ctx, customerID, amount("50.00"), "cash", uuid.New())
	if err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	if !txn.BalanceBefore.IsZero() {
		t.Errorf("balance before = %s, want 0", txn.BalanceBefore)
	}
	if !txn.BalanceAfter.Equal(amount("50.00")) {
		t.Errorf("balance after = %s, want 50.00", txn.BalanceAfter)
	}
	if txn.Type != TypeTopUp || txn.ReferenceType != "top_up" {
		t.Errorf("unexpected type %q / reference %q", txn.Type, txn.ReferenceType)
	}

	w, err := l.Balance(ctx, customerID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if w.Status != StatusActive {
		t.Errorf("new wallet status = %q, want active", w.Status)
	}
	if !w.Balance.Equal(amount("50.00")) {
		t.Errorf("wallet balance = %s, want 50.00", w.Balance)
	}
}

func TestLedger_TopUpRejectsNonPositive(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	for _, a := range []string{"0", "-5.00"} {
		if _, err := l.TopUp(ctx, uuid.New(), amount(a), "cash", uuid.New()); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("TopUp(%s) = %v, want ErrInvalidAmount", a, err)
		}
	}
}

// --- Payments ---

func TestLedger_ProcessPayment(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()

	if _, err := l.TopUp(ctx, customerID, amount("30.00"), "card", uuid.New()); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	txn, err := l.ProcessPayment(ctx, customerID, amount("12.50"), "espresso x2", "sale-001", uuid.New())
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if !txn.BalanceBefore.Equal(amount("30.00")) || !txn.BalanceAfter.Equal(amount("17.50")) {
		t.Errorf("balances %s -> %s, want 30.00 -> 17.50", txn.BalanceBefore, txn.BalanceAfter)
	}
}

func TestLedger_ProcessPaymentWithoutWallet(t *testing.T) {
	l, _ := testLedger(t)
	_, err := l.ProcessPayment(context.Background(), uuid.New(), amount("5.00"), "", "", uuid.New())
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestLedger_ProcessPaymentInsufficientBalance(t *testing.T) {
	l, store := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()

	if _, err := l.TopUp(ctx, customerID, amount("10.00"), "cash", uuid.New()); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	txnsBefore := len(store.txns)

	_, err := l.ProcessPayment(ctx, customerID, amount("10.01"), "", "", uuid.New())
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// A failed debit must leave no trace: no record, balance unchanged.
	if len(store.txns) != txnsBefore {
		t.Error("failed payment wrote a transaction record")
	}
	w, err := l.Balance(ctx, customerID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !w.Balance.Equal(amount("10.00")) {
		t.Errorf("balance = %s, want 10.00", w.Balance)
	}
}

func TestLedger_ExactBalancePaymentSucceeds(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()

	if _, err := l.TopUp(ctx, customerID, amount("10.00"), "cash", uuid.New()); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	txn, err := l.ProcessPayment(ctx, customerID, amount("10.00"), "", "", uuid.New())
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if !txn.BalanceAfter.IsZero() {
		t.Errorf("balance after = %s, want 0", txn.BalanceAfter)
	}
}

func TestLedger_SuspendedWalletRejectsDebitsAcceptsCredits(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()

	if _, err := l.TopUp(ctx, customerID, amount("10.00"), "cash", uuid.New()); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	w, err := l.Balance(ctx, customerID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if err := l.SetStatus(ctx, w.ID, StatusSuspended); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	if _, err := l.ProcessPayment(ctx, customerID, amount("1.00"), "", "", uuid.New()); !errors.Is(err, ErrWalletNotActive) {
		t.Errorf("payment on suspended wallet = %v, want ErrWalletNotActive", err)
	}
	// A dormant customer's top-up revives the balance rather than bouncing.
	if _, err := l.TopUp(ctx, customerID, amount("1.00"), "cash", uuid.New()); err != nil {
		t.Errorf("top up on suspended wallet = %v, want success", err)
	}
}

func TestLedger_ClosedWalletRejectsAllMutations(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()

	if _, err := l.TopUp(ctx, customerID, amount("10.00"), "cash", uuid.New()); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	w, err := l.Balance(ctx, customerID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if err := l.SetStatus(ctx, w.ID, StatusClosed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	if _, err := l.ProcessPayment(ctx, customerID, amount("1.00"), "", "", uuid.New()); !errors.Is(err, ErrWalletNotActive) {
		t.Errorf("payment on closed wallet = %v, want ErrWalletNotActive", err)
	}
	if _, err := l.TopUp(ctx, customerID, amount("1.00"), "cash", uuid.New()); !errors.Is(err, ErrWalletNotActive) {
		t.Errorf("top up on closed wallet = %v, want ErrWalletNotActive", err)
	}
}

// --- Refunds and gift certificates ---

func TestLedger_RefundCredits(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()

	if _, err := l.TopUp(ctx, customerID, amount("20.00"), "cash", uuid.New()); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	if _, err := l.ProcessPayment(ctx, customerID, amount("15.00"), "", "sale-002", uuid.New()); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	txn, err := l.Refund(ctx, customerID, amount("15.00"), "voided sale", "sale-002", uuid.New())
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if !txn.BalanceAfter.Equal(amount("20.00")) {
		t.Errorf("balance after refund = %s, want 20.00", txn.BalanceAfter)
	}
}

func TestLedger_RedeemGiftCertificate(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()

	if _, err := l.TopUp(ctx, customerID, amount("5.00"), "card", uuid.New()); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	txn, err := l.RedeemGiftCertificate(ctx, customerID, amount("25.00"), "gc-777", uuid.New())
	if err != nil {
		t.Fatalf("RedeemGiftCertificate: %v", err)
	}
	if txn.Type != TypeGiftCertificateRedeem || txn.ReferenceType != "gift_certificate" {
		t.Errorf("unexpected type %q / reference %q", txn.Type, txn.ReferenceType)
	}
	if txn.ReferenceID != "gc-777" {
		t.Errorf("reference id = %q, want gc-777", txn.ReferenceID)
	}
	// Redemption loads the certificate value onto the wallet.
	if !txn.BalanceAfter.Equal(amount("30.00")) {
		t.Errorf("balance after = %s, want 30.00", txn.BalanceAfter)
	}
}

// --- Adjustments ---

func TestLedger_AdjustRejectsNonAdjustmentTypes(t *testing.T) {
	l, _ := testLedger(t)
	_, err := l.Adjust(context.Background(), uuid.New(), TypePayment, amount("1.00"), "", uuid.New())
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

// --- Ledger integrity ---

func TestLedger_TransactionLogReplaysToBalance(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()
	staffID := uuid.New()

	steps := []func() error{
		func() error { _, err := l.TopUp(ctx, customerID, amount("100.00"), "card", staffID); return err },
		func() error {
			_, err := l.ProcessPayment(ctx, customerID, amount("33.40"), "", "s1", staffID)
			return err
		},
		func() error { _, err := l.Refund(ctx, customerID, amount("3.40"), "", "s1", staffID); return err },
		func() error { _, err := l.RedeemGiftCertificate(ctx, customerID, amount("20.00"), "gc-1", staffID); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	w, err := l.Balance(ctx, customerID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	txns, err := l.Transactions(ctx, w.ID, 100, 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txns) != 4 {
		t.Fatalf("expected 4 transactions, got %d", len(txns))
	}

	// Replay oldest-first; each record must chain onto the previous one.
	replayed := decimal.Zero
	for i := len(txns) - 1; i >= 0; i-- {
		txn := txns[i]
		if !txn.BalanceBefore.Equal(replayed) {
			t.Errorf("txn %s balance before = %s, want %s", txn.Type, txn.BalanceBefore, replayed)
		}
		if txn.Type.IsDebit() {
			replayed = replayed.Sub(txn.Amount)
		} else {
			replayed = replayed.Add(txn.Amount)
		}
		if !txn.BalanceAfter.Equal(replayed) {
			t.Errorf("txn %s balance after = %s, want %s", txn.Type, txn.BalanceAfter, replayed)
		}
	}
	if !w.Balance.Equal(replayed) {
		t.Errorf("stored balance %s != replayed %s", w.Balance, replayed)
	}
}

func TestLedger_ConcurrentMutationsSerialize(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	customerID := uuid.New()
	staffID := uuid.New()

	if _, err := l.TopUp(ctx, customerID, amount("100.00"), "cash", staffID); err != nil {
		t.Fatalf("TopUp: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _ = l.ProcessPayment(ctx, customerID, amount("1.00"), "", "", staffID)
		}()
	}
	wg.Wait()

	w, err := l.Balance(ctx, customerID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !w.Balance.Equal(amount("80.00")) {
		t.Errorf("balance = %s, want 80.00", w.Balance)
	}
}

// --- Stats ---

func TestLedger_Stats(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	staffID := uuid.New()

	c1, c2 := uuid.New(), uuid.New()
	if _, err := l.TopUp(ctx, c1, amount("40.00"), "cash", staffID); err != nil {
		t.Fatalf("TopUp c1: %v", err)
	}
	if _, err := l.TopUp(ctx, c2, amount("10.00"), "card", staffID); err != nil {
		t.Fatalf("TopUp c2: %v", err)
	}
	w2, err := l.Balance(ctx, c2)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if err := l.SetStatus(ctx, w2.ID, StatusSuspended); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalWallets != 2 || stats.ActiveWallets != 1 {
		t.Errorf("wallets = %d/%d active, want 2/1", stats.TotalWallets, stats.ActiveWallets)
	}
	if !stats.TotalBalance.Equal(amount("50.00")) {
		t.Errorf("total balance = %s, want 50.00", stats.TotalBalance)
	}
	if stats.TransactionsToday != 2 {
		t.Errorf("transactions today = %d, want 2", stats.TransactionsToday)
	}
	if !stats.AmountToday.Equal(amount("50.00")) {
		t.Errorf("amount today = %s, want 50.00", stats.AmountToday)
	}
}
