package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/omnilypro/omnily/internal/config"
	"github.com/omnilypro/omnily/internal/wallet"
)

// --- No-op Path ---

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs == nil {
		t.Fatal("expected non-nil Observability")
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
	if obs.Monitor != nil {
		t.Error("monitor should be nil when not enabled")
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
}

func TestObservability_ShutdownNil(t *testing.T) {
	// Should not panic.
	var obs *Observability
	obs.Shutdown(context.Background())
}

func TestTracerOrNil_Nil(t *testing.T) {
	var obs *Observability
	if obs.TracerOrNil() != nil {
		t.Error("expected nil tracer from nil Observability")
	}
}

// --- MetricsCollector ---

func TestMetricsCollector_Created(t *testing.T) {
	m := NewMetricsCollector()
	if m == nil {
		t.Fatal("expected non-nil MetricsCollector")
	}
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}

	// Initialize some metrics so they appear in Gather (CounterVec only appears after first use).
	m.WalletTransactionsTotal.WithLabelValues("top_up", "success").Inc()
	m.WalletRejectionsTotal.WithLabelValues("insufficient_balance").Inc()
	m.PermissionChecksTotal.WithLabelValues("can_process_sales", "allowed").Inc()
	m.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, expected := range []string{
		"omnily_wallet_transactions_total",
		"omnily_wallet_rejections_total",
		"omnily_permissions_checks_total",
		"omnily_http_requests_total",
	} {
		if !names[expected] {
			t.Errorf("metric %q not found in registry", expected)
		}
	}
}

func TestMetricsCollector_PermissionCheck(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordPermissionCheck("can_process_sales", true)
	m.RecordPermissionCheck("can_process_sales", true)
	m.RecordPermissionCheck("can_process_sales", false)

	allowed := counterValue(t, m.Registry, "omnily_permissions_checks_total", prometheus.Labels{"key": "can_process_sales", "result": "allowed"})
	if allowed != 2 {
		t.Errorf("allowed count = %v, want 2", allowed)
	}
	denied := counterValue(t, m.Registry, "omnily_permissions_checks_total", prometheus.Labels{"key": "can_process_sales", "result": "denied"})
	if denied != 1 {
		t.Errorf("denied count = %v, want 1", denied)
	}
}

func TestMetricsCollector_NilSafeHelpers(t *testing.T) {
	// Should not panic.
	var m *MetricsCollector
	m.RecordPermissionCheck("can_view_analytics", true)
	m.RecordStatsCache(true)
	m.RecordSchedulerRun("stats_snapshot", nil)
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	m := make(map[string]string)
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}

// --- HealthChecker ---

func TestHealthChecker_NoChecks(t *testing.T) {
	h := NewHealthChecker(nil)
	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
}

func TestHealthChecker_AllPass(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("db", func(ctx context.Context) error { return nil })
	h.AddCheck("cache", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
	if status.Checks["db"].Status != "ok" {
		t.Errorf("db check = %q, want ok", status.Checks["db"].Status)
	}
}

func TestHealthChecker_OneFails(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddCheck("db", func(ctx context.Context) error { return errors.New("connection refused") })
	h.AddCheck("cache", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if status.Checks["db"].Status != "fail" {
		t.Errorf("db check = %q, want fail", status.Checks["db"].Status)
	}
	if status.Checks["cache"].Status != "ok" {
		t.Errorf("cache check = %q, want ok", status.Checks["cache"].Status)
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	status := h.CheckHealth()
	if status.Status != "ok" {
		t.Errorf("liveness status = %q, want ok", status.Status)
	}
}

// --- ActivityMonitor ---

func TestActivityMonitor_NilSafe(t *testing.T) {
	// All methods should be no-ops on nil receiver.
	var a *ActivityMonitor
	a.RecordRejection("cust")
	a.RecordDebit("cust", 10.0)
}

func TestActivityMonitor_WindowCounts(t *testing.T) {
	a := NewActivityMonitor(&config.AnomalyConfig{
		Enabled:          true,
		WindowSeconds:    60,
		FailureThreshold: 100, // high enough not to log during the test
	}, nil)

	for i := 0; i < 4; i++ {
		a.RecordDebit("cust-1", 5.0)
	}
	for i := 0; i < 6; i++ {
		a.RecordRejection("cust-1")
	}

	a.mu.Lock()
	rejections := a.rejections["cust-1"].sum()
	successes := a.successes["cust-1"].sum()
	volume := a.debitVolume["cust-1"].sum()
	a.mu.Unlock()

	if rejections != 6 {
		t.Errorf("rejections = %v, want 6", rejections)
	}
	if successes != 4 {
		t.Errorf("successes = %v, want 4", successes)
	}
	if volume != 20 {
		t.Errorf("debit volume = %v, want 20", volume)
	}
}

func TestActivityMonitor_IsolatesCustomers(t *testing.T) {
	a := NewActivityMonitor(&config.AnomalyConfig{Enabled: true, WindowSeconds: 60}, nil)

	a.RecordRejection("cust-1")
	a.RecordDebit("cust-2", 3.0)

	a.mu.Lock()
	defer a.mu.Unlock()
	if got := a.rejections["cust-1"].sum(); got != 1 {
		t.Errorf("cust-1 rejections = %v, want 1", got)
	}
	if _, ok := a.rejections["cust-2"]; ok {
		t.Error("cust-2 should have no rejection window")
	}
}

func TestSlidingWindow_PrunesOldEntries(t *testing.T) {
	w := &slidingWindow{window: time.Minute}
	w.entries = append(w.entries, windowEntry{timestamp: time.Now().Add(-2 * time.Minute), value: 10})
	w.add(1)

	if got := w.sum(); got != 1 {
		t.Errorf("sum = %v, want 1 (expired entry should be pruned)", got)
	}
}

// --- InstrumentedWalletStore (wrapper) ---

type mockWalletStore struct {
	applyErr error
	txn      *wallet.Transaction
	called   int
}

func (m *mockWalletStore) Ensure(ctx context.Context, orgID, customerID uuid.UUID) (*wallet.Wallet, error) {
	return &wallet.Wallet{ID: uuid.New(), OrgID: orgID, CustomerID: customerID, Status: wallet.StatusActive}, nil
}

func (m *mockWalletStore) ByCustomer(ctx context.Context, orgID, customerID uuid.UUID) (*wallet.Wallet, error) {
	return nil, wallet.ErrWalletNotFound
}

func (m *mockWalletStore) Apply(ctx context.Context, orgID, customerID uuid.UUID, fn wallet.ApplyFunc) (*wallet.Transaction, error) {
	m.called++
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	return m.txn, nil
}

func (m *mockWalletStore) SetStatus(ctx context.Context, orgID, walletID uuid.UUID, status wallet.Status) error {
	return nil
}

func (m *mockWalletStore) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*wallet.Wallet, error) {
	return nil, nil
}

func (m *mockWalletStore) Transactions(ctx context.Context, orgID, walletID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	return nil, nil
}

func (m *mockWalletStore) Stats(ctx context.Context, orgID uuid.UUID, now time.Time) (*wallet.Stats, error) {
	return &wallet.Stats{}, nil
}

func TestInstrumentedWalletStore_Success(t *testing.T) {
	metrics := NewMetricsCollector()
	inner := &mockWalletStore{
		txn: &wallet.Transaction{
			ID:     uuid.New(),
			Type:   wallet.TypePayment,
			Amount: decimal.RequireFromString("12.50"),
		},
	}

	s := NewInstrumentedWalletStore(inner, metrics, nil, nil)
	txn, err := s.Apply(context.Background(), uuid.New(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Type != wallet.TypePayment {
		t.Errorf("type = %q, want %q", txn.Type, wallet.TypePayment)
	}
	if inner.called != 1 {
		t.Errorf("inner called %d times, want 1", inner.called)
	}

	count := counterValue(t, metrics.Registry, "omnily_wallet_transactions_total", prometheus.Labels{"type": "payment", "status": "success"})
	if count != 1 {
		t.Errorf("transactions_total = %v, want 1", count)
	}
	amount := counterValue(t, metrics.Registry, "omnily_wallet_transaction_amount_total", prometheus.Labels{"type": "payment", "direction": "debit"})
	if amount != 12.50 {
		t.Errorf("transaction_amount_total = %v, want 12.50", amount)
	}
}

func TestInstrumentedWalletStore_Rejection(t *testing.T) {
	metrics := NewMetricsCollector()
	monitor := NewActivityMonitor(&config.AnomalyConfig{Enabled: true, WindowSeconds: 60, FailureThreshold: 100}, nil)
	inner := &mockWalletStore{
		applyErr: fmt.Errorf("applying payment: %w", wallet.ErrInsufficientBalance),
	}

	customerID := uuid.New()
	s := NewInstrumentedWalletStore(inner, metrics, nil, monitor)
	_, err := s.Apply(context.Background(), uuid.New(), customerID, nil)
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}

	count := counterValue(t, metrics.Registry, "omnily_wallet_rejections_total", prometheus.Labels{"reason": "insufficient_balance"})
	if count != 1 {
		t.Errorf("rejections_total = %v, want 1", count)
	}

	monitor.mu.Lock()
	rejections := monitor.rejections[customerID.String()].sum()
	monitor.mu.Unlock()
	if rejections != 1 {
		t.Errorf("monitor rejections = %v, want 1", rejections)
	}
}

func TestInstrumentedWalletStore_NilMetrics(t *testing.T) {
	inner := &mockWalletStore{
		txn: &wallet.Transaction{Type: wallet.TypeTopUp, Amount: decimal.RequireFromString("5.00")},
	}

	// nil metrics and monitor — should not panic.
	s := NewInstrumentedWalletStore(inner, nil, nil, nil)
	txn, err := s.Apply(context.Background(), uuid.New(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.Type != wallet.TypeTopUp {
		t.Errorf("type = %q, want %q", txn.Type, wallet.TypeTopUp)
	}
}

func TestRejectionReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{wallet.ErrInsufficientBalance, "insufficient_balance"},
		{wallet.ErrWalletNotActive, "wallet_not_active"},
		{wallet.ErrWalletNotFound, "wallet_not_found"},
		{wallet.ErrInvalidAmount, "invalid_amount"},
		{wallet.ErrInvalidType, "invalid_type"},
		{errors.New("boom"), "other"},
	}
	for _, tc := range cases {
		if got := rejectionReason(tc.err); got != tc.want {
			t.Errorf("rejectionReason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

// --- Helpers ---

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			lm := labelMap(metric.GetLabel())
			match := true
			for k, v := range labels {
				if lm[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
