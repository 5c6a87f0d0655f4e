package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/omnilypro/omnily/internal/wallet"
)

// --- InstrumentedWalletStore ---

// InstrumentedWalletStore wraps a wallet.Store with metrics, tracing, and
// activity monitoring. Reads pass through untouched; Apply is where the
// money moves, so that is where everything is recorded.
type InstrumentedWalletStore struct {
	inner   wallet.Store
	metrics *MetricsCollector
	tracer  trace.Tracer
	monitor *ActivityMonitor
}

// NewInstrumentedWalletStore wraps a wallet store with observability.
func NewInstrumentedWalletStore(inner wallet.Store, metrics *MetricsCollector, ts *TracerSetup, monitor *ActivityMonitor) *InstrumentedWalletStore {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedWalletStore{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		monitor: monitor,
	}
}

func (s *InstrumentedWalletStore) Ensure(ctx context.Context, orgID, customerID uuid.UUID) (*wallet.Wallet, error) {
	return s.inner.Ensure(ctx, orgID, customerID)
}

func (s *InstrumentedWalletStore) ByCustomer(ctx context.Context, orgID, customerID uuid.UUID) (*wallet.Wallet, error) {
	return s.inner.ByCustomer(ctx, orgID, customerID)
}

func (s *InstrumentedWalletStore) Apply(ctx context.Context, orgID, customerID uuid.UUID, fn wallet.ApplyFunc) (*wallet.Transaction, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "wallet.apply",
			trace.WithAttributes(
				attribute.String("wallet.customer_id", customerID.String()),
			))
		defer span.End()
	}

	start := time.Now()
	txn, err := s.inner.Apply(ctx, orgID, customerID, fn)
	duration := time.Since(start).Seconds()

	if err != nil {
		if s.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if s.metrics != nil {
			s.metrics.WalletRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		}
		if s.monitor != nil && isDebitRejection(err) {
			s.monitor.RecordRejection(customerID.String())
		}
		return nil, err
	}

	typ := string(txn.Type)
	amount, _ := txn.Amount.Float64()

	if s.tracer != nil {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(
			attribute.String("wallet.transaction_type", typ),
			attribute.Float64("wallet.amount", amount),
		)
	}

	if s.metrics != nil {
		direction := "credit"
		if txn.Type.IsDebit() {
			direction = "debit"
		}
		s.metrics.WalletTransactionsTotal.WithLabelValues(typ, "success").Inc()
		s.metrics.WalletTransactionAmount.WithLabelValues(typ, direction).Add(amount)
		s.metrics.WalletTransactionDuration.WithLabelValues(typ).Observe(duration)
	}

	if s.monitor != nil && txn.Type.IsDebit() {
		s.monitor.RecordDebit(customerID.String(), amount)
	}

	return txn, nil
}

func (s *InstrumentedWalletStore) SetStatus(ctx context.Context, orgID, walletID uuid.UUID, status wallet.Status) error {
	return s.inner.SetStatus(ctx, orgID, walletID, status)
}

func (s *InstrumentedWalletStore) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*wallet.Wallet, error) {
	return s.inner.List(ctx, orgID, limit, offset)
}

func (s *InstrumentedWalletStore) Transactions(ctx context.Context, orgID, walletID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	return s.inner.Transactions(ctx, orgID, walletID, limit, offset)
}

func (s *InstrumentedWalletStore) Stats(ctx context.Context, orgID uuid.UUID, now time.Time) (*wallet.Stats, error) {
	if s.tracer == nil {
		return s.inner.Stats(ctx, orgID, now)
	}
	ctx, span := s.tracer.Start(ctx, "wallet.stats")
	defer span.End()
	return s.inner.Stats(ctx, orgID, now)
}

// rejectionReason maps a wallet error to a low-cardinality metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, wallet.ErrWalletNotActive):
		return "wallet_not_active"
	case errors.Is(err, wallet.ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, wallet.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, wallet.ErrInvalidType):
		return "invalid_type"
	default:
		return "other"
	}
}

// isDebitRejection reports whether the error indicates a spend attempt the
// ledger refused, the signal the activity monitor cares about.
func isDebitRejection(err error) bool {
	return errors.Is(err, wallet.ErrInsufficientBalance) ||
		errors.Is(err, wallet.ErrWalletNotActive)
}

// --- Compile-time interface checks ---

var _ wallet.Store = (*InstrumentedWalletStore)(nil)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}
