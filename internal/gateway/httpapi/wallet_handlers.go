package httpapi

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"
	"github.com/shopspring/decimal"

	"github.com/omnilypro/omnily/internal/audit"
	"github.com/omnilypro/omnily/internal/permissions"
	"github.com/omnilypro/omnily/internal/wallet"
)

// WalletResponse is the JSON shape for a wallet.
type WalletResponse struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Balance    string `json:"balance"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// TransactionResponse is the JSON shape for one ledger entry.
type TransactionResponse struct {
	ID            string `json:"id"`
	WalletID      string `json:"wallet_id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	Description   string `json:"description,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
	PerformedBy   string `json:"performed_by,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toWalletResponse(w *wallet.Wallet) WalletResponse {
	return WalletResponse{
		ID:         w.ID.String(),
		CustomerID: w.CustomerID.String(),
		Balance:    w.Balance.StringFixed(2),
		Status:     string(w.Status),
		CreatedAt:  w.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  w.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionResponse(t *wallet.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:            t.ID.String(),
		WalletID:      t.WalletID.String(),
		Type:          string(t.Type),
		Amount:        t.Amount.StringFixed(2),
		BalanceBefore: t.BalanceBefore.StringFixed(2),
		BalanceAfter:  t.BalanceAfter.StringFixed(2),
		Description:   t.Description,
		ReferenceID:   t.ReferenceID,
		ReferenceType: t.ReferenceType,
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
	if t.PerformedBy != uuid.Nil {
		resp.PerformedBy = t.PerformedBy.String()
	}
	return resp
}

// parseAmount validates and parses a money amount from a request body.
func parseAmount(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

// pagination reads limit/offset query parameters with sane bounds.
func pagination(c *okapi.Context) (limit, offset int) {
	q := c.Request().URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// customerByExternalID resolves an external customer ID to the internal
// record. When create is true a missing customer is registered on the fly,
// matching the top-up behavior of creating wallets on first contact.
func (g *Gateway) customerByExternalID(c *okapi.Context, externalID string, create bool) (uuid.UUID, error, bool) {
	if create {
		cust, err := g.customers.Ensure(c.Context(), g.orgID, externalID)
		if err != nil {
			return uuid.Nil, c.AbortInternalServerError("resolving customer"), false
		}
		return cust.ID, nil, true
	}
	cust, err := g.customers.ByExternalID(c.Context(), g.orgID, externalID)
	if err != nil {
		return uuid.Nil, walletError(c, err), false
	}
	return cust.ID, nil, true
}

func (g *Gateway) recordAudit(c *okapi.Context, staffID uuid.UUID, action, target string, details map[string]any, opErr error) {
	event := audit.Event{
		CorrelationID: newCorrelationID(),
		StaffID:       staffID.String(),
		Action:        action,
		TargetID:      target,
		Details:       details,
		Result:        "success",
	}
	if opErr != nil {
		event.Result = "failure"
		event.Error = opErr.Error()
	}
	g.audit.Record(c.Context(), event)
}

// --- Mutations ---

// TopUpRequest is the JSON body for POST /v1/wallets/topup.
type TopUpRequest struct {
	CustomerID string `json:"customer_id"`
	Amount     string `json:"amount"`
	Method     string `json:"method"` // e.g. "cash", "card"
}

func (g *Gateway) handleTopUp(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyAddPoints); !ok {
		return resp
	}

	var req TopUpRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.CustomerID == "" {
		return c.AbortBadRequest("customer_id is required")
	}
	if req.Method == "" {
		return c.AbortBadRequest("method is required")
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		return c.AbortBadRequest("amount must be a positive decimal")
	}

	customerID, resp, ok := g.customerByExternalID(c, req.CustomerID, true)
	if !ok {
		return resp
	}

	txn, err := g.ledger.TopUp(c.Context(), customerID, amount, req.Method, staffID)
	g.recordAudit(c, staffID, "wallet.topup", req.CustomerID, map[string]any{
		"amount": amount.StringFixed(2),
		"method": req.Method,
	}, err)
	if err != nil {
		return walletError(c, err)
	}

	g.statsCache.InvalidateStats(c.Context(), g.orgID)
	return c.OK(toTransactionResponse(txn))
}

// PaymentRequest is the JSON body for POST /v1/wallets/pay.
type PaymentRequest struct {
	CustomerID  string `json:"customer_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"` // POS sale identifier.
}

func (g *Gateway) handlePayment(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyProcessSales); !ok {
		return resp
	}

	var req PaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.CustomerID == "" {
		return c.AbortBadRequest("customer_id is required")
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		return c.AbortBadRequest("amount must be a positive decimal")
	}

	customerID, resp, ok := g.customerByExternalID(c, req.CustomerID, false)
	if !ok {
		return resp
	}

	txn, err := g.ledger.ProcessPayment(c.Context(), customerID, amount, req.Description, req.ReferenceID, staffID)
	g.recordAudit(c, staffID, "wallet.payment", req.CustomerID, map[string]any{
		"amount":       amount.StringFixed(2),
		"reference_id": req.ReferenceID,
	}, err)
	if err != nil {
		return walletError(c, err)
	}

	g.statsCache.InvalidateStats(c.Context(), g.orgID)
	return c.OK(toTransactionResponse(txn))
}

// RefundRequest is the JSON body for POST /v1/wallets/refund.
type RefundRequest struct {
	CustomerID  string `json:"customer_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"` // Original sale identifier.
}

func (g *Gateway) handleRefund(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyRefund); !ok {
		return resp
	}

	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.CustomerID == "" {
		return c.AbortBadRequest("customer_id is required")
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		return c.AbortBadRequest("amount must be a positive decimal")
	}

	customerID, resp, ok := g.customerByExternalID(c, req.CustomerID, false)
	if !ok {
		return resp
	}

	txn, err := g.ledger.Refund(c.Context(), customerID, amount, req.Description, req.ReferenceID, staffID)
	g.recordAudit(c, staffID, "wallet.refund", req.CustomerID, map[string]any{
		"amount":       amount.StringFixed(2),
		"reference_id": req.ReferenceID,
	}, err)
	if err != nil {
		return walletError(c, err)
	}

	g.statsCache.InvalidateStats(c.Context(), g.orgID)
	return c.OK(toTransactionResponse(txn))
}

// RedeemGiftCertificateRequest is the JSON body for POST /v1/wallets/redeem-gift-certificate.
type RedeemGiftCertificateRequest struct {
	CustomerID    string `json:"customer_id"`
	Amount        string `json:"amount"`
	CertificateID string `json:"certificate_id"`
}

func (g *Gateway) handleRedeemGiftCertificate(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyRedeemRewards); !ok {
		return resp
	}

	var req RedeemGiftCertificateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.CustomerID == "" {
		return c.AbortBadRequest("customer_id is required")
	}
	if req.CertificateID == "" {
		return c.AbortBadRequest("certificate_id is required")
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		return c.AbortBadRequest("amount must be a positive decimal")
	}

	customerID, resp, ok := g.customerByExternalID(c, req.CustomerID, false)
	if !ok {
		return resp
	}

	txn, err := g.ledger.RedeemGiftCertificate(c.Context(), customerID, amount, req.CertificateID, staffID)
	g.recordAudit(c, staffID, "wallet.gift_certificate_redeem", req.CustomerID, map[string]any{
		"amount":         amount.StringFixed(2),
		"certificate_id": req.CertificateID,
	}, err)
	if err != nil {
		return walletError(c, err)
	}

	g.statsCache.InvalidateStats(c.Context(), g.orgID)
	return c.OK(toTransactionResponse(txn))
}

// WalletStatusRequest is the JSON body for POST /v1/wallets/{customer_id}/status.
type WalletStatusRequest struct {
	Status string `json:"status"` // "active", "suspended", or "closed".
}

func (g *Gateway) handleWalletStatus(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyEditCustomers); !ok {
		return resp
	}

	var req WalletStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}

	externalID := c.Param("customer_id")
	customerID, resp, ok := g.customerByExternalID(c, externalID, false)
	if !ok {
		return resp
	}

	w, err := g.ledger.Balance(c.Context(), customerID)
	if err != nil {
		return walletError(c, err)
	}

	err = g.ledger.SetStatus(c.Context(), w.ID, wallet.Status(req.Status))
	g.recordAudit(c, staffID, "wallet.status", externalID, map[string]any{
		"status": req.Status,
	}, err)
	if err != nil {
		return walletError(c, err)
	}

	w, err = g.ledger.Balance(c.Context(), customerID)
	if err != nil {
		return walletError(c, err)
	}

	g.statsCache.InvalidateStats(c.Context(), g.orgID)
	return c.OK(toWalletResponse(w))
}

// --- Reads ---

func (g *Gateway) handleWalletList(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyViewCustomers); !ok {
		return resp
	}

	limit, offset := pagination(c)
	wallets, err := g.ledger.List(c.Context(), limit, offset)
	if err != nil {
		return c.AbortInternalServerError("listing wallets")
	}

	resp := make([]WalletResponse, len(wallets))
	for i, w := range wallets {
		resp[i] = toWalletResponse(w)
	}
	return c.OK(resp)
}

func (g *Gateway) handleWalletBalance(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyViewTransactions); !ok {
		return resp
	}

	customerID, resp, ok := g.customerByExternalID(c, c.Param("customer_id"), false)
	if !ok {
		return resp
	}

	w, err := g.ledger.Balance(c.Context(), customerID)
	if err != nil {
		return walletError(c, err)
	}
	return c.OK(toWalletResponse(w))
}

func (g *Gateway) handleWalletTransactions(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyViewTransactions); !ok {
		return resp
	}

	customerID, resp, ok := g.customerByExternalID(c, c.Param("customer_id"), false)
	if !ok {
		return resp
	}

	w, err := g.ledger.Balance(c.Context(), customerID)
	if err != nil {
		return walletError(c, err)
	}

	limit, offset := pagination(c)
	txns, err := g.ledger.Transactions(c.Context(), w.ID, limit, offset)
	if err != nil {
		return c.AbortInternalServerError("listing transactions")
	}

	out := make([]TransactionResponse, len(txns))
	for i, t := range txns {
		out[i] = toTransactionResponse(t)
	}
	return c.OK(out)
}

func (g *Gateway) handleWalletStats(c *okapi.Context) error {
	staffID, role, ok := g.staffFrom(c)
	if !ok {
		return c.AbortUnauthorized("Unauthorized")
	}
	if ok, resp := g.authorize(c, staffID, role, permissions.KeyViewAnalytics); !ok {
		return resp
	}

	if stats, hit := g.statsCache.GetStats(c.Context(), g.orgID); hit {
		g.config.Metrics.RecordStatsCache(true)
		return c.OK(stats)
	}
	g.config.Metrics.RecordStatsCache(false)

	stats, err := g.ledger.Stats(c.Context())
	if err != nil {
		g.logger.Error("computing wallet stats", slog.String("error", err.Error()))
		return c.AbortInternalServerError("computing stats")
	}
	g.statsCache.SetStats(c.Context(), g.orgID, stats)
	return c.OK(stats)
}
