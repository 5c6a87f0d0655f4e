// Package httpapi implements the HTTP API gateway for Omnily.
//
// Security:
//   - API key authentication on every request (constant-time comparison)
//   - Every key maps to a staff member; their role and overrides gate each route
//   - Request body size limits (default 1 MB)
//   - Per-key rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/omnilypro/omnily/internal/audit"
	"github.com/omnilypro/omnily/internal/cache"
	"github.com/omnilypro/omnily/internal/observability"
	"github.com/omnilypro/omnily/internal/permissions"
	"github.com/omnilypro/omnily/internal/ratelimit"
	"github.com/omnilypro/omnily/internal/team"
	"github.com/omnilypro/omnily/internal/wallet"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → staff email mapping. Keys from config/env.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz endpoint.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config     Config
	ledger     *wallet.Ledger
	customers  wallet.CustomerStore
	resolver   *permissions.Resolver
	team       *team.Service
	audit      *audit.Recorder
	statsCache *cache.Cache
	limiter    *ratelimit.Limiter
	orgID      uuid.UUID
	logger     *slog.Logger
	server     *http.Server

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway.
func NewGateway(
	cfg Config,
	ledger *wallet.Ledger,
	customers wallet.CustomerStore,
	resolver *permissions.Resolver,
	teamSvc *team.Service,
	recorder *audit.Recorder,
	rl *ratelimit.Limiter,
	orgID uuid.UUID,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		config:    cfg,
		ledger:    ledger,
		customers: customers,
		resolver:  resolver,
		team:      teamSvc,
		audit:     recorder,
		limiter:   rl,
		orgID:     orgID,
		logger:    logger,
		okapi:     okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithStatsCache attaches the Redis stats cache to the gateway.
func (g *Gateway) WithStatsCache(c *cache.Cache) *Gateway {
	g.statsCache = c
	return g
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Omnily",
			Version: "v0.0.1",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	// Wallet endpoints.
	g.group.Post("/wallets/topup", g.handleTopUp,
		okapi.DocSummary("Credit a customer wallet via a payment method"),
		okapi.DocTags("Wallets"),
		okapi.DocRequestBody(TopUpRequest{}),
		okapi.DocResponse(TransactionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Post("/wallets/pay", g.handlePayment,
		okapi.DocSummary("Debit a customer wallet for a sale"),
		okapi.DocTags("Wallets"),
		okapi.DocRequestBody(PaymentRequest{}),
		okapi.DocResponse(TransactionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Post("/wallets/refund", g.handleRefund,
		okapi.DocSummary("Credit a previous charge back to a wallet"),
		okapi.DocTags("Wallets"),
		okapi.DocRequestBody(RefundRequest{}),
		okapi.DocResponse(TransactionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/wallets/redeem-gift-certificate", g.handleRedeemGiftCertificate,
		okapi.DocSummary("Load a gift certificate's value onto a wallet"),
		okapi.DocTags("Wallets"),
		okapi.DocRequestBody(RedeemGiftCertificateRequest{}),
		okapi.DocResponse(TransactionResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Get("/wallets", g.handleWalletList,
		okapi.DocSummary("List wallets, newest first"),
		okapi.DocTags("Wallets"),
		okapi.DocResponse([]WalletResponse{}),
	)
	g.group.Get("/wallets/stats", g.handleWalletStats,
		okapi.DocSummary("Aggregate wallet statistics"),
		okapi.DocTags("Wallets"),
		okapi.DocResponse(wallet.Stats{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Get("/wallets/{customer_id}", g.handleWalletBalance,
		okapi.DocSummary("Get a customer's wallet"),
		okapi.DocTags("Wallets"),
		okapi.DocPathParam("customer_id", "string", "External customer ID"),
		okapi.DocResponse(WalletResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/wallets/{customer_id}/transactions", g.handleWalletTransactions,
		okapi.DocSummary("List a wallet's ledger entries, newest first"),
		okapi.DocTags("Wallets"),
		okapi.DocPathParam("customer_id", "string", "External customer ID"),
		okapi.DocResponse([]TransactionResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/wallets/{customer_id}/status", g.handleWalletStatus,
		okapi.DocSummary("Change a wallet's lifecycle status"),
		okapi.DocTags("Wallets"),
		okapi.DocPathParam("customer_id", "string", "External customer ID"),
		okapi.DocRequestBody(WalletStatusRequest{}),
		okapi.DocResponse(WalletResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Staff and permission endpoints.
	g.group.Post("/staff", g.handleStaffCreate,
		okapi.DocSummary("Add a staff member to the roster"),
		okapi.DocTags("Staff"),
		okapi.DocRequestBody(StaffCreateRequest{}),
		okapi.DocResponse(http.StatusCreated, StaffResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusConflict, ErrorBody{}),
	)
	g.group.Get("/staff", g.handleStaffList,
		okapi.DocSummary("List the staff roster"),
		okapi.DocTags("Staff"),
		okapi.DocResponse([]StaffResponse{}),
	)
	g.group.Get("/staff/{id}", g.handleStaffGet,
		okapi.DocSummary("Get a staff member by ID"),
		okapi.DocTags("Staff"),
		okapi.DocPathParam("id", "string", "Staff ID (UUID)"),
		okapi.DocResponse(StaffResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/staff/{id}/role", g.handleStaffChangeRole,
		okapi.DocSummary("Move a staff member to a different role"),
		okapi.DocTags("Staff"),
		okapi.DocPathParam("id", "string", "Staff ID (UUID)"),
		okapi.DocRequestBody(StaffRoleRequest{}),
		okapi.DocResponse(StaffResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Post("/staff/{id}/deactivate", g.handleStaffDeactivate,
		okapi.DocSummary("Deactivate a staff member and clear their overrides"),
		okapi.DocTags("Staff"),
		okapi.DocPathParam("id", "string", "Staff ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/staff/{id}/reactivate", g.handleStaffReactivate,
		okapi.DocSummary("Reactivate a staff member"),
		okapi.DocTags("Staff"),
		okapi.DocPathParam("id", "string", "Staff ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/staff/{id}/permissions", g.handlePermissionSnapshot,
		okapi.DocSummary("Resolve a staff member's effective permissions"),
		okapi.DocTags("Permissions"),
		okapi.DocPathParam("id", "string", "Staff ID (UUID)"),
		okapi.DocResponse(permissions.Snapshot{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Post("/staff/{id}/permissions/{key}/toggle", g.handleOverrideToggle,
		okapi.DocSummary("Cycle a per-staff permission override"),
		okapi.DocTags("Permissions"),
		okapi.DocPathParam("id", "string", "Staff ID (UUID)"),
		okapi.DocPathParam("key", "string", "Permission key"),
		okapi.DocResponse(permissions.Snapshot{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Post("/staff/{id}/permissions/clear", g.handleOverridesClear,
		okapi.DocSummary("Remove all overrides so the role defaults apply"),
		okapi.DocTags("Permissions"),
		okapi.DocPathParam("id", "string", "Staff ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
	)
	g.group.Post("/roles/{role}/permissions/{key}/toggle", g.handleRoleDefaultToggle,
		okapi.DocSummary("Flip a role's default for one permission"),
		okapi.DocTags("Permissions"),
		okapi.DocPathParam("role", "string", "Role name"),
		okapi.DocPathParam("key", "string", "Permission key"),
		okapi.DocResponse(RoleDefaultsResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/permissions/groups", g.handlePermissionGroups,
		okapi.DocSummary("List permission keys by display group"),
		okapi.DocTags("Permissions"),
		okapi.DocResponse([]permissions.Group{}),
	)

	// Audit trail.
	g.group.Get("/audit", g.handleAuditQuery,
		okapi.DocSummary("Query the audit trail, newest first"),
		okapi.DocTags("Audit"),
		okapi.DocResponse([]audit.Event{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key, resolves the mapped staff member, and
// stashes their identity on the request context. Deactivated staff keep
// their keys but lose access immediately.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		email := ""
		for key, mapped := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				email = mapped
			}
		}
		if email == "" {
			return c.AbortUnauthorized("invalid API key")
		}

		member, err := g.team.ByEmail(c.Context(), email)
		if err != nil {
			if errors.Is(err, team.ErrStaffNotFound) {
				return c.AbortUnauthorized("invalid API key")
			}
			return c.AbortInternalServerError("authentication failed")
		}
		if !member.Active {
			return c.AbortUnauthorized("account deactivated")
		}

		if g.limiter != nil {
			if err := g.limiter.Allow(member.ID.String()); err != nil {
				return c.AbortTooManyRequests("rate limit exceeded")
			}
		}

		c.Set("staffID", member.ID.String())
		c.Set("staffRole", string(member.Role))
		return next(c)
	}
}

// staffFrom recovers the authenticated staff identity set by authenticate.
func (g *Gateway) staffFrom(c *okapi.Context) (uuid.UUID, permissions.Role, bool) {
	id, err := uuid.Parse(c.GetString("staffID"))
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, permissions.Role(c.GetString("staffRole")), true
}

// authorize runs a permission check for the authenticated staff member.
// On denial it writes the 403 response and returns (false, response error).
func (g *Gateway) authorize(c *okapi.Context, staffID uuid.UUID, role permissions.Role, key permissions.Key) (bool, error) {
	err := g.resolver.Check(c.Context(), role, staffID, key)
	g.config.Metrics.RecordPermissionCheck(string(key), err == nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, permissions.ErrPermissionDenied) {
		return false, c.JSON(http.StatusForbidden, okapi.M{"error": "permission denied"})
	}
	g.logger.Error("permission check failed",
		slog.String("staff_id", staffID.String()),
		slog.String("key", string(key)),
		slog.String("error", err.Error()),
	)
	return false, c.AbortInternalServerError("permission check failed")
}

// --- Helpers ---

// walletError maps ledger errors to HTTP responses.
func walletError(c *okapi.Context, err error) error {
	switch {
	case errors.Is(err, wallet.ErrWalletNotFound), errors.Is(err, wallet.ErrCustomerNotFound):
		return c.JSON(http.StatusNotFound, okapi.M{"error": "wallet not found"})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return c.JSON(http.StatusConflict, okapi.M{"error": "insufficient balance"})
	case errors.Is(err, wallet.ErrWalletNotActive):
		return c.JSON(http.StatusConflict, okapi.M{"error": "wallet not active"})
	case errors.Is(err, wallet.ErrInvalidAmount):
		return c.AbortBadRequest("amount must be positive")
	case errors.Is(err, wallet.ErrInvalidType), errors.Is(err, wallet.ErrInvalidStatus):
		return c.AbortBadRequest(err.Error())
	default:
		return c.AbortInternalServerError("wallet operation failed")
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
