package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/payroll-treasury/internal/auth"
	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
	"github.com/example/payroll-treasury/internal/security"
	"github.com/example/payroll-treasury/internal/treasury"
	"github.com/example/payroll-treasury/pkg/audit"
)

type Auditor interface {
	Append(payload string) *audit.LogEntry
}

// Treasury is the slice of the treasury service the handlers need.
type Treasury interface {
	SetupOrganisation(ctx context.Context, id string, admins []custody.Address) (*treasury.Organisation, error)
	OrganisationOf(ctx context.Context, orgID string) (*treasury.Organisation, int64, error)
	DepositToTreasury(ctx context.Context, orgID string, amount int64) error
	PayEmployee(ctx context.Context, orgID string, admin, owner custody.Address, amount int64) error
	AdminWithdraw(ctx context.Context, orgID string, admin, to custody.Address, amount int64) error

	SetupContract(ctx context.Context, orgID string, admin custody.Address, employeeID string, payee custody.Address, rate int64, freq ledger.Frequency) (*treasury.Contract, error)
	ContractOf(ctx context.Context, orgID, employeeID string) (*treasury.Contract, error)
	AccrueAndPay(ctx context.Context, orgID, employeeID string) (int64, error)
	SetContractActive(ctx context.Context, orgID string, admin custody.Address, employeeID string, active bool) error

	SetupAllocation(ctx context.Context, owner custody.Address) (*ledger.Allocation, error)
	AllocationOf(ctx context.Context, owner custody.Address) (*ledger.Allocation, error)
	HoldingsOf(ctx context.Context, owner custody.Address) (treasury.Holdings, error)
	Withdraw(ctx context.Context, owner, destination custody.Address, amount int64) (treasury.WithdrawalReceipt, error)
	Rebalance(ctx context.Context, owner custody.Address, req ledger.RebalanceRequest) error
}

type Dependencies struct {
	Logger       *slog.Logger
	OAuth        *auth.OAuthServer
	JWTValidator *auth.JWTValidator

	Treasury Treasury

	Auditor      Auditor
	RateLimiter  *security.TokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	validators := map[string]*security.JSONSchemaValidator{}
	for name, schema := range map[string]string{
		"createOrg":      createOrgSchema,
		"deposit":        depositSchema,
		"pay":            payEmployeeSchema,
		"adminWithdraw":  adminWithdrawSchema,
		"createContract": createContractSchema,
		"setActive":      setContractActiveSchema,
		"createAlloc":    createAllocationSchema,
		"withdraw":       withdrawSchema,
		"rebalance":      rebalanceSchema,
	} {
		v, err := security.NewJSONSchemaValidator(schema)
		if err != nil {
			return nil, err
		}
		validators[name] = v
	}

	onAuthError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		security.WriteJSONError(w, r, status, code)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimit(deps.RateLimiter, rateLimitKeyByIP))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if deps.OAuth != nil {
		r.Post("/oauth/token", deps.OAuth.TokenHandler)
		r.Get("/oauth/jwks.json", deps.OAuth.JWKSHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTValidator, onAuthError))

		r.Route("/orgs", func(r chi.Router) {
			r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryWrite), validators["createOrg"].Middleware).
				Post("/", handleCreateOrg(deps))
			r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryRead)).
				Get("/{org_id}", handleGetOrg(deps))
			r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryWrite), validators["deposit"].Middleware).
				Post("/{org_id}/deposit", handleDeposit(deps))
			r.With(auth.RequireScopes(onAuthError, auth.ScopePayrollWrite), validators["pay"].Middleware).
				Post("/{org_id}/pay", handlePayEmployee(deps))
			r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryWrite), validators["adminWithdraw"].Middleware).
				Post("/{org_id}/withdraw", handleAdminWithdraw(deps))

			r.Route("/{org_id}/contracts", func(r chi.Router) {
				r.With(auth.RequireScopes(onAuthError, auth.ScopePayrollWrite), validators["createContract"].Middleware).
					Post("/", handleCreateContract(deps))
				r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryRead)).
					Get("/{employee_id}", handleGetContract(deps))
				r.With(auth.RequireScopes(onAuthError, auth.ScopePayrollWrite)).
					Post("/{employee_id}/accrue", handleAccrue(deps))
				r.With(auth.RequireScopes(onAuthError, auth.ScopePayrollWrite), validators["setActive"].Middleware).
					Post("/{employee_id}/active", handleSetContractActive(deps))
			})
		})

		r.Route("/allocations", func(r chi.Router) {
			r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryWrite), validators["createAlloc"].Middleware).
				Post("/", handleCreateAllocation(deps))
			r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryRead)).
				Get("/{owner}", handleGetAllocation(deps))
			r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryWrite), validators["withdraw"].Middleware).
				Post("/{owner}/withdraw", handleWithdraw(deps))
			r.With(auth.RequireScopes(onAuthError, auth.ScopeTreasuryWrite), validators["rebalance"].Middleware).
				Post("/{owner}/rebalance", handleRebalance(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
