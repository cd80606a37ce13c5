package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
	"github.com/example/payroll-treasury/internal/security"
)

type createOrgRequest struct {
	OrgID  string   `json:"org_id"`
	Admins []string `json:"admins"`
}

type orgResponse struct {
	CorrelationID   string   `json:"correlation_id"`
	OrgID           string   `json:"org_id"`
	Admins          []string `json:"admins"`
	TreasuryAddress string   `json:"treasury_address"`
	TreasuryBalance *int64   `json:"treasury_balance,omitempty"`
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

type payEmployeeRequest struct {
	Admin    string `json:"admin"`
	Employee string `json:"employee"`
	Amount   int64  `json:"amount"`
}

type adminWithdrawRequest struct {
	Admin  string `json:"admin"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type actionResponse struct {
	CorrelationID string `json:"correlation_id"`
	Success       bool   `json:"success"`
}

type createContractRequest struct {
	Admin      string `json:"admin"`
	EmployeeID string `json:"employee_id"`
	Payee      string `json:"payee"`
	Rate       int64  `json:"rate"`
	Frequency  string `json:"frequency"`
}

type contractResponse struct {
	CorrelationID string    `json:"correlation_id"`
	OrgID         string    `json:"org_id"`
	EmployeeID    string    `json:"employee_id"`
	Payee         string    `json:"payee"`
	Rate          int64     `json:"rate"`
	Frequency     string    `json:"frequency"`
	LastPayment   time.Time `json:"last_payment"`
	StreamActive  bool      `json:"stream_active"`
}

type accrueResponse struct {
	CorrelationID string `json:"correlation_id"`
	AmountPaid    int64  `json:"amount_paid"`
}

type setContractActiveRequest struct {
	Admin  string `json:"admin"`
	Active bool   `json:"active"`
}

type createAllocationRequest struct {
	Owner string `json:"owner"`
}

type allocationResponse struct {
	CorrelationID  string `json:"correlation_id"`
	Owner          string `json:"owner"`
	ReservePercent uint   `json:"reserve_percent"`
	VaultPercent   uint   `json:"vault_percent"`
	ReserveAddress string `json:"reserve_address"`
	Reserve        *int64 `json:"reserve_balance,omitempty"`
	VaultShares    *int64 `json:"vault_shares,omitempty"`
	VaultValue     *int64 `json:"vault_value,omitempty"`
	Total          *int64 `json:"total,omitempty"`
}

type withdrawRequest struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

type withdrawResponse struct {
	CorrelationID  string `json:"correlation_id"`
	FromReserve    int64  `json:"from_reserve"`
	FromVault      int64  `json:"from_vault"`
	SharesRedeemed int64  `json:"shares_redeemed"`
	VaultProceeds  int64  `json:"vault_proceeds"`
	Paid           int64  `json:"paid"`
}

type rebalanceRequest struct {
	VaultPercent   uint  `json:"vault_percent"`
	WithdrawAmount int64 `json:"withdraw_amount"`
	DepositAmount  int64 `json:"deposit_amount"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func handleCreateOrg(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrgRequest
		if !decode(w, r, &req) {
			return
		}

		admins := make([]custody.Address, 0, len(req.Admins))
		for _, a := range req.Admins {
			admins = append(admins, custody.Address(a))
		}

		org, err := deps.Treasury.SetupOrganisation(r.Context(), req.OrgID, admins)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, orgResponse{
			CorrelationID:   security.CorrelationIDFromContext(r.Context()),
			OrgID:           org.ID,
			Admins:          req.Admins,
			TreasuryAddress: string(org.TreasuryAddress),
		})
	}
}

func handleGetOrg(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, balance, err := deps.Treasury.OrganisationOf(r.Context(), chi.URLParam(r, "org_id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		admins := make([]string, 0, len(org.Admins))
		for _, a := range org.Admins {
			admins = append(admins, string(a))
		}

		writeJSON(w, r, http.StatusOK, orgResponse{
			CorrelationID:   security.CorrelationIDFromContext(r.Context()),
			OrgID:           org.ID,
			Admins:          admins,
			TreasuryAddress: string(org.TreasuryAddress),
			TreasuryBalance: &balance,
		})
	}
}

func handleDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req depositRequest
		if !decode(w, r, &req) {
			return
		}

		if err := deps.Treasury.DepositToTreasury(r.Context(), chi.URLParam(r, "org_id"), req.Amount); err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
		})
	}
}

func handlePayEmployee(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payEmployeeRequest
		if !decode(w, r, &req) {
			return
		}

		err := deps.Treasury.PayEmployee(r.Context(), chi.URLParam(r, "org_id"),
			custody.Address(req.Admin), custody.Address(req.Employee), req.Amount)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
		})
	}
}

func handleAdminWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminWithdrawRequest
		if !decode(w, r, &req) {
			return
		}

		err := deps.Treasury.AdminWithdraw(r.Context(), chi.URLParam(r, "org_id"),
			custody.Address(req.Admin), custody.Address(req.To), req.Amount)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
		})
	}
}

func handleCreateContract(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createContractRequest
		if !decode(w, r, &req) {
			return
		}

		contract, err := deps.Treasury.SetupContract(r.Context(), chi.URLParam(r, "org_id"),
			custody.Address(req.Admin), req.EmployeeID, custody.Address(req.Payee),
			req.Rate, ledger.Frequency(req.Frequency))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, contractResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			OrgID:         contract.OrgID,
			EmployeeID:    contract.EmployeeID,
			Payee:         string(contract.Payee),
			Rate:          contract.Rate,
			Frequency:     string(contract.Frequency),
			LastPayment:   contract.LastPayment,
			StreamActive:  contract.StreamActive,
		})
	}
}

func handleGetContract(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contract, err := deps.Treasury.ContractOf(r.Context(),
			chi.URLParam(r, "org_id"), chi.URLParam(r, "employee_id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, contractResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			OrgID:         contract.OrgID,
			EmployeeID:    contract.EmployeeID,
			Payee:         string(contract.Payee),
			Rate:          contract.Rate,
			Frequency:     string(contract.Frequency),
			LastPayment:   contract.LastPayment,
			StreamActive:  contract.StreamActive,
		})
	}
}

func handleAccrue(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paid, err := deps.Treasury.AccrueAndPay(r.Context(),
			chi.URLParam(r, "org_id"), chi.URLParam(r, "employee_id"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, accrueResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			AmountPaid:    paid,
		})
	}
}

func handleSetContractActive(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setContractActiveRequest
		if !decode(w, r, &req) {
			return
		}

		err := deps.Treasury.SetContractActive(r.Context(), chi.URLParam(r, "org_id"),
			custody.Address(req.Admin), chi.URLParam(r, "employee_id"), req.Active)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
		})
	}
}

func handleCreateAllocation(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAllocationRequest
		if !decode(w, r, &req) {
			return
		}

		alloc, err := deps.Treasury.SetupAllocation(r.Context(), custody.Address(req.Owner))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, allocationResponse{
			CorrelationID:  security.CorrelationIDFromContext(r.Context()),
			Owner:          string(alloc.Owner),
			ReservePercent: alloc.ReservePercent,
			VaultPercent:   alloc.VaultPercent,
			ReserveAddress: string(alloc.ReserveAddress),
		})
	}
}

func handleGetAllocation(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := custody.Address(chi.URLParam(r, "owner"))

		alloc, err := deps.Treasury.AllocationOf(r.Context(), owner)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		holdings, err := deps.Treasury.HoldingsOf(r.Context(), owner)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, allocationResponse{
			CorrelationID:  security.CorrelationIDFromContext(r.Context()),
			Owner:          string(alloc.Owner),
			ReservePercent: alloc.ReservePercent,
			VaultPercent:   alloc.VaultPercent,
			ReserveAddress: string(alloc.ReserveAddress),
			Reserve:        &holdings.Reserve,
			VaultShares:    &holdings.VaultShares,
			VaultValue:     &holdings.VaultValue,
			Total:          &holdings.Total,
		})
	}
}

func handleWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req withdrawRequest
		if !decode(w, r, &req) {
			return
		}

		receipt, err := deps.Treasury.Withdraw(r.Context(),
			custody.Address(chi.URLParam(r, "owner")), custody.Address(req.Destination), req.Amount)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, withdrawResponse{
			CorrelationID:  security.CorrelationIDFromContext(r.Context()),
			FromReserve:    receipt.Plan.FromReserve,
			FromVault:      receipt.Plan.FromVault,
			SharesRedeemed: receipt.Plan.SharesToRedeem,
			VaultProceeds:  receipt.VaultProceeds,
			Paid:           receipt.Paid,
		})
	}
}

func handleRebalance(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rebalanceRequest
		if !decode(w, r, &req) {
			return
		}

		err := deps.Treasury.Rebalance(r.Context(), custody.Address(chi.URLParam(r, "owner")),
			ledger.RebalanceRequest{
				NewVaultPercent: req.VaultPercent,
				WithdrawAmount:  req.WithdrawAmount,
				DepositAmount:   req.DepositAmount,
			})
		if err != nil {
			writeDomainError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, actionResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
		})
	}
}
