package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/payroll-treasury/internal/ledger"
	"github.com/example/payroll-treasury/internal/security"
	"github.com/example/payroll-treasury/internal/treasury"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps service errors onto the API's status codes. The
// sentinel errors carry the classification; wrapped detail stays in the
// logs.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, ledger.ErrAlreadyExists):
		security.WriteJSONError(w, r, http.StatusConflict, "already_exists")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		security.WriteJSONError(w, r, http.StatusConflict, "insufficient_balance")
	case errors.Is(err, ledger.ErrUnauthorized):
		security.WriteJSONError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, ledger.ErrVaultUnavailable):
		security.WriteJSONError(w, r, http.StatusBadGateway, "vault_unavailable")
	case errors.Is(err, treasury.ErrStreamInactive):
		security.WriteJSONError(w, r, http.StatusConflict, "stream_inactive")
	case errors.Is(err, ledger.ErrInvalidFrequency):
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_frequency")
	case errors.Is(err, ledger.ErrInvalidRebalance):
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_rebalance")
	case errors.Is(err, ledger.ErrClockSkew):
		security.WriteJSONError(w, r, http.StatusBadRequest, "clock_skew")
	default:
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
	}
}
