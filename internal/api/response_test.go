package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/payroll-treasury/internal/ledger"
	"github.com/example/payroll-treasury/internal/security"
	"github.com/example/payroll-treasury/internal/treasury"
)

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ledger.ErrNotFound, http.StatusNotFound, "not_found"},
		{ledger.ErrAlreadyExists, http.StatusConflict, "already_exists"},
		{ledger.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
		{ledger.ErrUnauthorized, http.StatusForbidden, "forbidden"},
		{ledger.ErrVaultUnavailable, http.StatusBadGateway, "vault_unavailable"},
		{treasury.ErrStreamInactive, http.StatusConflict, "stream_inactive"},
		{ledger.ErrInvalidFrequency, http.StatusBadRequest, "invalid_frequency"},
		{ledger.ErrInvalidRebalance, http.StatusBadRequest, "invalid_rebalance"},
		{ledger.ErrClockSkew, http.StatusBadRequest, "clock_skew"},
		{fmt.Errorf("something else"), http.StatusBadRequest, "invalid_request"},
	}

	for _, tc := range cases {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)

		writeDomainError(rr, req, fmt.Errorf("operation failed: %w", tc.err))

		assert.Equal(t, tc.status, rr.Code, "error %v", tc.err)
		var body security.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body), "error %v", tc.err)
		assert.Equal(t, tc.code, body.Error, "error %v", tc.err)
	}
}
