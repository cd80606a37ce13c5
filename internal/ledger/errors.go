package ledger

import "errors"

// Error taxonomy for treasury operations. Every failure aborts the whole
// enclosing operation; callers branch on the kind because each one implies
// a different remedy, so no generic catch-all exists.
var (
	// ErrInsufficientBalance means the requested amount exceeds the true
	// economic balance (reserve plus vault position at the live price).
	// Recoverable: retry with a smaller amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnauthorized means the caller lacks the required custody proof or
	// admin membership. Never retried automatically.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrVaultUnavailable means the external yield vault rejected or could
	// not serve the call.
	ErrVaultUnavailable = errors.New("vault unavailable")

	// ErrInvalidFrequency means an unknown pay frequency value was supplied.
	ErrInvalidFrequency = errors.New("invalid pay frequency")

	// ErrInvalidRebalance means a rebalance supplied both or neither of the
	// withdraw/deposit amounts.
	ErrInvalidRebalance = errors.New("invalid rebalance request")

	// ErrClockSkew means accrual was asked to run over a negative interval.
	ErrClockSkew = errors.New("clock skew: now precedes last payment")

	// ErrAlreadyExists guards duplicate initialization of a record.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrNotFound means the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
)
