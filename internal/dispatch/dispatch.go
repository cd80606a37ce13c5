package dispatch

import (
	"fmt"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
)

// Accounts is the slice of the transactional store the dispatcher needs.
type Accounts interface {
	Balance(addr custody.Address) (int64, error)
	MoveTokens(from, to custody.Address, amount int64) error
}

// Dispatcher executes authorized fund moves on the underlying token
// ledger. It is the single place where custody proofs are checked and
// where balances are re-verified immediately before the move: interleaved
// operations on shared treasury accounts may have changed them since the
// caller's read.
type Dispatcher struct {
	deriver *custody.Deriver
}

func New(deriver *custody.Deriver) *Dispatcher {
	return &Dispatcher{deriver: deriver}
}

// Transfer moves amount from `from` to `to`, authorized by proof. The
// proof must structurally match the source address; caller-supplied
// balance knowledge is never trusted.
func (d *Dispatcher) Transfer(tx Accounts, from, to custody.Address, amount int64, proof custody.Proof) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount %d must be positive", amount)
	}
	if !d.deriver.Verify(proof, from) {
		return fmt.Errorf("proof does not authorize transfers from %s: %w", from, ledger.ErrUnauthorized)
	}

	balance, err := tx.Balance(from)
	if err != nil {
		return fmt.Errorf("read balance of %s: %w", from, err)
	}
	if balance < amount {
		return fmt.Errorf("balance %d below transfer amount %d: %w", balance, amount, ledger.ErrInsufficientBalance)
	}

	if err := tx.MoveTokens(from, to, amount); err != nil {
		return fmt.Errorf("move %d from %s: %w", amount, from, err)
	}
	return nil
}
