package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/dispatch"
	"github.com/example/payroll-treasury/internal/ledger"
	"github.com/example/payroll-treasury/internal/vault"
)

// Service orchestrates the treasury operations. Every public method runs
// as one unit of work against the store: either all of its transfers and
// record updates commit, or none do.
type Service struct {
	store      Store
	vault      *vault.Adapter
	dispatcher *dispatch.Dispatcher
	deriver    *custody.Deriver
	log        *slog.Logger

	// SlippageToleranceBps bounds how far a vault redemption may fall
	// below its planned amount before the operation aborts. 10000 accepts
	// any outcome, matching the legacy zero-minimum behaviour.
	SlippageToleranceBps int64

	// Now is swappable for tests.
	Now func() time.Time
}

func NewService(store Store, vaultAdapter *vault.Adapter, deriver *custody.Deriver, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:                store,
		vault:                vaultAdapter,
		dispatcher:           dispatch.New(deriver),
		deriver:              deriver,
		log:                  log,
		SlippageToleranceBps: 10000,
		Now:                  time.Now,
	}
}

// SetupOrganisation registers an org-level pooled treasury with its admin
// set. The treasury address and the streaming authority over it are
// derived, so re-running setup for the same id would always target the
// same account; the existence check keeps the admin set immutable here.
func (s *Service) SetupOrganisation(ctx context.Context, id string, admins []custody.Address) (*Organisation, error) {
	if id == "" {
		return nil, errors.New("organisation id must not be empty")
	}
	if len(admins) == 0 {
		return nil, errors.New("organisation needs at least one admin")
	}

	treasuryAddr, authority := s.deriver.Derive(nsTreasury, custody.Address(id))
	org := &Organisation{
		ID:              id,
		Admins:          append([]custody.Address(nil), admins...),
		TreasuryAddress: treasuryAddr,
		StreamAuthority: authority,
	}

	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		if _, err := tx.Organisation(id); err == nil {
			return fmt.Errorf("organisation %s: %w", id, ledger.ErrAlreadyExists)
		} else if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return tx.PutOrganisation(org)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "organisation created",
		slog.String("org_id", id),
		slog.String("treasury_address", string(treasuryAddr)),
		slog.Int("admins", len(admins)))
	return org, nil
}

// SetupAllocation onboards an employee holding wallet with the default
// reserve/vault split and a derived reserve sub-account.
func (s *Service) SetupAllocation(ctx context.Context, owner custody.Address) (*ledger.Allocation, error) {
	if owner == "" {
		return nil, errors.New("owner address must not be empty")
	}

	reserveAddr, proof := s.deriver.Derive(nsHolding, owner)
	alloc := ledger.NewAllocation(owner, reserveAddr, proof)

	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		if _, err := tx.Allocation(owner); err == nil {
			return fmt.Errorf("allocation %s: %w", owner, ledger.ErrAlreadyExists)
		} else if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return tx.PutAllocation(alloc)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "allocation created",
		slog.String("owner", string(owner)),
		slog.String("reserve_address", string(reserveAddr)))
	return alloc, nil
}

// DepositToTreasury credits an external deposit to the organisation's
// pooled treasury account.
func (s *Service) DepositToTreasury(ctx context.Context, orgID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount %d must be positive", amount)
	}
	return s.store.RunAtomic(ctx, func(tx Tx) error {
		org, err := tx.Organisation(orgID)
		if err != nil {
			return err
		}
		return tx.Credit(org.TreasuryAddress, amount)
	})
}

// PayEmployee moves a one-off payment from the organisation treasury into
// the employee's holding wallet and splits it per the employee's target
// allocation: the vault portion is deposited for yield, the rest stays
// liquid in the reserve. The vault portion floors, so the reserve absorbs
// any division remainder.
func (s *Service) PayEmployee(ctx context.Context, orgID string, admin, owner custody.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("payment amount %d must be positive", amount)
	}

	return s.store.RunAtomic(ctx, func(tx Tx) error {
		org, err := tx.Organisation(orgID)
		if err != nil {
			return err
		}
		if !org.IsAdmin(admin) {
			return fmt.Errorf("%s is not an admin of %s: %w", admin, orgID, ledger.ErrUnauthorized)
		}
		alloc, err := tx.Allocation(owner)
		if err != nil {
			return err
		}

		// All funds land in the reserve first; the vault leg then buys
		// shares out of it.
		if err := s.dispatcher.Transfer(tx, org.TreasuryAddress, alloc.ReserveAddress, amount, org.StreamAuthority); err != nil {
			return err
		}

		_, vaultPct := alloc.Split()
		vaultPart := amount * int64(vaultPct) / 100
		if vaultPart > 0 {
			shares, err := s.vault.Deposit(ctx, tx, alloc.ReserveAddress, owner, vaultPart)
			if err != nil {
				return err
			}
			s.log.InfoContext(ctx, "payment split",
				slog.String("owner", string(owner)),
				slog.Int64("amount", amount),
				slog.Int64("to_vault", vaultPart),
				slog.Int64("shares", shares))
		}
		return nil
	})
}

// WithdrawalReceipt reports where a completed withdrawal's funds came
// from. Paid is the amount actually delivered to the destination, which
// can fall below the request only within the slippage tolerance.
type WithdrawalReceipt struct {
	Plan          ledger.WithdrawalPlan
	VaultProceeds int64
	Paid          int64
}

// Withdraw pays the requested amount to destination, drawing on the
// reserve and the vault proportionally to the owner's target split. The
// share price is fetched fresh inside the unit of work; the vault's own
// redemption flooring decides the vault proceeds.
func (s *Service) Withdraw(ctx context.Context, owner, destination custody.Address, amount int64) (WithdrawalReceipt, error) {
	var receipt WithdrawalReceipt

	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		alloc, err := tx.Allocation(owner)
		if err != nil {
			return err
		}
		reserveBalance, err := tx.Balance(alloc.ReserveAddress)
		if err != nil {
			return err
		}
		shares, err := tx.Shares(owner)
		if err != nil {
			return err
		}
		price, err := s.vault.CurrentPrice(ctx)
		if err != nil {
			return err
		}

		plan, err := alloc.PlanWithdrawal(amount, reserveBalance, shares, price)
		if err != nil {
			return err
		}

		proceeds := int64(0)
		if plan.SharesToRedeem > 0 {
			minOut := plan.FromVault * (10000 - s.SlippageToleranceBps) / 10000
			proceeds, err = s.vault.Withdraw(ctx, tx, owner, alloc.ReserveAddress, plan.SharesToRedeem, minOut)
			if err != nil {
				return err
			}
		}

		paid := plan.FromReserve + proceeds
		if paid > 0 {
			if err := s.dispatcher.Transfer(tx, alloc.ReserveAddress, destination, paid, alloc.Proof); err != nil {
				return err
			}
		}

		receipt = WithdrawalReceipt{Plan: plan, VaultProceeds: proceeds, Paid: paid}
		return nil
	})
	if err != nil {
		return WithdrawalReceipt{}, err
	}

	s.log.InfoContext(ctx, "withdrawal completed",
		slog.String("owner", string(owner)),
		slog.Int64("requested", amount),
		slog.Int64("from_reserve", receipt.Plan.FromReserve),
		slog.Int64("vault_proceeds", receipt.VaultProceeds),
		slog.Int64("paid", receipt.Paid))
	return receipt, nil
}

// Rebalance updates the owner's target split and performs the single
// accompanying fund move between the pools. The percentages change before
// the move so any computation that observes the allocation mid-operation
// already sees the new target.
func (s *Service) Rebalance(ctx context.Context, owner custody.Address, req ledger.RebalanceRequest) error {
	return s.store.RunAtomic(ctx, func(tx Tx) error {
		alloc, err := tx.Allocation(owner)
		if err != nil {
			return err
		}
		if err := alloc.Rebalance(req); err != nil {
			return err
		}
		if err := tx.PutAllocation(alloc); err != nil {
			return err
		}

		switch {
		case req.WithdrawAmount > 0:
			price, err := s.vault.CurrentPrice(ctx)
			if err != nil {
				return err
			}
			if !price.IsPositive() {
				return fmt.Errorf("cannot redeem at price %s: %w", price, ledger.ErrVaultUnavailable)
			}
			shares := decimal.NewFromInt(req.WithdrawAmount).Div(price).Floor().IntPart()
			if shares == 0 {
				return fmt.Errorf("withdraw amount %d converts to zero shares at price %s: %w",
					req.WithdrawAmount, price, ledger.ErrInvalidRebalance)
			}
			minOut := req.WithdrawAmount * (10000 - s.SlippageToleranceBps) / 10000
			if _, err := s.vault.Withdraw(ctx, tx, owner, alloc.ReserveAddress, shares, minOut); err != nil {
				return err
			}
		case req.DepositAmount > 0:
			if _, err := s.vault.Deposit(ctx, tx, alloc.ReserveAddress, owner, req.DepositAmount); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetupContract registers a streaming payroll agreement. Accrual starts
// at the moment of creation.
func (s *Service) SetupContract(ctx context.Context, orgID string, admin custody.Address, employeeID string, payee custody.Address, rate int64, freq ledger.Frequency) (*Contract, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("rate %d must be positive", rate)
	}
	if _, err := freq.PeriodSeconds(); err != nil {
		return nil, err
	}

	contract := &Contract{
		OrgID:        orgID,
		EmployeeID:   employeeID,
		Payee:        payee,
		Rate:         rate,
		Frequency:    freq,
		LastPayment:  s.Now().UTC(),
		StreamActive: true,
	}

	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		org, err := tx.Organisation(orgID)
		if err != nil {
			return err
		}
		if !org.IsAdmin(admin) {
			return fmt.Errorf("%s is not an admin of %s: %w", admin, orgID, ledger.ErrUnauthorized)
		}
		if _, err := tx.Contract(orgID, employeeID); err == nil {
			return fmt.Errorf("contract %s/%s: %w", orgID, employeeID, ledger.ErrAlreadyExists)
		} else if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		return tx.PutContract(contract)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "contract created",
		slog.String("org_id", orgID),
		slog.String("employee_id", employeeID),
		slog.Int64("rate", rate),
		slog.String("frequency", string(freq)))
	return contract, nil
}

// AccrueAndPay settles the salary earned since the contract's last
// payment and advances the accrual window. Anyone may call it; the amount
// is a pure function of elapsed time, so repeated calls never double-pay.
// When nothing has accrued yet the window is left untouched, so no
// sub-unit earnings are ever discarded.
func (s *Service) AccrueAndPay(ctx context.Context, orgID, employeeID string) (int64, error) {
	var owed int64

	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		contract, err := tx.Contract(orgID, employeeID)
		if err != nil {
			return err
		}
		if !contract.StreamActive {
			return fmt.Errorf("contract %s/%s: %w", orgID, employeeID, ErrStreamInactive)
		}
		org, err := tx.Organisation(orgID)
		if err != nil {
			return err
		}

		now := s.Now().UTC()
		owed, err = ledger.Accrue(contract.Rate, contract.Frequency, contract.LastPayment, now)
		if err != nil {
			return err
		}
		if owed == 0 {
			return nil
		}

		if err := s.dispatcher.Transfer(tx, org.TreasuryAddress, contract.Payee, owed, org.StreamAuthority); err != nil {
			return err
		}
		contract.LastPayment = now
		return tx.PutContract(contract)
	})
	if err != nil {
		return 0, err
	}

	if owed > 0 {
		s.log.InfoContext(ctx, "salary paid",
			slog.String("org_id", orgID),
			slog.String("employee_id", employeeID),
			slog.Int64("amount", owed))
	}
	return owed, nil
}

// SetContractActive switches a payroll stream on or off. Reactivation
// resets the accrual window so the inactive stretch is not paid out.
func (s *Service) SetContractActive(ctx context.Context, orgID string, admin custody.Address, employeeID string, active bool) error {
	return s.store.RunAtomic(ctx, func(tx Tx) error {
		org, err := tx.Organisation(orgID)
		if err != nil {
			return err
		}
		if !org.IsAdmin(admin) {
			return fmt.Errorf("%s is not an admin of %s: %w", admin, orgID, ledger.ErrUnauthorized)
		}
		contract, err := tx.Contract(orgID, employeeID)
		if err != nil {
			return err
		}
		if contract.StreamActive == active {
			return nil
		}
		if active {
			contract.LastPayment = s.Now().UTC()
		}
		contract.StreamActive = active
		return tx.PutContract(contract)
	})
}

// AdminWithdraw moves treasury funds to an arbitrary destination. Only
// members of the organisation's admin set may do this; everyone else is
// limited to the streaming payroll path.
func (s *Service) AdminWithdraw(ctx context.Context, orgID string, admin, to custody.Address, amount int64) error {
	return s.store.RunAtomic(ctx, func(tx Tx) error {
		org, err := tx.Organisation(orgID)
		if err != nil {
			return err
		}
		if !org.IsAdmin(admin) {
			return fmt.Errorf("%s is not an admin of %s: %w", admin, orgID, ledger.ErrUnauthorized)
		}
		return s.dispatcher.Transfer(tx, org.TreasuryAddress, to, amount, org.StreamAuthority)
	})
}

// Holdings is the live view of an employee's position. VaultValue and
// Total are computed at the current share price and are never persisted.
type Holdings struct {
	Reserve     int64
	VaultShares int64
	VaultValue  int64
	Total       int64
}

// AllocationOf returns the employee's allocation record.
func (s *Service) AllocationOf(ctx context.Context, owner custody.Address) (*ledger.Allocation, error) {
	var alloc *ledger.Allocation
	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		var err error
		alloc, err = tx.Allocation(owner)
		return err
	})
	return alloc, err
}

// HoldingsOf values the employee's position at the live share price.
func (s *Service) HoldingsOf(ctx context.Context, owner custody.Address) (Holdings, error) {
	var h Holdings
	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		alloc, err := tx.Allocation(owner)
		if err != nil {
			return err
		}
		if h.Reserve, err = tx.Balance(alloc.ReserveAddress); err != nil {
			return err
		}
		if h.VaultShares, err = tx.Shares(owner); err != nil {
			return err
		}
		price, err := s.vault.CurrentPrice(ctx)
		if err != nil {
			return err
		}
		h.VaultValue = price.Mul(decimal.NewFromInt(h.VaultShares)).Floor().IntPart()
		h.Total = h.Reserve + h.VaultValue
		return nil
	})
	if err != nil {
		return Holdings{}, err
	}
	return h, nil
}

// OrganisationOf returns the organisation record together with its live
// treasury balance.
func (s *Service) OrganisationOf(ctx context.Context, orgID string) (*Organisation, int64, error) {
	var (
		org     *Organisation
		balance int64
	)
	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		var err error
		if org, err = tx.Organisation(orgID); err != nil {
			return err
		}
		balance, err = tx.Balance(org.TreasuryAddress)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return org, balance, nil
}

// ContractOf returns the payroll contract record.
func (s *Service) ContractOf(ctx context.Context, orgID, employeeID string) (*Contract, error) {
	var contract *Contract
	err := s.store.RunAtomic(ctx, func(tx Tx) error {
		var err error
		contract, err = tx.Contract(orgID, employeeID)
		return err
	})
	return contract, err
}
