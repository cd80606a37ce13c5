package treasury

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
)

// MemoryStore is an arena-style in-memory store used by tests and the
// development profile. RunAtomic serializes operations under one mutex
// and commits a staged copy of the state, so a failing operation leaves
// no trace.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	allocations map[custody.Address]*ledger.Allocation
	orgs        map[string]*Organisation
	contracts   map[string]*Contract
	balances    map[custody.Address]int64
	shares      map[custody.Address]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		allocations: map[custody.Address]*ledger.Allocation{},
		orgs:        map[string]*Organisation{},
		contracts:   map[string]*Contract{},
		balances:    map[custody.Address]int64{},
		shares:      map[custody.Address]int64{},
	}}
}

func (s *MemoryStore) RunAtomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&memTx{state: &staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (st memState) clone() memState {
	out := memState{
		allocations: make(map[custody.Address]*ledger.Allocation, len(st.allocations)),
		orgs:        make(map[string]*Organisation, len(st.orgs)),
		contracts:   make(map[string]*Contract, len(st.contracts)),
		balances:    make(map[custody.Address]int64, len(st.balances)),
		shares:      make(map[custody.Address]int64, len(st.shares)),
	}
	for k, v := range st.allocations {
		out.allocations[k] = cloneAllocation(v)
	}
	for k, v := range st.orgs {
		out.orgs[k] = cloneOrganisation(v)
	}
	for k, v := range st.contracts {
		out.contracts[k] = v.Clone()
	}
	for k, v := range st.balances {
		out.balances[k] = v
	}
	for k, v := range st.shares {
		out.shares[k] = v
	}
	return out
}

type memTx struct {
	state *memState
}

func contractKey(orgID, employeeID string) string {
	return orgID + "/" + employeeID
}

func (t *memTx) Allocation(owner custody.Address) (*ledger.Allocation, error) {
	a, ok := t.state.allocations[owner]
	if !ok {
		return nil, fmt.Errorf("allocation %s: %w", owner, ledger.ErrNotFound)
	}
	if err := a.CheckInvariant(); err != nil {
		return nil, err
	}
	return cloneAllocation(a), nil
}

func (t *memTx) PutAllocation(a *ledger.Allocation) error {
	if err := a.CheckInvariant(); err != nil {
		return err
	}
	t.state.allocations[a.Owner] = cloneAllocation(a)
	return nil
}

func (t *memTx) Organisation(id string) (*Organisation, error) {
	o, ok := t.state.orgs[id]
	if !ok {
		return nil, fmt.Errorf("organisation %s: %w", id, ledger.ErrNotFound)
	}
	return cloneOrganisation(o), nil
}

func (t *memTx) PutOrganisation(o *Organisation) error {
	if len(o.Admins) == 0 {
		return fmt.Errorf("organisation %s must have at least one admin", o.ID)
	}
	t.state.orgs[o.ID] = cloneOrganisation(o)
	return nil
}

func (t *memTx) Contract(orgID, employeeID string) (*Contract, error) {
	c, ok := t.state.contracts[contractKey(orgID, employeeID)]
	if !ok {
		return nil, fmt.Errorf("contract %s/%s: %w", orgID, employeeID, ledger.ErrNotFound)
	}
	return c.Clone(), nil
}

func (t *memTx) PutContract(c *Contract) error {
	if prev, ok := t.state.contracts[contractKey(c.OrgID, c.EmployeeID)]; ok {
		if c.LastPayment.Before(prev.LastPayment) {
			return fmt.Errorf("contract %s/%s: last payment must not move backwards", c.OrgID, c.EmployeeID)
		}
	}
	t.state.contracts[contractKey(c.OrgID, c.EmployeeID)] = c.Clone()
	return nil
}

func (t *memTx) Balance(addr custody.Address) (int64, error) {
	return t.state.balances[addr], nil
}

func (t *memTx) MoveTokens(from, to custody.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("move amount %d must be positive", amount)
	}
	if t.state.balances[from] < amount {
		return fmt.Errorf("move %d from %s with balance %d: %w",
			amount, from, t.state.balances[from], ledger.ErrInsufficientBalance)
	}
	t.state.balances[from] -= amount
	t.state.balances[to] += amount
	return nil
}

func (t *memTx) Credit(addr custody.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount %d must be positive", amount)
	}
	t.state.balances[addr] += amount
	return nil
}

func (t *memTx) Shares(holder custody.Address) (int64, error) {
	return t.state.shares[holder], nil
}

func (t *memTx) AddShares(holder custody.Address, delta int64) error {
	next := t.state.shares[holder] + delta
	if next < 0 {
		return fmt.Errorf("share position of %s cannot go negative: %w", holder, ledger.ErrInsufficientBalance)
	}
	t.state.shares[holder] = next
	return nil
}
