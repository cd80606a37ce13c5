package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
)

// PostgresStore runs each unit of work as a SERIALIZABLE transaction and
// retries on serialization failure, so interleaved operations behave as if
// executed one at a time. Custody proofs are never persisted; records
// store the derivation inputs and the proof is re-derived on load.
type PostgresStore struct {
	Pool    *pgxpool.Pool
	Deriver *custody.Deriver
}

func NewPostgresStore(pool *pgxpool.Pool, deriver *custody.Deriver) *PostgresStore {
	return &PostgresStore{Pool: pool, Deriver: deriver}
}

const schema = `
CREATE TABLE IF NOT EXISTS allocations (
    owner           TEXT PRIMARY KEY,
    reserve_percent INT NOT NULL,
    vault_percent   INT NOT NULL,
    reserve_address TEXT NOT NULL,
    CHECK (reserve_percent + vault_percent = 100)
);

CREATE TABLE IF NOT EXISTS organisations (
    id               TEXT PRIMARY KEY,
    treasury_address TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS organisation_admins (
    org_id TEXT NOT NULL REFERENCES organisations(id),
    admin  TEXT NOT NULL,
    PRIMARY KEY (org_id, admin)
);

CREATE TABLE IF NOT EXISTS contracts (
    org_id        TEXT NOT NULL REFERENCES organisations(id),
    employee_id   TEXT NOT NULL,
    payee         TEXT NOT NULL,
    rate          BIGINT NOT NULL,
    frequency     TEXT NOT NULL,
    last_payment  TIMESTAMPTZ NOT NULL,
    stream_active BOOLEAN NOT NULL,
    PRIMARY KEY (org_id, employee_id)
);

CREATE TABLE IF NOT EXISTS balances (
    address TEXT PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0,
    CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS vault_positions (
    holder TEXT PRIMARY KEY,
    shares BIGINT NOT NULL DEFAULT 0,
    CHECK (shares >= 0)
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) RunAtomic(ctx context.Context, fn func(tx Tx) error) error {
	const maxRetries = 3

	for attempt := 0; ; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "40001" && attempt < maxRetries-1 {
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		return err
	}
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(tx Tx) error) error {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx, deriver: s.Deriver}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	ctx     context.Context
	tx      pgx.Tx
	deriver *custody.Deriver
}

func (t *pgTx) Allocation(owner custody.Address) (*ledger.Allocation, error) {
	var (
		reservePct, vaultPct uint
		reserveAddr          string
	)
	err := t.tx.QueryRow(t.ctx,
		`SELECT reserve_percent, vault_percent, reserve_address FROM allocations WHERE owner = $1`,
		string(owner)).Scan(&reservePct, &vaultPct, &reserveAddr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("allocation %s: %w", owner, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load allocation %s: %w", owner, err)
	}

	// The stored reserve address must match the derivation; a mismatch
	// means the record was tampered with or the custody secret rotated.
	derived, proof := t.deriver.Derive(nsHolding, owner)
	if string(derived) != reserveAddr {
		return nil, fmt.Errorf("allocation %s: reserve address does not match derivation", owner)
	}

	a := &ledger.Allocation{
		Owner:          owner,
		ReservePercent: reservePct,
		VaultPercent:   vaultPct,
		ReserveAddress: derived,
		Proof:          proof,
	}
	if err := a.CheckInvariant(); err != nil {
		return nil, err
	}
	return a, nil
}

func (t *pgTx) PutAllocation(a *ledger.Allocation) error {
	if err := a.CheckInvariant(); err != nil {
		return err
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO allocations (owner, reserve_percent, vault_percent, reserve_address)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (owner) DO UPDATE
		 SET reserve_percent = EXCLUDED.reserve_percent,
		     vault_percent   = EXCLUDED.vault_percent`,
		string(a.Owner), a.ReservePercent, a.VaultPercent, string(a.ReserveAddress))
	if err != nil {
		return fmt.Errorf("store allocation %s: %w", a.Owner, err)
	}
	return nil
}

func (t *pgTx) Organisation(id string) (*Organisation, error) {
	var treasuryAddr string
	err := t.tx.QueryRow(t.ctx,
		`SELECT treasury_address FROM organisations WHERE id = $1`, id).Scan(&treasuryAddr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("organisation %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load organisation %s: %w", id, err)
	}

	derived, authority := t.deriver.Derive(nsTreasury, custody.Address(id))
	if string(derived) != treasuryAddr {
		return nil, fmt.Errorf("organisation %s: treasury address does not match derivation", id)
	}

	rows, err := t.tx.Query(t.ctx,
		`SELECT admin FROM organisation_admins WHERE org_id = $1 ORDER BY admin`, id)
	if err != nil {
		return nil, fmt.Errorf("load admins of %s: %w", id, err)
	}
	defer rows.Close()

	var admins []custody.Address
	for rows.Next() {
		var admin string
		if err := rows.Scan(&admin); err != nil {
			return nil, fmt.Errorf("scan admin of %s: %w", id, err)
		}
		admins = append(admins, custody.Address(admin))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load admins of %s: %w", id, err)
	}

	return &Organisation{
		ID:              id,
		Admins:          admins,
		TreasuryAddress: derived,
		StreamAuthority: authority,
	}, nil
}

func (t *pgTx) PutOrganisation(o *Organisation) error {
	if len(o.Admins) == 0 {
		return fmt.Errorf("organisation %s must have at least one admin", o.ID)
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO organisations (id, treasury_address) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		o.ID, string(o.TreasuryAddress))
	if err != nil {
		return fmt.Errorf("store organisation %s: %w", o.ID, err)
	}
	if _, err := t.tx.Exec(t.ctx,
		`DELETE FROM organisation_admins WHERE org_id = $1`, o.ID); err != nil {
		return fmt.Errorf("reset admins of %s: %w", o.ID, err)
	}
	for _, admin := range o.Admins {
		if _, err := t.tx.Exec(t.ctx,
			`INSERT INTO organisation_admins (org_id, admin) VALUES ($1, $2)`,
			o.ID, string(admin)); err != nil {
			return fmt.Errorf("store admin of %s: %w", o.ID, err)
		}
	}
	return nil
}

func (t *pgTx) Contract(orgID, employeeID string) (*Contract, error) {
	c := &Contract{OrgID: orgID, EmployeeID: employeeID}
	var payee, freq string
	err := t.tx.QueryRow(t.ctx,
		`SELECT payee, rate, frequency, last_payment, stream_active
		 FROM contracts WHERE org_id = $1 AND employee_id = $2`,
		orgID, employeeID).Scan(&payee, &c.Rate, &freq, &c.LastPayment, &c.StreamActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contract %s/%s: %w", orgID, employeeID, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load contract %s/%s: %w", orgID, employeeID, err)
	}
	c.Payee = custody.Address(payee)
	c.Frequency = ledger.Frequency(freq)
	c.LastPayment = c.LastPayment.UTC()
	return c, nil
}

func (t *pgTx) PutContract(c *Contract) error {
	tag, err := t.tx.Exec(t.ctx,
		`INSERT INTO contracts (org_id, employee_id, payee, rate, frequency, last_payment, stream_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (org_id, employee_id) DO UPDATE
		 SET payee         = EXCLUDED.payee,
		     rate          = EXCLUDED.rate,
		     frequency     = EXCLUDED.frequency,
		     last_payment  = EXCLUDED.last_payment,
		     stream_active = EXCLUDED.stream_active
		 WHERE contracts.last_payment <= EXCLUDED.last_payment`,
		c.OrgID, c.EmployeeID, string(c.Payee), c.Rate, string(c.Frequency),
		c.LastPayment, c.StreamActive)
	if err != nil {
		return fmt.Errorf("store contract %s/%s: %w", c.OrgID, c.EmployeeID, err)
	}
	// The upsert's WHERE clause filters out regressions, leaving zero
	// affected rows.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contract %s/%s: last payment must not move backwards", c.OrgID, c.EmployeeID)
	}
	return nil
}

func (t *pgTx) Balance(addr custody.Address) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(t.ctx,
		`SELECT balance FROM balances WHERE address = $1`, string(addr)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load balance of %s: %w", addr, err)
	}
	return balance, nil
}

func (t *pgTx) MoveTokens(from, to custody.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("move amount %d must be positive", amount)
	}
	balance, err := t.Balance(from)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("move %d from %s with balance %d: %w",
			amount, from, balance, ledger.ErrInsufficientBalance)
	}
	if _, err := t.tx.Exec(t.ctx,
		`UPDATE balances SET balance = balance - $2 WHERE address = $1`,
		string(from), amount); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	return t.Credit(to, amount)
}

func (t *pgTx) Credit(addr custody.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount %d must be positive", amount)
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO balances (address, balance) VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET balance = balances.balance + EXCLUDED.balance`,
		string(addr), amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", addr, err)
	}
	return nil
}

func (t *pgTx) Shares(holder custody.Address) (int64, error) {
	var shares int64
	err := t.tx.QueryRow(t.ctx,
		`SELECT shares FROM vault_positions WHERE holder = $1`, string(holder)).Scan(&shares)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load position of %s: %w", holder, err)
	}
	return shares, nil
}

func (t *pgTx) AddShares(holder custody.Address, delta int64) error {
	held, err := t.Shares(holder)
	if err != nil {
		return err
	}
	if held+delta < 0 {
		return fmt.Errorf("share position of %s cannot go negative: %w", holder, ledger.ErrInsufficientBalance)
	}
	_, err = t.tx.Exec(t.ctx,
		`INSERT INTO vault_positions (holder, shares) VALUES ($1, $2)
		 ON CONFLICT (holder) DO UPDATE SET shares = vault_positions.shares + EXCLUDED.shares`,
		string(holder), delta)
	if err != nil {
		return fmt.Errorf("adjust position of %s: %w", holder, err)
	}
	return nil
}
