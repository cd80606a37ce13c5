package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the closed set of supported pay periods. Unknown values are
// rejected rather than falling through to a default, since silently
// applying a wrong period rate would go undetected.
type Frequency string

const (
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

// PeriodSeconds returns the accrual window length for the frequency.
func (f Frequency) PeriodSeconds() (int64, error) {
	switch f {
	case Weekly:
		return 7 * 86400, nil
	case Monthly:
		return 30 * 86400, nil
	default:
		return 0, fmt.Errorf("frequency %q: %w", string(f), ErrInvalidFrequency)
	}
}

// Accrue computes the salary earned over [lastPayment, now) at a linear
// per-second rate, rounded to the nearest unit. It is a pure function of
// elapsed time: calling it again for the same window yields the same
// amount, so any party may trigger accrual at any moment without a
// scheduler. The caller advances lastPayment together with the
// disbursement so both commit as one atomic step.
func Accrue(rate int64, freq Frequency, lastPayment, now time.Time) (int64, error) {
	period, err := freq.PeriodSeconds()
	if err != nil {
		return 0, err
	}

	elapsed := now.Unix() - lastPayment.Unix()
	if elapsed < 0 {
		return 0, fmt.Errorf("elapsed %ds: %w", elapsed, ErrClockSkew)
	}

	owed := decimal.NewFromInt(elapsed).
		Mul(decimal.NewFromInt(rate)).
		Div(decimal.NewFromInt(period)).
		Round(0).
		IntPart()
	return owed, nil
}
