package ledger

import "github.com/example/payroll-treasury/internal/custody"

func custodyProofStub() custody.Proof {
	d, err := custody.NewDeriver([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		panic(err)
	}
	_, proof := d.Derive([]byte("holding-wallet"), "employee-1")
	return proof
}
