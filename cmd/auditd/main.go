// Command auditd verifies the integrity of a persisted audit trail. It
// exits non-zero when the hash chain is broken, making it usable from
// cron or a deployment health check.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/example/payroll-treasury/pkg/audit"
)

func main() {
	path := flag.String("sink", "", "path to the audit sink database")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: auditd -sink /path/to/audit.db")
		os.Exit(2)
	}

	sink, err := audit.OpenSink(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open sink: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	entries, err := sink.Entries()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load entries: %v\n", err)
		os.Exit(1)
	}

	if !audit.VerifyChain(entries) {
		fmt.Fprintf(os.Stderr, "audit chain BROKEN (%d entries)\n", len(entries))
		os.Exit(1)
	}
	fmt.Printf("audit chain intact: %d entries\n", len(entries))
}
