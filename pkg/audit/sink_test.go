package audit

import (
	"path/filepath"
	"testing"
)

func TestSinkPersistsAndResumes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	sink, err := OpenSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	sink.Append("op=pay org=acme")
	sink.Append("op=withdraw owner=emp-1")
	if err := sink.Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	// Reopen and extend: the new entry must link onto the stored chain.
	sink, err = OpenSink(path)
	if err != nil {
		t.Fatalf("reopen sink: %v", err)
	}
	defer sink.Close()
	sink.Append("op=rebalance owner=emp-1")

	entries, err := sink.Entries()
	if err != nil {
		t.Fatalf("load entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !VerifyChain(entries) {
		t.Error("persisted chain failed verification")
	}
}
