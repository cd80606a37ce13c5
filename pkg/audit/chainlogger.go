package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// LogEntry is a single record in the tamper-evident trail. Each entry's
// hash covers the previous entry's hash, so modifying any record breaks
// every link after it.
type LogEntry struct {
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger builds the hash chain in memory.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
}

// NewChainLogger starts a fresh chain anchored at the zero hash.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
	}
}

// ResumeChainLogger continues an existing chain from its last hash, so a
// restarted process extends the trail instead of forking it.
func ResumeChainLogger(lastHash string) *ChainLogger {
	if lastHash == "" {
		return NewChainLogger()
	}
	return &ChainLogger{previousHash: lastHash}
}

// Append adds a new entry to the chain.
func (c *ChainLogger) Append(payload string) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &LogEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		PreviousHash: c.previousHash,
		Payload:      payload,
	}
	entry.Hash = entryHash(entry.PreviousHash, entry.Timestamp, entry.Payload)

	c.previousHash = entry.Hash
	return entry
}

func entryHash(previousHash, timestamp, payload string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", previousHash, timestamp, payload)))
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks that a slice of entries forms an unbroken chain.
func VerifyChain(entries []*LogEntry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if entryHash(entry.PreviousHash, entry.Timestamp, entry.Payload) != entry.Hash {
			return false
		}
	}
	return true
}
