package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// AuditEntry is the input to the audit trail.
type AuditEntry struct {
	RequestID string
	Actor     string
	Action    ActionKind
	Resource  string
	Result    PolicyResult
	Payload   any
}

// AuditRecord is one append-only row of the audit log. PrevHash and Hash
// link each record to its predecessor.
type AuditRecord struct {
	ID          int64        `json:"id" db:"id"`
	RequestID   string       `json:"request_id" db:"request_id"`
	Actor       string       `json:"actor" db:"actor"`
	Action      ActionKind   `json:"action" db:"action"`
	Resource    string       `json:"resource" db:"resource"`
	Result      PolicyResult `json:"result" db:"result"`
	PayloadHash string       `json:"payload_hash" db:"payload_hash"`
	PrevHash    string       `json:"prev_hash" db:"prev_hash"`
	Hash        string       `json:"hash" db:"hash"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// ComputeHash returns the chain hash over the record's content and PrevHash.
func (r *AuditRecord) ComputeHash() string {
	fields := []string{
		r.RequestID,
		r.Actor,
		string(r.Action),
		r.Resource,
		string(r.Result),
		r.PayloadHash,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.PrevHash,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

// Seal links the record to prevHash and sets its hash.
func (r *AuditRecord) Seal(prevHash string) {
	r.PrevHash = prevHash
	r.Hash = r.ComputeHash()
}

// ChainReport is the outcome of walking the audit chain.
type ChainReport struct {
	Records  int    `json:"records"`
	Valid    bool   `json:"valid"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Problem  string `json:"problem,omitempty"`
}
