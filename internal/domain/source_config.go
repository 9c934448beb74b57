package domain

import (
	"encoding/json"
	"time"
)

// ResourceEgressAllowlist is the source-config key holding the outbound
// domain allowlist.
const ResourceEgressAllowlist = "egress_allowlist"

// SourceConfig is the persisted configuration of one price data source.
// Writes require an active approval for Key.
type SourceConfig struct {
	Key        string          `json:"key" db:"key"`
	Settings   json.RawMessage `json:"settings" db:"settings"`
	UpdatedBy  string          `json:"updated_by" db:"updated_by"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
	ApprovalID *int64          `json:"approval_id,omitempty" db:"approval_id"`
}

// AllowlistSettings is the settings shape stored under egress_allowlist.
type AllowlistSettings struct {
	Domains []string `json:"domains"`
}
