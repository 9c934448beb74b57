package domain

import "time"

// Approval is a time-bounded, revocable human authorization for one
// resource key.
type Approval struct {
	ID          int64      `json:"id" db:"id"`
	ResourceKey string     `json:"resource_key" db:"resource_key"`
	ApprovedBy  string     `json:"approved_by" db:"approved_by"`
	Signature   *string    `json:"signature,omitempty" db:"signature"`
	ApprovedAt  time.Time  `json:"approved_at" db:"approved_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Revoked     bool       `json:"revoked" db:"revoked"`
	RevokedBy   *string    `json:"revoked_by,omitempty" db:"revoked_by"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// IsActive reports whether the approval is unrevoked and unexpired at now.
func (a *Approval) IsActive(now time.Time) bool {
	if a.Revoked {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// ApprovalCreate represents data needed to record an approval
type ApprovalCreate struct {
	ResourceKey string
	ApprovedBy  string
	Signature   *string
	ApprovedAt  time.Time
	ExpiresAt   *time.Time
}
