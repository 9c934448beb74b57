package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AuthorizationError is returned when the actor role may not perform a
// privileged write.
type AuthorizationError struct {
	Actor     string
	Operation string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %q is not authorized to %s", e.Actor, e.Operation)
}

// ValidationError reports a malformed request.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Msg
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Msg)
}

// UnbalancedEntryError is raised when a POSTED entry's debits and credits
// differ.
type UnbalancedEntryError struct {
	EntryID     int64
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("entry %d is unbalanced: debit %s != credit %s",
		e.EntryID, e.DebitTotal.String(), e.CreditTotal.String())
}

// PolicyViolation is a guardrail denial.
type PolicyViolation struct {
	Guardrail string
	Reason    string
	Err       error
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Guardrail, e.Reason)
}

func (e *PolicyViolation) Unwrap() error { return e.Err }

// EgressViolation is raised for outbound calls to domains off the allowlist.
type EgressViolation struct {
	Domain string
}

func (e *EgressViolation) Error() string {
	return fmt.Sprintf("egress to %q is not allowlisted", e.Domain)
}

// ImmutabilityViolation is raised on any update or delete of append-only or
// posted records.
type ImmutabilityViolation struct {
	Resource string
	Op       string
}

func (e *ImmutabilityViolation) Error() string {
	return fmt.Sprintf("%s is immutable: %s rejected", e.Resource, e.Op)
}

// ApprovalExpiredOrMissing means no active approval exists for the resource.
type ApprovalExpiredOrMissing struct {
	ResourceKey string
}

func (e *ApprovalExpiredOrMissing) Error() string {
	return fmt.Sprintf("no active approval for resource %q", e.ResourceKey)
}
