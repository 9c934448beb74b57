package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATEs raised by the ledger triggers.
const (
	CodeImmutable        = "ML001"
	CodeUnbalanced       = "ML002"
	CodePostedLineChange = "ML003"
	CodeStatusTransition = "ML004"
	CodeAccountFrozen    = "ML005"

	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
)

// ParsePGErrorCode returns the SQLSTATE of a Postgres error, or "unknown".
func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrNotFound       = errors.New("not found")
)

// Ledger
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrEntryNotFound     = errors.New("journal entry not found")
	ErrApprovalNotFound  = errors.New("approval not found")
	ErrPriceNotFound     = errors.New("no canonical price on or before date")
	ErrDuplicateAccount  = errors.New("account code already exists")
	ErrSourceNotFound    = errors.New("source config not found")
	ErrAuditUnavailable  = errors.New("audit trail unavailable")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidTransition = errors.New("invalid entry status transition")
)
