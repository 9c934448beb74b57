package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// translatePgError maps trigger SQLSTATEs to domain errors. Other errors are
// returned unchanged.
func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case xerrors.CodeImmutable:
		resource := pgErr.TableName
		if resource == "" {
			resource = "audit_log"
		}
		return &domain.ImmutabilityViolation{Resource: resource, Op: opFromMessage(pgErr.Message)}
	case xerrors.CodePostedLineChange:
		return &domain.ImmutabilityViolation{Resource: "journal_lines", Op: "line mutation on non-draft entry"}
	case xerrors.CodeUnbalanced:
		return unbalancedFromDetail(pgErr.Detail)
	case xerrors.CodeStatusTransition:
		return fmt.Errorf("%w: %s", xerrors.ErrInvalidTransition, pgErr.Message)
	case xerrors.CodeAccountFrozen:
		return &domain.ImmutabilityViolation{Resource: "accounts", Op: pgErr.Message}
	case xerrors.CodeUniqueViolation:
		if pgErr.TableName == "accounts" {
			return fmt.Errorf("%w: %s", xerrors.ErrDuplicateAccount, pgErr.ConstraintName)
		}
	case xerrors.CodeCheckViolation:
		return &domain.ValidationError{Field: pgErr.ConstraintName, Msg: "violates check constraint"}
	}
	return err
}

// unbalancedFromDetail parses "entry_id=1 debit_total=10 credit_total=9".
func unbalancedFromDetail(detail string) error {
	out := &domain.UnbalancedEntryError{DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}
	for _, field := range strings.Fields(detail) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "entry_id":
			fmt.Sscan(v, &out.EntryID)
		case "debit_total":
			if d, err := decimal.NewFromString(v); err == nil {
				out.DebitTotal = d
			}
		case "credit_total":
			if d, err := decimal.NewFromString(v); err == nil {
				out.CreditTotal = d
			}
		}
	}
	return out
}

func opFromMessage(msg string) string {
	if op, _, ok := strings.Cut(msg, " "); ok {
		return op
	}
	return msg
}
