package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus is the posting lifecycle state of a journal entry.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoid   EntryStatus = "VOID"
)

// CreatedByHuman is the only role token allowed to write the ledger.
const CreatedByHuman = "HUMAN"

// AmountScale is the number of decimal places journal amounts are stored with.
const AmountScale = 4

// JournalEntry is a transaction header owning an ordered set of lines.
type JournalEntry struct {
	ID        int64          `json:"id" db:"id"`
	EntryDate time.Time      `json:"entry_date" db:"entry_date"`
	Memo      string         `json:"memo" db:"memo"`
	CreatedBy string         `json:"created_by" db:"created_by"`
	Status    EntryStatus    `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	PostedAt  *time.Time     `json:"posted_at,omitempty" db:"posted_at"`
	VoidedAt  *time.Time     `json:"voided_at,omitempty" db:"voided_at"`
	VoidedBy  *string        `json:"voided_by,omitempty" db:"voided_by"`
	Lines     []*JournalLine `json:"lines"`
}

// JournalLine is a single debit or credit against one account.
type JournalLine struct {
	ID          int64           `json:"id" db:"id"`
	EntryID     int64           `json:"entry_id" db:"entry_id"`
	LineNo      int             `json:"line_no" db:"line_no"`
	AccountID   int64           `json:"account_id" db:"account_id"`
	AccountCode string          `json:"account_code" db:"account_code"`
	Debit       decimal.Decimal `json:"debit" db:"debit"`
	Credit      decimal.Decimal `json:"credit" db:"credit"`
	Memo        string          `json:"memo,omitempty" db:"memo"`
}

// LineCreate is one requested line of a new entry, addressed by account code.
type LineCreate struct {
	Account string          `json:"account"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Memo    string          `json:"memo,omitempty"`
}

// EntryCreate represents data needed to create and post a journal entry
type EntryCreate struct {
	EntryDate time.Time    `json:"entry_date"`
	Memo      string       `json:"memo"`
	CreatedBy string       `json:"created_by"`
	Lines     []LineCreate `json:"lines"`
}

// Validate checks line shape. Account existence and the balance are checked
// by the store inside the posting transaction.
func (e *EntryCreate) Validate() error {
	if len(e.Lines) == 0 {
		return &ValidationError{Field: "lines", Msg: "entry must have at least one line"}
	}
	for i, l := range e.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if l.Account == "" {
			return &ValidationError{Field: field, Msg: "account is required"}
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return &ValidationError{Field: field, Msg: "amounts must not be negative"}
		}
		if l.Debit.IsPositive() && l.Credit.IsPositive() {
			return &ValidationError{Field: field, Msg: "line cannot carry both a debit and a credit"}
		}
		if l.Debit.IsZero() && l.Credit.IsZero() {
			return &ValidationError{Field: field, Msg: "line must carry a debit or a credit"}
		}
		if !fitsScale(l.Debit) || !fitsScale(l.Credit) {
			return &ValidationError{Field: field, Msg: fmt.Sprintf("amounts allow at most %d decimal places", AmountScale)}
		}
	}
	return nil
}

// fitsScale reports whether d is stored without rounding.
func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

// Totals returns the debit and credit sums of the requested lines.
func (e *EntryCreate) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// SumLines returns the debit and credit totals of stored lines.
func SumLines(lines []*JournalLine) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// TrialBalanceRow aggregates POSTED activity for one account.
type TrialBalanceRow struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	AccountType AccountType     `json:"account_type"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// NormalBalance signs net activity by the account type's normal side.
func NormalBalance(t AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}
