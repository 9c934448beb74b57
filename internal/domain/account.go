package domain

import "time"

// AccountType is the accounting classification of an account.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Account is a chart-of-accounts row. Only Active may change once a journal
// line references it.
type Account struct {
	ID        int64       `json:"id" db:"id"`
	Code      string      `json:"code" db:"code"`
	Name      string      `json:"name" db:"name"`
	Type      AccountType `json:"type" db:"type"`
	Currency  string      `json:"currency" db:"currency"`
	Active    bool        `json:"active" db:"active"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// AccountCreate represents data needed to register an account
type AccountCreate struct {
	Code     string      `json:"code"`
	Name     string      `json:"name"`
	Type     AccountType `json:"type"`
	Currency string      `json:"currency"`
}

func (a *AccountCreate) Validate() error {
	if a.Code == "" {
		return &ValidationError{Field: "code", Msg: "is required"}
	}
	if a.Name == "" {
		return &ValidationError{Field: "name", Msg: "is required"}
	}
	if !a.Type.Valid() {
		return &ValidationError{Field: "type", Msg: "unknown account type " + string(a.Type)}
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}
	return nil
}
