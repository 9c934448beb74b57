package service

import (
	"context"
	"fmt"

	"github.com/lelandsequel/metalledger/internal/domain"

	"go.uber.org/zap"
)

// DefaultChart is the scrap-metal chart of accounts seeded at startup.
var DefaultChart = []domain.AccountCreate{
	{Code: "1000", Name: "Cash", Type: domain.AccountTypeAsset, Currency: "USD"},
	{Code: "1100", Name: "Metal Inventory", Type: domain.AccountTypeAsset, Currency: "USD"},
	{Code: "1200", Name: "Accounts Receivable", Type: domain.AccountTypeAsset, Currency: "USD"},
	{Code: "2000", Name: "Accounts Payable", Type: domain.AccountTypeLiability, Currency: "USD"},
	{Code: "3000", Name: "Owner Equity", Type: domain.AccountTypeEquity, Currency: "USD"},
	{Code: "4000", Name: "Scrap Sales", Type: domain.AccountTypeRevenue, Currency: "USD"},
	{Code: "5000", Name: "Cost of Metal Sold", Type: domain.AccountTypeExpense, Currency: "USD"},
	{Code: "5100", Name: "Inventory Revaluation", Type: domain.AccountTypeExpense, Currency: "USD"},
}

// AccountEnsurer upserts chart-of-accounts rows.
type AccountEnsurer interface {
	EnsureAccounts(ctx context.Context, accounts []domain.AccountCreate) error
}

// AccountSeeder makes sure the default chart exists. Upserts are idempotent,
// so it is safe on every start.
type AccountSeeder struct {
	accounts AccountEnsurer
	chart    []domain.AccountCreate
	logger   *zap.Logger
}

func NewAccountSeeder(accounts AccountEnsurer, logger *zap.Logger) *AccountSeeder {
	return &AccountSeeder{accounts: accounts, chart: DefaultChart, logger: logger}
}

func (s *AccountSeeder) SeedAccounts(ctx context.Context) error {
	chart := make([]domain.AccountCreate, len(s.chart))
	copy(chart, s.chart)

	if err := s.accounts.EnsureAccounts(ctx, chart); err != nil {
		return fmt.Errorf("failed to seed chart of accounts: %w", err)
	}
	s.logger.Info("chart of accounts seeded", zap.Int("accounts", len(chart)))
	return nil
}
