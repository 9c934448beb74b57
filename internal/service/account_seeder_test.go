package service

import (
	"context"
	"testing"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/repository/memory"
	"github.com/lelandsequel/metalledger/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeedAccountsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := usecase.NewLedgerUsecase(store, store, store, nil, zap.NewNop())
	seeder := NewAccountSeeder(ledger, zap.NewNop())

	require.NoError(t, seeder.SeedAccounts(ctx))
	require.NoError(t, seeder.SeedAccounts(ctx))

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, len(DefaultChart))

	byCode := map[string]*domain.Account{}
	for _, a := range accounts {
		byCode[a.Code] = a
	}
	assert.Equal(t, "Metal Inventory", byCode["1100"].Name)
	assert.Equal(t, domain.AccountTypeExpense, byCode["5100"].Type)
	assert.True(t, byCode["1000"].Active)
}
