package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type accountRepo struct {
	db *pgxpool.Pool
}

// NewAccountRepo creates a new account repository
func NewAccountRepo(db *pgxpool.Pool) AccountRepository {
	return &accountRepo{db: db}
}

const accountColumns = `id, code, name, type, currency, active, created_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Currency, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepo) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accountRepo) GetAccountByCode(ctx context.Context, code string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", code, err)
	}
	return a, nil
}

// UpsertAccount inserts the account or returns the existing row untouched.
func (r *accountRepo) UpsertAccount(ctx context.Context, in *domain.AccountCreate) (*domain.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (code, name, type, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING`,
		in.Code, in.Name, in.Type, in.Currency,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account %s: %w", in.Code, translatePgError(err))
	}
	return r.GetAccountByCode(ctx, in.Code)
}

func (r *accountRepo) SetAccountActive(ctx context.Context, code string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET active = $2 WHERE code = $1`, code, active)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", code, translatePgError(err))
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}
	return nil
}
