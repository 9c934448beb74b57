package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type valuationRepo struct {
	db *pgxpool.Pool
}

func NewValuationRepo(db *pgxpool.Pool) ValuationRepository {
	return &valuationRepo{db: db}
}

// GetValuation marks open inventory of metal at the latest canonical price
// on or before the end of asOf's day.
func (r *valuationRepo) GetValuation(ctx context.Context, metal string, asOf time.Time) (*domain.Valuation, error) {
	metal = strings.ToUpper(metal)
	cutoff := endOfDay(asOf)

	var p domain.CanonicalPrice
	err := r.db.QueryRow(ctx, `
		SELECT metal, price_ts, price, currency, unit, source
		FROM prices_canonical
		WHERE metal = $1 AND price_ts <= $2
		ORDER BY price_ts DESC
		LIMIT 1`, metal, cutoff,
	).Scan(&p.Metal, &p.PriceTS, &p.Price, &p.Currency, &p.Unit, &p.Source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrPriceNotFound
		}
		return nil, fmt.Errorf("failed to load price for %s: %w", metal, err)
	}

	var qty decimal.Decimal
	if err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM inventory_lots
		WHERE metal = $1 AND NOT closed AND acquired_at <= $2`, metal, cutoff,
	).Scan(&qty); err != nil {
		return nil, fmt.Errorf("failed to sum inventory for %s: %w", metal, err)
	}

	return domain.NewValuation(metal, asOf, &p, qty), nil
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
}
