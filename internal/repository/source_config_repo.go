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

type sourceConfigRepo struct {
	db *pgxpool.Pool
}

func NewSourceConfigRepo(db *pgxpool.Pool) SourceConfigRepository {
	return &sourceConfigRepo{db: db}
}

func (r *sourceConfigRepo) UpsertSourceConfig(ctx context.Context, cfg *domain.SourceConfig) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO source_configs (key, settings, updated_by, updated_at, approval_id)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (key) DO UPDATE
		SET settings = EXCLUDED.settings,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = EXCLUDED.updated_at,
		    approval_id = EXCLUDED.approval_id
		RETURNING updated_at`,
		cfg.Key, []byte(cfg.Settings), cfg.UpdatedBy, cfg.ApprovalID,
	).Scan(&cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert source config %s: %w", cfg.Key, translatePgError(err))
	}
	return nil
}

func scanSourceConfig(row pgx.Row) (*domain.SourceConfig, error) {
	var (
		c        domain.SourceConfig
		settings []byte
	)
	if err := row.Scan(&c.Key, &settings, &c.UpdatedBy, &c.UpdatedAt, &c.ApprovalID); err != nil {
		return nil, err
	}
	c.Settings = settings
	return &c, nil
}

func (r *sourceConfigRepo) GetSourceConfig(ctx context.Context, key string) (*domain.SourceConfig, error) {
	c, err := scanSourceConfig(r.db.QueryRow(ctx, `
		SELECT key, settings, updated_by, updated_at, approval_id
		FROM source_configs WHERE key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrSourceNotFound
		}
		return nil, fmt.Errorf("failed to get source config %s: %w", key, err)
	}
	return c, nil
}

func (r *sourceConfigRepo) ListSourceConfigs(ctx context.Context) ([]*domain.SourceConfig, error) {
	rows, err := r.db.Query(ctx, `
		SELECT key, settings, updated_by, updated_at, approval_id
		FROM source_configs ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source configs: %w", err)
	}
	defer rows.Close()

	var out []*domain.SourceConfig
	for rows.Next() {
		c, err := scanSourceConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
