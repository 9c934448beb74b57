package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type approvalRepo struct {
	db *pgxpool.Pool
}

func NewApprovalRepo(db *pgxpool.Pool) ApprovalRepository {
	return &approvalRepo{db: db}
}

const approvalColumns = `id, resource_key, approved_by, signature, approved_at, expires_at, revoked, revoked_by, revoked_at`

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var a domain.Approval
	err := row.Scan(&a.ID, &a.ResourceKey, &a.ApprovedBy, &a.Signature, &a.ApprovedAt,
		&a.ExpiresAt, &a.Revoked, &a.RevokedBy, &a.RevokedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *approvalRepo) CreateApproval(ctx context.Context, in *domain.ApprovalCreate) (*domain.Approval, error) {
	a, err := scanApproval(r.db.QueryRow(ctx, `
		INSERT INTO approvals (resource_key, approved_by, signature, approved_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+approvalColumns,
		in.ResourceKey, in.ApprovedBy, in.Signature, in.ApprovedAt, in.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", translatePgError(err))
	}
	return a, nil
}

func (r *approvalRepo) GetApproval(ctx context.Context, id int64) (*domain.Approval, error) {
	a, err := scanApproval(r.db.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to get approval %d: %w", id, err)
	}
	return a, nil
}

// RevokeApproval is idempotent: revoking a revoked approval keeps the first
// revoker and timestamp.
func (r *approvalRepo) RevokeApproval(ctx context.Context, id int64, revokedBy string, at time.Time) (*domain.Approval, error) {
	a, err := scanApproval(r.db.QueryRow(ctx, `
		UPDATE approvals
		SET revoked = TRUE,
		    revoked_by = COALESCE(revoked_by, $2),
		    revoked_at = COALESCE(revoked_at, $3)
		WHERE id = $1
		RETURNING `+approvalColumns,
		id, revokedBy, at,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to revoke approval %d: %w", id, translatePgError(err))
	}
	return a, nil
}

func (r *approvalRepo) ListApprovals(ctx context.Context, resourceKey string) ([]*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`
	args := []any{}
	if resourceKey != "" {
		query += ` WHERE resource_key = $1`
		args = append(args, resourceKey)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var out []*domain.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActiveApproval returns the most recent active approval for resourceKey at
// now, or ErrApprovalNotFound.
func (r *approvalRepo) ActiveApproval(ctx context.Context, resourceKey string, now time.Time) (*domain.Approval, error) {
	a, err := scanApproval(r.db.QueryRow(ctx, `
		SELECT `+approvalColumns+`
		FROM approvals
		WHERE resource_key = $1
		  AND NOT revoked
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY approved_at DESC, id DESC
		LIMIT 1`, resourceKey, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to look up approval for %s: %w", resourceKey, err)
	}
	return a, nil
}
