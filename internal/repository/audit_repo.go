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

// auditChainLock serializes appends so the hash chain stays linear.
const auditChainLock int64 = 0x4d4c_4155_4449_54

type auditRepo struct {
	db *pgxpool.Pool
}

func NewAuditRepo(db *pgxpool.Pool) AuditRepository {
	return &auditRepo{db: db}
}

const auditColumns = `id, request_id, actor, action, resource, result, payload_hash, prev_hash, hash, created_at`

func scanAudit(row pgx.Row) (*domain.AuditRecord, error) {
	var a domain.AuditRecord
	err := row.Scan(&a.ID, &a.RequestID, &a.Actor, &a.Action, &a.Resource, &a.Result,
		&a.PayloadHash, &a.PrevHash, &a.Hash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AppendAudit links rec to the current chain head and inserts it. CreatedAt
// is set here, truncated to the column precision so the hash survives a
// round trip.
func (r *auditRepo) AppendAudit(ctx context.Context, rec *domain.AuditRecord) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, auditChainLock); err != nil {
		return 0, fmt.Errorf("failed to lock audit chain: %w", err)
	}

	var prevHash string
	var lastAt time.Time
	err = tx.QueryRow(ctx, `SELECT hash, created_at FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&prevHash, &lastAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to read audit chain head: %w", err)
	}

	rec.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if rec.CreatedAt.Before(lastAt) {
		rec.CreatedAt = lastAt.UTC()
	}
	rec.Seal(prevHash)

	if err := tx.QueryRow(ctx, `
		INSERT INTO audit_log (request_id, actor, action, resource, result, payload_hash, prev_hash, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		rec.RequestID, rec.Actor, rec.Action, rec.Resource, rec.Result,
		rec.PayloadHash, rec.PrevHash, rec.Hash, rec.CreatedAt,
	).Scan(&rec.ID); err != nil {
		return 0, fmt.Errorf("failed to insert audit record: %w", translatePgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit audit record: %w", err)
	}
	return rec.ID, nil
}

func (r *auditRepo) query(ctx context.Context, sql string, args ...any) ([]*domain.AuditRecord, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *auditRepo) AuditByRequest(ctx context.Context, requestID string) ([]*domain.AuditRecord, error) {
	return r.query(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE request_id = $1 ORDER BY id`, requestID)
}

func (r *auditRepo) AuditByActor(ctx context.Context, actor string, since time.Time) ([]*domain.AuditRecord, error) {
	return r.query(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE actor = $1 AND created_at >= $2
		ORDER BY id`, actor, since)
}

func (r *auditRepo) AuditChain(ctx context.Context, afterID int64, limit int) ([]*domain.AuditRecord, error) {
	return r.query(ctx, `
		SELECT `+auditColumns+` FROM audit_log
		WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
}

func (r *auditRepo) CountAudit(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit log: %w", err)
	}
	return n, nil
}

// UpdateAudit is rejected by the audit_log trigger for any existing row.
func (r *auditRepo) UpdateAudit(ctx context.Context, id int64, result domain.PolicyResult) error {
	tag, err := r.db.Exec(ctx, `UPDATE audit_log SET result = $2 WHERE id = $1`, id, result)
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return fmt.Errorf("audit_log accepted UPDATE of record %d: immutability trigger missing", id)
}

// DeleteAudit is rejected by the audit_log trigger for any existing row.
func (r *auditRepo) DeleteAudit(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_log WHERE id = $1`, id)
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return fmt.Errorf("audit_log accepted DELETE of record %d: immutability trigger missing", id)
}
