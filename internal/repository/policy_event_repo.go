package repository

import (
	"context"
	"fmt"

	"github.com/lelandsequel/metalledger/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type policyEventRepo struct {
	db *pgxpool.Pool
}

func NewPolicyEventRepo(db *pgxpool.Pool) PolicyEventRepository {
	return &policyEventRepo{db: db}
}

func (r *policyEventRepo) CreatePolicyEvent(ctx context.Context, ev *domain.PolicyEvent) (int64, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO policy_events (request_id, action, actor, resource, guardrail, result, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		ev.RequestID, ev.Action, ev.Actor, ev.Resource, ev.Guardrail, ev.Result, ev.Reason,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert policy event: %w", translatePgError(err))
	}
	return ev.ID, nil
}

func (r *policyEventRepo) PolicyEventsByRequest(ctx context.Context, requestID string) ([]*domain.PolicyEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, action, actor, resource, guardrail, result, reason, created_at
		FROM policy_events WHERE request_id = $1 ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query policy events: %w", err)
	}
	defer rows.Close()

	var out []*domain.PolicyEvent
	for rows.Next() {
		var ev domain.PolicyEvent
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.Action, &ev.Actor, &ev.Resource,
			&ev.Guardrail, &ev.Result, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}
