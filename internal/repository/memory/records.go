package memory

import (
	"context"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"
)

func copyApproval(a *domain.Approval) *domain.Approval {
	cp := *a
	return &cp
}

func (s *Store) CreateApproval(ctx context.Context, in *domain.ApprovalCreate) (*domain.Approval, error) {
	if in.ApprovedBy != domain.CreatedByHuman {
		return nil, &domain.AuthorizationError{Actor: in.ApprovedBy, Operation: "record approvals"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.approvalSeq++
	approvedAt := in.ApprovedAt
	if approvedAt.IsZero() {
		approvedAt = s.timestamp()
	}
	a := &domain.Approval{
		ID:          s.approvalSeq,
		ResourceKey: in.ResourceKey,
		ApprovedBy:  in.ApprovedBy,
		Signature:   in.Signature,
		ApprovedAt:  approvedAt,
		ExpiresAt:   in.ExpiresAt,
	}
	s.approvals = append(s.approvals, a)
	return copyApproval(a), nil
}

func (s *Store) GetApproval(ctx context.Context, id int64) (*domain.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.approvals {
		if a.ID == id {
			return copyApproval(a), nil
		}
	}
	return nil, xerrors.ErrApprovalNotFound
}

func (s *Store) RevokeApproval(ctx context.Context, id int64, revokedBy string, at time.Time) (*domain.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.approvals {
		if a.ID != id {
			continue
		}
		if !a.Revoked {
			by, when := revokedBy, at
			a.Revoked = true
			a.RevokedBy = &by
			a.RevokedAt = &when
		}
		return copyApproval(a), nil
	}
	return nil, xerrors.ErrApprovalNotFound
}

func (s *Store) ListApprovals(ctx context.Context, resourceKey string) ([]*domain.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Approval
	for _, a := range s.approvals {
		if resourceKey == "" || a.ResourceKey == resourceKey {
			out = append(out, copyApproval(a))
		}
	}
	return out, nil
}

func (s *Store) ActiveApproval(ctx context.Context, resourceKey string, now time.Time) (*domain.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Approval
	for _, a := range s.approvals {
		if a.ResourceKey != resourceKey || !a.IsActive(now) {
			continue
		}
		if best == nil || !a.ApprovedAt.Before(best.ApprovedAt) {
			best = a
		}
	}
	if best == nil {
		return nil, xerrors.ErrApprovalNotFound
	}
	return copyApproval(best), nil
}

// AppendAudit links rec to the chain head. Timestamps never go backwards.
func (s *Store) AppendAudit(ctx context.Context, rec *domain.AuditRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash := ""
	createdAt := s.timestamp()
	if n := len(s.audit); n > 0 {
		last := s.audit[n-1]
		prevHash = last.Hash
		if createdAt.Before(last.CreatedAt) {
			createdAt = last.CreatedAt
		}
	}
	rec.ID = int64(len(s.audit) + 1)
	rec.CreatedAt = createdAt
	rec.Seal(prevHash)

	stored := *rec
	s.audit = append(s.audit, &stored)
	return rec.ID, nil
}

func (s *Store) filterAudit(keep func(*domain.AuditRecord) bool) []*domain.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AuditRecord
	for _, r := range s.audit {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) AuditByRequest(ctx context.Context, requestID string) ([]*domain.AuditRecord, error) {
	return s.filterAudit(func(r *domain.AuditRecord) bool { return r.RequestID == requestID }), nil
}

func (s *Store) AuditByActor(ctx context.Context, actor string, since time.Time) ([]*domain.AuditRecord, error) {
	return s.filterAudit(func(r *domain.AuditRecord) bool {
		return r.Actor == actor && !r.CreatedAt.Before(since)
	}), nil
}

func (s *Store) AuditChain(ctx context.Context, afterID int64, limit int) ([]*domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AuditRecord
	for _, r := range s.audit {
		if r.ID <= afterID {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CountAudit(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.audit)), nil
}

func (s *Store) UpdateAudit(ctx context.Context, id int64, result domain.PolicyResult) error {
	return s.rejectAuditMutation(id, "UPDATE")
}

func (s *Store) DeleteAudit(ctx context.Context, id int64) error {
	return s.rejectAuditMutation(id, "DELETE")
}

func (s *Store) rejectAuditMutation(id int64, op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.audit)) {
		return xerrors.ErrNotFound
	}
	return &domain.ImmutabilityViolation{Resource: "audit_log", Op: op}
}

func (s *Store) CreatePolicyEvent(ctx context.Context, ev *domain.PolicyEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = int64(len(s.events) + 1)
	ev.CreatedAt = s.timestamp()
	stored := *ev
	s.events = append(s.events, &stored)
	return ev.ID, nil
}

func (s *Store) PolicyEventsByRequest(ctx context.Context, requestID string) ([]*domain.PolicyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PolicyEvent
	for _, ev := range s.events {
		if ev.RequestID == requestID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func copySource(c *domain.SourceConfig) *domain.SourceConfig {
	cp := *c
	cp.Settings = append([]byte(nil), c.Settings...)
	return &cp
}

func (s *Store) UpsertSourceConfig(ctx context.Context, cfg *domain.SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.UpdatedAt = s.timestamp()
	s.sources[cfg.Key] = copySource(cfg)
	return nil
}

func (s *Store) GetSourceConfig(ctx context.Context, key string) (*domain.SourceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sources[key]
	if !ok {
		return nil, xerrors.ErrSourceNotFound
	}
	return copySource(c), nil
}

func (s *Store) ListSourceConfigs(ctx context.Context) ([]*domain.SourceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SourceConfig, 0, len(s.sources))
	for _, key := range sortedKeys(s.sources) {
		out = append(out, copySource(s.sources[key]))
	}
	return out, nil
}
