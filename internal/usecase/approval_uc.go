package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"
	"github.com/lelandsequel/metalledger/internal/repository"

	"go.uber.org/zap"
)

// ApprovalRequest is what a human submits to authorize a resource.
type ApprovalRequest struct {
	ResourceKey string     `json:"resource_key"`
	Signature   *string    `json:"signature,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ApprovalUsecase is the approval registry. Only humans write; the policy
// engine reads through IsActive.
type ApprovalUsecase struct {
	repo   repository.ApprovalRepository
	audit  AuditRecorder
	logger *zap.Logger
	now    func() time.Time
}

func NewApprovalUsecase(repo repository.ApprovalRepository, audit AuditRecorder, logger *zap.Logger, now func() time.Time) *ApprovalUsecase {
	if now == nil {
		now = time.Now
	}
	return &ApprovalUsecase{repo: repo, audit: audit, logger: logger, now: now}
}

// RecordApproval stores a new approval. Non-human callers are rejected and
// the rejection is audited.
func (uc *ApprovalUsecase) RecordApproval(ctx context.Context, requestID string, approvedBy domain.Actor, in ApprovalRequest) (*domain.Approval, error) {
	in.ResourceKey = strings.TrimSpace(in.ResourceKey)

	if !approvedBy.IsHuman() {
		uc.auditDenial(ctx, requestID, approvedBy, domain.ActionRecordApproval, in.ResourceKey, in)
		return nil, &domain.AuthorizationError{Actor: approvedBy.String(), Operation: "record approvals"}
	}
	if in.ResourceKey == "" {
		return nil, &domain.ValidationError{Field: "resource_key", Msg: "is required"}
	}
	now := uc.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, &domain.ValidationError{Field: "expires_at", Msg: "must be in the future"}
	}

	if err := uc.auditOutcome(ctx, requestID, approvedBy, domain.ActionRecordApproval, in.ResourceKey, domain.ResultAllowed, in); err != nil {
		return nil, err
	}

	a, err := uc.repo.CreateApproval(ctx, &domain.ApprovalCreate{
		ResourceKey: in.ResourceKey,
		ApprovedBy:  approvedBy.String(),
		Signature:   in.Signature,
		ApprovedAt:  now,
		ExpiresAt:   in.ExpiresAt,
	})
	if err != nil {
		uc.auditFailure(ctx, requestID, approvedBy, domain.ActionRecordApproval, in.ResourceKey, err)
		return nil, fmt.Errorf("failed to record approval: %w", err)
	}

	uc.logger.Info("approval recorded",
		zap.String("request_id", requestID),
		zap.Int64("approval_id", a.ID),
		zap.String("resource", a.ResourceKey))
	return a, nil
}

// Revoke is idempotent. Revoking an already revoked approval succeeds and
// keeps the original revocation.
func (uc *ApprovalUsecase) Revoke(ctx context.Context, requestID string, approvalID int64, revokedBy domain.Actor) (*domain.Approval, error) {
	payload := map[string]int64{"approval_id": approvalID}
	resource := fmt.Sprintf("approval:%d", approvalID)

	if !revokedBy.IsHuman() {
		uc.auditDenial(ctx, requestID, revokedBy, domain.ActionRevokeApproval, resource, payload)
		return nil, &domain.AuthorizationError{Actor: revokedBy.String(), Operation: "revoke approvals"}
	}

	if _, err := uc.repo.GetApproval(ctx, approvalID); err != nil {
		if errors.Is(err, xerrors.ErrApprovalNotFound) {
			uc.auditDenial(ctx, requestID, revokedBy, domain.ActionRevokeApproval, resource, payload)
		} else {
			uc.auditFailure(ctx, requestID, revokedBy, domain.ActionRevokeApproval, resource, err)
		}
		return nil, err
	}
	if err := uc.auditOutcome(ctx, requestID, revokedBy, domain.ActionRevokeApproval, resource, domain.ResultAllowed, payload); err != nil {
		return nil, err
	}

	a, err := uc.repo.RevokeApproval(ctx, approvalID, revokedBy.String(), uc.now())
	if err != nil {
		uc.auditFailure(ctx, requestID, revokedBy, domain.ActionRevokeApproval, resource, err)
		return nil, err
	}
	uc.logger.Info("approval revoked",
		zap.String("request_id", requestID),
		zap.Int64("approval_id", a.ID),
		zap.String("resource", a.ResourceKey))
	return a, nil
}

// IsActive is evaluated against the store on every call.
func (uc *ApprovalUsecase) IsActive(ctx context.Context, resourceKey string) (bool, error) {
	_, err := uc.repo.ActiveApproval(ctx, resourceKey, uc.now())
	if err != nil {
		if errors.Is(err, xerrors.ErrApprovalNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Active returns the approval currently authorizing resourceKey.
func (uc *ApprovalUsecase) Active(ctx context.Context, resourceKey string) (*domain.Approval, error) {
	a, err := uc.repo.ActiveApproval(ctx, resourceKey, uc.now())
	if err != nil {
		if errors.Is(err, xerrors.ErrApprovalNotFound) {
			return nil, &domain.ApprovalExpiredOrMissing{ResourceKey: resourceKey}
		}
		return nil, err
	}
	return a, nil
}

func (uc *ApprovalUsecase) List(ctx context.Context, resourceKey string) ([]*domain.Approval, error) {
	return uc.repo.ListApprovals(ctx, resourceKey)
}

func (uc *ApprovalUsecase) auditOutcome(ctx context.Context, requestID string, actor domain.Actor, kind domain.ActionKind, resource string, result domain.PolicyResult, payload any) error {
	_, err := uc.audit.Record(ctx, domain.AuditEntry{
		RequestID: requestID,
		Actor:     actor.String(),
		Action:    kind,
		Resource:  resource,
		Result:    result,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrAuditUnavailable, err)
	}
	return nil
}

func (uc *ApprovalUsecase) auditDenial(ctx context.Context, requestID string, actor domain.Actor, kind domain.ActionKind, resource string, payload any) {
	if err := uc.auditOutcome(ctx, requestID, actor, kind, resource, domain.ResultDenied, payload); err != nil {
		uc.logger.Error("failed to audit denied approval change",
			zap.String("request_id", requestID),
			zap.String("action", string(kind)),
			zap.String("actor", actor.String()),
			zap.Error(err))
	}
}

// auditFailure records an ERROR outcome for a change the store refused.
func (uc *ApprovalUsecase) auditFailure(ctx context.Context, requestID string, actor domain.Actor, kind domain.ActionKind, resource string, cause error) {
	payload := map[string]string{"error": cause.Error()}
	if err := uc.auditOutcome(ctx, requestID, actor, kind, resource, domain.ResultError, payload); err != nil {
		uc.logger.Error("failed to audit approval store failure",
			zap.String("request_id", requestID),
			zap.String("action", string(kind)),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}
