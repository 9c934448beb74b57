package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"
	"github.com/lelandsequel/metalledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOnlyHumansRecordApprovals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, actor := range []domain.Actor{domain.Agent(), domain.Service("ingestor")} {
		_, err := h.approvals.RecordApproval(ctx, "rid-"+actor.String(), actor, ApprovalRequest{ResourceKey: "iscrap"})
		var ae *domain.AuthorizationError
		require.True(t, errors.As(err, &ae), actor.String())

		recs := h.auditFor(t, "rid-"+actor.String())
		require.Len(t, recs, 1)
		assert.Equal(t, domain.ResultDenied, recs[0].Result)
		assert.Equal(t, domain.ActionRecordApproval, recs[0].Action)
	}

	list, err := h.approvals.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecordApprovalValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	past := h.clock.Now().Add(-time.Second)

	var ve *domain.ValidationError
	_, err := h.approvals.RecordApproval(ctx, "", domain.Human(), ApprovalRequest{ResourceKey: "  "})
	assert.True(t, errors.As(err, &ve))

	_, err = h.approvals.RecordApproval(ctx, "", domain.Human(), ApprovalRequest{ResourceKey: "iscrap", ExpiresAt: &past})
	assert.True(t, errors.As(err, &ve))
}

func TestApprovalGateLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	settings := json.RawMessage(`{"enabled":true,"poll_seconds":300}`)

	// No approval yet.
	_, v, err := h.sources.Update(ctx, "rid-1", domain.Human(), "iscrap", settings)
	var missing *domain.ApprovalExpiredOrMissing
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "iscrap", missing.ResourceKey)
	assert.Equal(t, domain.GuardrailApprovalGate, v.Guardrail)

	// Approve for one hour.
	expires := h.clock.Now().Add(time.Hour)
	a, err := h.approvals.RecordApproval(ctx, "rid-approve", domain.Human(), ApprovalRequest{ResourceKey: "iscrap", ExpiresAt: &expires})
	require.NoError(t, err)

	cfg, v, err := h.sources.Update(ctx, "rid-2", domain.Service("ingestor"), "iscrap", settings)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	require.NotNil(t, cfg.ApprovalID)
	assert.Equal(t, a.ID, *cfg.ApprovalID)
	assert.Equal(t, "service:ingestor", cfg.UpdatedBy)

	// Approval expires.
	h.clock.Advance(time.Hour)
	_, v, err = h.sources.Update(ctx, "rid-3", domain.Human(), "iscrap", settings)
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, domain.ResultDenied, v.Result)

	// A fresh approval, then revoked.
	b, err := h.approvals.RecordApproval(ctx, "", domain.Human(), ApprovalRequest{ResourceKey: "iscrap"})
	require.NoError(t, err)
	_, _, err = h.sources.Update(ctx, "", domain.Human(), "iscrap", settings)
	require.NoError(t, err)

	_, err = h.approvals.Revoke(ctx, "", b.ID, domain.Agent())
	var ae *domain.AuthorizationError
	require.True(t, errors.As(err, &ae))

	revoked, err := h.approvals.Revoke(ctx, "rid-revoke", b.ID, domain.Human())
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)

	again, err := h.approvals.Revoke(ctx, "", b.ID, domain.Human())
	require.NoError(t, err)
	assert.Equal(t, revoked.RevokedAt, again.RevokedAt)

	_, _, err = h.sources.Update(ctx, "", domain.Human(), "iscrap", settings)
	require.True(t, errors.As(err, &missing))

	active, err := h.approvals.IsActive(ctx, "iscrap")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestApprovalIsPerResource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.approvals.RecordApproval(ctx, "", domain.Human(), ApprovalRequest{ResourceKey: "scrapregister"})
	require.NoError(t, err)

	_, _, err = h.sources.Update(ctx, "", domain.Human(), "iscrap", json.RawMessage(`{}`))
	var missing *domain.ApprovalExpiredOrMissing
	assert.True(t, errors.As(err, &missing))
}

type brokenApprovalRepo struct {
	repository.ApprovalRepository
}

func (brokenApprovalRepo) CreateApproval(context.Context, *domain.ApprovalCreate) (*domain.Approval, error) {
	return nil, errors.New("connection reset")
}

func (brokenApprovalRepo) RevokeApproval(context.Context, int64, string, time.Time) (*domain.Approval, error) {
	return nil, errors.New("connection reset")
}

func auditResults(recs []*domain.AuditRecord) []domain.PolicyResult {
	out := make([]domain.PolicyResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Result)
	}
	return out
}

func TestRevokeUnknownApprovalIsAuditedAsDenied(t *testing.T) {
	h := newHarness(t)

	_, err := h.approvals.Revoke(context.Background(), "rid-rv", 999, domain.Human())
	assert.ErrorIs(t, err, xerrors.ErrApprovalNotFound)

	recs := h.auditFor(t, "rid-rv")
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ActionRevokeApproval, recs[0].Action)
	assert.Equal(t, domain.ResultDenied, recs[0].Result)
}

func TestApprovalStoreFailureIsAuditedAsError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.approvals.RecordApproval(ctx, "", domain.Human(), ApprovalRequest{ResourceKey: "iscrap"})
	require.NoError(t, err)

	uc := NewApprovalUsecase(brokenApprovalRepo{ApprovalRepository: h.store}, h.audit, zap.NewNop(), h.clock.Now)

	_, err = uc.RecordApproval(ctx, "rid-rec", domain.Human(), ApprovalRequest{ResourceKey: "iscrap"})
	require.Error(t, err)
	assert.Equal(t, []domain.PolicyResult{domain.ResultAllowed, domain.ResultError}, auditResults(h.auditFor(t, "rid-rec")))

	_, err = uc.Revoke(ctx, "rid-rev", a.ID, domain.Human())
	require.Error(t, err)
	assert.Equal(t, []domain.PolicyResult{domain.ResultAllowed, domain.ResultError}, auditResults(h.auditFor(t, "rid-rev")))

	active, err := h.approvals.IsActive(ctx, "iscrap")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestDeniedApprovalChangeLogsAuditFailure(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.ErrorLevel)
	uc := NewApprovalUsecase(h.store, failingAudit{}, zap.New(core), h.clock.Now)

	_, err := uc.RecordApproval(context.Background(), "rid-agent", domain.Agent(), ApprovalRequest{ResourceKey: "iscrap"})
	var ae *domain.AuthorizationError
	require.True(t, errors.As(err, &ae), "got %v", err)

	_, err = uc.Revoke(context.Background(), "rid-agent", 1, domain.Agent())
	require.True(t, errors.As(err, &ae), "got %v", err)

	assert.Equal(t, 2, logs.FilterMessage("failed to audit denied approval change").Len())
}
