package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type panicRule struct{}

func (panicRule) Name() string { return "exploding" }

func (panicRule) Evaluate(context.Context, domain.Action) (RuleOutcome, error) {
	panic("boom")
}

type erroringRule struct{}

func (erroringRule) Name() string { return "flaky" }

func (erroringRule) Evaluate(context.Context, domain.Action) (RuleOutcome, error) {
	return RuleOutcome{}, errors.New("lookup timed out")
}

func TestAgentBlockedFromEveryLedgerMutation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, kind := range []domain.ActionKind{domain.ActionCreateEntry, domain.ActionVoidEntry, domain.ActionModifyAccount} {
		v, err := h.engine.Submit(ctx, "", domain.Action{Actor: domain.Agent(), Kind: kind, Resource: "journal_entries"})
		require.NoError(t, err)
		assert.False(t, v.Allowed, string(kind))
		assert.Equal(t, domain.ResultDenied, v.Result)
		assert.Equal(t, domain.GuardrailAgentLedgerBlock, v.Guardrail)
		assert.NotEmpty(t, v.RequestID)
	}
}

func TestAgentAllowedNonLedgerActions(t *testing.T) {
	h := newHarness(t)

	v, err := h.engine.Submit(context.Background(), "rid-read", domain.Action{Actor: domain.Agent(), Kind: domain.ActionForecastRun, Resource: "forecast/CU"})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, domain.GuardrailDefault, v.Guardrail)
	assert.Equal(t, "rid-read", v.RequestID)
}

func TestEverySubmitWritesOneAuditRecordAndEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	actions := []domain.Action{
		{Actor: domain.Agent(), Kind: domain.ActionCreateEntry},
		{Actor: domain.Human(), Kind: domain.ActionRead, Resource: "accounts"},
		{Actor: domain.Service("ingestor"), Kind: domain.ActionEgress, Resource: "https://evil.example"},
		{Actor: domain.Human(), Kind: domain.ActionMutateSourceConfig, Resource: "iscrap"},
	}
	for i, a := range actions {
		rid := "rid-" + string(rune('a'+i))
		v, err := h.engine.Submit(ctx, rid, a)
		require.NoError(t, err)

		recs := h.auditFor(t, rid)
		require.Len(t, recs, 1)
		assert.Equal(t, v.Result, recs[0].Result)
		assert.Equal(t, v.AuditID, recs[0].ID)
		assert.Equal(t, a.Actor.String(), recs[0].Actor)

		events, err := h.store.PolicyEventsByRequest(ctx, rid)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, v.Guardrail, events[0].Guardrail)
	}
}

func TestEgressOutsideAllowlistDenied(t *testing.T) {
	h := newHarness(t)

	v, err := h.engine.Submit(context.Background(), "", domain.Action{
		Actor:    domain.Service("ingestor"),
		Kind:     domain.ActionEgress,
		Resource: "https://prices.example.net/copper",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultDenied, v.Result)
	assert.Equal(t, domain.GuardrailEgressAllowlist, v.Guardrail)

	var ev *domain.EgressViolation
	require.True(t, errors.As(v.Err(), &ev))
	assert.Equal(t, "prices.example.net", ev.Domain)

	v, err = h.engine.Submit(context.Background(), "", domain.Action{
		Actor:    domain.Service("ingestor"),
		Kind:     domain.ActionEgress,
		Resource: "https://metals-api.com/api/latest",
	})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

func TestDenialsArePublished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Submit(ctx, "", domain.Action{Actor: domain.Human(), Kind: domain.ActionRead})
	require.NoError(t, err)
	assert.Empty(t, h.denials.events)

	_, err = h.engine.Submit(ctx, "rid-deny", domain.Action{Actor: domain.Agent(), Kind: domain.ActionVoidEntry})
	require.NoError(t, err)
	require.Len(t, h.denials.events, 1)
	assert.Equal(t, "rid-deny", h.denials.events[0].RequestID)
	assert.Equal(t, domain.ResultDenied, h.denials.events[0].Result)
}

func TestPanickingRuleYieldsErrorVerdict(t *testing.T) {
	h := newHarness(t)
	engine := NewPolicyEngine(h.approvals, h.gate, h.audit, h.store, zap.NewNop(), WithRules(panicRule{}))

	v, err := engine.Submit(context.Background(), "rid-panic", domain.Action{Actor: domain.Human(), Kind: domain.ActionRead})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, domain.ResultError, v.Result)
	assert.Equal(t, "exploding", v.Guardrail)
	assert.Contains(t, v.Reason, "boom")

	recs := h.auditFor(t, "rid-panic")
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ResultError, recs[0].Result)
}

func TestRuleErrorYieldsErrorVerdict(t *testing.T) {
	h := newHarness(t)
	engine := NewPolicyEngine(h.approvals, h.gate, h.audit, h.store, zap.NewNop(), WithRules(erroringRule{}))

	v, err := engine.Submit(context.Background(), "", domain.Action{Actor: domain.Human(), Kind: domain.ActionRead})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultError, v.Result)
	assert.Equal(t, "lookup timed out", v.Reason)
}

func TestMalformedActionYieldsErrorVerdict(t *testing.T) {
	h := newHarness(t)

	v, err := h.engine.Submit(context.Background(), "", domain.Action{Kind: domain.ActionRead})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultError, v.Result)

	v, err = h.engine.Submit(context.Background(), "", domain.Action{Actor: domain.Human()})
	require.NoError(t, err)
	assert.Equal(t, domain.ResultError, v.Result)
}

func TestAuditFailureFailsClosed(t *testing.T) {
	h := newHarness(t)
	engine := NewPolicyEngine(h.approvals, h.gate, failingAudit{}, h.store, zap.NewNop())

	v, err := engine.Submit(context.Background(), "", domain.Action{Actor: domain.Human(), Kind: domain.ActionRead})
	require.ErrorIs(t, err, xerrors.ErrAuditUnavailable)
	assert.False(t, v.Allowed)
	assert.Equal(t, domain.ResultError, v.Result)
	assert.Equal(t, domain.GuardrailAudit, v.Guardrail)

	ledger := NewLedgerUsecase(h.store, h.store, h.store, engine, zap.NewNop())
	_, _, err = ledger.CreateEntry(context.Background(), "", domain.Human(), copperPurchase())
	require.ErrorIs(t, err, xerrors.ErrAuditUnavailable)

	rows, err := h.store.TrialBalance(context.Background())
	require.NoError(t, err)
	for _, r := range rows {
		assert.True(t, r.Debit.IsZero(), r.AccountCode)
	}
}

func TestFirstDecisiveRuleWins(t *testing.T) {
	h := newHarness(t)
	// An agent egress to an allowlisted host passes the ledger block and is
	// decided by the egress rule.
	v, err := h.engine.Submit(context.Background(), "", domain.Action{Actor: domain.Agent(), Kind: domain.ActionEgress, Resource: "api.lbma.org.uk"})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, domain.GuardrailEgressAllowlist, v.Guardrail)
}
