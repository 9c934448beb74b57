package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEntryCreateValidate(t *testing.T) {
	tests := []struct {
		name    string
		lines   []LineCreate
		wantErr bool
	}{
		{"balanced pair", []LineCreate{{Account: "1100", Debit: d("10")}, {Account: "1000", Credit: d("10")}}, false},
		{"no lines", nil, true},
		{"missing account", []LineCreate{{Debit: d("1")}}, true},
		{"negative debit", []LineCreate{{Account: "1000", Debit: d("-1")}}, true},
		{"both sides", []LineCreate{{Account: "1000", Debit: d("1"), Credit: d("1")}}, true},
		{"zero line", []LineCreate{{Account: "1000"}}, true},
		{"four places", []LineCreate{{Account: "1100", Debit: d("1.0001")}, {Account: "1000", Credit: d("1.0001")}}, false},
		{"trailing zeros past scale", []LineCreate{{Account: "1100", Debit: d("1.000000")}, {Account: "1000", Credit: d("1")}}, false},
		{"debit past scale", []LineCreate{{Account: "1100", Debit: d("1.00004")}, {Account: "1000", Credit: d("1.00004")}}, true},
		{"sub-unit credit", []LineCreate{{Account: "1100", Debit: d("0.00001")}, {Account: "1000", Credit: d("0.00001")}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &EntryCreate{Lines: tt.lines}
			err := in.Validate()
			if tt.wantErr {
				var ve *ValidationError
				assert.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEntryCreateTotals(t *testing.T) {
	in := &EntryCreate{Lines: []LineCreate{
		{Account: "1100", Debit: d("204150.00")},
		{Account: "1000", Credit: d("204000.00")},
		{Account: "2000", Credit: d("150")},
	}}
	debit, credit := in.Totals()
	assert.True(t, debit.Equal(d("204150")))
	assert.True(t, credit.Equal(d("204150")))
}

func TestParseActor(t *testing.T) {
	a, err := ParseActor("HUMAN")
	require.NoError(t, err)
	assert.True(t, a.IsHuman())

	a, err = ParseActor("agent")
	require.NoError(t, err)
	assert.True(t, a.IsAgent())

	a, err = ParseActor("service:ingestor")
	require.NoError(t, err)
	assert.Equal(t, ActorService, a.Kind())
	assert.Equal(t, "ingestor", a.Role())
	assert.Equal(t, "service:ingestor", a.String())

	for _, bad := range []string{"", "human", "Human", "service:", "admin"} {
		_, err := ParseActor(bad)
		assert.Error(t, err, "token %q", bad)
	}
}

func TestActorJSON(t *testing.T) {
	b, err := json.Marshal(Action{Actor: Service("ingestor"), Kind: ActionIngestTick, Resource: "metals-api.com"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"actor":"service:ingestor"`)

	var back Action
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Service("ingestor"), back.Actor)

	assert.Error(t, json.Unmarshal([]byte(`{"actor":"root"}`), &back))
}

func TestMutatesLedger(t *testing.T) {
	assert.True(t, ActionCreateEntry.MutatesLedger())
	assert.True(t, ActionVoidEntry.MutatesLedger())
	assert.True(t, ActionModifyAccount.MutatesLedger())
	assert.False(t, ActionRead.MutatesLedger())
	assert.False(t, ActionForecastRun.MutatesLedger())
	assert.False(t, ActionMutateSourceConfig.MutatesLedger())
}

func TestApprovalIsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.True(t, (&Approval{}).IsActive(now))
	assert.True(t, (&Approval{ExpiresAt: &future}).IsActive(now))
	assert.False(t, (&Approval{ExpiresAt: &past}).IsActive(now))
	assert.False(t, (&Approval{ExpiresAt: &now}).IsActive(now))
	assert.False(t, (&Approval{Revoked: true}).IsActive(now))
}

func TestVerdictErr(t *testing.T) {
	assert.NoError(t, Verdict{Allowed: true, Result: ResultAllowed}.Err())

	err := Verdict{Result: ResultDenied, Guardrail: GuardrailEgressAllowlist, Target: "evil.example"}.Err()
	var ev *EgressViolation
	require.True(t, errors.As(err, &ev))
	assert.Equal(t, "evil.example", ev.Domain)

	err = Verdict{Result: ResultDenied, Guardrail: GuardrailApprovalGate, Target: "iscrap"}.Err()
	var missing *ApprovalExpiredOrMissing
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "iscrap", missing.ResourceKey)

	err = Verdict{Result: ResultDenied, Guardrail: GuardrailAgentLedgerBlock, Reason: "blocked"}.Err()
	var pv *PolicyViolation
	require.True(t, errors.As(err, &pv))
	assert.Equal(t, GuardrailAgentLedgerBlock, pv.Guardrail)
}

func TestAuditRecordSeal(t *testing.T) {
	rec := &AuditRecord{
		RequestID:   "r-1",
		Actor:       "HUMAN",
		Action:      ActionCreateEntry,
		Resource:    "journal_entries",
		Result:      ResultAllowed,
		PayloadHash: "abc",
		CreatedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	rec.Seal("")
	first := rec.Hash
	assert.Len(t, first, 64)

	rec.Seal("prev")
	assert.NotEqual(t, first, rec.Hash)
	assert.Equal(t, rec.Hash, rec.ComputeHash())

	rec.Result = ResultDenied
	assert.NotEqual(t, rec.Hash, rec.ComputeHash())
}

func TestNewValuation(t *testing.T) {
	p := &CanonicalPrice{Metal: "CU", Price: d("4.12345"), Currency: "USD", Unit: "lb"}
	v := NewValuation("CU", time.Now(), p, d("1000.5"))
	assert.True(t, v.MarketValue.Equal(d("4125.5117")), v.MarketValue.String())
}

func TestNormalBalance(t *testing.T) {
	assert.True(t, NormalBalance(AccountTypeAsset, d("10"), d("3")).Equal(d("7")))
	assert.True(t, NormalBalance(AccountTypeRevenue, d("3"), d("10")).Equal(d("7")))
	assert.True(t, NormalBalance(AccountTypeLiability, d("10"), d("3")).Equal(d("-7")))
}

func TestAccountCreateValidate(t *testing.T) {
	a := &AccountCreate{Code: "1000", Name: "Cash", Type: AccountTypeAsset}
	require.NoError(t, a.Validate())
	assert.Equal(t, "USD", a.Currency)

	assert.Error(t, (&AccountCreate{Code: "1", Name: "x", Type: "BOGUS"}).Validate())
	assert.Error(t, (&AccountCreate{Name: "x", Type: AccountTypeAsset}).Validate())
}
