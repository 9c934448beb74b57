package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/egress"
	"github.com/lelandsequel/metalledger/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// clock is a settable time source shared by the store and the registry.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(dur time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(dur)
	c.mu.Unlock()
}

type recordingDenials struct {
	mu     sync.Mutex
	events []*domain.PolicyEvent
}

func (r *recordingDenials) PublishDenial(_ context.Context, ev *domain.PolicyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	r.events = append(r.events, &cp)
	return nil
}

type recordingLedgerEvents struct {
	mu     sync.Mutex
	posted []int64
	voided []int64
}

func (r *recordingLedgerEvents) PublishEntryPosted(_ context.Context, _ string, e *domain.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posted = append(r.posted, e.ID)
	return nil
}

func (r *recordingLedgerEvents) PublishEntryVoided(_ context.Context, _ string, id int64, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voided = append(r.voided, id)
	return nil
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, domain.AuditEntry) (int64, error) {
	return 0, errors.New("disk full")
}

type harness struct {
	clock     *clock
	store     *memory.Store
	gate      *egress.Gate
	audit     *AuditTrail
	approvals *ApprovalUsecase
	engine    *PolicyEngine
	ledger    *LedgerUsecase
	sources   *SourceConfigUsecase
	denials   *recordingDenials
	events    *recordingLedgerEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	h := &harness{
		clock:   &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		denials: &recordingDenials{},
		events:  &recordingLedgerEvents{},
	}
	h.store = memory.New(memory.WithClock(h.clock.Now))
	h.gate = egress.NewGate(egress.DefaultAllowlist)
	h.audit = NewAuditTrail(h.store, logger)
	h.approvals = NewApprovalUsecase(h.store, h.audit, logger, h.clock.Now)
	h.engine = NewPolicyEngine(h.approvals, h.gate, h.audit, h.store, logger, WithDenialPublisher(h.denials))
	h.ledger = NewLedgerUsecase(h.store, h.store, h.store, h.engine, logger, WithLedgerEvents(h.events))
	h.sources = NewSourceConfigUsecase(h.store, h.engine, h.approvals, h.gate, logger)

	require.NoError(t, h.ledger.EnsureAccounts(context.Background(), []domain.AccountCreate{
		{Code: "1000", Name: "Cash", Type: domain.AccountTypeAsset},
		{Code: "1100", Name: "Metal Inventory", Type: domain.AccountTypeAsset},
		{Code: "4000", Name: "Scrap Sales", Type: domain.AccountTypeRevenue},
		{Code: "5000", Name: "Cost of Metal Sold", Type: domain.AccountTypeExpense},
	}))
	return h
}

func (h *harness) auditFor(t *testing.T, rid string) []*domain.AuditRecord {
	t.Helper()
	recs, err := h.audit.QueryByRequest(context.Background(), rid)
	require.NoError(t, err)
	return recs
}

func copperPurchase() *domain.EntryCreate {
	return &domain.EntryCreate{
		EntryDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Memo:      "No.1 copper, 49,500 lb",
		Lines: []domain.LineCreate{
			{Account: "1100", Debit: d("204150.00")},
			{Account: "1000", Credit: d("204150.00")},
		},
	}
}
