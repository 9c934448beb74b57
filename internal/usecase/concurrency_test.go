package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lelandsequel/metalledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentSubmitsKeepLedgerAndAuditConsistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const workers = 24
	var (
		wg      sync.WaitGroup
		submits atomic.Int64
		posted  sync.Map
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rid := fmt.Sprintf("rid-par-%d", i)
			switch i % 3 {
			case 0:
				in := copperPurchase()
				in.Lines[0].Debit = d(fmt.Sprintf("%d.5", 1000+i))
				in.Lines[1].Credit = d(fmt.Sprintf("%d.5", 1000+i))
				submits.Add(1)
				id, _, err := h.ledger.CreateEntry(ctx, rid, domain.Human(), in)
				if err == nil {
					posted.Store(id, true)
				}
			case 1:
				submits.Add(1)
				_, _, _ = h.ledger.CreateEntry(ctx, rid, domain.Agent(), copperPurchase())
			default:
				submits.Add(1)
				_, _ = h.engine.Submit(ctx, rid, domain.Action{
					Actor:    domain.Service("price_ingestor"),
					Kind:     domain.ActionEgress,
					Resource: "evil.example.com",
				})
			}
		}(i)
	}
	wg.Wait()

	count := 0
	posted.Range(func(k, _ any) bool {
		count++
		assert.NoError(t, h.ledger.PostingInvariant(ctx, k.(int64)))
		return true
	})
	assert.Equal(t, workers/3, count)

	audited, err := h.store.CountAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, submits.Load(), audited)

	report, err := h.audit.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid, "chain broken at %d: %s", report.BrokenAt, report.Problem)
	assert.Equal(t, int(audited), report.Records)
}
