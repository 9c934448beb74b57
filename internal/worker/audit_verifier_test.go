package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubVerifier struct {
	calls  atomic.Int32
	report *domain.ChainReport
	err    error
}

func (s *stubVerifier) Verify(context.Context) (*domain.ChainReport, error) {
	s.calls.Add(1)
	return s.report, s.err
}

func TestVerifyOnce(t *testing.T) {
	broken := &domain.ChainReport{Records: 4, Valid: false, BrokenAt: 3, Problem: "record content does not match its hash"}
	av := NewAuditVerifier(&stubVerifier{report: broken}, time.Minute, zap.NewNop())
	assert.Equal(t, broken, av.VerifyOnce(context.Background()))

	av = NewAuditVerifier(&stubVerifier{err: errors.New("db down")}, time.Minute, zap.NewNop())
	assert.Nil(t, av.VerifyOnce(context.Background()))
}

func TestStartRunsUntilStopped(t *testing.T) {
	stub := &stubVerifier{report: &domain.ChainReport{Valid: true}}
	av := NewAuditVerifier(stub, 10*time.Millisecond, zap.NewNop())

	done := make(chan struct{})
	go func() {
		av.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return stub.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	av.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("verifier did not stop")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	stub := &stubVerifier{report: &domain.ChainReport{Valid: true}}
	av := NewAuditVerifier(stub, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		av.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("verifier did not stop")
	}
}
