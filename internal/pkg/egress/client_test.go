package egress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/requestid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gateSubmitter decides egress actions with a Gate and records what it saw.
type gateSubmitter struct {
	gate *Gate

	mu      sync.Mutex
	actions []domain.Action
	rids    []string
}

func (s *gateSubmitter) Submit(_ context.Context, rid string, a domain.Action) (domain.Verdict, error) {
	s.mu.Lock()
	s.actions = append(s.actions, a)
	s.rids = append(s.rids, rid)
	s.mu.Unlock()

	if err := s.gate.CheckEgress(a.Resource); err != nil {
		var ev *domain.EgressViolation
		errors.As(err, &ev)
		return domain.Verdict{Result: domain.ResultDenied, Guardrail: domain.GuardrailEgressAllowlist, Reason: err.Error(), Target: ev.Domain, RequestID: rid}, nil
	}
	return domain.Verdict{Allowed: true, Result: domain.ResultAllowed, Guardrail: domain.GuardrailEgressAllowlist, RequestID: rid}, nil
}

func TestClientAllowsAllowlistedTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := &gateSubmitter{gate: NewGate([]string{"127.0.0.1"})}
	c := NewClient(sub, domain.Service("ingestor"), zap.NewNop())

	ctx := requestid.With(context.Background(), "rid-1")
	resp, err := c.Get(ctx, srv.URL+"/prices")
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, sub.actions, 1)
	assert.Equal(t, domain.ActionEgress, sub.actions[0].Kind)
	assert.Equal(t, domain.Service("ingestor"), sub.actions[0].Actor)
	assert.Equal(t, "rid-1", sub.rids[0])
}

func TestClientBlocksBeforeDispatch(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	sub := &gateSubmitter{gate: NewGate([]string{"metals-api.com"})}
	c := NewClient(sub, domain.Agent(), zap.NewNop())

	_, err := c.Get(context.Background(), srv.URL)
	var ev *domain.EgressViolation
	require.True(t, errors.As(err, &ev))
	assert.Equal(t, "127.0.0.1", ev.Domain)
	assert.False(t, hit)
	assert.NotEmpty(t, sub.rids[0])
}

func TestClientChecksRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("redirect target must not be reached")
	}))
	defer target.Close()

	// Same server, addressed by a name that is not allowlisted.
	redirectTo := strings.Replace(target.URL, "127.0.0.1", "localhost", 1)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, redirectTo, http.StatusFound)
	}))
	defer origin.Close()

	sub := &gateSubmitter{gate: NewGate([]string{"127.0.0.1"})}
	c := NewClient(sub, domain.Service("ingestor"), zap.NewNop())

	_, err := c.Get(context.Background(), origin.URL)
	var ev *domain.EgressViolation
	require.True(t, errors.As(err, &ev), "got %v", err)
	assert.Equal(t, "localhost", ev.Domain)
	require.Len(t, sub.actions, 2)
	assert.Equal(t, sub.rids[0], sub.rids[1])
}
