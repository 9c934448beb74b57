package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lelandsequel/metalledger/internal/config"
	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/egress"
	"github.com/lelandsequel/metalledger/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func memoryConfig() config.AppConfig {
	return config.AppConfig{
		HTTPAddr:            "127.0.0.1:0",
		GRPCAddr:            "127.0.0.1:0",
		StoreDriver:         config.StoreDriverMemory,
		EgressAllowlist:     egress.DefaultAllowlist,
		SeedAccounts:        true,
		AuditVerifyInterval: time.Hour,
	}
}

func TestPrepareSeedsChartAndAllowlist(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.UpsertSourceConfig(ctx, &domain.SourceConfig{
		Key:       domain.ResourceEgressAllowlist,
		Settings:  json.RawMessage(`{"domains":["metals-api.com"]}`),
		UpdatedBy: "HUMAN",
	}))

	s := NewWithStore(memoryConfig(), zap.NewNop(), store)
	require.NoError(t, s.Prepare(ctx))

	assert.Equal(t, []string{"metals-api.com"}, s.gate.Domains())

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data []domain.Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Len(t, env.Data, 8)
}

func TestPrepareKeepsConfiguredAllowlistWhenStoredOneIsUnusable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.UpsertSourceConfig(ctx, &domain.SourceConfig{
		Key:       domain.ResourceEgressAllowlist,
		Settings:  json.RawMessage(`{"domains":["  "]}`),
		UpdatedBy: "HUMAN",
	}))

	s := NewWithStore(memoryConfig(), zap.NewNop(), store)
	require.NoError(t, s.Prepare(ctx))
	assert.Equal(t, egress.NormalizeAll(egress.DefaultAllowlist), s.gate.Domains())
}

func TestNewWithMemoryDriver(t *testing.T) {
	s, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, s.Egress())

	s.checkHealth(context.Background())
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestUnknownStoreDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "sqlite"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
