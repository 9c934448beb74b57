package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/egress"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"
	"github.com/lelandsequel/metalledger/internal/repository"

	"go.uber.org/zap"
)

// AllowlistReplacer swaps the process-wide egress allowlist.
type AllowlistReplacer interface {
	Replace(domains []string) error
}

// SourceConfigUsecase mutates data-source configuration. Every write is an
// approval-gated action.
type SourceConfigUsecase struct {
	repo      repository.SourceConfigRepository
	engine    ActionSubmitter
	approvals *ApprovalUsecase
	allowlist AllowlistReplacer
	logger    *zap.Logger
}

func NewSourceConfigUsecase(
	repo repository.SourceConfigRepository,
	engine ActionSubmitter,
	approvals *ApprovalUsecase,
	allowlist AllowlistReplacer,
	logger *zap.Logger,
) *SourceConfigUsecase {
	return &SourceConfigUsecase{
		repo:      repo,
		engine:    engine,
		approvals: approvals,
		allowlist: allowlist,
		logger:    logger,
	}
}

// Update writes settings for key if an active approval for key exists. The
// egress_allowlist key also swaps the live allowlist.
func (uc *SourceConfigUsecase) Update(ctx context.Context, requestID string, actor domain.Actor, key string, settings json.RawMessage) (*domain.SourceConfig, domain.Verdict, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.Verdict{}, &domain.ValidationError{Field: "key", Msg: "is required"}
	}
	if !json.Valid(settings) {
		return nil, domain.Verdict{}, &domain.ValidationError{Field: "settings", Msg: "must be valid JSON"}
	}

	var domains []string
	if key == domain.ResourceEgressAllowlist {
		var err error
		if domains, err = allowlistDomains(settings); err != nil {
			return nil, domain.Verdict{}, err
		}
	}

	verdict, err := uc.engine.Submit(ctx, requestID, domain.Action{
		Actor:    actor,
		Kind:     domain.ActionMutateSourceConfig,
		Resource: key,
		Payload:  settings,
	})
	if err != nil {
		return nil, verdict, err
	}
	if !verdict.Allowed {
		return nil, verdict, verdict.Err()
	}

	cfg := &domain.SourceConfig{
		Key:       key,
		Settings:  settings,
		UpdatedBy: actor.String(),
	}
	if a, err := uc.approvals.Active(ctx, key); err == nil {
		cfg.ApprovalID = &a.ID
	}

	if err := uc.repo.UpsertSourceConfig(ctx, cfg); err != nil {
		return nil, verdict, err
	}

	if domains != nil {
		if err := uc.allowlist.Replace(domains); err != nil {
			return nil, verdict, &domain.ValidationError{Field: "settings.domains", Msg: err.Error()}
		}
		uc.logger.Info("egress allowlist replaced",
			zap.String("request_id", verdict.RequestID),
			zap.Strings("domains", domains))
	}

	uc.logger.Info("source config updated",
		zap.String("request_id", verdict.RequestID),
		zap.String("key", key),
		zap.String("actor", actor.String()))
	return cfg, verdict, nil
}

func (uc *SourceConfigUsecase) Get(ctx context.Context, key string) (*domain.SourceConfig, error) {
	return uc.repo.GetSourceConfig(ctx, key)
}

func (uc *SourceConfigUsecase) List(ctx context.Context) ([]*domain.SourceConfig, error) {
	return uc.repo.ListSourceConfigs(ctx)
}

// LoadAllowlist applies a persisted egress allowlist at startup. It returns
// false when none is stored. A stored list with no usable domain yields a
// ValidationError and leaves the current allowlist in place.
func (uc *SourceConfigUsecase) LoadAllowlist(ctx context.Context) (bool, error) {
	cfg, err := uc.repo.GetSourceConfig(ctx, domain.ResourceEgressAllowlist)
	if err != nil {
		if errors.Is(err, xerrors.ErrSourceNotFound) {
			return false, nil
		}
		return false, err
	}
	domains, err := allowlistDomains(cfg.Settings)
	if err != nil {
		return false, fmt.Errorf("stored egress allowlist: %w", err)
	}
	if err := uc.allowlist.Replace(domains); err != nil {
		return false, err
	}
	return true, nil
}

// allowlistDomains parses egress_allowlist settings into normalized domains.
func allowlistDomains(settings json.RawMessage) ([]string, error) {
	var s domain.AllowlistSettings
	if err := json.Unmarshal(settings, &s); err != nil {
		return nil, &domain.ValidationError{Field: "settings.domains", Msg: "must list at least one domain"}
	}
	domains := egress.NormalizeAll(s.Domains)
	if len(domains) == 0 {
		return nil, &domain.ValidationError{Field: "settings.domains", Msg: "must list at least one domain"}
	}
	return domains, nil
}
