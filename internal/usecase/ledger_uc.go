package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/repository"

	"go.uber.org/zap"
)

// ActionSubmitter is the policy engine entry point used by usecases.
type ActionSubmitter interface {
	Submit(ctx context.Context, requestID string, action domain.Action) (domain.Verdict, error)
}

// AccountCache caches the chart of accounts.
type AccountCache interface {
	GetAccounts(ctx context.Context) ([]*domain.Account, bool)
	SetAccounts(ctx context.Context, accounts []*domain.Account) error
	InvalidateAccounts(ctx context.Context) error
}

// LedgerEventPublisher announces committed ledger changes.
type LedgerEventPublisher interface {
	PublishEntryPosted(ctx context.Context, requestID string, entry *domain.JournalEntry) error
	PublishEntryVoided(ctx context.Context, requestID string, entryID int64, voidedBy string) error
}

// LedgerUsecase routes every ledger mutation through the policy engine
// before the store, which re-checks its own invariants.
type LedgerUsecase struct {
	ledger     repository.LedgerRepository
	accounts   repository.AccountRepository
	valuations repository.ValuationRepository
	engine     ActionSubmitter
	cache      AccountCache
	events     LedgerEventPublisher
	logger     *zap.Logger
}

type LedgerOption func(*LedgerUsecase)

func WithAccountCache(c AccountCache) LedgerOption {
	return func(uc *LedgerUsecase) { uc.cache = c }
}

func WithLedgerEvents(p LedgerEventPublisher) LedgerOption {
	return func(uc *LedgerUsecase) { uc.events = p }
}

func NewLedgerUsecase(
	ledger repository.LedgerRepository,
	accounts repository.AccountRepository,
	valuations repository.ValuationRepository,
	engine ActionSubmitter,
	logger *zap.Logger,
	opts ...LedgerOption,
) *LedgerUsecase {
	uc := &LedgerUsecase{
		ledger:     ledger,
		accounts:   accounts,
		valuations: valuations,
		engine:     engine,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// CreateEntry submits a create_entry action and, if allowed, posts the
// entry. The store rejects any creator other than HUMAN.
func (uc *LedgerUsecase) CreateEntry(ctx context.Context, requestID string, actor domain.Actor, in *domain.EntryCreate) (int64, domain.Verdict, error) {
	in.CreatedBy = actor.String()

	verdict, err := uc.engine.Submit(ctx, requestID, domain.Action{
		Actor:    actor,
		Kind:     domain.ActionCreateEntry,
		Resource: "journal_entries",
		Payload:  in,
	})
	if err != nil {
		return 0, verdict, err
	}
	if !verdict.Allowed {
		return 0, verdict, verdict.Err()
	}

	entryID, err := uc.ledger.CreateEntry(ctx, in)
	if err != nil {
		uc.logger.Warn("journal entry rejected by store",
			zap.String("request_id", verdict.RequestID),
			zap.Error(err))
		return 0, verdict, err
	}

	uc.logger.Info("journal entry posted",
		zap.String("request_id", verdict.RequestID),
		zap.Int64("entry_id", entryID),
		zap.Int("lines", len(in.Lines)))

	if uc.events != nil {
		if entry, err := uc.ledger.GetEntry(ctx, entryID); err == nil {
			if err := uc.events.PublishEntryPosted(ctx, verdict.RequestID, entry); err != nil {
				uc.logger.Warn("failed to publish entry.posted", zap.Int64("entry_id", entryID), zap.Error(err))
			}
		}
	}
	return entryID, verdict, nil
}

// VoidEntry submits a void_entry action and, if allowed, voids the entry.
func (uc *LedgerUsecase) VoidEntry(ctx context.Context, requestID string, actor domain.Actor, entryID int64) (domain.Verdict, error) {
	verdict, err := uc.engine.Submit(ctx, requestID, domain.Action{
		Actor:    actor,
		Kind:     domain.ActionVoidEntry,
		Resource: fmt.Sprintf("journal_entries/%d", entryID),
		Payload:  map[string]int64{"entry_id": entryID},
	})
	if err != nil {
		return verdict, err
	}
	if !verdict.Allowed {
		return verdict, verdict.Err()
	}

	if err := uc.ledger.VoidEntry(ctx, entryID, actor.String()); err != nil {
		return verdict, err
	}

	uc.logger.Info("journal entry voided",
		zap.String("request_id", verdict.RequestID),
		zap.Int64("entry_id", entryID))

	if uc.events != nil {
		if err := uc.events.PublishEntryVoided(ctx, verdict.RequestID, entryID, actor.String()); err != nil {
			uc.logger.Warn("failed to publish entry.voided", zap.Int64("entry_id", entryID), zap.Error(err))
		}
	}
	return verdict, nil
}

// SetAccountActive submits a modify_account action and, if allowed, flips
// the account's active flag. Only active may change on a referenced account.
func (uc *LedgerUsecase) SetAccountActive(ctx context.Context, requestID string, actor domain.Actor, code string, active bool) (domain.Verdict, error) {
	verdict, err := uc.engine.Submit(ctx, requestID, domain.Action{
		Actor:    actor,
		Kind:     domain.ActionModifyAccount,
		Resource: "accounts/" + code,
		Payload:  map[string]any{"code": code, "active": active},
	})
	if err != nil {
		return verdict, err
	}
	if !verdict.Allowed {
		return verdict, verdict.Err()
	}
	if !actor.IsHuman() {
		return verdict, &domain.AuthorizationError{Actor: actor.String(), Operation: "modify accounts"}
	}

	if err := uc.accounts.SetAccountActive(ctx, code, active); err != nil {
		return verdict, err
	}
	if uc.cache != nil {
		if err := uc.cache.InvalidateAccounts(ctx); err != nil {
			uc.logger.Warn("failed to invalidate account cache", zap.Error(err))
		}
	}
	return verdict, nil
}

// GetAccounts is a read; it is served from cache when available.
func (uc *LedgerUsecase) GetAccounts(ctx context.Context) ([]*domain.Account, error) {
	if uc.cache != nil {
		if accounts, ok := uc.cache.GetAccounts(ctx); ok {
			return accounts, nil
		}
	}

	accounts, err := uc.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if err := uc.cache.SetAccounts(ctx, accounts); err != nil {
			uc.logger.Debug("failed to cache accounts", zap.Error(err))
		}
	}
	return accounts, nil
}

func (uc *LedgerUsecase) GetEntry(ctx context.Context, entryID int64) (*domain.JournalEntry, error) {
	return uc.ledger.GetEntry(ctx, entryID)
}

func (uc *LedgerUsecase) PostingInvariant(ctx context.Context, entryID int64) error {
	return uc.ledger.PostingInvariant(ctx, entryID)
}

func (uc *LedgerUsecase) GetValuation(ctx context.Context, metal string, asOf time.Time) (*domain.Valuation, error) {
	if metal == "" {
		return nil, &domain.ValidationError{Field: "metal", Msg: "is required"}
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return uc.valuations.GetValuation(ctx, metal, asOf)
}

func (uc *LedgerUsecase) TrialBalance(ctx context.Context) ([]*domain.TrialBalanceRow, error) {
	return uc.ledger.TrialBalance(ctx)
}

// EnsureAccounts upserts accounts without going through the policy engine;
// used only for chart-of-accounts setup.
func (uc *LedgerUsecase) EnsureAccounts(ctx context.Context, accounts []domain.AccountCreate) error {
	for i := range accounts {
		if _, err := uc.accounts.UpsertAccount(ctx, &accounts[i]); err != nil {
			return fmt.Errorf("failed to ensure account %s: %w", accounts[i].Code, err)
		}
	}
	if uc.cache != nil {
		_ = uc.cache.InvalidateAccounts(ctx)
	}
	return nil
}
