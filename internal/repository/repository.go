package repository

import (
	"context"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"

	"github.com/shopspring/decimal"
)

// AccountRepository persists the chart of accounts. Accounts are never
// deleted.
type AccountRepository interface {
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	GetAccountByCode(ctx context.Context, code string) (*domain.Account, error)
	UpsertAccount(ctx context.Context, in *domain.AccountCreate) (*domain.Account, error)
	SetAccountActive(ctx context.Context, code string, active bool) error
}

// LedgerRepository owns journal entries and their lines. Every write
// re-validates the posting invariant inside its own transaction.
type LedgerRepository interface {
	CreateEntry(ctx context.Context, in *domain.EntryCreate) (int64, error)
	PostingInvariant(ctx context.Context, entryID int64) error
	VoidEntry(ctx context.Context, entryID int64, voidedBy string) error
	AmendLine(ctx context.Context, lineID int64, debit, credit decimal.Decimal) error
	GetEntry(ctx context.Context, entryID int64) (*domain.JournalEntry, error)
	TrialBalance(ctx context.Context) ([]*domain.TrialBalanceRow, error)
}

// ValuationRepository reads canonical prices and open inventory.
type ValuationRepository interface {
	GetValuation(ctx context.Context, metal string, asOf time.Time) (*domain.Valuation, error)
}

// ApprovalRepository stores approvals. Revocation is the only update.
type ApprovalRepository interface {
	CreateApproval(ctx context.Context, in *domain.ApprovalCreate) (*domain.Approval, error)
	GetApproval(ctx context.Context, id int64) (*domain.Approval, error)
	RevokeApproval(ctx context.Context, id int64, revokedBy string, at time.Time) (*domain.Approval, error)
	ListApprovals(ctx context.Context, resourceKey string) ([]*domain.Approval, error)
	ActiveApproval(ctx context.Context, resourceKey string, now time.Time) (*domain.Approval, error)
}

// AuditRepository is the append-only audit log. UpdateAudit and DeleteAudit
// always fail with an ImmutabilityViolation for existing records.
type AuditRepository interface {
	AppendAudit(ctx context.Context, rec *domain.AuditRecord) (int64, error)
	AuditByRequest(ctx context.Context, requestID string) ([]*domain.AuditRecord, error)
	AuditByActor(ctx context.Context, actor string, since time.Time) ([]*domain.AuditRecord, error)
	AuditChain(ctx context.Context, afterID int64, limit int) ([]*domain.AuditRecord, error)
	CountAudit(ctx context.Context) (int64, error)
	UpdateAudit(ctx context.Context, id int64, result domain.PolicyResult) error
	DeleteAudit(ctx context.Context, id int64) error
}

// PolicyEventRepository stores write-once policy evaluation events.
type PolicyEventRepository interface {
	CreatePolicyEvent(ctx context.Context, ev *domain.PolicyEvent) (int64, error)
	PolicyEventsByRequest(ctx context.Context, requestID string) ([]*domain.PolicyEvent, error)
}

// SourceConfigRepository stores data-source settings.
type SourceConfigRepository interface {
	UpsertSourceConfig(ctx context.Context, cfg *domain.SourceConfig) error
	GetSourceConfig(ctx context.Context, key string) (*domain.SourceConfig, error)
	ListSourceConfigs(ctx context.Context) ([]*domain.SourceConfig, error)
}

// Store bundles every repository behind one backend.
type Store interface {
	AccountRepository
	LedgerRepository
	ValuationRepository
	ApprovalRepository
	AuditRepository
	PolicyEventRepository
	SourceConfigRepository
	Ping(ctx context.Context) error
	Close()
}
