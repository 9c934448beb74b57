package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	AccountRepository
	LedgerRepository
	ValuationRepository
	ApprovalRepository
	AuditRepository
	PolicyEventRepository
	SourceConfigRepository

	db *pgxpool.Pool
}

// NewPostgresStore wires every Postgres repository over one pool.
func NewPostgresStore(db *pgxpool.Pool) Store {
	return &postgresStore{
		AccountRepository:      NewAccountRepo(db),
		LedgerRepository:       NewLedgerRepo(db),
		ValuationRepository:    NewValuationRepo(db),
		ApprovalRepository:     NewApprovalRepo(db),
		AuditRepository:        NewAuditRepo(db),
		PolicyEventRepository:  NewPolicyEventRepo(db),
		SourceConfigRepository: NewSourceConfigRepo(db),
		db:                     db,
	}
}

func (s *postgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *postgresStore) Close() { s.db.Close() }
