package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ledgerRepo struct {
	db *pgxpool.Pool
}

// NewLedgerRepo creates a new ledger repository
func NewLedgerRepo(db *pgxpool.Pool) LedgerRepository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateEntry inserts the entry as DRAFT, writes its lines, recomputes the
// totals from the stored rows and moves it to POSTED, all in one
// transaction. The deferred balance trigger re-checks at commit.
func (r *ledgerRepo) CreateEntry(ctx context.Context, in *domain.EntryCreate) (int64, error) {
	if in.CreatedBy != domain.CreatedByHuman {
		return 0, &domain.AuthorizationError{Actor: in.CreatedBy, Operation: "create journal entries"}
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}

	tx, err := r.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	accountIDs, err := lockAccounts(ctx, tx, in.Lines)
	if err != nil {
		return 0, err
	}

	entryDate := in.EntryDate
	if entryDate.IsZero() {
		entryDate = time.Now().UTC()
	}

	var entryID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO journal_entries (entry_date, memo, created_by, status)
		VALUES ($1, $2, $3, 'DRAFT')
		RETURNING id`,
		entryDate, in.Memo, in.CreatedBy,
	).Scan(&entryID); err != nil {
		return 0, fmt.Errorf("failed to insert journal entry: %w", translatePgError(err))
	}

	batch := &pgx.Batch{}
	for i, l := range in.Lines {
		batch.Queue(`
			INSERT INTO journal_lines (entry_id, line_no, account_id, debit, credit, memo)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			entryID, i+1, accountIDs[l.Account], l.Debit, l.Credit, l.Memo,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range in.Lines {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("failed to insert journal line: %w", translatePgError(err))
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("failed to insert journal lines: %w", translatePgError(err))
	}

	if err := checkBalanceTx(ctx, tx, entryID); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE journal_entries SET status = 'POSTED', posted_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'`, entryID,
	); err != nil {
		return 0, fmt.Errorf("failed to post journal entry: %w", translatePgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit journal entry: %w", translatePgError(err))
	}
	return entryID, nil
}

// lockAccounts resolves account codes to ids under a share lock, in sorted
// order, rejecting unknown and inactive accounts.
func lockAccounts(ctx context.Context, tx pgx.Tx, lines []domain.LineCreate) (map[string]int64, error) {
	codes := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.Account]; ok {
			continue
		}
		seen[l.Account] = struct{}{}
		codes = append(codes, l.Account)
	}
	sort.Strings(codes)

	ids := make(map[string]int64, len(codes))
	for _, code := range codes {
		var (
			id     int64
			active bool
		)
		err := tx.QueryRow(ctx, `SELECT id, active FROM accounts WHERE code = $1 FOR SHARE`, code).Scan(&id, &active)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &domain.ValidationError{Field: "account", Msg: fmt.Sprintf("unknown account %q", code)}
			}
			return nil, fmt.Errorf("failed to lock account %s: %w", code, err)
		}
		if !active {
			return nil, &domain.ValidationError{Field: "account", Msg: fmt.Sprintf("account %q is inactive", code)}
		}
		ids[code] = id
	}
	return ids, nil
}

func sumEntryTx(ctx context.Context, q pgx.Tx, entryID int64) (debit, credit decimal.Decimal, err error) {
	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM journal_lines WHERE entry_id = $1`, entryID,
	).Scan(&debit, &credit)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum entry %d: %w", entryID, err)
	}
	return debit, credit, nil
}

func checkBalanceTx(ctx context.Context, tx pgx.Tx, entryID int64) error {
	debit, credit, err := sumEntryTx(ctx, tx, entryID)
	if err != nil {
		return err
	}
	if !debit.Equal(credit) {
		return &domain.UnbalancedEntryError{EntryID: entryID, DebitTotal: debit, CreditTotal: credit}
	}
	return nil
}

func (r *ledgerRepo) PostingInvariant(ctx context.Context, entryID int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status domain.EntryStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM journal_entries WHERE id = $1`, entryID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xerrors.ErrEntryNotFound
		}
		return fmt.Errorf("failed to load entry %d: %w", entryID, err)
	}
	if status != domain.EntryStatusPosted {
		return nil
	}
	return checkBalanceTx(ctx, tx, entryID)
}

// VoidEntry moves a POSTED entry to VOID under a row lock. Lines are kept.
func (r *ledgerRepo) VoidEntry(ctx context.Context, entryID int64, voidedBy string) error {
	if voidedBy != domain.CreatedByHuman {
		return &domain.AuthorizationError{Actor: voidedBy, Operation: "void journal entries"}
	}

	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status domain.EntryStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM journal_entries WHERE id = $1 FOR UPDATE`, entryID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return xerrors.ErrEntryNotFound
		}
		return fmt.Errorf("failed to lock entry %d: %w", entryID, err)
	}
	if status != domain.EntryStatusPosted {
		return fmt.Errorf("%w: only POSTED entries can be voided, entry %d is %s", xerrors.ErrInvalidTransition, entryID, status)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE journal_entries SET status = 'VOID', voided_at = NOW(), voided_by = $2
		WHERE id = $1`, entryID, voidedBy,
	); err != nil {
		return fmt.Errorf("failed to void entry %d: %w", entryID, translatePgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit void of entry %d: %w", entryID, translatePgError(err))
	}
	return nil
}

// AmendLine changes a line's amounts. The line guard trigger rejects it
// unless the owning entry is still DRAFT.
func (r *ledgerRepo) AmendLine(ctx context.Context, lineID int64, debit, credit decimal.Decimal) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE journal_lines SET debit = $2, credit = $3 WHERE id = $1`, lineID, debit, credit)
	if err != nil {
		return fmt.Errorf("failed to amend line %d: %w", lineID, translatePgError(err))
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit line %d: %w", lineID, translatePgError(err))
	}
	return nil
}

func (r *ledgerRepo) GetEntry(ctx context.Context, entryID int64) (*domain.JournalEntry, error) {
	var e domain.JournalEntry
	err := r.db.QueryRow(ctx, `
		SELECT id, entry_date, memo, created_by, status, created_at, posted_at, voided_at, voided_by
		FROM journal_entries WHERE id = $1`, entryID,
	).Scan(&e.ID, &e.EntryDate, &e.Memo, &e.CreatedBy, &e.Status, &e.CreatedAt, &e.PostedAt, &e.VoidedAt, &e.VoidedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry %d: %w", entryID, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT l.id, l.entry_id, l.line_no, l.account_id, a.code, l.debit, l.credit, l.memo
		FROM journal_lines l
		JOIN accounts a ON a.id = l.account_id
		WHERE l.entry_id = $1
		ORDER BY l.line_no`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lines of entry %d: %w", entryID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNo, &l.AccountID, &l.AccountCode, &l.Debit, &l.Credit, &l.Memo); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		e.Lines = append(e.Lines, &l)
	}
	return &e, rows.Err()
}

// TrialBalance aggregates POSTED entries only; VOID entries are excluded.
func (r *ledgerRepo) TrialBalance(ctx context.Context) ([]*domain.TrialBalanceRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.code, a.name, a.type,
		       COALESCE(SUM(l.debit) FILTER (WHERE e.status = 'POSTED'), 0),
		       COALESCE(SUM(l.credit) FILTER (WHERE e.status = 'POSTED'), 0)
		FROM accounts a
		LEFT JOIN journal_lines l ON l.account_id = a.id
		LEFT JOIN journal_entries e ON e.id = l.entry_id
		GROUP BY a.code, a.name, a.type
		ORDER BY a.code`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trial balance: %w", err)
	}
	defer rows.Close()

	var out []*domain.TrialBalanceRow
	for rows.Next() {
		var row domain.TrialBalanceRow
		if err := rows.Scan(&row.AccountCode, &row.AccountName, &row.AccountType, &row.Debit, &row.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan trial balance row: %w", err)
		}
		row.Balance = domain.NormalBalance(row.AccountType, row.Debit, row.Credit)
		out = append(out, &row)
	}
	return out, rows.Err()
}
