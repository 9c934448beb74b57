package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"

	"github.com/shopspring/decimal"
)

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	return &cp
}

func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Account, 0, len(s.accounts))
	for _, code := range sortedKeys(s.accounts) {
		out = append(out, copyAccount(s.accounts[code]))
	}
	return out, nil
}

func (s *Store) GetAccountByCode(ctx context.Context, code string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[code]
	if !ok {
		return nil, xerrors.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (s *Store) UpsertAccount(ctx context.Context, in *domain.AccountCreate) (*domain.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[in.Code]; ok {
		return copyAccount(a), nil
	}
	s.accountSeq++
	a := &domain.Account{
		ID:        s.accountSeq,
		Code:      in.Code,
		Name:      in.Name,
		Type:      in.Type,
		Currency:  in.Currency,
		Active:    true,
		CreatedAt: s.timestamp(),
	}
	s.accounts[a.Code] = a
	return copyAccount(a), nil
}

func (s *Store) SetAccountActive(ctx context.Context, code string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[code]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	a.Active = active
	return nil
}

// CreateEntry validates, balances and posts the entry under the write lock.
// Nothing is stored unless every check passes.
func (s *Store) CreateEntry(ctx context.Context, in *domain.EntryCreate) (int64, error) {
	if in.CreatedBy != domain.CreatedByHuman {
		return 0, &domain.AuthorizationError{Actor: in.CreatedBy, Operation: "create journal entries"}
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range in.Lines {
		a, ok := s.accounts[l.Account]
		if !ok {
			return 0, &domain.ValidationError{Field: "account", Msg: fmt.Sprintf("unknown account %q", l.Account)}
		}
		if !a.Active {
			return 0, &domain.ValidationError{Field: "account", Msg: fmt.Sprintf("account %q is inactive", l.Account)}
		}
	}

	s.entrySeq++
	entryID := s.entrySeq

	staged := make([]*domain.JournalLine, 0, len(in.Lines))
	for i, l := range in.Lines {
		staged = append(staged, &domain.JournalLine{
			EntryID:     entryID,
			LineNo:      i + 1,
			AccountID:   s.accounts[l.Account].ID,
			AccountCode: l.Account,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Memo:        l.Memo,
		})
	}

	debit, credit := domain.SumLines(staged)
	if !debit.Equal(credit) {
		return 0, &domain.UnbalancedEntryError{EntryID: entryID, DebitTotal: debit, CreditTotal: credit}
	}

	now := s.timestamp()
	entryDate := in.EntryDate
	if entryDate.IsZero() {
		entryDate = now
	}
	y, m, d := entryDate.UTC().Date()

	entry := &domain.JournalEntry{
		ID:        entryID,
		EntryDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Memo:      in.Memo,
		CreatedBy: in.CreatedBy,
		Status:    domain.EntryStatusPosted,
		CreatedAt: now,
		PostedAt:  &now,
	}
	for _, l := range staged {
		s.lineSeq++
		l.ID = s.lineSeq
		s.lines[l.ID] = l
		entry.Lines = append(entry.Lines, l)
	}
	s.entries[entryID] = entry
	return entryID, nil
}

func (s *Store) PostingInvariant(ctx context.Context, entryID int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entryID]
	if !ok {
		return xerrors.ErrEntryNotFound
	}
	if e.Status != domain.EntryStatusPosted {
		return nil
	}
	debit, credit := domain.SumLines(e.Lines)
	if !debit.Equal(credit) {
		return &domain.UnbalancedEntryError{EntryID: entryID, DebitTotal: debit, CreditTotal: credit}
	}
	return nil
}

func (s *Store) VoidEntry(ctx context.Context, entryID int64, voidedBy string) error {
	if voidedBy != domain.CreatedByHuman {
		return &domain.AuthorizationError{Actor: voidedBy, Operation: "void journal entries"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return xerrors.ErrEntryNotFound
	}
	if e.Status != domain.EntryStatusPosted {
		return fmt.Errorf("%w: only POSTED entries can be voided, entry %d is %s", xerrors.ErrInvalidTransition, entryID, e.Status)
	}
	now := s.timestamp()
	by := voidedBy
	e.Status = domain.EntryStatusVoid
	e.VoidedAt = &now
	e.VoidedBy = &by
	return nil
}

// AmendLine only succeeds for lines of DRAFT entries, which this store
// never exposes.
func (s *Store) AmendLine(ctx context.Context, lineID int64, debit, credit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lines[lineID]
	if !ok {
		return xerrors.ErrNotFound
	}
	e := s.entries[l.EntryID]
	if e.Status != domain.EntryStatusDraft {
		return &domain.ImmutabilityViolation{Resource: "journal_lines", Op: "line mutation on non-draft entry"}
	}
	l.Debit, l.Credit = debit, credit
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID int64) (*domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entryID]
	if !ok {
		return nil, xerrors.ErrEntryNotFound
	}
	cp := *e
	cp.Lines = make([]*domain.JournalLine, 0, len(e.Lines))
	for _, l := range e.Lines {
		lc := *l
		cp.Lines = append(cp.Lines, &lc)
	}
	return &cp, nil
}

func (s *Store) TrialBalance(ctx context.Context) ([]*domain.TrialBalanceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type sums struct{ debit, credit decimal.Decimal }
	byAccount := make(map[string]*sums)
	for _, e := range s.entries {
		if e.Status != domain.EntryStatusPosted {
			continue
		}
		for _, l := range e.Lines {
			t, ok := byAccount[l.AccountCode]
			if !ok {
				t = &sums{decimal.Zero, decimal.Zero}
				byAccount[l.AccountCode] = t
			}
			t.debit = t.debit.Add(l.Debit)
			t.credit = t.credit.Add(l.Credit)
		}
	}

	out := make([]*domain.TrialBalanceRow, 0, len(s.accounts))
	for _, code := range sortedKeys(s.accounts) {
		a := s.accounts[code]
		row := &domain.TrialBalanceRow{
			AccountCode: a.Code,
			AccountName: a.Name,
			AccountType: a.Type,
			Debit:       decimal.Zero,
			Credit:      decimal.Zero,
		}
		if t, ok := byAccount[code]; ok {
			row.Debit, row.Credit = t.debit, t.credit
		}
		row.Balance = domain.NormalBalance(a.Type, row.Debit, row.Credit)
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) GetValuation(ctx context.Context, metal string, asOf time.Time) (*domain.Valuation, error) {
	metal = strings.ToUpper(metal)
	y, m, d := asOf.UTC().Date()
	cutoff := time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.CanonicalPrice
	for _, p := range s.prices {
		if p.Metal != metal || p.PriceTS.After(cutoff) {
			continue
		}
		if best == nil || p.PriceTS.After(best.PriceTS) {
			best = p
		}
	}
	if best == nil {
		return nil, xerrors.ErrPriceNotFound
	}

	qty := decimal.Zero
	for _, l := range s.lots {
		if l.Metal == metal && !l.Closed && !l.AcquiredAt.After(cutoff) {
			qty = qty.Add(l.Quantity)
		}
	}
	return domain.NewValuation(metal, asOf, best, qty), nil
}
