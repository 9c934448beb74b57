// Package memory is an in-process Store. It enforces the same invariants as
// the Postgres triggers: posting balance, line immutability after posting,
// append-only audit log and write-once policy events.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	accounts   map[string]*domain.Account
	accountSeq int64

	entries  map[int64]*domain.JournalEntry
	lines    map[int64]*domain.JournalLine
	entrySeq int64
	lineSeq  int64

	approvals   []*domain.Approval
	approvalSeq int64

	audit  []*domain.AuditRecord
	events []*domain.PolicyEvent

	sources map[string]*domain.SourceConfig

	prices []*domain.CanonicalPrice
	lots   []*domain.InventoryLot
	lotSeq int64
}

type Option func(*Store)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		accounts: make(map[string]*domain.Account),
		entries:  make(map[int64]*domain.JournalEntry),
		lines:    make(map[int64]*domain.JournalLine),
		sources:  make(map[string]*domain.SourceConfig),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// AddPrice records a canonical price observation.
func (s *Store) AddPrice(p domain.CanonicalPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Metal = strings.ToUpper(p.Metal)
	s.prices = append(s.prices, &p)
}

// AddLot records an inventory lot and returns its id.
func (s *Store) AddLot(l domain.InventoryLot) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lotSeq++
	l.ID = s.lotSeq
	l.Metal = strings.ToUpper(l.Metal)
	s.lots = append(s.lots, &l)
	return l.ID
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
