// Package memory provides in-process implementations of the ledger, reset,
// catalog and numbering stores. Used for development (no database.url) and tests.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	corenumerator "stockledger/internal/core/numerator"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/registers/resets"
	"stockledger/internal/domain/registers/stock"
)

// Store groups the in-memory repositories.
type Store struct {
	Movements *MovementStore
	Resets    *ResetStore
	Products  *ProductStore
	Numerator *Numerator
}

// New creates an empty store.
func New() *Store {
	return &Store{
		Movements: NewMovementStore(),
		Resets:    NewResetStore(),
		Products:  NewProductStore(),
		Numerator: NewNumerator(),
	}
}

// --- Movements ---

// MovementStore keeps each product's movements sorted by (timestamp, sequence).
// The write lock serializes appends, so sequences never tie.
type MovementStore struct {
	mu        sync.RWMutex
	seq       int64
	byProduct map[id.ID][]entity.Movement
	byIdem    map[string]id.ID
	revision  map[id.ID]int64
}

var _ stock.Repository = (*MovementStore)(nil)

func NewMovementStore() *MovementStore {
	return &MovementStore{
		byProduct: make(map[id.ID][]entity.Movement),
		byIdem:    make(map[string]id.ID),
		revision:  make(map[id.ID]int64),
	}
}

func (s *MovementStore) AppendMovement(ctx context.Context, m *entity.Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.IdempotencyKey != nil && *m.IdempotencyKey != "" {
		if _, ok := s.byIdem[*m.IdempotencyKey]; ok {
			return apperror.NewDuplicate("movement", "idempotency_key", *m.IdempotencyKey)
		}
	}
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	s.seq++
	m.Sequence = s.seq

	list := s.byProduct[m.ProductID]
	pos := m.Position()
	i, _ := slices.BinarySearchFunc(list, pos, func(e entity.Movement, p entity.Position) int {
		return comparePositions(e.Position(), p)
	})
	s.byProduct[m.ProductID] = slices.Insert(list, i, *m)

	if m.IdempotencyKey != nil && *m.IdempotencyKey != "" {
		s.byIdem[*m.IdempotencyKey] = m.ID
	}
	s.revision[m.ProductID] = m.Sequence
	return nil
}

func (s *MovementStore) ListMovements(ctx context.Context, q stock.PageQuery) ([]entity.Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byProduct[q.ProductID]
	start := 0
	if !q.From.IsZero() {
		start, _ = slices.BinarySearchFunc(list, q.From, func(e entity.Movement, t time.Time) int {
			return e.Timestamp.Compare(t)
		})
	}

	var out []entity.Movement
	for i := start; i < len(list); i++ {
		m := list[i]
		if !q.To.IsZero() && (m.Timestamp.After(q.To) || (q.ToExclusive && m.Timestamp.Equal(q.To))) {
			break
		}
		if !q.Matches(&m) {
			continue
		}
		out = append(out, m)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *MovementStore) ProductIDs(ctx context.Context) ([]id.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]id.ID, 0, len(s.byProduct))
	for pid := range s.byProduct {
		out = append(out, pid)
	}
	slices.SortFunc(out, compareIDs)
	return out, nil
}

func (s *MovementStore) Revision(ctx context.Context, productID id.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision[productID], nil
}

// --- Resets ---

// ResetStore keeps each product's resets sorted by (date, sequence).
type ResetStore struct {
	mu        sync.RWMutex
	seq       int64
	byProduct map[id.ID][]entity.ResetEvent
	byIdem    map[string]id.ID
}

var _ resets.Repository = (*ResetStore)(nil)

func NewResetStore() *ResetStore {
	return &ResetStore{
		byProduct: make(map[id.ID][]entity.ResetEvent),
		byIdem:    make(map[string]id.ID),
	}
}

func (s *ResetStore) AppendReset(ctx context.Context, r *entity.ResetEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.IdempotencyKey != nil && *r.IdempotencyKey != "" {
		if _, ok := s.byIdem[*r.IdempotencyKey]; ok {
			return apperror.NewDuplicate("reset", "idempotency_key", *r.IdempotencyKey)
		}
	}
	if id.IsNil(r.ID) {
		r.ID = id.New()
	}
	if r.IdempotencyKey != nil && *r.IdempotencyKey != "" {
		s.byIdem[*r.IdempotencyKey] = r.ID
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	s.seq++
	r.Sequence = s.seq

	list := s.byProduct[r.ProductID]
	i, _ := slices.BinarySearchFunc(list, r.Position(), func(e entity.ResetEvent, p entity.Position) int {
		return comparePositions(e.Position(), p)
	})
	s.byProduct[r.ProductID] = slices.Insert(list, i, *r)
	return nil
}

func (s *ResetStore) LatestResetBefore(ctx context.Context, productID id.ID, date time.Time) (entity.ResetEvent, bool, error) {
	if err := ctx.Err(); err != nil {
		return entity.ResetEvent{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byProduct[productID]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].Date.After(date) {
			return list[i], true, nil
		}
	}
	return entity.ResetEvent{}, false, nil
}

func (s *ResetStore) ListResets(ctx context.Context, f resets.ListFilter) ([]entity.ResetEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.ResetEvent
	collect := func(list []entity.ResetEvent) {
		for i := range list {
			if f.Matches(&list[i]) {
				out = append(out, list[i])
			}
		}
	}
	if f.ProductID != nil {
		collect(s.byProduct[*f.ProductID])
		return out, nil
	}
	for _, list := range s.byProduct {
		collect(list)
	}
	slices.SortFunc(out, func(a, b entity.ResetEvent) int {
		return comparePositions(a.Position(), b.Position())
	})
	return out, nil
}

func (s *ResetStore) Revision(ctx context.Context, productID id.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byProduct[productID]
	var rev int64
	for i := range list {
		rev = max(rev, list[i].Sequence)
	}
	return rev, nil
}

// --- Catalog ---

// ProductStore holds catalog products by ID.
type ProductStore struct {
	mu    sync.RWMutex
	items map[id.ID]catalog.Product
}

var _ catalog.Repository = (*ProductStore)(nil)

func NewProductStore() *ProductStore {
	return &ProductStore{items: make(map[id.ID]catalog.Product)}
}

func (s *ProductStore) Upsert(ctx context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.items {
		if other.ID != p.ID && other.Code == p.Code {
			return apperror.NewDuplicate("product", "code", p.Code)
		}
	}
	s.items[p.ID] = *p
	return nil
}

func (s *ProductStore) GetByID(ctx context.Context, productID id.ID) (*catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.items[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	return &p, nil
}

func (s *ProductStore) List(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Product, 0, len(s.items))
	for _, p := range s.items {
		if len(f.GroupIDs) > 0 && (p.GroupID == nil || !slices.Contains(f.GroupIDs, *p.GroupID)) {
			continue
		}
		if len(f.ProductIDs) > 0 && !slices.Contains(f.ProductIDs, p.ID) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b catalog.Product) int {
		if a.Code != b.Code {
			if a.Code < b.Code {
				return -1
			}
			return 1
		}
		return compareIDs(a.ID, b.ID)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []catalog.Product{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// --- Numerator ---

// Numerator is an in-memory code generator. Counters are lost on restart.
type Numerator struct {
	mu       sync.Mutex
	counters map[string]int64
}

var _ corenumerator.Generator = (*Numerator)(nil)

func NewNumerator() *Numerator {
	return &Numerator{counters: make(map[string]int64)}
}

func (n *Numerator) GetNextNumber(ctx context.Context, cfg corenumerator.Config, _ *corenumerator.Options, period time.Time) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := cfg.Key(period)
	n.counters[key]++
	return cfg.Format(period, n.counters[key]), nil
}

func (n *Numerator) SetNextNumber(ctx context.Context, cfg corenumerator.Config, period time.Time, value int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.counters[cfg.Key(period)] = value
	return nil
}

func comparePositions(a, b entity.Position) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	}
	return 0
}

func compareIDs(a, b id.ID) int {
	return bytes.Compare(a[:], b[:])
}
