package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"depenses/internal/core"
	"depenses/internal/storage"
)

// Store keeps expenses in a map. It is meant for development and tests; all
// data is lost on restart.
type Store struct {
	mu    sync.Mutex
	items map[string]core.Expense
	now   func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string]core.Expense), now: time.Now}
}

type seedRecord struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Label         string `json:"label"`
	Date          string `json:"date"`
	Remark        string `json:"remark"`
	BalanceStatus string `json:"balanceStatus"`
	BalanceAmount int64  `json:"balanceAmount"`
}

// NewFromFile seeds the store from a JSON array of records with base currency
// amounts and YYYY-MM-DD dates. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed []seedRecord
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for i, r := range seed {
		date, err := core.ParseDay(r.Date)
		if err != nil {
			return nil, fmt.Errorf("seed record %d: %w", i, err)
		}
		cur, err := core.ParseCurrency(r.Currency)
		if err != nil {
			return nil, fmt.Errorf("seed record %d: %w", i, err)
		}
		status, err := core.ParseBalanceStatus(r.BalanceStatus)
		if err != nil {
			return nil, fmt.Errorf("seed record %d: %w", i, err)
		}
		_, err = s.Create(context.Background(), core.Expense{
			Amount:        r.Amount,
			Currency:      cur,
			Label:         r.Label,
			Date:          date,
			Remark:        r.Remark,
			BalanceStatus: status,
			BalanceAmount: r.BalanceAmount,
		})
		if err != nil {
			return nil, fmt.Errorf("seed record %d: %w", i, err)
		}
	}
	return s, nil
}

func (s *Store) List(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		di, dj := core.StartOfDay(out[i].Date), core.StartOfDay(out[j].Date)
		if !di.Equal(dj) {
			return di.After(dj)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) Create(_ context.Context, e core.Expense) (core.Expense, error) {
	e = e.Normalize()
	now := s.now()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[e.ID] = e
	return e, nil
}

func (s *Store) Update(_ context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, core.ErrNotFound)
	}
	next := u.Apply(current)
	next.UpdatedAt = s.now()
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}
	if err := next.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.items[id] = next
	return next, nil
}

func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

// RenameLabel holds the lock for the whole pass, so it is atomic.
func (s *Store) RenameLabel(_ context.Context, oldLabel, newLabel string) (int64, error) {
	from, to, noop, err := storage.CheckRename(oldLabel, newLabel)
	if err != nil || noop {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for id, e := range s.items {
		if e.Label != from {
			continue
		}
		e.Label = to
		e.UpdatedAt = now
		s.items[id] = e
		n++
	}
	return n, nil
}

func (s *Store) DeleteByLabel(_ context.Context, label string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.items {
		if e.Label == label {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Labels(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dedupeSorted(s.items), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func dedupeSorted(items map[string]core.Expense) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(items))
	for _, e := range items {
		v := strings.TrimSpace(e.Label)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
