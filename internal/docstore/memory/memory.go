package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fincon/internal/auth"
	"fincon/internal/core"
	"fincon/internal/docstore"
)

// Store keeps every collection in process memory. It is the default backend
// for development and the fake used across tests.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	last     time.Time
	txs      map[string][]core.Transaction
	profiles map[string]docstore.Profile
	accounts map[string]auth.Account
	byEmail  map[string]string
}

// Ensure interface conformance
var (
	_ docstore.Collection   = (*Store)(nil)
	_ docstore.ProfileStore = (*Store)(nil)
	_ auth.AccountStore     = (*Store)(nil)
)

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock lets tests pin creation timestamps.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		now:      now,
		txs:      make(map[string][]core.Transaction),
		profiles: make(map[string]docstore.Profile),
		accounts: make(map[string]auth.Account),
		byEmail:  make(map[string]string),
	}
}

// stamp returns a strictly increasing creation time so newest-first order
// matches insertion order even within one clock tick. Caller holds mu.
func (s *Store) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func (s *Store) Create(_ context.Context, userID string, n core.NewTransaction) (core.Transaction, error) {
	if err := n.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := core.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: n.Description,
		Amount:      n.Amount,
		Type:        n.Type,
		Date:        s.stamp(),
	}
	s.txs[userID] = append(s.txs[userID], t)
	return t, nil
}

func (s *Store) Update(_ context.Context, userID, id, description string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrNegativeAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.txs[userID]
	for i := range items {
		if items[i].ID == id {
			items[i].Description = description
			items[i].Amount = amount
			return nil
		}
	}
	return docstore.ErrNotFound
}

func (s *Store) List(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.Lock()
	out := core.Clone(s.txs[userID])
	s.mu.Unlock()

	docstore.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.txs[userID]
	for i := range items {
		if items[i].ID == id {
			s.txs[userID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) DeleteAll(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.txs[userID])
	delete(s.txs, userID)
	return n, nil
}

func (s *Store) SaveProfile(_ context.Context, p docstore.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (docstore.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return docstore.Profile{}, docstore.ErrNotFound
	}
	return p, nil
}

func (s *Store) DeleteProfile(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
	return nil
}

func (s *Store) CreateAccount(_ context.Context, a auth.Account) error {
	email := auth.NormalizeEmail(a.Email)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return auth.ErrEmailInUse
	}
	a.Email = email
	s.accounts[a.ID] = a
	s.byEmail[email] = a.ID
	return nil
}

func (s *Store) FindAccountByEmail(_ context.Context, email string) (auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return auth.Account{}, auth.ErrUnknownAccount
	}
	return s.accounts[id], nil
}

func (s *Store) FindAccount(_ context.Context, id string) (auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return auth.Account{}, auth.ErrUnknownAccount
	}
	return a, nil
}

func (s *Store) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrUnknownAccount
	}
	a.PasswordHash = passwordHash
	s.accounts[id] = a
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrUnknownAccount
	}
	delete(s.byEmail, a.Email)
	delete(s.accounts, id)
	return nil
}
