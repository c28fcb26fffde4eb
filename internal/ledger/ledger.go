// Package ledger is the per-identity transaction store. Writes go to the
// document store; readers subscribe to a stream of whole-collection
// snapshots that is refreshed after every change, local or remote.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"fincon/internal/amqp"
	"fincon/internal/auth"
	"fincon/internal/core"
	"fincon/internal/docstore"
	"fincon/internal/feed"
)

// sharedReadTimeout bounds a collapsed backend read.
const sharedReadTimeout = 30 * time.Second

// Publisher announces changes to other processes.
type Publisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

// Snapshot is an immutable view of one user's collection, newest first.
type Snapshot struct {
	UserID       string
	Transactions []core.Transaction
}

// Ledger hands out identity-scoped Stores over one backend.
type Ledger struct {
	backend   docstore.Collection
	hub       *feed.Hub
	publisher Publisher
	origin    string
	logger    *slog.Logger
	reads     singleflight.Group

	mu       sync.Mutex
	versions map[string]uint64
}

type Option func(*Ledger)

// WithHub shares a change hub, e.g. with an AMQP relay.
func WithHub(h *feed.Hub) Option {
	return func(l *Ledger) { l.hub = h }
}

func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithOrigin sets the identifier stamped on published messages.
func WithOrigin(origin string) Option {
	return func(l *Ledger) { l.origin = origin }
}

func New(backend docstore.Collection, opts ...Option) *Ledger {
	l := &Ledger{
		backend:  backend,
		origin:   uuid.NewString(),
		logger:   slog.Default(),
		versions: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.hub == nil {
		l.hub = feed.NewHub()
	}
	return l
}

// Origin identifies this process on the change bus.
func (l *Ledger) Origin() string { return l.origin }

// Hub returns the change hub subscriptions listen on.
func (l *Ledger) Hub() *feed.Hub { return l.hub }

// ForIdentity returns a Store bound to id. An unauthenticated id yields a
// Store whose writes are no-ops and whose subscriptions stay silent.
func (l *Ledger) ForIdentity(id auth.Identity) *Store {
	return &Store{ledger: l, id: id}
}

// list collapses concurrent reads of one user. The key includes the
// user's change version so a read never joins one that started before the
// latest write.
func (l *Ledger) list(ctx context.Context, userID string) ([]core.Transaction, error) {
	l.mu.Lock()
	key := userID + "@" + strconv.FormatUint(l.versions[userID], 10)
	l.mu.Unlock()

	// The shared read must not inherit one caller's cancellation: callers
	// that joined it still want the result.
	ch := l.reads.DoChan(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		return l.backend.List(readCtx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers share the singleflight result; each gets its own slice.
		return core.Clone(res.Val.([]core.Transaction)), nil
	}
}

// Touch records an external change to userID's collection and wakes its
// subscribers.
func (l *Ledger) Touch(userID string) {
	l.mu.Lock()
	l.versions[userID]++
	l.mu.Unlock()
	l.hub.Notify(userID)
}

func (l *Ledger) changed(ctx context.Context, userID string, kind amqp.ChangeKind, txID string) {
	l.Touch(userID)

	if l.publisher == nil {
		return
	}
	msg := amqp.NewChangeMessage(userID, kind, txID)
	msg.Origin = l.origin
	if err := l.publisher.PublishChange(ctx, msg); err != nil {
		l.logger.ErrorContext(ctx, "Failed to publish change message",
			"user_id", userID,
			"kind", kind,
			"error", err)
	}
}

// Store is the transaction collection of one identity.
type Store struct {
	ledger *Ledger
	id     auth.Identity
}

func (s *Store) Identity() auth.Identity { return s.id }

// Add records a new transaction. amountText is parsed leniently; text that
// is not a non-negative number stores zero.
func (s *Store) Add(ctx context.Context, description, amountText string, typ core.TransactionType) error {
	if !s.id.Authenticated() {
		return nil
	}
	if !typ.IsValid() {
		return core.ErrInvalidType
	}

	t, err := s.ledger.backend.Create(ctx, s.id.ID, core.NewTransaction{
		Description: description,
		Amount:      core.ParseAmount(amountText),
		Type:        typ,
	})
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	s.ledger.changed(ctx, s.id.ID, amqp.ChangeCreated, t.ID)
	return nil
}

func (s *Store) AddIncome(ctx context.Context, description, amountText string) error {
	return s.Add(ctx, description, amountText, core.Income)
}

func (s *Store) AddExpense(ctx context.Context, description, amountText string) error {
	return s.Add(ctx, description, amountText, core.Expense)
}

// Update overwrites description and amount. Type and date never change.
// An id outside this identity's collection is ignored.
func (s *Store) Update(ctx context.Context, id, description, amountText string) error {
	if !s.id.Authenticated() {
		return nil
	}
	err := s.ledger.backend.Update(ctx, s.id.ID, id, description, core.ParseAmount(amountText))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	s.ledger.changed(ctx, s.id.ID, amqp.ChangeUpdated, id)
	return nil
}

// Remove deletes a transaction. Removing an unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	if !s.id.Authenticated() {
		return nil
	}
	if err := s.ledger.backend.Delete(ctx, s.id.ID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.ledger.changed(ctx, s.id.ID, amqp.ChangeDeleted, id)
	return nil
}

// Snapshot reads the current collection once.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	if !s.id.Authenticated() {
		return Snapshot{Transactions: []core.Transaction{}}, nil
	}
	txs, err := s.ledger.list(ctx, s.id.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list transactions: %w", err)
	}
	return Snapshot{UserID: s.id.ID, Transactions: txs}, nil
}
