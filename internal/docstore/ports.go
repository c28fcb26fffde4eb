package docstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fincon/internal/core"
)

var ErrNotFound = errors.New("document not found")

// Profile is the per-user record kept next to the transaction collection.
type Profile struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Ports for outbound adapters. Every call is scoped to a single user; an
// adapter must never return or touch another user's documents.
type (
	TransactionWriter interface {
		// Create persists t, assigning its ID and creation Date.
		Create(ctx context.Context, userID string, t core.NewTransaction) (core.Transaction, error)
		// Update overwrites description and amount. Returns ErrNotFound when
		// id is not in userID's collection.
		Update(ctx context.Context, userID, id, description string, amount decimal.Decimal) error
	}

	// TransactionLister returns a user's collection ordered by Date descending.
	TransactionLister interface {
		List(ctx context.Context, userID string) ([]core.Transaction, error)
	}

	TransactionDeleter interface {
		// Delete removes one document. Deleting a missing id is not an error.
		Delete(ctx context.Context, userID, id string) error
		// DeleteAll empties the collection and returns how many were removed.
		DeleteAll(ctx context.Context, userID string) (int, error)
	}

	Collection interface {
		TransactionWriter
		TransactionLister
		TransactionDeleter
	}

	ProfileStore interface {
		SaveProfile(ctx context.Context, p Profile) error
		GetProfile(ctx context.Context, userID string) (Profile, error)
		DeleteProfile(ctx context.Context, userID string) error
	}
)

// SortNewestFirst orders by Date descending, breaking ties by ID descending
// so listings are deterministic.
func SortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID > txs[j].ID
	})
}
