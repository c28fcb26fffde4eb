package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	// TransactionType carries the sign of a transaction; Amount never does.
	TransactionType string

	Transaction struct {
		ID          string
		UserID      string
		Description string
		Amount      decimal.Decimal
		Type        TransactionType
		Date        time.Time
	}

	// NewTransaction is what a caller supplies on creation. ID and Date are
	// assigned by the persistence layer.
	NewTransaction struct {
		Description string
		Amount      decimal.Decimal
		Type        TransactionType
	}
)

var (
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrEmptyDescription = errors.New("empty description")
)

// ParseTransactionType accepts the two canonical names, case-sensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(s); t {
	case Income, Expense:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

// IsValid returns true for income and expense.
func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string {
	return string(t)
}

// Validate checks the entity invariants. Description emptiness is an input
// concern and is not checked here.
func (n NewTransaction) Validate() error {
	if !n.Type.IsValid() {
		return ErrInvalidType
	}
	if n.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Clone returns a copy of the slice so snapshots can be handed out safely.
func Clone(txs []Transaction) []Transaction {
	if txs == nil {
		return []Transaction{}
	}
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out
}
