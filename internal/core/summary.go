package core

import "github.com/shopspring/decimal"

// Totals is the running summary of a transaction collection.
type Totals struct {
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	Balance       decimal.Decimal
}

// Aggregate reduces a collection into its three totals. It is pure and
// independent of input order.
func Aggregate(txs []Transaction) Totals {
	income := decimal.Zero
	expenses := decimal.Zero

	for _, t := range txs {
		switch t.Type {
		case Income:
			income = income.Add(t.Amount)
		case Expense:
			expenses = expenses.Add(t.Amount)
		}
	}

	return Totals{
		TotalIncome:   income,
		TotalExpenses: expenses,
		Balance:       income.Sub(expenses),
	}
}

// Equal compares totals numerically, ignoring decimal exponent differences.
func (t Totals) Equal(o Totals) bool {
	return t.TotalIncome.Equal(o.TotalIncome) &&
		t.TotalExpenses.Equal(o.TotalExpenses) &&
		t.Balance.Equal(o.Balance)
}
