package core

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func tx(typ TransactionType, amount string) Transaction {
	return Transaction{Type: typ, Amount: decimal.RequireFromString(amount)}
}

func TestParseTransactionType(t *testing.T) {
	for _, s := range []string{"income", "expense"} {
		if _, err := ParseTransactionType(s); err != nil {
			t.Fatalf("%q expected ok, got %v", s, err)
		}
	}
	for _, s := range []string{"", "Income", "transfer"} {
		if _, err := ParseTransactionType(s); err == nil {
			t.Fatalf("%q expected error", s)
		}
	}
}

func TestNewTransactionValidate(t *testing.T) {
	good := NewTransaction{Description: "ok", Amount: decimal.Zero, Type: Expense}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	// Empty descriptions are rejected by the input layer, not here.
	if err := (NewTransaction{Amount: decimal.NewFromInt(1), Type: Income}).Validate(); err != nil {
		t.Fatalf("expected ok for empty description, got %v", err)
	}

	bads := []NewTransaction{
		{Description: "a", Amount: decimal.NewFromInt(1), Type: "gift"},
		{Description: "a", Amount: decimal.NewFromInt(-1), Type: Expense},
	}
	for i, n := range bads {
		if err := n.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestAggregate(t *testing.T) {
	cases := []struct {
		name                      string
		txs                       []Transaction
		income, expenses, balance string
	}{
		{"empty", nil, "0", "0", "0"},
		{"scenario", []Transaction{tx(Income, "1000"), tx(Expense, "200"), tx(Expense, "50")}, "1000", "250", "750"},
		{"only expenses", []Transaction{tx(Expense, "10.10"), tx(Expense, "0.05")}, "0", "10.15", "-10.15"},
		{"exact decimals", []Transaction{tx(Income, "0.1"), tx(Income, "0.2")}, "0.3", "0", "0.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Aggregate(tc.txs)
			want := Totals{
				TotalIncome:   decimal.RequireFromString(tc.income),
				TotalExpenses: decimal.RequireFromString(tc.expenses),
				Balance:       decimal.RequireFromString(tc.balance),
			}
			if !got.Equal(want) {
				t.Fatalf("Aggregate() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestAggregateProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := rng.Intn(20)
		txs := make([]Transaction, n)
		for i := range txs {
			typ := Income
			if rng.Intn(2) == 0 {
				typ = Expense
			}
			txs[i] = Transaction{Type: typ, Amount: decimal.New(rng.Int63n(100000), -2)}
		}

		got := Aggregate(txs)
		if !got.Balance.Equal(got.TotalIncome.Sub(got.TotalExpenses)) {
			t.Fatalf("balance %s != income %s - expenses %s", got.Balance, got.TotalIncome, got.TotalExpenses)
		}
		if got.TotalIncome.IsNegative() || got.TotalExpenses.IsNegative() {
			t.Fatalf("negative totals: %+v", got)
		}

		shuffled := Clone(txs)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if !Aggregate(shuffled).Equal(got) {
			t.Fatalf("aggregate depends on order")
		}

		added := append(Clone(txs), tx(Income, "12.34"))
		after := Aggregate(added)
		if !after.TotalIncome.Sub(got.TotalIncome).Equal(decimal.RequireFromString("12.34")) {
			t.Fatalf("adding income changed income by %s", after.TotalIncome.Sub(got.TotalIncome))
		}
		if !after.TotalExpenses.Equal(got.TotalExpenses) {
			t.Fatalf("adding income changed expenses")
		}

		if n > 0 {
			removed := Clone(txs[1:])
			r := Aggregate(removed)
			if txs[0].Type == Income {
				if !got.TotalIncome.Sub(r.TotalIncome).Equal(txs[0].Amount) || !r.TotalExpenses.Equal(got.TotalExpenses) {
					t.Fatalf("removing income did not adjust totals correctly")
				}
			} else {
				if !got.TotalExpenses.Sub(r.TotalExpenses).Equal(txs[0].Amount) || !r.TotalIncome.Equal(got.TotalIncome) {
					t.Fatalf("removing expense did not adjust totals correctly")
				}
			}
		}
	}
}

func TestCloneNeverNil(t *testing.T) {
	if Clone(nil) == nil {
		t.Fatal("Clone(nil) should return an empty slice")
	}
}
