package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"1", "1"},
		{"1.0", "1"},
		{"1.23", "1.23"},
		{"1,23", "1"},
		{"1e3", "1000"},
		{"2.5E-1", "0.25"},
		{"3.e2", "300"},
		{"1e", "1"},
		{"1e400", "0"},
		{"0.01", "0.01"},
		{"1.005", "1.005"}, // no rounding
		{" 2.50 ", "2.5"},
		{"+7", "7"},
		{"12abc", "12"},
		{".5", "0.5"},
		{"3.", "3"},
		{"-1", "0"},
		{"0", "0"},
		{"abc", "0"},
		{"", "0"},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in)
		want := decimal.RequireFromString(tc.out)
		if !got.Equal(want) {
			t.Fatalf("%q expected %s, got %s", tc.in, want, got)
		}
		if got.IsNegative() {
			t.Fatalf("%q parsed to negative %s", tc.in, got)
		}
	}
}

func TestFormatSigned(t *testing.T) {
	inc := Transaction{Type: Income, Amount: decimal.RequireFromString("1000")}
	exp := Transaction{Type: Expense, Amount: decimal.RequireFromString("2.5")}

	if got := FormatSigned(inc); got != "+1000.00" {
		t.Fatalf("income formatted as %q", got)
	}
	if got := FormatSigned(exp); got != "-2.50" {
		t.Fatalf("expense formatted as %q", got)
	}
	if got := FormatAmount(decimal.RequireFromString("0.125")); got != "0.13" {
		t.Fatalf("rounding for display: got %q", got)
	}
}
